// Package live pushes bid updates to watchers in real time. Updates flow
// from the bidding service through a Publisher; watchers receive them over
// WebSocket connections managed by the Hub. With Redis configured the
// publisher fans out across replicas, otherwise updates stay in-process.
package live

import (
	"context"
	"time"
)

// Update is the payload pushed to everyone watching an advertisement after
// a bid placement changes its state.
type Update struct {
	AdvertisementID   int64     `json:"advertisement_id"`
	CurrentHighestBid string    `json:"current_highest_bid"`
	MinimumNextBid    string    `json:"minimum_next_bid"`
	BidCount          int       `json:"bid_count"`
	LeadingBidderID   string    `json:"leading_bidder_id"`
	Outcome           string    `json:"outcome"`
	PlacedAt          time.Time `json:"placed_at"`
}

// Publisher delivers bid updates to watchers.
type Publisher interface {
	PublishBidUpdate(ctx context.Context, update Update) error
}

// NopPublisher discards all updates.
type NopPublisher struct{}

func (NopPublisher) PublishBidUpdate(context.Context, Update) error { return nil }
