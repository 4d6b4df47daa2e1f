package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAdvertisementNotFound is returned when an advertisement id does not exist.
var ErrAdvertisementNotFound = errors.New("advertisement not found")

// BidEventType classifies how a visible bid came about. It is shown next to
// the amount in the bid history.
type BidEventType string

const (
	// BidEventNone is a bid the user actively drove to this amount.
	BidEventNone BidEventType = "none"
	// BidEventViaMaxBid is an automatic counter-bid placed on behalf of the
	// leading bidder after being challenged.
	BidEventViaMaxBid BidEventType = "via_max_bid"
	// BidEventMaxBidReached marks the former leader's ceiling being fully
	// spent as their final visible stake before losing the lead.
	BidEventMaxBidReached BidEventType = "max_bid_reached"
	// BidEventMaxBidPlacedFirst marks a tie on max-bid amount where the
	// earlier bidder keeps the lead.
	BidEventMaxBidPlacedFirst BidEventType = "max_bid_placed_first"
)

// Advertisement represents a marketplace listing. A nil StartingPrice means
// the listing is buy-now only and has no auction component.
type Advertisement struct {
	ID                int64            `db:"id" json:"id"`
	Title             string           `db:"title" json:"title"`
	AdvertiserID      string           `db:"advertiser_id" json:"advertiser_id"`
	StartingPrice     *decimal.Decimal `db:"starting_price" json:"starting_price"`
	BuyNowPrice       *decimal.Decimal `db:"buy_now_price" json:"buy_now_price"`
	CurrentHighestBid decimal.Decimal  `db:"current_highest_bid" json:"current_highest_bid"`
	AuctionEndDate    *time.Time       `db:"auction_end_date" json:"auction_end_date"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// MaxBid is a bidder's private ceiling on one advertisement. There is at most
// one row per (advertisement, user); raising the ceiling updates it in place.
type MaxBid struct {
	ID              int64           `db:"id"`
	AdvertisementID int64           `db:"advertisement_id"`
	UserID          string          `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	PlacedAt        time.Time       `db:"placed_at"`
}

// VisibleBid is one entry in the append-only public bid log.
type VisibleBid struct {
	ID              int64           `db:"id"`
	AdvertisementID int64           `db:"advertisement_id"`
	UserID          string          `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	PlacedAt        time.Time       `db:"placed_at"`
	EventType       BidEventType    `db:"event_type"`
}

// AdvertisementRepository defines advertisement persistence operations.
type AdvertisementRepository interface {
	Create(ctx context.Context, ad *Advertisement) error
	GetByID(ctx context.Context, id int64) (*Advertisement, error)
	// EndingBefore lists auction listings whose end date falls before cutoff.
	EndingBefore(ctx context.Context, cutoff time.Time) ([]Advertisement, error)
}

// BidTx is the read and write surface available inside a bid placement
// transaction. All methods operate on the advertisement the transaction was
// opened for, and see a snapshot consistent with the locks taken at open.
type BidTx interface {
	// Advertisement returns the locked advertisement row.
	Advertisement(ctx context.Context) (*Advertisement, error)
	// LeadingMaxBid returns the highest max-bid, ties broken by earliest
	// placement, then lowest id. Returns nil when no max-bid exists.
	LeadingMaxBid(ctx context.Context) (*MaxBid, error)
	// LeadingVisibleBid returns the visible bid with the highest amount,
	// or nil when no bid has been placed.
	LeadingVisibleBid(ctx context.Context) (*VisibleBid, error)
	// UserMaxBid returns the user's own ceiling, or nil.
	UserMaxBid(ctx context.Context, userID string) (*MaxBid, error)
	// UpsertMaxBid creates or replaces the user's ceiling.
	UpsertMaxBid(ctx context.Context, userID string, amount decimal.Decimal, placedAt time.Time) error
	// AppendVisibleBid appends to the public bid log and raises the
	// advertisement's denormalized current highest bid if amount exceeds it.
	AppendVisibleBid(ctx context.Context, userID string, amount decimal.Decimal, eventType BidEventType, placedAt time.Time) error
	// AddFavourite adds the advertisement to the user's watch list.
	// Adding twice is a no-op.
	AddFavourite(ctx context.Context, userID string) error
}

// BidLedger is the durable auction state for all advertisements: max-bids,
// the visible bid log, and the denormalized highest-bid cache.
type BidLedger interface {
	// WithBidTx runs fn inside a transaction serialized against other
	// bid transactions on the same advertisement. Concurrent transactions
	// on different advertisements do not block each other. If fn returns
	// an error the transaction is rolled back and nothing is written.
	// Returns ErrAdvertisementNotFound when the advertisement is missing.
	WithBidTx(ctx context.Context, advertisementID int64, fn func(tx BidTx) error) error

	LeadingMaxBid(ctx context.Context, advertisementID int64) (*MaxBid, error)
	LeadingVisibleBid(ctx context.Context, advertisementID int64) (*VisibleBid, error)
	// LeadingBidderID returns the current leader's user id, preferring the
	// max-bid-placed-first entry on equal amounts. Empty when no bids exist.
	LeadingBidderID(ctx context.Context, advertisementID int64) (string, error)
	UserMaxBid(ctx context.Context, advertisementID int64, userID string) (*MaxBid, error)
	BidCount(ctx context.Context, advertisementID int64) (int, error)
	// OutbidUserIDs lists every user holding a max-bid who is not the
	// current leading bidder.
	OutbidUserIDs(ctx context.Context, advertisementID int64) ([]string, error)
	// IsOutbid reports whether the user has placed a visible bid and is
	// not the current leader.
	IsOutbid(ctx context.Context, advertisementID int64, userID string) (bool, error)
	// VisibleBids returns the full bid log, newest first.
	VisibleBids(ctx context.Context, advertisementID int64) ([]VisibleBid, error)
	// IsFavourite reports whether the user watches the advertisement.
	IsFavourite(ctx context.Context, advertisementID int64, userID string) (bool, error)
}
