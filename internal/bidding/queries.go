package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobwinther/auctionsite/internal/store"
)

// HistoryEntry is one row of the public bid history. The trailing entry is
// synthetic and carries the starting price with an empty UserID.
type HistoryEntry struct {
	UserID    string             `json:"user_id"`
	Amount    decimal.Decimal    `json:"amount"`
	PlacedAt  time.Time          `json:"placed_at"`
	EventType store.BidEventType `json:"event_type"`
}

// Summary is the live view of an advertisement's auction state.
type Summary struct {
	AdvertisementID   int64           `json:"advertisement_id"`
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	MinimumNextBid    decimal.Decimal `json:"minimum_next_bid"`
	BidCount          int             `json:"bid_count"`
	LeadingBidderID   string          `json:"leading_bidder_id"`
}

// MinimumNextBid returns the lowest ceiling a fresh bidder may submit: the
// starting price when no bids exist, otherwise the leading visible bid plus
// one increment. Zero means bidding is unavailable on this advertisement.
func (s *Service) MinimumNextBid(ctx context.Context, advertisementID int64) (decimal.Decimal, error) {
	leading, err := s.ledger.LeadingVisibleBid(ctx, advertisementID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading leading visible bid: %w", err)
	}
	if leading == nil {
		ad, err := s.ads.GetByID(ctx, advertisementID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("loading advertisement %d: %w", advertisementID, err)
		}
		if ad.StartingPrice == nil {
			return decimal.Zero, nil
		}
		return *ad.StartingPrice, nil
	}
	return leading.Amount.Add(Increment(leading.Amount)), nil
}

// Summary gathers the values broadcast to everyone watching a listing.
func (s *Service) Summary(ctx context.Context, advertisementID int64) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Summary",
		trace.WithAttributes(attribute.Int64("advertisement.id", advertisementID)),
	)
	defer span.End()

	minNext, err := s.MinimumNextBid(ctx, advertisementID)
	if err != nil {
		return Summary{}, err
	}
	count, err := s.ledger.BidCount(ctx, advertisementID)
	if err != nil {
		return Summary{}, fmt.Errorf("counting bids: %w", err)
	}
	leaderID, err := s.ledger.LeadingBidderID(ctx, advertisementID)
	if err != nil {
		return Summary{}, fmt.Errorf("loading leading bidder: %w", err)
	}

	current := decimal.Zero
	if leading, err := s.ledger.LeadingVisibleBid(ctx, advertisementID); err != nil {
		return Summary{}, fmt.Errorf("loading leading visible bid: %w", err)
	} else if leading != nil {
		current = leading.Amount
	}

	return Summary{
		AdvertisementID:   advertisementID,
		CurrentHighestBid: current,
		MinimumNextBid:    minNext,
		BidCount:          count,
		LeadingBidderID:   leaderID,
	}, nil
}

// History returns the visible bid log newest first, with a synthetic trailing
// starting-price entry for display. An advertisement without bids yields an
// empty history.
func (s *Service) History(ctx context.Context, advertisementID int64) ([]HistoryEntry, error) {
	ad, err := s.ads.GetByID(ctx, advertisementID)
	if err != nil {
		return nil, fmt.Errorf("loading advertisement %d: %w", advertisementID, err)
	}

	bids, err := s.ledger.VisibleBids(ctx, advertisementID)
	if err != nil {
		return nil, fmt.Errorf("loading bid history: %w", err)
	}
	if len(bids) == 0 {
		return []HistoryEntry{}, nil
	}

	entries := make([]HistoryEntry, 0, len(bids)+1)
	for _, b := range bids {
		entries = append(entries, HistoryEntry{
			UserID:    b.UserID,
			Amount:    b.Amount,
			PlacedAt:  b.PlacedAt,
			EventType: b.EventType,
		})
	}
	if ad.StartingPrice != nil {
		entries = append(entries, HistoryEntry{
			Amount:    *ad.StartingPrice,
			PlacedAt:  ad.CreatedAt,
			EventType: store.BidEventNone,
		})
	}
	return entries, nil
}

// LeadingBidderID returns the current leader, or empty when no bids exist.
func (s *Service) LeadingBidderID(ctx context.Context, advertisementID int64) (string, error) {
	return s.ledger.LeadingBidderID(ctx, advertisementID)
}

// OutbidUserIDs lists everyone holding a ceiling who is not leading; the
// notification fan-out is driven from this set.
func (s *Service) OutbidUserIDs(ctx context.Context, advertisementID int64) ([]string, error) {
	return s.ledger.OutbidUserIDs(ctx, advertisementID)
}

// IsOutbid reports whether the user has bid on the advertisement and lost
// the lead.
func (s *Service) IsOutbid(ctx context.Context, advertisementID int64, userID string) (bool, error) {
	return s.ledger.IsOutbid(ctx, advertisementID, userID)
}

// UserMaxBid returns the user's own ceiling on the advertisement, or nil.
func (s *Service) UserMaxBid(ctx context.Context, advertisementID int64, userID string) (*store.MaxBid, error) {
	return s.ledger.UserMaxBid(ctx, advertisementID, userID)
}
