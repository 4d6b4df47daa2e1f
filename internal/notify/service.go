package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/clock"
)

// Service creates user-facing notifications for bidding events.
type Service struct {
	store  Store
	logger *slog.Logger
	clock  clock.Clock
}

// NewService creates a notification Service.
func NewService(store Store, logger *slog.Logger, clk clock.Clock) *Service {
	return &Service{store: store, logger: logger, clock: clk}
}

// NotifyOutbid tells every user in userIDs that the leading bid on the
// advertisement moved past theirs. The new leader is filtered out so a
// bidder never gets an outbid notice about their own bid.
func (s *Service) NotifyOutbid(ctx context.Context, advertisementID int64, title string, newAmount decimal.Decimal, userIDs []string, leaderID string) error {
	now := s.clock.Now().UTC()
	var notifications []Notification
	for _, userID := range userIDs {
		if userID == leaderID {
			continue
		}
		notifications = append(notifications, Notification{
			ID:              uuid.NewString(),
			UserID:          userID,
			AdvertisementID: advertisementID,
			Type:            TypeOutbid,
			Message:         fmt.Sprintf("Du har blivit överbjuden på \"%s\". Nytt ledande bud är %s kr.", title, newAmount),
			CreatedAt:       now,
		})
	}
	if len(notifications) == 0 {
		return nil
	}
	if err := s.store.Create(ctx, notifications...); err != nil {
		return fmt.Errorf("creating outbid notifications: %w", err)
	}
	s.logger.InfoContext(ctx, "outbid notifications created",
		slog.Int64("advertisement_id", advertisementID),
		slog.Int("count", len(notifications)),
	)
	return nil
}

// NotifyNewLeadingBid tells the advertiser their listing got a new leading bid.
func (s *Service) NotifyNewLeadingBid(ctx context.Context, advertisementID int64, title string, amount decimal.Decimal, advertiserID string) error {
	n := Notification{
		ID:              uuid.NewString(),
		UserID:          advertiserID,
		AdvertisementID: advertisementID,
		Type:            TypeNewLeadingBid,
		Message:         fmt.Sprintf("Din annons \"%s\" har ett nytt ledande bud på %s kr.", title, amount),
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return fmt.Errorf("creating leading bid notification: %w", err)
	}
	s.logger.InfoContext(ctx, "leading bid notification created",
		slog.Int64("advertisement_id", advertisementID),
		slog.String("advertiser_id", advertiserID),
	)
	return nil
}
