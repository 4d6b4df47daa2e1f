package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/store"
)

// Service resolves proxy bids: it accepts a bidder's private ceiling, derives
// the visible bid sequence against the current leader's stored ceiling, and
// commits max-bid, visible bids and the denormalized highest bid atomically.
type Service struct {
	ledger store.BidLedger
	ads    store.AdvertisementRepository
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewService creates a bidding Service.
func NewService(ledger store.BidLedger, ads store.AdvertisementRepository, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Service {
	return &Service{
		ledger: ledger,
		ads:    ads,
		logger: logger,
		tracer: tp.Tracer("github.com/jacobwinther/auctionsite/internal/bidding"),
		clock:  clk,
	}
}

// PlaceMaxBid stores maxAmount as the bidder's ceiling on the advertisement
// and emits the visible bids that follow from it, all in one transaction.
// Business rejections come back as a Result with Success false; the error
// return is reserved for infrastructure failures, which leave no partial
// writes behind.
func (s *Service) PlaceMaxBid(ctx context.Context, advertisementID int64, bidderID string, maxAmount decimal.Decimal) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "Service.PlaceMaxBid",
		trace.WithAttributes(
			attribute.Int64("advertisement.id", advertisementID),
			attribute.String("bidder.id", bidderID),
			attribute.String("bid.max_amount", maxAmount.String()),
		),
	)
	defer span.End()

	var res Result
	err := s.ledger.WithBidTx(ctx, advertisementID, func(tx store.BidTx) error {
		var txErr error
		res, txErr = s.resolve(ctx, tx, bidderID, maxAmount)
		return txErr
	})
	if err != nil {
		return rejected(KindUnknown), fmt.Errorf("placing max bid on advertisement %d: %w", advertisementID, err)
	}

	span.SetAttributes(
		attribute.Bool("bid.accepted", res.Success),
		attribute.String("bid.outcome", string(res.Kind)),
	)
	s.logger.InfoContext(ctx, "max bid resolved",
		slog.Int64("advertisement_id", advertisementID),
		slog.String("bidder_id", bidderID),
		slog.String("max_amount", maxAmount.String()),
		slog.Bool("accepted", res.Success),
		slog.String("outcome", string(res.Kind)),
	)
	return res, nil
}

// resolve runs the proxy-bid state machine inside the ledger transaction.
// Rejections return a Result with a nil error so the empty transaction
// commits; writes only begin once validation has passed.
func (s *Service) resolve(ctx context.Context, tx store.BidTx, bidderID string, maxAmount decimal.Decimal) (Result, error) {
	ad, err := tx.Advertisement(ctx)
	if err != nil {
		return Result{}, err
	}
	if ad.StartingPrice == nil {
		return rejected(KindBiddingNotAvailable), nil
	}

	leadingMax, err := tx.LeadingMaxBid(ctx)
	if err != nil {
		return Result{}, err
	}
	leadingVisible, err := tx.LeadingVisibleBid(ctx)
	if err != nil {
		return Result{}, err
	}
	callerMax, err := tx.UserMaxBid(ctx, bidderID)
	if err != nil {
		return Result{}, err
	}
	callerIsLeading := leadingMax != nil && leadingMax.UserID == bidderID

	if callerMax != nil && maxAmount.Equal(callerMax.Amount) {
		return rejected(KindSameAsPrevious), nil
	}

	if leadingVisible == nil {
		if maxAmount.LessThan(*ad.StartingPrice) {
			return rejected(KindBidTooLow), nil
		}
	} else {
		minAllowed := leadingVisible.Amount
		if !callerIsLeading {
			minAllowed = minAllowed.Add(Increment(leadingVisible.Amount))
		}
		if maxAmount.LessThan(minAllowed) {
			return rejected(KindBidTooLow), nil
		}
	}

	now := s.clock.Now().UTC()
	if err := tx.UpsertMaxBid(ctx, bidderID, maxAmount, now); err != nil {
		return Result{}, err
	}
	// Bidding on an ad implicitly watches it.
	if err := tx.AddFavourite(ctx, bidderID); err != nil {
		return Result{}, err
	}

	switch {
	case leadingMax == nil:
		// First ever bid: the visible stake is the starting price.
		if err := tx.AppendVisibleBid(ctx, bidderID, *ad.StartingPrice, store.BidEventNone, now); err != nil {
			return Result{}, err
		}
		return accepted(KindNone), nil

	case callerIsLeading:
		// Raising one's own ceiling leaves the visible price untouched.
		return accepted(KindAlreadyLeading), nil

	case maxAmount.GreaterThan(leadingMax.Amount):
		return s.overtake(ctx, tx, bidderID, maxAmount, leadingMax, leadingVisible, now)

	case maxAmount.LessThan(leadingMax.Amount):
		return s.counter(ctx, tx, bidderID, maxAmount, leadingMax, now)

	default:
		// Exact tie on the ceiling: the earlier bidder keeps the lead.
		if err := tx.AppendVisibleBid(ctx, bidderID, maxAmount, store.BidEventNone, now); err != nil {
			return Result{}, err
		}
		if err := tx.AppendVisibleBid(ctx, leadingMax.UserID, leadingMax.Amount, store.BidEventMaxBidPlacedFirst, now); err != nil {
			return Result{}, err
		}
		return accepted(KindMaxBidPlacedFirst), nil
	}
}

// overtake handles a challenger whose ceiling beats the leader's. The
// challenger's visible stake lands one increment above the old ceiling, or at
// their own ceiling if the increment would overshoot it. If the old leader had
// unused ceiling room, it is shown as their final stake first.
func (s *Service) overtake(ctx context.Context, tx store.BidTx, bidderID string, maxAmount decimal.Decimal, leadingMax *store.MaxBid, leadingVisible *store.VisibleBid, now time.Time) (Result, error) {
	counter := leadingMax.Amount.Add(Increment(leadingMax.Amount))
	newLeading := decimal.Min(counter, maxAmount)

	if leadingVisible != nil && leadingMax.Amount.GreaterThan(leadingVisible.Amount) {
		if err := tx.AppendVisibleBid(ctx, leadingMax.UserID, leadingMax.Amount, store.BidEventMaxBidReached, now); err != nil {
			return Result{}, err
		}
	}
	if err := tx.AppendVisibleBid(ctx, bidderID, newLeading, store.BidEventNone, now); err != nil {
		return Result{}, err
	}
	return accepted(KindNone), nil
}

// counter handles a challenger whose ceiling falls short. Their ceiling is
// revealed in full, then the leader automatically counters one increment above
// it. The increment is computed on the challenger's amount, not rounded to a
// shared ladder rung, so the leader beats by a full increment; if the leader's
// ceiling cannot sustain that, it is shown in full and still wins.
func (s *Service) counter(ctx context.Context, tx store.BidTx, bidderID string, maxAmount decimal.Decimal, leadingMax *store.MaxBid, now time.Time) (Result, error) {
	counterAmount := maxAmount.Add(Increment(maxAmount))

	if err := tx.AppendVisibleBid(ctx, bidderID, maxAmount, store.BidEventNone, now); err != nil {
		return Result{}, err
	}
	if counterAmount.GreaterThan(leadingMax.Amount) {
		counterAmount = leadingMax.Amount
	}
	if err := tx.AppendVisibleBid(ctx, leadingMax.UserID, counterAmount, store.BidEventViaMaxBid, now); err != nil {
		return Result{}, err
	}
	return accepted(KindCounteredViaMaxBid), nil
}
