package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/store"
)

// Queries shared between the pool and the transaction paths. The max-bid
// ordering falls back to the serial id so simultaneous placements with
// identical timestamps still have a deterministic winner.
const (
	leadingMaxBidQuery = `SELECT * FROM max_bids WHERE advertisement_id = $1
	 ORDER BY amount DESC, placed_at ASC, id ASC LIMIT 1`

	leadingVisibleBidQuery = `SELECT * FROM visible_bids WHERE advertisement_id = $1
	 ORDER BY amount DESC, id ASC LIMIT 1`

	leadingBidderQuery = `SELECT user_id FROM visible_bids WHERE advertisement_id = $1
	 ORDER BY amount DESC, (event_type = 'max_bid_placed_first') DESC, id ASC LIMIT 1`

	userMaxBidQuery = `SELECT * FROM max_bids WHERE advertisement_id = $1 AND user_id = $2`
)

// Ledger implements store.BidLedger with sqlx.
type Ledger struct {
	db *sqlx.DB
}

// NewLedger returns a new Ledger.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// WithBidTx locks the advertisement row and runs fn against the transaction.
// The row lock serializes concurrent bid placements on the same advertisement;
// placements on other advertisements proceed in parallel.
func (l *Ledger) WithBidTx(ctx context.Context, advertisementID int64, fn func(tx store.BidTx) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bid transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ad store.Advertisement
	err = tx.GetContext(ctx, &ad, `SELECT * FROM advertisements WHERE id = $1 FOR UPDATE`, advertisementID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrAdvertisementNotFound
	}
	if err != nil {
		return fmt.Errorf("locking advertisement %d: %w", advertisementID, err)
	}

	if err := fn(&bidTx{tx: tx, ad: ad}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bid transaction: %w", err)
	}
	return nil
}

// bidTx implements store.BidTx on an open transaction holding the
// advertisement row lock.
type bidTx struct {
	tx *sqlx.Tx
	ad store.Advertisement
}

func (t *bidTx) Advertisement(_ context.Context) (*store.Advertisement, error) {
	ad := t.ad
	return &ad, nil
}

func (t *bidTx) LeadingMaxBid(ctx context.Context) (*store.MaxBid, error) {
	var mb store.MaxBid
	err := t.tx.GetContext(ctx, &mb, leadingMaxBidQuery, t.ad.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting leading max bid: %w", err)
	}
	return &mb, nil
}

func (t *bidTx) LeadingVisibleBid(ctx context.Context) (*store.VisibleBid, error) {
	var vb store.VisibleBid
	err := t.tx.GetContext(ctx, &vb, leadingVisibleBidQuery, t.ad.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting leading visible bid: %w", err)
	}
	return &vb, nil
}

func (t *bidTx) UserMaxBid(ctx context.Context, userID string) (*store.MaxBid, error) {
	var mb store.MaxBid
	err := t.tx.GetContext(ctx, &mb, userMaxBidQuery, t.ad.ID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user max bid: %w", err)
	}
	return &mb, nil
}

func (t *bidTx) UpsertMaxBid(ctx context.Context, userID string, amount decimal.Decimal, placedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO max_bids (advertisement_id, user_id, amount, placed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (advertisement_id, user_id)
		 DO UPDATE SET amount = EXCLUDED.amount, placed_at = EXCLUDED.placed_at`,
		t.ad.ID, userID, amount, placedAt)
	if err != nil {
		return fmt.Errorf("upserting max bid: %w", err)
	}
	return nil
}

func (t *bidTx) AppendVisibleBid(ctx context.Context, userID string, amount decimal.Decimal, eventType store.BidEventType, placedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO visible_bids (advertisement_id, user_id, amount, placed_at, event_type)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ad.ID, userID, amount, placedAt, eventType)
	if err != nil {
		return fmt.Errorf("appending visible bid: %w", err)
	}
	// GREATEST keeps the denormalized price monotone even if an older
	// transaction replays a lower amount.
	_, err = t.tx.ExecContext(ctx,
		`UPDATE advertisements SET current_highest_bid = GREATEST(current_highest_bid, $2) WHERE id = $1`,
		t.ad.ID, amount)
	if err != nil {
		return fmt.Errorf("updating current highest bid: %w", err)
	}
	return nil
}

func (t *bidTx) AddFavourite(ctx context.Context, userID string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO favourites (advertisement_id, user_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		t.ad.ID, userID)
	if err != nil {
		return fmt.Errorf("adding favourite: %w", err)
	}
	return nil
}

// --- read-only query surface ---

func (l *Ledger) LeadingMaxBid(ctx context.Context, advertisementID int64) (*store.MaxBid, error) {
	var mb store.MaxBid
	err := l.db.GetContext(ctx, &mb, leadingMaxBidQuery, advertisementID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting leading max bid: %w", err)
	}
	return &mb, nil
}

func (l *Ledger) LeadingVisibleBid(ctx context.Context, advertisementID int64) (*store.VisibleBid, error) {
	var vb store.VisibleBid
	err := l.db.GetContext(ctx, &vb, leadingVisibleBidQuery, advertisementID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting leading visible bid: %w", err)
	}
	return &vb, nil
}

func (l *Ledger) LeadingBidderID(ctx context.Context, advertisementID int64) (string, error) {
	var userID string
	err := l.db.GetContext(ctx, &userID, leadingBidderQuery, advertisementID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting leading bidder: %w", err)
	}
	return userID, nil
}

func (l *Ledger) UserMaxBid(ctx context.Context, advertisementID int64, userID string) (*store.MaxBid, error) {
	var mb store.MaxBid
	err := l.db.GetContext(ctx, &mb, userMaxBidQuery, advertisementID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user max bid: %w", err)
	}
	return &mb, nil
}

func (l *Ledger) BidCount(ctx context.Context, advertisementID int64) (int, error) {
	var count int
	err := l.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM visible_bids WHERE advertisement_id = $1`, advertisementID)
	if err != nil {
		return 0, fmt.Errorf("counting bids: %w", err)
	}
	return count, nil
}

func (l *Ledger) OutbidUserIDs(ctx context.Context, advertisementID int64) ([]string, error) {
	leader, err := l.LeadingBidderID(ctx, advertisementID)
	if err != nil {
		return nil, err
	}
	if leader == "" {
		return nil, nil
	}
	var ids []string
	err = l.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM max_bids WHERE advertisement_id = $1 AND user_id <> $2`,
		advertisementID, leader)
	if err != nil {
		return nil, fmt.Errorf("listing outbid users: %w", err)
	}
	return ids, nil
}

func (l *Ledger) IsOutbid(ctx context.Context, advertisementID int64, userID string) (bool, error) {
	leader, err := l.LeadingBidderID(ctx, advertisementID)
	if err != nil {
		return false, err
	}
	if leader == "" || leader == userID {
		return false, nil
	}
	var hasBid bool
	err = l.db.GetContext(ctx, &hasBid,
		`SELECT EXISTS (SELECT 1 FROM visible_bids WHERE advertisement_id = $1 AND user_id = $2)`,
		advertisementID, userID)
	if err != nil {
		return false, fmt.Errorf("checking user bids: %w", err)
	}
	return hasBid, nil
}

func (l *Ledger) VisibleBids(ctx context.Context, advertisementID int64) ([]store.VisibleBid, error) {
	var bids []store.VisibleBid
	err := l.db.SelectContext(ctx, &bids,
		`SELECT * FROM visible_bids WHERE advertisement_id = $1
		 ORDER BY placed_at DESC, id DESC`, advertisementID)
	if err != nil {
		return nil, fmt.Errorf("listing visible bids: %w", err)
	}
	return bids, nil
}

func (l *Ledger) IsFavourite(ctx context.Context, advertisementID int64, userID string) (bool, error) {
	var fav bool
	err := l.db.GetContext(ctx, &fav,
		`SELECT EXISTS (SELECT 1 FROM favourites WHERE advertisement_id = $1 AND user_id = $2)`,
		advertisementID, userID)
	if err != nil {
		return false, fmt.Errorf("checking favourite: %w", err)
	}
	return fav, nil
}
