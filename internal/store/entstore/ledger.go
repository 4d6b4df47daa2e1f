package entstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting the ledger run
// the same queries inside and outside a bid transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	leadingMaxBidQuery = `SELECT id, advertisement_id, user_id, amount, placed_at FROM max_bids
	 WHERE advertisement_id = $1 ORDER BY amount DESC, placed_at ASC, id ASC LIMIT 1`

	leadingVisibleBidQuery = `SELECT id, advertisement_id, user_id, amount, placed_at, event_type FROM visible_bids
	 WHERE advertisement_id = $1 ORDER BY amount DESC, id ASC LIMIT 1`

	userMaxBidQuery = `SELECT id, advertisement_id, user_id, amount, placed_at FROM max_bids
	 WHERE advertisement_id = $1 AND user_id = $2`
)

func queryMaxBid(ctx context.Context, q querier, query string, args ...any) (*store.MaxBid, error) {
	var mb store.MaxBid
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&mb.ID, &mb.AdvertisementID, &mb.UserID, &mb.Amount, &mb.PlacedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting max bid: %w", err)
	}
	return &mb, nil
}

func queryVisibleBid(ctx context.Context, q querier, query string, args ...any) (*store.VisibleBid, error) {
	var vb store.VisibleBid
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&vb.ID, &vb.AdvertisementID, &vb.UserID, &vb.Amount, &vb.PlacedAt, &vb.EventType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting visible bid: %w", err)
	}
	return &vb, nil
}

// Ledger implements store.BidLedger using database/sql.
type Ledger struct {
	db *sql.DB
}

// NewLedger returns a new Ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) WithBidTx(ctx context.Context, advertisementID int64, fn func(tx store.BidTx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bid transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+advertisementColumns+` FROM advertisements WHERE id = $1 FOR UPDATE`, advertisementID)
	ad, err := scanAdvertisement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrAdvertisementNotFound
	}
	if err != nil {
		return fmt.Errorf("locking advertisement %d: %w", advertisementID, err)
	}

	if err := fn(&bidTx{tx: tx, ad: *ad}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bid transaction: %w", err)
	}
	return nil
}

type bidTx struct {
	tx *sql.Tx
	ad store.Advertisement
}

func (t *bidTx) Advertisement(_ context.Context) (*store.Advertisement, error) {
	ad := t.ad
	return &ad, nil
}

func (t *bidTx) LeadingMaxBid(ctx context.Context) (*store.MaxBid, error) {
	return queryMaxBid(ctx, t.tx, leadingMaxBidQuery, t.ad.ID)
}

func (t *bidTx) LeadingVisibleBid(ctx context.Context) (*store.VisibleBid, error) {
	return queryVisibleBid(ctx, t.tx, leadingVisibleBidQuery, t.ad.ID)
}

func (t *bidTx) UserMaxBid(ctx context.Context, userID string) (*store.MaxBid, error) {
	return queryMaxBid(ctx, t.tx, userMaxBidQuery, t.ad.ID, userID)
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

func (l *Ledger) LeadingMaxBid(ctx context.Context, advertisementID int64) (*store.MaxBid, error) {
	return queryMaxBid(ctx, l.db, leadingMaxBidQuery, advertisementID)
}

func (l *Ledger) LeadingVisibleBid(ctx context.Context, advertisementID int64) (*store.VisibleBid, error) {
	return queryVisibleBid(ctx, l.db, leadingVisibleBidQuery, advertisementID)
}

func (l *Ledger) LeadingBidderID(ctx context.Context, advertisementID int64) (string, error) {
	var userID string
	err := l.db.QueryRowContext(ctx,
		`SELECT user_id FROM visible_bids WHERE advertisement_id = $1
		 ORDER BY amount DESC, (event_type = 'max_bid_placed_first') DESC, id ASC LIMIT 1`,
		advertisementID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting leading bidder: %w", err)
	}
	return userID, nil
}

func (l *Ledger) UserMaxBid(ctx context.Context, advertisementID int64, userID string) (*store.MaxBid, error) {
	return queryMaxBid(ctx, l.db, userMaxBidQuery, advertisementID, userID)
}

func (l *Ledger) BidCount(ctx context.Context, advertisementID int64) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visible_bids WHERE advertisement_id = $1`, advertisementID).Scan(&count)
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
	rows, err := l.db.QueryContext(ctx,
		`SELECT user_id FROM max_bids WHERE advertisement_id = $1 AND user_id <> $2`,
		advertisementID, leader)
	if err != nil {
		return nil, fmt.Errorf("listing outbid users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning outbid user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
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
	err = l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM visible_bids WHERE advertisement_id = $1 AND user_id = $2)`,
		advertisementID, userID).Scan(&hasBid)
	if err != nil {
		return false, fmt.Errorf("checking user bids: %w", err)
	}
	return hasBid, nil
}

func (l *Ledger) VisibleBids(ctx context.Context, advertisementID int64) ([]store.VisibleBid, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, advertisement_id, user_id, amount, placed_at, event_type FROM visible_bids
		 WHERE advertisement_id = $1 ORDER BY placed_at DESC, id DESC`, advertisementID)
	if err != nil {
		return nil, fmt.Errorf("listing visible bids: %w", err)
	}
	defer rows.Close()

	var bids []store.VisibleBid
	for rows.Next() {
		var vb store.VisibleBid
		if err := rows.Scan(&vb.ID, &vb.AdvertisementID, &vb.UserID, &vb.Amount, &vb.PlacedAt, &vb.EventType); err != nil {
			return nil, fmt.Errorf("scanning visible bid row: %w", err)
		}
		bids = append(bids, vb)
	}
	return bids, rows.Err()
}

func (l *Ledger) IsFavourite(ctx context.Context, advertisementID int64, userID string) (bool, error) {
	var fav bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM favourites WHERE advertisement_id = $1 AND user_id = $2)`,
		advertisementID, userID).Scan(&fav)
	if err != nil {
		return false, fmt.Errorf("checking favourite: %w", err)
	}
	return fav, nil
}
