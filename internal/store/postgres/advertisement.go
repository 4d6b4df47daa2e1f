package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/store"
)

// AdvertisementRepo implements store.AdvertisementRepository with sqlx.
type AdvertisementRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAdvertisementRepo returns a new AdvertisementRepo.
func NewAdvertisementRepo(db *sqlx.DB, clk clock.Clock) *AdvertisementRepo {
	return &AdvertisementRepo{db: db, clock: clk}
}

func (r *AdvertisementRepo) Create(ctx context.Context, ad *store.Advertisement) error {
	query := `INSERT INTO advertisements (title, advertiser_id, starting_price, buy_now_price, auction_end_date, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	ad.CreatedAt = r.clock.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		ad.Title, ad.AdvertiserID, ad.StartingPrice, ad.BuyNowPrice, ad.AuctionEndDate, ad.CreatedAt,
	).Scan(&ad.ID)
	if err != nil {
		return fmt.Errorf("creating advertisement: %w", err)
	}
	return nil
}

func (r *AdvertisementRepo) GetByID(ctx context.Context, id int64) (*store.Advertisement, error) {
	var ad store.Advertisement
	err := r.db.GetContext(ctx, &ad, `SELECT * FROM advertisements WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAdvertisementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting advertisement: %w", err)
	}
	return &ad, nil
}

func (r *AdvertisementRepo) EndingBefore(ctx context.Context, cutoff time.Time) ([]store.Advertisement, error) {
	var ads []store.Advertisement
	err := r.db.SelectContext(ctx, &ads,
		`SELECT * FROM advertisements
		 WHERE auction_end_date IS NOT NULL AND auction_end_date < $1
		 ORDER BY auction_end_date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing ending advertisements: %w", err)
	}
	return ads, nil
}
