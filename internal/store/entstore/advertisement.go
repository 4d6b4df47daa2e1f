package entstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/store"
)

// AdvertisementRepo implements store.AdvertisementRepository using database/sql.
type AdvertisementRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewAdvertisementRepo returns a new AdvertisementRepo.
func NewAdvertisementRepo(db *sql.DB, clk clock.Clock) *AdvertisementRepo {
	return &AdvertisementRepo{db: db, clock: clk}
}

const advertisementColumns = `id, title, advertiser_id, starting_price, buy_now_price, current_highest_bid, auction_end_date, created_at`

func scanAdvertisement(row interface{ Scan(...any) error }) (*store.Advertisement, error) {
	var (
		ad       store.Advertisement
		starting decimal.NullDecimal
		buyNow   decimal.NullDecimal
		endDate  sql.NullTime
	)
	err := row.Scan(&ad.ID, &ad.Title, &ad.AdvertiserID, &starting, &buyNow,
		&ad.CurrentHighestBid, &endDate, &ad.CreatedAt)
	if err != nil {
		return nil, err
	}
	if starting.Valid {
		ad.StartingPrice = &starting.Decimal
	}
	if buyNow.Valid {
		ad.BuyNowPrice = &buyNow.Decimal
	}
	if endDate.Valid {
		ad.AuctionEndDate = &endDate.Time
	}
	return &ad, nil
}

func (r *AdvertisementRepo) Create(ctx context.Context, ad *store.Advertisement) error {
	ad.CreatedAt = r.clock.Now().UTC()
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO advertisements (title, advertiser_id, starting_price, buy_now_price, auction_end_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		ad.Title, ad.AdvertiserID, nullDecimal(ad.StartingPrice), nullDecimal(ad.BuyNowPrice),
		nullTime(ad.AuctionEndDate), ad.CreatedAt,
	).Scan(&ad.ID)
	if err != nil {
		return fmt.Errorf("creating advertisement: %w", err)
	}
	return nil
}

func (r *AdvertisementRepo) GetByID(ctx context.Context, id int64) (*store.Advertisement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+advertisementColumns+` FROM advertisements WHERE id = $1`, id)
	ad, err := scanAdvertisement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAdvertisementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting advertisement: %w", err)
	}
	return ad, nil
}

func (r *AdvertisementRepo) EndingBefore(ctx context.Context, cutoff time.Time) ([]store.Advertisement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+advertisementColumns+` FROM advertisements
		 WHERE auction_end_date IS NOT NULL AND auction_end_date < $1
		 ORDER BY auction_end_date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing ending advertisements: %w", err)
	}
	defer rows.Close()

	var ads []store.Advertisement
	for rows.Next() {
		ad, err := scanAdvertisement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning advertisement row: %w", err)
		}
		ads = append(ads, *ad)
	}
	return ads, rows.Err()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
