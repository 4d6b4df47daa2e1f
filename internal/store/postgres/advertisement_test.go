package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/store"
	"github.com/jacobwinther/auctionsite/internal/store/postgres"
)

func TestAdvertisementRepo_CreateAndGetByID(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAdvertisementRepo(db, clock.Real{})
	ctx := context.Background()

	sp := dec("250")
	bn := dec("900")
	ad := &store.Advertisement{
		Title:         "Road bike",
		AdvertiserID:  "seller-9",
		StartingPrice: &sp,
		BuyNowPrice:   &bn,
	}
	if err := repo.Create(ctx, ad); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ad.ID == 0 {
		t.Fatal("expected ID to be set after Create")
	}

	got, err := repo.GetByID(ctx, ad.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Road bike" {
		t.Errorf("Title = %q, want %q", got.Title, "Road bike")
	}
	if got.StartingPrice == nil || !got.StartingPrice.Equal(sp) {
		t.Errorf("StartingPrice = %v, want %s", got.StartingPrice, sp)
	}
	if !got.CurrentHighestBid.IsZero() {
		t.Errorf("CurrentHighestBid = %s, want 0", got.CurrentHighestBid)
	}
}

func TestAdvertisementRepo_GetByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAdvertisementRepo(db, clock.Real{})

	_, err := repo.GetByID(context.Background(), 424242)
	if err != store.ErrAdvertisementNotFound {
		t.Errorf("err = %v, want ErrAdvertisementNotFound", err)
	}
}

func TestAdvertisementRepo_EndingBefore(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAdvertisementRepo(db, clock.Real{})
	ctx := context.Background()

	now := time.Now().UTC()
	soon := now.Add(time.Hour)
	later := now.Add(72 * time.Hour)
	sp := dec("10")

	for _, tc := range []struct {
		title string
		end   *time.Time
	}{
		{"Ends soon", &soon},
		{"Ends later", &later},
		{"Buy now only", nil},
	} {
		ad := &store.Advertisement{Title: tc.title, AdvertiserID: "seller", StartingPrice: &sp, AuctionEndDate: tc.end}
		if err := repo.Create(ctx, ad); err != nil {
			t.Fatalf("Create(%s): %v", tc.title, err)
		}
	}

	ending, err := repo.EndingBefore(ctx, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("EndingBefore: %v", err)
	}
	if len(ending) != 1 {
		t.Fatalf("EndingBefore returned %d, want 1", len(ending))
	}
	if ending[0].Title != "Ends soon" {
		t.Errorf("Title = %q, want %q", ending[0].Title, "Ends soon")
	}
}
