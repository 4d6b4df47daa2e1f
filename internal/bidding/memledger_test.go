package bidding_test

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/store"
)

// memLedger is an in-memory store.BidLedger and store.AdvertisementRepository
// for exercising the resolver without a database. One mutex serializes all
// bid transactions, which satisfies the per-advertisement serialization the
// interface demands. Writes are staged per transaction and applied on commit.
type memLedger struct {
	mu            sync.Mutex
	ads           map[int64]*store.Advertisement
	maxBids       map[int64][]store.MaxBid
	visible       map[int64][]store.VisibleBid
	favourites    map[int64]map[string]bool
	nextAdID      int64
	nextMaxBidID  int64
	nextVisibleID int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		ads:        make(map[int64]*store.Advertisement),
		maxBids:    make(map[int64][]store.MaxBid),
		visible:    make(map[int64][]store.VisibleBid),
		favourites: make(map[int64]map[string]bool),
	}
}

// --- store.AdvertisementRepository ---

func (m *memLedger) Create(_ context.Context, ad *store.Advertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAdID++
	ad.ID = m.nextAdID
	cp := *ad
	m.ads[ad.ID] = &cp
	return nil
}

func (m *memLedger) GetByID(_ context.Context, id int64) (*store.Advertisement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad, ok := m.ads[id]
	if !ok {
		return nil, store.ErrAdvertisementNotFound
	}
	cp := *ad
	return &cp, nil
}

func (m *memLedger) EndingBefore(_ context.Context, cutoff time.Time) ([]store.Advertisement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Advertisement
	for _, ad := range m.ads {
		if ad.AuctionEndDate != nil && ad.AuctionEndDate.Before(cutoff) {
			out = append(out, *ad)
		}
	}
	return out, nil
}

// --- store.BidLedger ---

type memTx struct {
	l    *memLedger
	adID int64

	stagedMax     *store.MaxBid
	stagedVisible []store.VisibleBid
	stagedFav     []string
}

func (m *memLedger) WithBidTx(ctx context.Context, adID int64, fn func(tx store.BidTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ads[adID]; !ok {
		return store.ErrAdvertisementNotFound
	}
	tx := &memTx{l: m, adID: adID}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (tx *memTx) commit() {
	if tx.stagedMax != nil {
		bids := tx.l.maxBids[tx.adID]
		replaced := false
		for i := range bids {
			if bids[i].UserID == tx.stagedMax.UserID {
				bids[i].Amount = tx.stagedMax.Amount
				bids[i].PlacedAt = tx.stagedMax.PlacedAt
				replaced = true
				break
			}
		}
		if !replaced {
			tx.l.nextMaxBidID++
			tx.stagedMax.ID = tx.l.nextMaxBidID
			bids = append(bids, *tx.stagedMax)
		}
		tx.l.maxBids[tx.adID] = bids
	}
	for _, vb := range tx.stagedVisible {
		tx.l.nextVisibleID++
		vb.ID = tx.l.nextVisibleID
		tx.l.visible[tx.adID] = append(tx.l.visible[tx.adID], vb)
		ad := tx.l.ads[tx.adID]
		if vb.Amount.GreaterThan(ad.CurrentHighestBid) {
			ad.CurrentHighestBid = vb.Amount
		}
	}
	for _, user := range tx.stagedFav {
		if tx.l.favourites[tx.adID] == nil {
			tx.l.favourites[tx.adID] = make(map[string]bool)
		}
		tx.l.favourites[tx.adID][user] = true
	}
}

func (tx *memTx) Advertisement(_ context.Context) (*store.Advertisement, error) {
	cp := *tx.l.ads[tx.adID]
	return &cp, nil
}

func (tx *memTx) LeadingMaxBid(_ context.Context) (*store.MaxBid, error) {
	return tx.l.leadingMaxBidLocked(tx.adID), nil
}

func (tx *memTx) LeadingVisibleBid(_ context.Context) (*store.VisibleBid, error) {
	return tx.l.leadingVisibleBidLocked(tx.adID), nil
}

func (tx *memTx) UserMaxBid(_ context.Context, userID string) (*store.MaxBid, error) {
	return tx.l.userMaxBidLocked(tx.adID, userID), nil
}

func (tx *memTx) UpsertMaxBid(_ context.Context, userID string, amount decimal.Decimal, placedAt time.Time) error {
	tx.stagedMax = &store.MaxBid{
		AdvertisementID: tx.adID,
		UserID:          userID,
		Amount:          amount,
		PlacedAt:        placedAt,
	}
	return nil
}

func (tx *memTx) AppendVisibleBid(_ context.Context, userID string, amount decimal.Decimal, eventType store.BidEventType, placedAt time.Time) error {
	tx.stagedVisible = append(tx.stagedVisible, store.VisibleBid{
		AdvertisementID: tx.adID,
		UserID:          userID,
		Amount:          amount,
		PlacedAt:        placedAt,
		EventType:       eventType,
	})
	return nil
}

func (tx *memTx) AddFavourite(_ context.Context, userID string) error {
	tx.stagedFav = append(tx.stagedFav, userID)
	return nil
}

func (m *memLedger) leadingMaxBidLocked(adID int64) *store.MaxBid {
	var best *store.MaxBid
	for i := range m.maxBids[adID] {
		b := &m.maxBids[adID][i]
		if best == nil {
			best = b
			continue
		}
		switch {
		case b.Amount.GreaterThan(best.Amount):
			best = b
		case b.Amount.Equal(best.Amount) && b.PlacedAt.Before(best.PlacedAt):
			best = b
		case b.Amount.Equal(best.Amount) && b.PlacedAt.Equal(best.PlacedAt) && b.ID < best.ID:
			best = b
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (m *memLedger) leadingVisibleBidLocked(adID int64) *store.VisibleBid {
	var best *store.VisibleBid
	for i := range m.visible[adID] {
		b := &m.visible[adID][i]
		if best == nil || b.Amount.GreaterThan(best.Amount) {
			best = b
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (m *memLedger) leadingBidderIDLocked(adID int64) string {
	var best *store.VisibleBid
	for i := range m.visible[adID] {
		b := &m.visible[adID][i]
		if best == nil {
			best = b
			continue
		}
		if b.Amount.GreaterThan(best.Amount) {
			best = b
			continue
		}
		if b.Amount.Equal(best.Amount) &&
			b.EventType == store.BidEventMaxBidPlacedFirst &&
			best.EventType != store.BidEventMaxBidPlacedFirst {
			best = b
		}
	}
	if best == nil {
		return ""
	}
	return best.UserID
}

func (m *memLedger) userMaxBidLocked(adID int64, userID string) *store.MaxBid {
	for i := range m.maxBids[adID] {
		if m.maxBids[adID][i].UserID == userID {
			cp := m.maxBids[adID][i]
			return &cp
		}
	}
	return nil
}

func (m *memLedger) LeadingMaxBid(_ context.Context, adID int64) (*store.MaxBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leadingMaxBidLocked(adID), nil
}

func (m *memLedger) LeadingVisibleBid(_ context.Context, adID int64) (*store.VisibleBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leadingVisibleBidLocked(adID), nil
}

func (m *memLedger) LeadingBidderID(_ context.Context, adID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leadingBidderIDLocked(adID), nil
}

func (m *memLedger) UserMaxBid(_ context.Context, adID int64, userID string) (*store.MaxBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userMaxBidLocked(adID, userID), nil
}

func (m *memLedger) BidCount(_ context.Context, adID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visible[adID]), nil
}

func (m *memLedger) OutbidUserIDs(_ context.Context, adID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leader := m.leadingBidderIDLocked(adID)
	if leader == "" {
		return nil, nil
	}
	var out []string
	for _, b := range m.maxBids[adID] {
		if b.UserID != leader {
			out = append(out, b.UserID)
		}
	}
	return out, nil
}

func (m *memLedger) IsOutbid(_ context.Context, adID int64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leader := m.leadingBidderIDLocked(adID)
	if leader == "" || leader == userID {
		return false, nil
	}
	for _, b := range m.visible[adID] {
		if b.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) VisibleBids(_ context.Context, adID int64) ([]store.VisibleBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bids := append([]store.VisibleBid(nil), m.visible[adID]...)
	// Newest first.
	for i, j := 0, len(bids)-1; i < j; i, j = i+1, j-1 {
		bids[i], bids[j] = bids[j], bids[i]
	}
	return bids, nil
}

func (m *memLedger) IsFavourite(_ context.Context, adID int64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favourites[adID][userID], nil
}
