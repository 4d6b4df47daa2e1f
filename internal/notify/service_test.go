package notify_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/notify"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testClk    = clock.Mock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
)

// fakeStore is an in-memory notify.Store.
type fakeStore struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (f *fakeStore) Create(_ context.Context, notifications ...notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, notifications...)
	return nil
}

func (f *fakeStore) ListForUser(_ context.Context, userID string) ([]notify.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRead(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].UserID == userID {
			f.notifications[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []notify.Notification
	var deleted int64
	for _, n := range f.notifications {
		if n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	f.notifications = kept
	return deleted, nil
}

func TestNotifyOutbid_ExcludesLeader(t *testing.T) {
	fs := &fakeStore{}
	svc := notify.NewService(fs, testLogger, testClk)
	ctx := context.Background()

	err := svc.NotifyOutbid(ctx, 7, "Soffa", decimal.RequireFromString("315"),
		[]string{"alice", "bob", "carol"}, "bob")
	if err != nil {
		t.Fatalf("NotifyOutbid: %v", err)
	}

	if len(fs.notifications) != 2 {
		t.Fatalf("created %d notifications, want 2", len(fs.notifications))
	}
	for _, n := range fs.notifications {
		if n.UserID == "bob" {
			t.Error("leader should not receive an outbid notification")
		}
		if n.Type != notify.TypeOutbid {
			t.Errorf("Type = %q, want %q", n.Type, notify.TypeOutbid)
		}
		if n.ID == "" {
			t.Error("expected a generated notification id")
		}
		if !strings.Contains(n.Message, "Soffa") || !strings.Contains(n.Message, "315") {
			t.Errorf("message %q should mention the title and amount", n.Message)
		}
	}
}

func TestNotifyOutbid_NoRecipientsIsNoop(t *testing.T) {
	fs := &fakeStore{}
	svc := notify.NewService(fs, testLogger, testClk)

	err := svc.NotifyOutbid(context.Background(), 7, "Soffa",
		decimal.RequireFromString("315"), []string{"bob"}, "bob")
	if err != nil {
		t.Fatalf("NotifyOutbid: %v", err)
	}
	if len(fs.notifications) != 0 {
		t.Errorf("created %d notifications, want 0", len(fs.notifications))
	}
}

func TestNotifyNewLeadingBid(t *testing.T) {
	fs := &fakeStore{}
	svc := notify.NewService(fs, testLogger, testClk)

	err := svc.NotifyNewLeadingBid(context.Background(), 7, "Soffa",
		decimal.RequireFromString("500"), "seller-1")
	if err != nil {
		t.Fatalf("NotifyNewLeadingBid: %v", err)
	}

	got, _ := fs.ListForUser(context.Background(), "seller-1")
	if len(got) != 1 {
		t.Fatalf("seller has %d notifications, want 1", len(got))
	}
	if got[0].Type != notify.TypeNewLeadingBid {
		t.Errorf("Type = %q, want %q", got[0].Type, notify.TypeNewLeadingBid)
	}
	if !got[0].CreatedAt.Equal(testClk.T) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, testClk.T)
	}
}
