package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/config"
	"github.com/jacobwinther/auctionsite/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/jacobwinther/auctionsite/internal/store/entstore"
	_ "github.com/jacobwinther/auctionsite/internal/store/postgres"
)

// fakeDriver is a store.Driver that always succeeds without connecting to a DB.
func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{}, nil
}

func TestOpen(t *testing.T) {
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{
			name:    "registered driver succeeds",
			driver:  "test-driver",
			wantErr: false,
		},
		{
			name:    "unknown driver fails",
			driver:  "nonexistent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: tt.driver}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Open(driver=%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	// The "sqlx" and "ent" drivers register themselves via init() imports.
	// They will fail to actually connect here (no DB running), so only
	// check that the error is NOT an unknown-driver error.
	for _, driver := range []string{"sqlx", "ent"} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: driver, Host: "localhost", Port: 5432}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if err == nil {
				t.Fatal("expected error (no DB running), got nil")
			}
			if strings.Contains(err.Error(), "unknown store driver") {
				t.Errorf("expected connection error, got unknown driver error: %v", err)
			}
		})
	}
}
