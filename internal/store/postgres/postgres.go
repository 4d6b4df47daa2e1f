// Package postgres provides the sqlx-backed store driver. Bid placements run
// in a transaction that locks the advertisement row, so concurrent bids on
// the same listing serialize while other listings stay unblocked.
package postgres

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/config"
	"github.com/jacobwinther/auctionsite/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("sqlx", open)
}

// open is the store.Driver for the "sqlx" backend.
func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Advertisements: NewAdvertisementRepo(db, clk),
		Ledger:         NewLedger(db),
		Notifications:  NewNotificationStore(db),
		Closer:         closerFunc(db.Close),
		Ping:           db.PingContext,
	}, nil
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN()

	// Register the OTel-instrumented driver wrapping lib/pq.
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
