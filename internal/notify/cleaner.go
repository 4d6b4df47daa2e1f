package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/jacobwinther/auctionsite/internal/clock"
)

// Cleaner periodically deletes notifications older than the retention window.
// It is intended to run on a single replica, gated by leader election.
type Cleaner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	clock     clock.Clock
}

// NewCleaner creates a Cleaner.
func NewCleaner(store Store, retention, interval time.Duration, logger *slog.Logger, clk clock.Clock) *Cleaner {
	return &Cleaner{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
		clock:     clk,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	cutoff := c.clock.Now().UTC().Add(-c.retention)
	deleted, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		c.logger.ErrorContext(ctx, "notification cleanup failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		c.logger.InfoContext(ctx, "cleaned up old notifications", slog.Int64("deleted", deleted))
	}
}
