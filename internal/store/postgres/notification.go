package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jacobwinther/auctionsite/internal/notify"
)

// NotificationStore implements notify.Store with sqlx.
type NotificationStore struct {
	db *sqlx.DB
}

// NewNotificationStore returns a new NotificationStore.
func NewNotificationStore(db *sqlx.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, notifications ...notify.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning notification transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range notifications {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO notifications (id, user_id, advertisement_id, type, message, is_read, created_at)
			 VALUES (:id, :user_id, :advertisement_id, :type, :message, :is_read, :created_at)`, n)
		if err != nil {
			return fmt.Errorf("inserting notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing notifications: %w", err)
	}
	return nil
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID string) ([]notify.Notification, error) {
	var notifications []notify.Notification
	err := s.db.SelectContext(ctx, &notifications,
		`SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

func (s *NotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old notifications: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted notifications: %w", err)
	}
	return deleted, nil
}
