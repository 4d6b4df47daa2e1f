package entstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jacobwinther/auctionsite/internal/notify"
)

// NotificationStore implements notify.Store using database/sql.
type NotificationStore struct {
	db *sql.DB
}

// NewNotificationStore returns a new NotificationStore.
func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, notifications ...notify.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning notification transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range notifications {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (id, user_id, advertisement_id, type, message, is_read, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			n.ID, n.UserID, n.AdvertisementID, n.Type, n.Message, n.IsRead, n.CreatedAt)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, advertisement_id, type, message, is_read, created_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []notify.Notification
	for rows.Next() {
		var n notify.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.AdvertisementID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
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
