package notify

import (
	"context"
	"time"
)

// Type identifies a notification kind.
type Type string

const (
	// TypeOutbid tells a bidder someone placed a higher bid.
	TypeOutbid Type = "outbid"
	// TypeNewLeadingBid tells an advertiser their listing got a new leading bid.
	TypeNewLeadingBid Type = "new_leading_bid"
)

// Notification is a persisted message for one user about one advertisement.
type Notification struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	AdvertisementID int64     `json:"advertisement_id" db:"advertisement_id"`
	Type            Type      `json:"type" db:"type"`
	Message         string    `json:"message" db:"message"`
	IsRead          bool      `json:"is_read" db:"is_read"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Store persists and retrieves notifications.
type Store interface {
	// Create persists one or more notifications atomically.
	Create(ctx context.Context, notifications ...Notification) error
	// ListForUser returns a user's notifications, newest first.
	ListForUser(ctx context.Context, userID string) ([]Notification, error)
	// MarkRead flags one of the user's notifications as read. Ids owned
	// by other users are left untouched.
	MarkRead(ctx context.Context, id, userID string) error
	// DeleteOlderThan removes notifications created before cutoff and
	// returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
