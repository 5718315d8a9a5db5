package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// DefaultWindow collapses identical notifications created within 30 seconds
const DefaultWindow = 30 * time.Second

// ErrDuplicateNotification means an identical notification already exists inside the window
var ErrDuplicateNotification = errors.New("duplicate notification")

// Deduplicator inserts notifications unless an identical one is recent.
//
// The check and the insert are two statements: two concurrent callers can
// both pass the check and both insert. That race is accepted; the window is
// meant to absorb retries and double clicks, not to be a uniqueness constraint.
type Deduplicator struct {
	now func() time.Time
}

// NewDeduplicator creates a deduplicator using the wall clock
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{now: func() time.Time { return time.Now().UTC() }}
}

// CreateWithDuplicateCheck inserts n and returns its id, or returns
// ErrDuplicateNotification when a notification with the same recipient,
// type and order ref was created inside the trailing window.
func (d *Deduplicator) CreateWithDuplicateCheck(ctx context.Context, tx *gorm.DB, n *models.Notification, window time.Duration) (uint, error) {
	now := d.now()

	q := tx.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_type = ? AND recipient_id = ? AND type = ?", n.RecipientType, n.RecipientID, n.Type).
		Where("created_at >= ?", now.Add(-window))
	if n.OrderRef == nil {
		q = q.Where("order_ref IS NULL")
	} else {
		q = q.Where("order_ref = ?", *n.OrderRef)
	}

	var existing int64
	if err := q.Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("check duplicate notification: %w", err)
	}
	if existing > 0 {
		return 0, ErrDuplicateNotification
	}

	if n.Status == "" {
		n.Status = models.NotificationStatusUnread
	}
	n.CreatedAt = now
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return n.ID, nil
}
