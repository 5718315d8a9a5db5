package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// Service persists notifications and hands new ones to the channel registry
type Service struct {
	dedup    *Deduplicator
	registry *Registry
	window   time.Duration
	logger   *logrus.Logger
}

// NewService creates a notification service; a zero window means DefaultWindow
func NewService(registry *Registry, window time.Duration, logger *logrus.Logger) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{dedup: NewDeduplicator(), registry: registry, window: window, logger: logger}
}

// Record inserts n through tx unless it duplicates a recent one.
// It returns (nil, nil) for a duplicate. The caller dispatches the returned
// notification once tx has committed.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, n models.Notification) (*models.Notification, error) {
	_, err := s.dedup.CreateWithDuplicateCheck(ctx, tx, &n, s.window)
	if errors.Is(err, ErrDuplicateNotification) {
		s.logger.WithFields(logrus.Fields{
			"recipient": n.RecipientKey(),
			"type":      n.Type,
			"order_ref": n.OrderRef,
		}).Debug("duplicate notification suppressed")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Dispatch fans committed notifications out to all channels. Nil entries are skipped.
func (s *Service) Dispatch(ctx context.Context, ns ...*models.Notification) {
	if s.registry == nil {
		return
	}
	for _, n := range ns {
		if n == nil {
			continue
		}
		s.registry.Dispatch(ctx, *n)
	}
}

// Unread lists unread notifications for one recipient, newest first
func (s *Service) Unread(ctx context.Context, db *gorm.DB, recipientType string, recipientID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	err := db.WithContext(ctx).
		Where("recipient_type = ? AND recipient_id = ? AND status = ?", recipientType, recipientID, models.NotificationStatusUnread).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
