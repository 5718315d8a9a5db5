// Package delivery is the Delivery record store for supplier orders.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// ErrDeliveryNotFound is returned by Get for an unknown id
var ErrDeliveryNotFound = errors.New("delivery not found")

// Service handles delivery record operations. Every method runs on the
// handle it is given so callers can include it in their transaction.
type Service struct{}

// NewService creates a new delivery service
func NewService() *Service {
	return &Service{}
}

// CreatePending creates the pending delivery for a confirmed order.
// An existing open delivery for the order is returned instead of a second one.
func (s *Service) CreatePending(ctx context.Context, tx *gorm.DB, orderID uint, sourceSystem string) (*models.Delivery, error) {
	existing, err := s.ForOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != models.DeliveryStatusCancelled {
		return existing, nil
	}

	rec := models.Delivery{
		OrderID:      orderID,
		Status:       models.DeliveryStatusPending,
		SourceSystem: sourceSystem,
	}
	if err := tx.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create delivery record: %w", err)
	}
	return &rec, nil
}

// ForOrder returns the most recent delivery of an order, or nil when it has none
func (s *Service) ForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*models.Delivery, error) {
	var recs []models.Delivery
	if err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id DESC").
		Limit(1).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch delivery for order %d: %w", orderID, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// ApplyOrderStatus mirrors an order status onto its delivery record.
// Statuses that do not concern the delivery leave it untouched.
// DeliveredAt is only set when empty, so re-delivered webhooks keep the first timestamp.
func (s *Service) ApplyOrderStatus(ctx context.Context, tx *gorm.DB, orderID uint, status models.ConfirmationStatus, sourceSystem string, at time.Time) (*models.Delivery, error) {
	next, ok := models.DeliveryStatusFor(status)

	rec, err := s.ForOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return rec, nil
	}

	if rec == nil {
		if next == models.DeliveryStatusCancelled {
			return nil, nil
		}
		rec = &models.Delivery{OrderID: orderID, SourceSystem: sourceSystem}
	}
	rec.Status = next
	if sourceSystem != "" {
		rec.SourceSystem = sourceSystem
	}
	if next == models.DeliveryStatusDelivered {
		if rec.ShippedAt == nil {
			rec.ShippedAt = &at
		}
		if rec.DeliveredAt == nil {
			rec.DeliveredAt = &at
		}
	}

	if err := tx.WithContext(ctx).Save(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to update delivery status: %w", err)
	}
	return rec, nil
}

// Get returns a delivery by id
func (s *Service) Get(ctx context.Context, tx *gorm.DB, id uint) (*models.Delivery, error) {
	var rec models.Delivery
	err := tx.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns deliveries, optionally filtered by status, newest first
func (s *Service) List(ctx context.Context, tx *gorm.DB, status string, limit int) ([]models.Delivery, error) {
	var recs []models.Delivery
	q := tx.WithContext(ctx).Order("id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch deliveries: %w", err)
	}
	return recs, nil
}
