// Package orders handles supplier-side confirmation of ledger orders.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/notify"
	"github.com/xelth-com/orderledger/internal/outbox"
	"github.com/xelth-com/orderledger/internal/reqctx"
	"github.com/xelth-com/orderledger/internal/services/delivery"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"gorm.io/gorm"
)

// Roles allowed to confirm orders
const (
	RoleSupplier = "supplier"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

var (
	// ErrInvalidRequest wraps request validation failures
	ErrInvalidRequest = errors.New("invalid request")
	// ErrForbidden means the principal may not act on the order
	ErrForbidden = errors.New("not allowed to confirm this order")
)

// ConfirmRequest is the confirmation body
type ConfirmRequest struct {
	OrderID uint   `json:"order_id" validate:"required,gt=0"`
	Status  string `json:"status" validate:"required,oneof=confirmed cancelled"`
}

// ConfirmResult is returned to the caller
type ConfirmResult struct {
	Success    bool                      `json:"success"`
	OrderID    uint                      `json:"order_id"`
	Status     models.ConfirmationStatus `json:"status"`
	DeliveryID *uint                     `json:"delivery_id"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// Service confirms or cancels supplier orders
type Service struct {
	db         *gorm.DB
	events     *syncevent.Log
	deliveries *delivery.Service
	notifier   *notify.Service
	dispatcher *outbox.Dispatcher
	validate   *validator.Validate
	logger     *logrus.Logger
	now        func() time.Time
}

// NewService creates an order confirmation service. dispatcher may be nil.
func NewService(db *gorm.DB, events *syncevent.Log, deliveries *delivery.Service, notifier *notify.Service, dispatcher *outbox.Dispatcher, logger *logrus.Logger) *Service {
	return &Service{
		db:         db,
		events:     events,
		deliveries: deliveries,
		notifier:   notifier,
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Confirm moves a pending order to confirmed or cancelled. The status
// change, the delivery record, the management notification, the audit
// event and the reconciliation task commit together or not at all.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	status := models.ConfirmationStatus(req.Status)
	principal := reqctx.PrincipalFrom(ctx)
	now := s.now()

	result := &ConfirmResult{OrderID: req.OrderID, Status: status, Timestamp: now}
	var (
		before models.ConfirmationStatus
		note   *models.Notification
		task   *models.ReconciliationTask
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := ledger.LoadForUpdate(ctx, tx, models.LedgerSupplier, req.OrderID)
		if err != nil {
			return err
		}
		before = rec.ConfirmationStatus

		if !mayConfirm(principal, rec) {
			return fmt.Errorf("%w: %s on order %d", ErrForbidden, principal, rec.ID)
		}
		if err := rec.ConfirmationStatus.CheckTransition(status); err != nil {
			return err
		}
		if err := ledger.ApplyStatus(ctx, tx, models.LedgerSupplier, rec, status, now); err != nil {
			return err
		}

		switch status {
		case models.StatusConfirmed:
			d, err := s.deliveries.CreatePending(ctx, tx, rec.ID, string(models.LedgerSupplier))
			if err != nil {
				return err
			}
			result.DeliveryID = &d.ID
		case models.StatusCancelled:
			d, err := s.deliveries.ApplyOrderStatus(ctx, tx, rec.ID, status, string(models.LedgerSupplier), now)
			if err != nil {
				return err
			}
			if d != nil {
				result.DeliveryID = &d.ID
			}
		}

		orderRef := rec.ID
		note, err = s.notifier.Record(ctx, tx, models.Notification{
			RecipientType: models.RecipientManagement,
			Type:          notificationType(status),
			Message:       fmt.Sprintf("Order #%d was %s by %s", rec.ID, status, principal),
			OrderRef:      &orderRef,
		})
		if err != nil {
			return err
		}

		if _, err := s.events.Append(ctx, tx, syncevent.Entry{
			EventType:    models.SyncEventOrderConfirmation,
			SourceSystem: string(models.LedgerSupplier),
			TargetSystem: string(models.LedgerSupplier),
			OrderRef:     rec.ID,
			StatusBefore: before,
			StatusAfter:  status,
			Success:      true,
			Message:      fmt.Sprintf("order %d %s -> %s", rec.ID, before, status),
			Details:      map[string]any{"delivery_id": result.DeliveryID},
		}); err != nil {
			return err
		}

		task, err = outbox.Enqueue(ctx, tx, models.TaskPropagateStatus, models.LedgerSupplier, rec.ID)
		return err
	})
	if err != nil {
		s.recordFailure(ctx, req, before, err)
		return nil, err
	}
	result.Success = true

	s.logger.WithFields(logrus.Fields{
		"order_id":  req.OrderID,
		"status":    status,
		"principal": principal.String(),
	}).Info("order confirmation applied")

	s.notifier.Dispatch(ctx, note)
	if s.dispatcher != nil {
		s.dispatcher.ProcessNow(ctx, task)
	}
	return result, nil
}

func mayConfirm(p reqctx.Principal, rec *models.LedgerOrder) bool {
	switch p.Role {
	case RoleAdmin, RoleManager:
		return true
	case RoleSupplier:
		return p.ID == rec.SupplierRef
	}
	return false
}

func notificationType(status models.ConfirmationStatus) string {
	if status == models.StatusCancelled {
		return models.NotificationOrderCancelled
	}
	return models.NotificationOrderConfirmed
}

func (s *Service) recordFailure(ctx context.Context, req ConfirmRequest, before models.ConfirmationStatus, cause error) {
	_, err := s.events.AppendDetached(ctx, syncevent.Entry{
		EventType:    models.SyncEventOrderConfirmation,
		SourceSystem: string(models.LedgerSupplier),
		TargetSystem: string(models.LedgerSupplier),
		OrderRef:     req.OrderID,
		StatusBefore: before,
		StatusAfter:  models.ConfirmationStatus(req.Status),
		Success:      false,
		Message:      cause.Error(),
	})
	if err != nil {
		s.logger.WithError(err).Error("record confirmation failure")
	}
}
