package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/outbox"
	"github.com/xelth-com/orderledger/internal/services/delivery"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"gorm.io/gorm"
)

// ErrMalformedPayload means the body is not valid JSON or misses required fields
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Payload is the delivery-status callback body
type Payload struct {
	OrderID      uint   `json:"order_id" validate:"required,gt=0"`
	Status       string `json:"status" validate:"required,oneof=confirmed cancelled delivered completed"`
	SourceSystem string `json:"source_system" validate:"required,max=50"`
}

// Result describes an applied callback
type Result struct {
	OrderID      uint                      `json:"order_id"`
	StatusBefore models.ConfirmationStatus `json:"status_before"`
	StatusAfter  models.ConfirmationStatus `json:"status_after"`
	Changed      bool                      `json:"changed"`
	DeliveryID   uint                      `json:"delivery_id,omitempty"`
}

// Ingestor verifies and applies delivery-status callbacks
type Ingestor struct {
	db         *gorm.DB
	secret     string
	events     *syncevent.Log
	deliveries *delivery.Service
	dispatcher *outbox.Dispatcher
	validate   *validator.Validate
	logger     *logrus.Logger
	now        func() time.Time
}

// NewIngestor creates an ingestor. dispatcher may be nil, in which case
// reconciliation tasks wait for the background dispatcher.
func NewIngestor(db *gorm.DB, secret string, events *syncevent.Log, deliveries *delivery.Service, dispatcher *outbox.Dispatcher, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		db:         db,
		secret:     secret,
		events:     events,
		deliveries: deliveries,
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest verifies signature over the raw body, then applies the status.
// Signature and payload errors change nothing. Errors after the order
// lookup roll the transaction back and are recorded as a failed SyncEvent.
func (in *Ingestor) Ingest(ctx context.Context, signature string, body []byte) (*Result, error) {
	if err := Verify(in.secret, signature, body); err != nil {
		in.logger.WithField("body_bytes", len(body)).Warn("webhook rejected: bad signature")
		return nil, err
	}

	p, err := in.parse(body)
	if err != nil {
		return nil, err
	}
	status := models.ConfirmationStatus(p.Status)
	now := in.now()

	result := &Result{OrderID: p.OrderID, StatusAfter: status}
	var tasks []*models.ReconciliationTask

	err = in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := ledger.LoadForUpdate(ctx, tx, models.LedgerSupplier, p.OrderID)
		if err != nil {
			return err
		}
		result.StatusBefore = rec.ConfirmationStatus

		if err := rec.ConfirmationStatus.CheckTransition(status); err != nil {
			return err
		}
		if rec.ConfirmationStatus != status {
			if err := ledger.ApplyStatus(ctx, tx, models.LedgerSupplier, rec, status, now); err != nil {
				return err
			}
			result.Changed = true
		}

		d, err := in.deliveries.ApplyOrderStatus(ctx, tx, rec.ID, status, p.SourceSystem, now)
		if err != nil {
			return err
		}
		if d != nil {
			result.DeliveryID = d.ID
		}

		msg := fmt.Sprintf("order %d %s -> %s", rec.ID, result.StatusBefore, status)
		if !result.Changed {
			msg = fmt.Sprintf("order %d already %s; re-delivery accepted", rec.ID, status)
		}
		if _, err := in.events.Append(ctx, tx, syncevent.Entry{
			EventType:    models.SyncEventWebhookStatus,
			SourceSystem: p.SourceSystem,
			TargetSystem: string(models.LedgerSupplier),
			OrderRef:     rec.ID,
			StatusBefore: result.StatusBefore,
			StatusAfter:  status,
			Success:      true,
			Message:      msg,
			Details:      map[string]any{"changed": result.Changed, "delivery_id": result.DeliveryID},
		}); err != nil {
			return err
		}

		task, err := outbox.Enqueue(ctx, tx, models.TaskPropagateStatus, models.LedgerSupplier, rec.ID)
		if err != nil {
			return err
		}
		tasks = append(tasks, task)

		if status == models.StatusCompleted {
			task, err := outbox.Enqueue(ctx, tx, models.TaskMaterializeOrder, models.LedgerSupplier, rec.ID)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		in.recordFailure(ctx, p, result.StatusBefore, err)
		return nil, err
	}

	in.logger.WithFields(logrus.Fields{
		"order_id":      p.OrderID,
		"status":        status,
		"changed":       result.Changed,
		"source_system": p.SourceSystem,
	}).Info("webhook applied")

	if in.dispatcher != nil {
		in.dispatcher.ProcessNow(ctx, tasks...)
	}
	return result, nil
}

func (in *Ingestor) parse(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := in.validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// recordFailure writes the failed SyncEvent outside the rolled-back transaction
func (in *Ingestor) recordFailure(ctx context.Context, p *Payload, before models.ConfirmationStatus, cause error) {
	_, err := in.events.AppendDetached(ctx, syncevent.Entry{
		EventType:    models.SyncEventWebhookStatus,
		SourceSystem: p.SourceSystem,
		TargetSystem: string(models.LedgerSupplier),
		OrderRef:     p.OrderID,
		StatusBefore: before,
		StatusAfter:  models.ConfirmationStatus(p.Status),
		Success:      false,
		Message:      cause.Error(),
	})
	if err != nil {
		in.logger.WithError(err).Error("record webhook failure")
	}
	in.logger.WithError(cause).WithField("order_id", p.OrderID).Warn("webhook rejected")
}
