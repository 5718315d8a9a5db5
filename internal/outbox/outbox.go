// Package outbox carries reconciliation work from a committed ledger write
// to propagation and materialization. Tasks are written in the caller's
// transaction, processed inline after commit, and retried by a dispatcher.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/reqctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler performs one task. An error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, task models.ReconciliationTask) error
}

// Enqueue writes a pending task through tx so it commits with the ledger write
func Enqueue(ctx context.Context, tx *gorm.DB, kind string, l models.Ledger, orderID uint) (*models.ReconciliationTask, error) {
	task := models.ReconciliationTask{
		Kind:          kind,
		Ledger:        l,
		OrderID:       orderID,
		CorrelationID: reqctx.CorrelationID(ctx),
		Actor:         reqctx.PrincipalFrom(ctx).String(),
		Status:        models.TaskStatusPending,
	}
	if err := tx.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("enqueue %s task for %s order %d: %w", kind, l, orderID, err)
	}
	return &task, nil
}

// Dispatcher claims and runs tasks
type Dispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Handler      Handler
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration

	now func() time.Time
}

// NewDispatcher creates a dispatcher tuned by cfg
func NewDispatcher(db *gorm.DB, handler Handler, cfg config.OutboxConfig, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		DB:             db,
		Logger:         logger,
		Handler:        handler,
		DispatcherID:   uuid.NewString(),
		BatchSize:      cfg.BatchSize,
		PollInterval:   cfg.PollInterval,
		LockTimeout:    cfg.LockTimeout,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 50
	}
	if d.PollInterval <= 0 {
		d.PollInterval = 2 * time.Second
	}
	if d.LockTimeout <= 0 {
		d.LockTimeout = 30 * time.Second
	}
	if d.InitialBackoff <= 0 {
		d.InitialBackoff = 5 * time.Second
	}
	return d
}

// Run polls for ready tasks until ctx is done
func (d *Dispatcher) Run(ctx context.Context) {
	d.Logger.WithField("dispatcher_id", d.DispatcherID).Info("reconciliation dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// ProcessNow runs freshly committed tasks in the calling request.
// A task another worker already claimed is left alone. Failures are
// scheduled for retry and never returned.
func (d *Dispatcher) ProcessNow(ctx context.Context, tasks ...*models.ReconciliationTask) {
	for _, task := range tasks {
		if task == nil {
			continue
		}
		now := d.now()
		res := d.DB.WithContext(ctx).Model(&models.ReconciliationTask{}).
			Where("id = ? AND status = ?", task.ID, models.TaskStatusPending).
			Updates(map[string]interface{}{
				"status":     models.TaskStatusProcessing,
				"locked_at":  &now,
				"locked_by":  &d.DispatcherID,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			config.LogError(d.Logger, "outbox", "ProcessNow", "claim task", task.ID, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		task.Status = models.TaskStatusProcessing
		task.Attempts++
		d.run(ctx, *task)
	}
}

// DispatchOnce claims one batch of ready tasks and runs them. It returns the number run.
func (d *Dispatcher) DispatchOnce(ctx context.Context) int {
	now := d.now()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.ReconciliationTask
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Ready: PENDING / FAILED whose backoff elapsed, or PROCESSING with a stale lock
		q := tx.
			Where(`
				(
					status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.TaskStatusPending, models.TaskStatusFailed}, now, models.TaskStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}

		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].Attempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].Status = models.TaskStatusDead
				if err := tx.Model(&models.ReconciliationTask{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"status":          models.TaskStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].Status = models.TaskStatusProcessing
			claimed[i].Attempts++
			if err := tx.Model(&models.ReconciliationTask{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":          models.TaskStatusProcessing,
				"locked_at":       &now,
				"locked_by":       &d.DispatcherID,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "outbox", "DispatchOnce", "claim batch", nil, err)
		return 0
	}

	ran := 0
	for _, task := range claimed {
		if task.Status == models.TaskStatusDead {
			continue
		}
		d.run(ctx, task)
		ran++
	}
	return ran
}

func (d *Dispatcher) run(ctx context.Context, task models.ReconciliationTask) {
	ctx = reqctx.WithCorrelationID(ctx, task.CorrelationID)
	if err := d.Handler.Handle(ctx, task); err != nil {
		d.markFailed(ctx, task, err)
		return
	}
	d.markSucceeded(ctx, task)
}

func (d *Dispatcher) markSucceeded(ctx context.Context, task models.ReconciliationTask) {
	err := d.DB.WithContext(ctx).Model(&models.ReconciliationTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":          models.TaskStatusSucceeded,
			"last_error":      nil,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outbox", "markSucceeded", "update task", task.ID, err)
	}
}

func (d *Dispatcher) markFailed(ctx context.Context, task models.ReconciliationTask, cause error) {
	msg := cause.Error()
	fields := logrus.Fields{
		"task_id":  task.ID,
		"kind":     task.Kind,
		"ledger":   task.Ledger,
		"order_id": task.OrderID,
		"attempt":  task.Attempts,
	}

	// Terminal after MaxAttempts
	if d.MaxAttempts > 0 && task.Attempts >= d.MaxAttempts {
		_ = d.DB.WithContext(ctx).Model(&models.ReconciliationTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":          models.TaskStatusDead,
				"last_error":      &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error
		d.Logger.WithFields(fields).Error("reconciliation task moved to DEAD after max attempts: " + msg)
		return
	}

	next := d.now().Add(Backoff(d.InitialBackoff, task.Attempts))
	_ = d.DB.WithContext(ctx).Model(&models.ReconciliationTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":          models.TaskStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error
	fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	d.Logger.WithFields(fields).Warn("reconciliation task failed: " + msg)
}

// Backoff doubles initial for every attempt after the first, capped at ten minutes
func Backoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}
