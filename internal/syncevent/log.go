// Package syncevent is the append-only audit trail of cross-ledger work.
package syncevent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/reqctx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Publisher receives every event after it has been written.
// The live websocket feed implements it.
type Publisher interface {
	PublishSyncEvent(ev models.SyncEvent)
}

// Entry is what callers hand to the log
type Entry struct {
	EventType    string
	SourceSystem string
	TargetSystem string
	OrderRef     uint
	StatusBefore models.ConfirmationStatus
	StatusAfter  models.ConfirmationStatus
	Success      bool
	Message      string
	Details      map[string]any
}

// Filter narrows List results
type Filter struct {
	OrderRef  uint
	EventType string
	Success   *bool
	Limit     int
}

// Log writes SyncEvents. It only ever inserts.
type Log struct {
	db        *gorm.DB
	logger    *logrus.Logger
	publisher Publisher
	now       func() time.Time
}

// NewLog creates a log writing through db
func NewLog(db *gorm.DB, logger *logrus.Logger) *Log {
	return &Log{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher attaches a live feed
func (l *Log) SetPublisher(p Publisher) {
	l.publisher = p
}

// Append writes the event through tx so it commits or rolls back with the
// caller's work. A nil tx writes through the log's own handle.
func (l *Log) Append(ctx context.Context, tx *gorm.DB, e Entry) (*models.SyncEvent, error) {
	if tx == nil {
		tx = l.db
	}
	return l.write(ctx, tx.WithContext(ctx), e)
}

// AppendDetached writes on a fresh session outside any transaction.
// Used for failure events that must survive the rollback of the work they describe.
func (l *Log) AppendDetached(ctx context.Context, e Entry) (*models.SyncEvent, error) {
	return l.write(ctx, l.db.Session(&gorm.Session{NewDB: true, Context: ctx}), e)
}

func (l *Log) write(ctx context.Context, db *gorm.DB, e Entry) (*models.SyncEvent, error) {
	ev := models.SyncEvent{
		EventType:     e.EventType,
		SourceSystem:  e.SourceSystem,
		TargetSystem:  e.TargetSystem,
		OrderRef:      e.OrderRef,
		StatusBefore:  string(e.StatusBefore),
		StatusAfter:   string(e.StatusAfter),
		Success:       e.Success,
		Message:       e.Message,
		Actor:         reqctx.PrincipalFrom(ctx).String(),
		CorrelationID: reqctx.CorrelationID(ctx),
		CreatedAt:     l.now(),
	}
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err == nil {
			ev.Details = datatypes.JSON(raw)
		}
	}

	if err := db.Create(&ev).Error; err != nil {
		l.logger.WithFields(logrus.Fields{
			"event_type": e.EventType,
			"order_ref":  e.OrderRef,
			"success":    e.Success,
		}).Errorf("failed to append sync event: %v", err)
		return nil, err
	}

	level := logrus.InfoLevel
	if !e.Success {
		level = logrus.WarnLevel
	}
	l.logger.WithFields(logrus.Fields{
		"event_type":     ev.EventType,
		"source":         ev.SourceSystem,
		"target":         ev.TargetSystem,
		"order_ref":      ev.OrderRef,
		"status_before":  ev.StatusBefore,
		"status_after":   ev.StatusAfter,
		"correlation_id": ev.CorrelationID,
	}).Log(level, ev.Message)

	// The feed is advisory: an event appended inside a transaction that later
	// rolls back is followed on the feed by its detached failure event.
	if l.publisher != nil {
		l.publisher.PublishSyncEvent(ev)
	}
	return &ev, nil
}

// List returns events newest first
func (l *Log) List(ctx context.Context, f Filter) ([]models.SyncEvent, error) {
	q := l.db.WithContext(ctx).Model(&models.SyncEvent{})
	if f.OrderRef != 0 {
		q = q.Where("order_ref = ?", f.OrderRef)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var events []models.SyncEvent
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// Count returns how many events match the filter, ignoring Limit
func (l *Log) Count(ctx context.Context, f Filter) (int64, error) {
	q := l.db.WithContext(ctx).Model(&models.SyncEvent{})
	if f.OrderRef != 0 {
		q = q.Where("order_ref = ?", f.OrderRef)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
