package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"gorm.io/gorm"
)

// Outcome of one propagation attempt
type Outcome string

const (
	OutcomeReplicated Outcome = "replicated" // counterpart updated
	OutcomeUnchanged  Outcome = "unchanged"  // counterpart already in the target state
	OutcomeNoMatch    Outcome = "no_match"   // no counterpart found
	OutcomeRejected   Outcome = "rejected"   // counterpart cannot move to the new status
)

// Result describes what Propagate did
type Result struct {
	Outcome      Outcome
	Counterpart  *Match
	StatusBefore models.ConfirmationStatus
	StatusAfter  models.ConfirmationStatus
	Event        *models.SyncEvent
}

// Propagator replicates a committed status change onto the other ledger.
// Replication is advisory: a miss is recorded, never returned as an error,
// and never undoes the origin write.
type Propagator struct {
	matcher MatchStrategy
	events  *syncevent.Log
	logger  *logrus.Logger
}

// NewPropagator creates a propagator
func NewPropagator(matcher MatchStrategy, events *syncevent.Log, logger *logrus.Logger) *Propagator {
	return &Propagator{matcher: matcher, events: events, logger: logger}
}

// Matcher exposes the strategy used to find counterparts
func (p *Propagator) Matcher() MatchStrategy {
	return p.matcher
}

// Propagate copies confirmation_status and confirmation_date of the origin
// order onto its counterpart. Every call appends exactly one SyncEvent.
// Errors are only returned for store failures.
func (p *Propagator) Propagate(ctx context.Context, tx *gorm.DB, origin models.Ledger, orderID uint) (*Result, error) {
	src, err := Load(ctx, tx, origin, orderID)
	if err != nil {
		return nil, err
	}

	entry := syncevent.Entry{
		EventType:    models.SyncEventStatusPropagation,
		SourceSystem: string(origin),
		TargetSystem: string(origin.Counterpart()),
		OrderRef:     src.ID,
		StatusAfter:  src.ConfirmationStatus,
	}

	match, err := p.matcher.Match(ctx, tx, src, origin)
	if err != nil {
		return nil, err
	}
	if match == nil {
		entry.Success = false
		entry.Message = fmt.Sprintf("no counterpart for %s order %d in %s ledger; replication skipped", origin, src.ID, origin.Counterpart())
		ev, err := p.events.Append(ctx, tx, entry)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeNoMatch, StatusAfter: src.ConfirmationStatus, Event: ev}, nil
	}

	dst, err := LoadForUpdate(ctx, tx, match.Ledger, match.ID)
	if err != nil {
		return nil, err
	}
	res := &Result{Counterpart: match, StatusBefore: dst.ConfirmationStatus, StatusAfter: src.ConfirmationStatus}
	entry.StatusBefore = dst.ConfirmationStatus
	entry.Details = map[string]any{
		"counterpart_id": match.ID,
		"match_reason":   string(match.Reason),
		"delta_seconds":  int64(match.Delta / time.Second),
	}

	switch {
	case dst.ConfirmationStatus == src.ConfirmationStatus && sameDate(dst.ConfirmationDate, src.ConfirmationDate):
		res.Outcome = OutcomeUnchanged
		entry.Success = true
		entry.Message = fmt.Sprintf("%s order %d already %s", match.Ledger, dst.ID, dst.ConfirmationStatus)

	case !dst.ConfirmationStatus.CanTransition(src.ConfirmationStatus):
		res.Outcome = OutcomeRejected
		res.StatusAfter = dst.ConfirmationStatus
		entry.Success = false
		entry.Message = fmt.Sprintf("%s order %d cannot move %s -> %s", match.Ledger, dst.ID, dst.ConfirmationStatus, src.ConfirmationStatus)

	default:
		if err := p.replicate(ctx, tx, match.Ledger, dst, src); err != nil {
			return nil, err
		}
		res.Outcome = OutcomeReplicated
		entry.Success = true
		entry.Message = fmt.Sprintf("replicated %s to %s order %d", src.ConfirmationStatus, match.Ledger, dst.ID)
	}

	ev, err := p.events.Append(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	res.Event = ev

	p.logger.WithFields(logrus.Fields{
		"origin":         origin,
		"order_id":       src.ID,
		"counterpart_id": match.ID,
		"outcome":        res.Outcome,
	}).Debug("status propagation")
	return res, nil
}

// replicate mirrors the origin row exactly, including its confirmation date
func (p *Propagator) replicate(ctx context.Context, tx *gorm.DB, l models.Ledger, dst, src *models.LedgerOrder) error {
	updates := map[string]interface{}{
		"confirmation_status": src.ConfirmationStatus,
		"confirmation_date":   src.ConfirmationDate,
		"updated_at":          time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Table(l.Table()).Where("id = ?", dst.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("replicate onto %s order %d: %w", l, dst.ID, err)
	}
	return nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
