package outbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/inventory"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// Processor runs reconciliation tasks against the ledgers and inventory
type Processor struct {
	db           *gorm.DB
	propagator   *ledger.Propagator
	materializer *inventory.Materializer
	logger       *logrus.Logger
}

// NewProcessor creates a task processor
func NewProcessor(db *gorm.DB, p *ledger.Propagator, m *inventory.Materializer, logger *logrus.Logger) *Processor {
	return &Processor{db: db, propagator: p, materializer: m, logger: logger}
}

// Handle implements Handler
func (p *Processor) Handle(ctx context.Context, task models.ReconciliationTask) error {
	switch task.Kind {
	case models.TaskPropagateStatus:
		return p.propagate(ctx, task)
	case models.TaskMaterializeOrder:
		_, err := p.materializer.SyncOne(ctx, p.db, task.Ledger, task.OrderID)
		return err
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}

// propagate replicates the status. When the counterpart became completed
// it is materialized too, since it may carry a different variation pair.
func (p *Processor) propagate(ctx context.Context, task models.ReconciliationTask) error {
	var res *ledger.Result
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = p.propagator.Propagate(ctx, tx, task.Ledger, task.OrderID)
		return err
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"ledger":   task.Ledger,
		"order_id": task.OrderID,
		"outcome":  res.Outcome,
	}).Debug("status propagated")

	if res.Outcome == ledger.OutcomeReplicated && res.StatusAfter == models.StatusCompleted && res.Counterpart != nil {
		if _, err := p.materializer.SyncOne(ctx, p.db, res.Counterpart.Ledger, res.Counterpart.ID); err != nil {
			return fmt.Errorf("materialize counterpart %s order %d: %w", res.Counterpart.Ledger, res.Counterpart.ID, err)
		}
	}
	return nil
}
