package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/cache"
	"github.com/xelth-com/orderledger/internal/catalog"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/notify"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"github.com/xelth-com/orderledger/internal/variation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const backfillLockKey = "inventory:backfill"

// SyncResult describes one SyncOne call
type SyncResult struct {
	Ledger      models.Ledger `json:"ledger"`
	OrderID     uint          `json:"order_id"`
	Skipped     bool          `json:"skipped"`
	ItemID      uint          `json:"item_id,omitempty"`
	Label       string        `json:"label"`
	Quantity    int           `json:"quantity"`
	ItemCreated bool          `json:"item_created"`
	LowStock    bool          `json:"low_stock"`
}

// Snapshot counts inventory rows at one point in time
type Snapshot struct {
	Items         int64 `json:"items"`
	Variations    int64 `json:"variations"`
	TotalQuantity int64 `json:"total_quantity"`
}

// Failure is one order SyncAll could not materialize
type Failure struct {
	Ledger  models.Ledger `json:"ledger"`
	OrderID uint          `json:"order_id"`
	Error   string        `json:"error"`
}

// Report summarizes a full rescan
type Report struct {
	OrdersScanned     int           `json:"orders_scanned"`
	ItemsCreated      int           `json:"items_created"`
	VariationsWritten int           `json:"variations_written"`
	Failures          []Failure     `json:"failures"`
	Before            Snapshot      `json:"before"`
	After             Snapshot      `json:"after"`
	Duration          time.Duration `json:"duration"`
}

// Materializer rebuilds InventoryItem and InventoryVariation rows from completed orders.
// Quantities are always recomputed from the full order history, so re-runs converge.
type Materializer struct {
	catalog    *catalog.Catalog
	aggregator *Aggregator
	notifier   *notify.Service
	events     *syncevent.Log
	locks      *cache.Client
	lockTTL    time.Duration
	logger     *logrus.Logger
}

// NewMaterializer creates a materializer. notifier and locks may be nil.
func NewMaterializer(cat *catalog.Catalog, notifier *notify.Service, events *syncevent.Log, locks *cache.Client, lockTTL time.Duration, logger *logrus.Logger) *Materializer {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Materializer{
		catalog:    cat,
		aggregator: NewAggregator(),
		notifier:   notifier,
		events:     events,
		locks:      locks,
		lockTTL:    lockTTL,
		logger:     logger,
	}
}

// SyncOne materializes one order. Orders that are not completed are skipped.
// The work runs in its own transaction (a savepoint when db already is one);
// a failure is recorded as a failed SyncEvent outside that transaction.
func (m *Materializer) SyncOne(ctx context.Context, db *gorm.DB, l models.Ledger, orderID uint) (*SyncResult, error) {
	var (
		result SyncResult
		alert  *models.Notification
	)
	result.Ledger = l
	result.OrderID = orderID

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := ledger.Load(ctx, tx, l, orderID)
		if err != nil {
			return err
		}
		if !rec.IsCompleted() {
			result.Skipped = true
			return nil
		}

		item, created, err := m.ensureItem(ctx, tx, rec)
		if err != nil {
			return err
		}
		result.ItemID = item.ID
		result.ItemCreated = created
		result.Label = variation.Label(rec.Variation)
		if _, perr := variation.Parse(result.Label); perr != nil {
			// Still keyed by the raw string
			m.logger.WithError(perr).WithField("order_id", rec.ID).Warn("malformed variation label")
		}

		total, price, err := completedTotal(ctx, tx, rec.InventoryRef, result.Label)
		if err != nil {
			return err
		}
		row, err := m.aggregator.Upsert(ctx, tx, item.ID, result.Label, total, price)
		if err != nil {
			return err
		}
		result.Quantity = row.Quantity

		itemQty, err := m.aggregator.RefreshItemQuantity(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		item.Quantity = itemQty

		if item.BelowReorderThreshold() {
			result.LowStock = true
			alert, err = m.lowStock(ctx, tx, item, rec)
			if err != nil {
				return err
			}
		}

		_, err = m.events.Append(ctx, tx, syncevent.Entry{
			EventType:    models.SyncEventMaterialization,
			SourceSystem: string(l),
			TargetSystem: models.SystemInventory,
			OrderRef:     rec.ID,
			StatusAfter:  rec.ConfirmationStatus,
			Success:      true,
			Message:      fmt.Sprintf("inventory %d variation %q set to %d", item.ID, result.Label, row.Quantity),
			Details: map[string]any{
				"inventory_ref": item.ID,
				"label":         result.Label,
				"quantity":      row.Quantity,
				"item_quantity": itemQty,
				"item_created":  created,
			},
		})
		return err
	})
	if err != nil {
		config.LogError(m.logger, "inventory", "SyncOne", "materialization failed", map[string]any{"ledger": l, "order_id": orderID}, err)
		m.recordFailure(ctx, l, orderID, err)
		return nil, err
	}

	if m.notifier != nil {
		m.notifier.Dispatch(ctx, alert)
	}
	return &result, nil
}

// SyncAll rescans completed orders of both ledgers. Failing orders are
// reported and skipped. A redis lock keeps two backfills from overlapping.
func (m *Materializer) SyncAll(ctx context.Context, db *gorm.DB) (*Report, error) {
	lock, err := m.locks.Obtain(ctx, backfillLockKey, m.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			m.logger.WithError(err).Warn("release backfill lock")
		}
	}()

	started := time.Now()
	report := &Report{Failures: []Failure{}}

	if report.Before, err = TakeSnapshot(ctx, db); err != nil {
		return nil, err
	}

	written := map[string]bool{}
	for _, l := range []models.Ledger{models.LedgerSupplier, models.LedgerAdmin} {
		recs, err := ledger.CompletedOrders(ctx, db, l)
		if err != nil {
			return nil, fmt.Errorf("list completed %s orders: %w", l, err)
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.OrdersScanned++
			res, err := m.SyncOne(ctx, db, l, rec.ID)
			if err != nil {
				report.Failures = append(report.Failures, Failure{Ledger: l, OrderID: rec.ID, Error: err.Error()})
				continue
			}
			if res.Skipped {
				continue
			}
			if res.ItemCreated {
				report.ItemsCreated++
			}
			written[fmt.Sprintf("%d|%s", res.ItemID, res.Label)] = true
		}
	}
	report.VariationsWritten = len(written)

	if report.After, err = TakeSnapshot(ctx, db); err != nil {
		return nil, err
	}
	report.Duration = time.Since(started)

	m.logger.WithFields(logrus.Fields{
		"orders_scanned":     report.OrdersScanned,
		"items_created":      report.ItemsCreated,
		"variations_written": report.VariationsWritten,
		"failures":           len(report.Failures),
		"quantity_before":    report.Before.TotalQuantity,
		"quantity_after":     report.After.TotalQuantity,
	}).Info("inventory backfill finished")
	return report, nil
}

// TakeSnapshot counts inventory rows
func TakeSnapshot(ctx context.Context, db *gorm.DB) (Snapshot, error) {
	var s Snapshot
	q := db.WithContext(ctx)
	if err := q.Model(&models.InventoryItem{}).Count(&s.Items).Error; err != nil {
		return s, err
	}
	if err := q.Model(&models.InventoryVariation{}).Count(&s.Variations).Error; err != nil {
		return s, err
	}
	err := q.Model(&models.InventoryVariation{}).Select("COALESCE(SUM(quantity), 0)").Scan(&s.TotalQuantity).Error
	return s, err
}

// ensureItem returns the inventory item for rec, creating it from the catalog when absent
func (m *Materializer) ensureItem(ctx context.Context, tx *gorm.DB, rec *models.LedgerOrder) (*models.InventoryItem, bool, error) {
	var item models.InventoryItem
	err := tx.WithContext(ctx).Where("id = ?", rec.InventoryRef).Take(&item).Error
	if err == nil {
		return &item, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load inventory item %d: %w", rec.InventoryRef, err)
	}

	product, err := m.catalog.Lookup(ctx, tx, rec.InventoryRef)
	if err != nil {
		return nil, false, err
	}

	supplier := rec.SupplierRef
	item = models.InventoryItem{
		ID:          rec.InventoryRef,
		UnitPrice:   rec.UnitPrice,
		SupplierRef: &supplier,
	}
	if product != nil {
		item.SKU = product.SKU
		item.Name = product.Name
		item.ReorderThreshold = product.ReorderThreshold
	} else {
		item.SKU = fmt.Sprintf("INV-%d", rec.InventoryRef)
		item.Name = fmt.Sprintf("Inventory item %d", rec.InventoryRef)
		m.logger.WithField("inventory_ref", rec.InventoryRef).Warn("no catalog entry; created placeholder inventory item")
	}

	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create inventory item %d: %w", rec.InventoryRef, res.Error)
	}
	if res.RowsAffected == 0 {
		// Created concurrently by another flow
		if err := tx.WithContext(ctx).Where("id = ?", rec.InventoryRef).Take(&item).Error; err != nil {
			return nil, false, err
		}
		return &item, false, nil
	}
	return &item, true, nil
}

func (m *Materializer) lowStock(ctx context.Context, tx *gorm.DB, item *models.InventoryItem, rec *models.LedgerOrder) (*models.Notification, error) {
	m.logger.WithFields(logrus.Fields{
		"inventory_ref": item.ID,
		"quantity":      item.Quantity,
		"threshold":     item.ReorderThreshold,
	}).Warn("inventory at or below reorder threshold")

	if m.notifier == nil {
		return nil, nil
	}
	orderRef := rec.ID
	return m.notifier.Record(ctx, tx, models.Notification{
		RecipientType: models.RecipientManagement,
		Type:          models.NotificationLowStock,
		Message:       fmt.Sprintf("%s (%s) is at %d, reorder threshold %d", item.Name, item.SKU, item.Quantity, item.ReorderThreshold),
		OrderRef:      &orderRef,
	})
}

func (m *Materializer) recordFailure(ctx context.Context, l models.Ledger, orderID uint, cause error) {
	_, err := m.events.AppendDetached(ctx, syncevent.Entry{
		EventType:    models.SyncEventMaterialization,
		SourceSystem: string(l),
		TargetSystem: models.SystemInventory,
		OrderRef:     orderID,
		Success:      false,
		Message:      cause.Error(),
	})
	if err != nil {
		m.logger.WithError(err).Error("record materialization failure")
	}
}

// completedTotal sums quantities of completed orders of both ledgers for one
// (inventory_ref, label) pair. The unit price is taken from the most recent of those orders.
func completedTotal(ctx context.Context, tx *gorm.DB, inventoryRef uint, label string) (int, decimal.Decimal, error) {
	var (
		total  int64
		latest *models.LedgerOrder
	)
	for _, l := range []models.Ledger{models.LedgerSupplier, models.LedgerAdmin} {
		scope := func() *gorm.DB {
			q := tx.WithContext(ctx).Table(l.Table()).
				Where("inventory_ref = ? AND confirmation_status = ?", inventoryRef, models.StatusCompleted)
			if variation.IsNone(label) {
				return q.Where("(variation IS NULL OR variation = '')")
			}
			return q.Where("variation = ?", label)
		}

		var sum int64
		if err := scope().Select("COALESCE(SUM(quantity), 0)").Scan(&sum).Error; err != nil {
			return 0, decimal.Zero, fmt.Errorf("sum completed %s orders: %w", l, err)
		}
		total += sum

		var recs []models.LedgerOrder
		if err := scope().Order("order_date DESC, id DESC").Limit(1).Find(&recs).Error; err != nil {
			return 0, decimal.Zero, fmt.Errorf("latest completed %s order: %w", l, err)
		}
		if len(recs) == 1 && (latest == nil || recs[0].OrderDate.After(latest.OrderDate)) {
			latest = &recs[0]
		}
	}

	price := decimal.Zero
	if latest != nil {
		price = latest.UnitPrice
	}
	return int(total), price, nil
}
