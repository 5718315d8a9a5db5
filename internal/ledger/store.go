// Package ledger reconciles the supplier and admin order ledgers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrOrderNotFound is returned when an order id does not exist in its ledger
var ErrOrderNotFound = errors.New("order not found")

// Load reads one order from the given ledger
func Load(ctx context.Context, tx *gorm.DB, l models.Ledger, id uint) (*models.LedgerOrder, error) {
	return load(tx.WithContext(ctx), l, id)
}

// LoadForUpdate reads one order and locks its row until tx ends
func LoadForUpdate(ctx context.Context, tx *gorm.DB, l models.Ledger, id uint) (*models.LedgerOrder, error) {
	return load(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), l, id)
}

func load(q *gorm.DB, l models.Ledger, id uint) (*models.LedgerOrder, error) {
	var rec models.LedgerOrder
	err := q.Table(l.Table()).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s order %d", ErrOrderNotFound, l, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s order %d: %w", l, id, err)
	}
	return &rec, nil
}

// ApplyStatus writes status and confirmation date to one ledger row.
// The confirmation date is only set when the row has none yet.
func ApplyStatus(ctx context.Context, tx *gorm.DB, l models.Ledger, rec *models.LedgerOrder, status models.ConfirmationStatus, at time.Time) error {
	updates := map[string]interface{}{
		"confirmation_status": status,
		"updated_at":          time.Now().UTC(),
	}
	if rec.ConfirmationDate == nil {
		updates["confirmation_date"] = at
	}
	res := tx.WithContext(ctx).Table(l.Table()).Where("id = ?", rec.ID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update %s order %d: %w", l, rec.ID, res.Error)
	}
	rec.ConfirmationStatus = status
	if rec.ConfirmationDate == nil {
		rec.ConfirmationDate = &at
	}
	return nil
}

// CompletedOrders lists completed orders of one ledger in id order
func CompletedOrders(ctx context.Context, tx *gorm.DB, l models.Ledger) ([]models.LedgerOrder, error) {
	var recs []models.LedgerOrder
	err := tx.WithContext(ctx).Table(l.Table()).
		Where("confirmation_status = ?", models.StatusCompleted).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}
