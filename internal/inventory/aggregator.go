// Package inventory derives stock from completed orders of both ledgers.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Aggregator writes per-variation stock rows. Labels are opaque: two labels
// are the same variation only when they are byte-for-byte equal.
type Aggregator struct{}

// NewAggregator creates an aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Upsert sets the quantity and unit price of the (itemID, label) row,
// inserting it when missing. The empty label is the "no variation" row.
func (a *Aggregator) Upsert(ctx context.Context, tx *gorm.DB, itemID uint, label string, quantity int, unitPrice decimal.Decimal) (*models.InventoryVariation, error) {
	now := time.Now().UTC()
	row := models.InventoryVariation{
		InventoryItemID: itemID,
		Label:           label,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "inventory_item_id"}, {Name: "label"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "unit_price", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert variation %d/%q: %w", itemID, label, err)
	}

	var stored models.InventoryVariation
	if err := tx.WithContext(ctx).
		Where("inventory_item_id = ? AND label = ?", itemID, label).
		Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload variation %d/%q: %w", itemID, label, err)
	}
	return &stored, nil
}

// RefreshItemQuantity sets the item's aggregate quantity to the sum of its
// variation rows and returns the new total.
func (a *Aggregator) RefreshItemQuantity(ctx context.Context, tx *gorm.DB, itemID uint) (int, error) {
	var total int64
	if err := tx.WithContext(ctx).Model(&models.InventoryVariation{}).
		Where("inventory_item_id = ?", itemID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum variations of item %d: %w", itemID, err)
	}

	if err := tx.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{"quantity": total, "updated_at": time.Now().UTC()}).Error; err != nil {
		return 0, fmt.Errorf("update item %d quantity: %w", itemID, err)
	}
	return int(total), nil
}
