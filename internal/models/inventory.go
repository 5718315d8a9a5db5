package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is the materialized stock position for one catalog product.
// Its ID equals the inventory_ref carried by orders in both ledgers.
type InventoryItem struct {
	ID               uint            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SKU              string          `gorm:"type:varchar(64);index" json:"sku"`
	Name             string          `gorm:"not null" json:"name"`
	Quantity         int             `gorm:"default:0" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"unit_price"`
	ReorderThreshold int             `gorm:"default:0" json:"reorder_threshold"`
	SupplierRef      *uint           `gorm:"index" json:"supplier_ref,omitempty"`
	IsDeleted        bool            `gorm:"default:false" json:"is_deleted"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Relations
	Variations []InventoryVariation `gorm:"foreignKey:InventoryItemID" json:"variations,omitempty"`
}

// TableName specifies the table name for InventoryItem model
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// BelowReorderThreshold reports whether the item needs restocking
func (i *InventoryItem) BelowReorderThreshold() bool {
	return i.ReorderThreshold > 0 && i.Quantity <= i.ReorderThreshold
}

// InventoryVariation is the stock of one variation label of an item.
// Label is compared byte-for-byte; the empty label is the "no variation" row.
type InventoryVariation struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	InventoryItemID uint            `gorm:"not null;uniqueIndex:idx_item_label" json:"inventory_item_id"`
	Label           string          `gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_item_label" json:"label"`
	Quantity        int             `gorm:"default:0" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"unit_price"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for InventoryVariation model
func (InventoryVariation) TableName() string {
	return "inventory_variations"
}
