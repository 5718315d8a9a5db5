package models

import (
	"time"
)

// Product is the catalog entry an inventory item is created from.
// Catalog CRUD lives elsewhere; this service only reads it.
type Product struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SKU              string    `gorm:"type:varchar(64);uniqueIndex" json:"sku"`
	Name             string    `gorm:"not null" json:"name"`
	Category         string    `gorm:"type:varchar(100)" json:"category"`
	ReorderThreshold int       `gorm:"default:0" json:"reorder_threshold"`
	Active           bool      `gorm:"default:true" json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for Product model
func (Product) TableName() string { return "products" }
