package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger identifies one of the two parallel order stores
type Ledger string

const (
	LedgerSupplier Ledger = "supplier" // orders, written by supplier actions and webhooks
	LedgerAdmin    Ledger = "admin"    // admin_orders, written by the purchasing workflow
)

// ParseLedger validates a ledger name
func ParseLedger(raw string) (Ledger, error) {
	switch Ledger(raw) {
	case LedgerSupplier, LedgerAdmin:
		return Ledger(raw), nil
	}
	return "", fmt.Errorf("unknown ledger %q", raw)
}

// Table returns the table backing the ledger
func (l Ledger) Table() string {
	if l == LedgerAdmin {
		return AdminOrder{}.TableName()
	}
	return Order{}.TableName()
}

// Counterpart returns the other ledger
func (l Ledger) Counterpart() Ledger {
	if l == LedgerAdmin {
		return LedgerSupplier
	}
	return LedgerAdmin
}

// LedgerOrder holds the columns shared by both ledgers.
// It is embedded twice, so its indexes are composite ids and gorm prefixes them per table.
// It is also used on its own to read either table through db.Table(ledger.Table()).
type LedgerOrder struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	InventoryRef       uint               `gorm:"not null;index:,composite:match" json:"inventory_ref"`
	SupplierRef        uint               `gorm:"not null;index:,composite:match" json:"supplier_ref"`
	Quantity           int                `gorm:"not null" json:"quantity"`
	Variation          *string            `gorm:"type:varchar(255)" json:"variation"` // opaque "Attr:Val|Attr:Val"
	UnitType           string             `gorm:"type:varchar(32)" json:"unit_type"`
	UnitPrice          decimal.Decimal    `gorm:"type:numeric(14,2);not null;default:0" json:"unit_price"`
	OrderDate          time.Time          `gorm:"not null;index" json:"order_date"`
	ConfirmationStatus ConfirmationStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"confirmation_status"`
	ConfirmationDate   *time.Time         `json:"confirmation_date,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Order is a row of the supplier-facing ledger
type Order struct {
	LedgerOrder
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}

// AdminOrder is a row of the administrative purchasing ledger.
// It is keyed independently of Order; there is no foreign key between them.
type AdminOrder struct {
	LedgerOrder
	CreatedBy *uint `gorm:"index" json:"created_by,omitempty"`
}

// TableName specifies the table name for AdminOrder model
func (AdminOrder) TableName() string {
	return "admin_orders"
}

// BeforeSave stores timestamps in UTC. The sqlite driver compares them as
// text, so mixed offsets would break the matcher's order_date range query.
func (o *LedgerOrder) BeforeSave(tx *gorm.DB) error {
	o.OrderDate = o.OrderDate.UTC()
	if o.ConfirmationDate != nil {
		utc := o.ConfirmationDate.UTC()
		o.ConfirmationDate = &utc
	}
	return nil
}

// IsCompleted returns true once the order counts towards inventory
func (o *LedgerOrder) IsCompleted() bool {
	return o.ConfirmationStatus == StatusCompleted
}

// VariationValue returns the raw variation string, empty when NULL
func (o *LedgerOrder) VariationValue() string {
	if o.Variation == nil {
		return ""
	}
	return *o.Variation
}
