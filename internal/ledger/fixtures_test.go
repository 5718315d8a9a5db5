package ledger

import (
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func strPtr(s string) *string { return &s }

func ledgerOrder(id uint, variation *string, at time.Time, status models.ConfirmationStatus) models.LedgerOrder {
	return models.LedgerOrder{
		ID:                 id,
		InventoryRef:       77,
		SupplierRef:        3,
		Quantity:           10,
		Variation:          variation,
		UnitType:           "pcs",
		UnitPrice:          decimal.RequireFromString("4.50"),
		OrderDate:          at,
		ConfirmationStatus: status,
	}
}

func createOrder(t *testing.T, db *gorm.DB, o models.LedgerOrder) models.Order {
	t.Helper()
	row := models.Order{LedgerOrder: o}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return row
}

func createAdminOrder(t *testing.T, db *gorm.DB, o models.LedgerOrder) models.AdminOrder {
	t.Helper()
	row := models.AdminOrder{LedgerOrder: o}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create admin order: %v", err)
	}
	return row
}
