package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

func newSeedCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo products and paired orders in both ledgers",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command) error {
			db := e.db.WithContext(ctx)

			var existing int64
			if err := db.Model(&models.Product{}).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 && !reset {
				return fmt.Errorf("database already has %d products; rerun with --reset to clear it", existing)
			}

			err := db.Transaction(func(tx *gorm.DB) error {
				if reset {
					cmd.Println("🗑️  Clearing existing data...")
					for _, m := range []interface{}{
						&models.InventoryVariation{}, &models.InventoryItem{},
						&models.Order{}, &models.AdminOrder{}, &models.Product{},
					} {
						if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
							return err
						}
					}
				}
				return seedDemo(tx, cmd)
			})
			if err != nil {
				return err
			}
			// Cached catalog entries may predate the reset
			for _, id := range demoProductIDs {
				if err := e.catalog.Invalidate(ctx, id); err != nil {
					e.logger.WithError(err).Warn("catalog cache invalidate failed")
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing products, orders and inventory first")
	return cmd
}

var demoProductIDs = []uint{101, 102, 103}

func seedDemo(tx *gorm.DB, cmd *cobra.Command) error {
	// 1. Catalog
	cmd.Println("🏷️  Creating products...")
	products := []models.Product{
		{ID: 101, SKU: "TSHIRT-BASIC", Name: "Basic T-Shirt", Category: "apparel", ReorderThreshold: 10, Active: true},
		{ID: 102, SKU: "HOODIE-ZIP", Name: "Zip Hoodie", Category: "apparel", ReorderThreshold: 5, Active: true},
		{ID: 103, SKU: "MUG-CERAMIC", Name: "Ceramic Mug", Category: "kitchen", ReorderThreshold: 20, Active: true},
	}
	if err := tx.Create(&products).Error; err != nil {
		return fmt.Errorf("create products: %w", err)
	}

	// 2. Orders placed through both channels, a few seconds apart
	cmd.Println("📋 Creating paired orders...")
	base := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	sizeL, sizeM := "Size:L", "Size:M|Color:Black"
	demo := []models.LedgerOrder{
		{InventoryRef: 101, SupplierRef: 7, Quantity: 40, Variation: &sizeL, UnitType: "pcs", UnitPrice: decimal.RequireFromString("4.50"), OrderDate: base},
		{InventoryRef: 102, SupplierRef: 7, Quantity: 12, Variation: &sizeM, UnitType: "pcs", UnitPrice: decimal.RequireFromString("18.00"), OrderDate: base.Add(time.Hour)},
		{InventoryRef: 103, SupplierRef: 9, Quantity: 60, UnitType: "pcs", UnitPrice: decimal.RequireFromString("2.10"), OrderDate: base.Add(2 * time.Hour)},
	}
	for i, lo := range demo {
		supplier := models.Order{LedgerOrder: lo}
		if err := tx.Create(&supplier).Error; err != nil {
			return fmt.Errorf("create supplier order: %w", err)
		}
		admin := models.AdminOrder{LedgerOrder: lo}
		admin.ID = 0
		admin.OrderDate = lo.OrderDate.Add(time.Duration(i+1) * 20 * time.Second)
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("create admin order: %w", err)
		}
		cmd.Printf("    • supplier #%d <-> admin #%d (inventory %d x %d)\n", supplier.ID, admin.ID, lo.InventoryRef, lo.Quantity)
	}

	cmd.Println("✅ Demo data created. Run `backfill show` to inspect it.")
	return nil
}
