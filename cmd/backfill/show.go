package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xelth-com/orderledger/internal/models"
)

type statusCount struct {
	Status models.ConfirmationStatus `json:"status"`
	Count  int64                     `json:"count"`
}

type overview struct {
	Ledgers   map[models.Ledger][]statusCount `json:"ledgers"`
	Inventory []models.InventoryItem          `json:"inventory"`
}

func newShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print order counts per ledger and the current inventory",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command) error {
			out := overview{Ledgers: map[models.Ledger][]statusCount{}}
			for _, l := range []models.Ledger{models.LedgerSupplier, models.LedgerAdmin} {
				var counts []statusCount
				if err := e.db.WithContext(ctx).Table(l.Table()).
					Select("confirmation_status AS status, COUNT(*) AS count").
					Group("confirmation_status").
					Order("confirmation_status").
					Scan(&counts).Error; err != nil {
					return err
				}
				out.Ledgers[l] = counts
			}
			if err := e.db.WithContext(ctx).
				Preload("Variations").
				Where("is_deleted = ?", false).
				Order("id").
				Find(&out.Inventory).Error; err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, out)
			}

			cmd.Println("📋 ORDERS")
			cmd.Println("──────────────────────────────────────────────────────────")
			for _, l := range []models.Ledger{models.LedgerSupplier, models.LedgerAdmin} {
				cmd.Printf("  %s (%s)\n", l, l.Table())
				for _, c := range out.Ledgers[l] {
					cmd.Printf("    └─ %-10s %d\n", c.Status, c.Count)
				}
			}
			cmd.Println()
			cmd.Println("📦 INVENTORY")
			cmd.Println("──────────────────────────────────────────────────────────")
			for _, item := range out.Inventory {
				icon := "📦"
				if item.BelowReorderThreshold() {
					icon = "⚠️ "
				}
				cmd.Printf("  %s #%d %s x %d (@ %s)\n", icon, item.ID, item.Name, item.Quantity, item.UnitPrice.StringFixed(2))
				for _, v := range item.Variations {
					label := v.Label
					if label == "" {
						label = "(no variation)"
					}
					cmd.Printf("      • %s x %d\n", label, v.Quantity)
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
