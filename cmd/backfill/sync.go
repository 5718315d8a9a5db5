package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xelth-com/orderledger/internal/inventory"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
)

func newSyncAllCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync-all",
		Short: "Recompute inventory from every completed order in both ledgers",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command) error {
			report, err := e.materializer.SyncAll(ctx, e.db.DB)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, report)
			}
			printReport(cmd, report)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newSyncOneCmd() *cobra.Command {
	var (
		ledgerName string
		orderID    uint
	)
	cmd := &cobra.Command{
		Use:   "sync-one",
		Short: "Materialize inventory for a single order",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command) error {
			l, err := models.ParseLedger(ledgerName)
			if err != nil {
				return err
			}
			res, err := e.materializer.SyncOne(ctx, e.db.DB, l, orderID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}
	cmd.Flags().StringVar(&ledgerName, "ledger", string(models.LedgerSupplier), "ledger of the order (supplier|admin)")
	cmd.Flags().UintVar(&orderID, "order-id", 0, "order id")
	_ = cmd.MarkFlagRequired("order-id")
	return cmd
}

func newMatchCmd() *cobra.Command {
	var (
		ledgerName string
		orderID    uint
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Show which counterpart order the matcher would pick",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command) error {
			l, err := models.ParseLedger(ledgerName)
			if err != nil {
				return err
			}
			rec, err := ledger.Load(ctx, e.db.DB, l, orderID)
			if err != nil {
				return err
			}
			m, err := e.matcher.Match(ctx, e.db.DB, rec, l)
			if err != nil {
				return err
			}
			if m == nil {
				cmd.Printf("🔍 %s order #%d has no counterpart in the %s ledger\n", l, orderID, l.Counterpart())
				return nil
			}
			cmd.Printf("🔗 %s order #%d -> %s order #%d (by %s, delta %s)\n", l, orderID, m.Ledger, m.ID, m.Reason, m.Delta)
			return nil
		}),
	}
	cmd.Flags().StringVar(&ledgerName, "ledger", string(models.LedgerSupplier), "ledger of the order (supplier|admin)")
	cmd.Flags().UintVar(&orderID, "order-id", 0, "order id")
	_ = cmd.MarkFlagRequired("order-id")
	return cmd
}

func printReport(cmd *cobra.Command, r *inventory.Report) {
	cmd.Println("📦 Inventory backfill")
	cmd.Println("══════════════════════════════════════════════════════════")
	cmd.Printf("  Orders scanned:     %d\n", r.OrdersScanned)
	cmd.Printf("  Items created:      %d\n", r.ItemsCreated)
	cmd.Printf("  Variations written: %d\n", r.VariationsWritten)
	cmd.Printf("  Before: %d items, %d variations, %d units\n", r.Before.Items, r.Before.Variations, r.Before.TotalQuantity)
	cmd.Printf("  After:  %d items, %d variations, %d units\n", r.After.Items, r.After.Variations, r.After.TotalQuantity)
	cmd.Printf("  Took:   %s\n", r.Duration)
	if len(r.Failures) > 0 {
		cmd.Printf("⚠️  %d orders failed:\n", len(r.Failures))
		for _, f := range r.Failures {
			cmd.Printf("    • %s #%d: %s\n", f.Ledger, f.OrderID, f.Error)
		}
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
