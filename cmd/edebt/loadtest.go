package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/loadtest"
	"github.com/edebt/syncengine/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "maint",
	Short:   "Exercise the sync engine against a flaky in-memory remote",
	Long: `Record orders offline in a scratch store, then sync them against an
in-memory remote that fails calls and drops replies. Checks that no order is
lost or duplicated and that every balance matches its orders, and reports
cycle latency.

Examples:
  edebt loadtest
  edebt loadtest --orders 2000 --customers 50 --failure-rate 0.4 --batch`,
	Annotations: map[string]string{"skipConfig": "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.MkdirTemp("", "edebt-loadtest-")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		lc := loadtest.DefaultConfig(dir)
		lc.Orders, _ = cmd.Flags().GetInt("orders")
		lc.Customers, _ = cmd.Flags().GetInt("customers")
		lc.NewCustomers, _ = cmd.Flags().GetInt("new-customers")
		lc.FailureRate, _ = cmd.Flags().GetFloat64("failure-rate")
		lc.LostReplyRate, _ = cmd.Flags().GetFloat64("lost-reply-rate")
		lc.MaxCycles, _ = cmd.Flags().GetInt("max-cycles")
		lc.Seed, _ = cmd.Flags().GetInt64("seed")
		lc.BatchOrders, _ = cmd.Flags().GetBool("batch")
		lc.ForceFallback, _ = cmd.Flags().GetBool("fallback")

		if lc.FailureRate < 0 || lc.FailureRate >= 1 || lc.LostReplyRate < 0 || lc.LostReplyRate >= 1 {
			return fmt.Errorf("rates must be in [0, 1)")
		}

		fmt.Printf("%s Running load test in %s...\n", ui.RenderAccent("🔄"), dir)
		report, err := loadtest.Run(cmd.Context(), lc)
		if err != nil {
			return err
		}
		report.Print(os.Stdout)
		if !report.OK() {
			fmt.Printf("%s Invariants violated\n", ui.RenderFail("✗"))
			return errReported
		}
		fmt.Printf("%s All invariants held\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	d := loadtest.DefaultConfig("")
	f := loadtestCmd.Flags()
	f.Int("orders", d.Orders, "Orders to record offline")
	f.Int("customers", d.Customers, "Customers known to the remote")
	f.Int("new-customers", d.NewCustomers, "Customers created offline")
	f.Float64("failure-rate", d.FailureRate, "Share of remote calls that fail")
	f.Float64("lost-reply-rate", d.LostReplyRate, "Share of order replies lost after the write")
	f.Int("max-cycles", d.MaxCycles, "Give up after this many cycles")
	f.Int64("seed", d.Seed, "Random seed")
	f.Bool("batch", false, "Upload each customer's orders in one call")
	f.Bool("fallback", false, "Use the flat fallback cache")
	rootCmd.AddCommand(loadtestCmd)
}
