package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/ui"
)

var menuCmd = &cobra.Command{
	Use:     "menu",
	GroupID: "data",
	Short:   "Browse the cached menu",
}

var menuListCmd = &cobra.Command{
	Use:   "list",
	Short: "List menu items by category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		available, _ := cmd.Flags().GetBool("available")

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.tracker.Menu(cmd.Context(), category, available)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No menu items cached.")
			return nil
		}

		current := ""
		for _, m := range items {
			if m.Category != current {
				current = m.Category
				fmt.Printf("\n%s\n", ui.RenderAccent(current))
			}
			line := fmt.Sprintf("  %-30s %8s", truncate(m.Name, 30), m.Price.StringFixed(2))
			if !m.Available {
				line = ui.RenderMuted(line + "  (unavailable)")
			}
			fmt.Println(line)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	menuListCmd.Flags().String("category", "", "Only this category")
	menuListCmd.Flags().Bool("available", false, "Only available items")
	menuCmd.AddCommand(menuListCmd)
	rootCmd.AddCommand(menuCmd)
}
