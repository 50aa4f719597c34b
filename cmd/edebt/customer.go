package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
	"github.com/edebt/syncengine/internal/ui"
)

var customerCmd = &cobra.Command{
	Use:     "customer",
	GroupID: "data",
	Short:   "Manage customers",
}

var customerAddCmd = &cobra.Command{
	Use:   "add --id <unique-id> --name <name>",
	Short: "Add a customer",
	Long: `Add a customer to the local store.

The customer is created locally with a provisional id and queued for the
remote. Orders can be recorded against it straight away; they are uploaded
after the customer is confirmed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.tracker.CreateCustomer(cmd.Context(), schema.CustomerPayload{
			BusinessID: id,
			Name:       name,
			Email:      email,
			Phone:      phone,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Added customer %s (%s), queued for sync\n", ui.RenderPass("✓"), c.BusinessID, c.Name)
		return nil
	},
}

var customerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached customers with their balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		cs, err := a.tracker.Customers(cmd.Context())
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			fmt.Println("No customers cached. Run 'edebt sync' to download them.")
			return nil
		}

		fmt.Printf("%-14s %-28s %12s  %s\n", "ID", "NAME", "BALANCE", "STATUS")
		for _, c := range cs {
			status := ui.RenderMuted("synced")
			if c.SyncStatus == schema.StatusPending {
				status = ui.RenderWarn("pending")
			}
			fmt.Printf("%-14s %-28s %12s  %s\n", c.BusinessID, truncate(c.Name, 28), c.Balance.StringFixed(2), status)
		}
		return nil
	},
}

var customerShowCmd = &cobra.Command{
	Use:   "show <unique-id>",
	Short: "Show a customer and their orders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.tracker.Customer(cmd.Context(), args[0])
		if store.IsNotFound(err) {
			return fmt.Errorf("customer %s is not cached", args[0])
		}
		if err != nil {
			return err
		}
		orders, err := a.tracker.CustomerOrders(cmd.Context(), c.BusinessID)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("●"), ui.RenderBold(c.Name))
		fmt.Printf("ID:        %s\n", c.BusinessID)
		if c.Email != "" {
			fmt.Printf("Email:     %s\n", c.Email)
		}
		if c.Phone != "" {
			fmt.Printf("Phone:     %s\n", c.Phone)
		}
		fmt.Printf("Balance:   %s\n", c.Balance.StringFixed(2))
		fmt.Printf("Last txn:  %s\n", formatTime(c.LastTransactionAt))
		if c.IsProvisional() {
			fmt.Printf("Status:    %s\n", ui.RenderWarn("waiting for the remote"))
		}

		if len(orders) > 0 {
			fmt.Printf("\nOrders:\n")
			printOrders(orders)
		}
		fmt.Println()
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	customerAddCmd.Flags().String("id", "", "Unique customer id (required)")
	customerAddCmd.Flags().String("name", "", "Customer name (required)")
	customerAddCmd.Flags().String("email", "", "Email address")
	customerAddCmd.Flags().String("phone", "", "Phone number")
	_ = customerAddCmd.MarkFlagRequired("id")
	_ = customerAddCmd.MarkFlagRequired("name")

	customerCmd.AddCommand(customerAddCmd, customerListCmd, customerShowCmd)
	rootCmd.AddCommand(customerCmd)
}
