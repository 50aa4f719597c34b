package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/ui"
)

var orderCmd = &cobra.Command{
	Use:     "order",
	GroupID: "data",
	Short:   "Record and list orders",
}

var orderAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an order against a customer",
	Long: `Record an order and add its amount to the customer's balance.

When the remote is reachable and nothing is queued for the customer the
order is sent at once. Otherwise it is queued and the local balance is
updated optimistically. Without --customer, --name and --amount on a
terminal, the details are asked for interactively.

Examples:
  edebt order add --customer C001 --name "Lunch" --amount 12.50
  edebt order add --offline --customer C001 --name "Coffee" --amount 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := orderPayloadFromFlags(cmd)
		if err != nil {
			return err
		}
		if p.CustomerBusinessID == "" || p.Name == "" || !cmd.Flags().Changed("amount") {
			if !ui.IsTerminal() {
				return fmt.Errorf("--customer, --name and --amount are required")
			}
			if err := promptOrder(cmd.Context(), &p); err != nil {
				return err
			}
		}

		offline, _ := cmd.Flags().GetBool("offline")
		a, err := openApp(cmd.Context(), !offline)
		if err != nil {
			return err
		}
		defer a.Close()

		o, queued, err := a.tracker.CreateOrder(cmd.Context(), p)
		if err != nil {
			return err
		}
		c, err := a.tracker.Customer(cmd.Context(), o.CustomerBusinessID)
		if err != nil {
			return err
		}

		if queued {
			fmt.Printf("%s Queued order %q (%s) for %s\n", ui.RenderWarn("⏳"), o.Name, o.Amount.StringFixed(2), o.CustomerBusinessID)
		} else {
			fmt.Printf("%s Recorded order %q (%s) for %s\n", ui.RenderPass("✓"), o.Name, o.Amount.StringFixed(2), o.CustomerBusinessID)
		}
		fmt.Printf("   Balance: %s\n", c.Balance.StringFixed(2))
		return nil
	},
}

func orderPayloadFromFlags(cmd *cobra.Command) (schema.OrderPayload, error) {
	customer, _ := cmd.Flags().GetString("customer")
	name, _ := cmd.Flags().GetString("name")
	amount, _ := cmd.Flags().GetString("amount")
	description, _ := cmd.Flags().GetString("description")
	status, _ := cmd.Flags().GetString("status")
	scanned, _ := cmd.Flags().GetBool("scanned")

	p := schema.OrderPayload{
		CustomerBusinessID: customer,
		Name:               name,
		Description:        description,
		Status:             schema.OrderStatus(status),
		IsScanned:          scanned,
	}
	if amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return p, fmt.Errorf("invalid --amount %q: %w", amount, err)
		}
		p.Amount = d
	}
	return p, nil
}

// promptOrder fills in missing order fields interactively.
func promptOrder(ctx context.Context, p *schema.OrderPayload) error {
	amount := ""
	if !p.Amount.IsZero() {
		amount = p.Amount.String()
	}
	status := string(p.Status)
	if status == "" {
		status = string(schema.OrderPending)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Customer id").
				Value(&p.CustomerBusinessID).
				Validate(required("customer id")),
			huh.NewInput().
				Title("Order").
				Value(&p.Name).
				Validate(required("order name")),
			huh.NewInput().
				Title("Amount").
				Value(&amount).
				Validate(func(s string) error {
					d, err := decimal.NewFromString(strings.TrimSpace(s))
					if err != nil {
						return fmt.Errorf("not a number")
					}
					if d.IsNegative() {
						return fmt.Errorf("must not be negative")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description").
				Value(&p.Description),
			huh.NewSelect[string]().
				Title("Status").
				Options(huh.NewOptions(
					string(schema.OrderPending),
					string(schema.OrderProcessing),
					string(schema.OrderCompleted),
					string(schema.OrderCancelled),
				)...).
				Value(&status),
			huh.NewConfirm().
				Title("Scanned?").
				Value(&p.IsScanned),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return fmt.Errorf("cancelled")
		}
		return err
	}

	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	p.Amount = d
	p.Status = schema.OrderStatus(status)
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

var orderListCmd = &cobra.Command{
	Use:   "list --customer <unique-id>",
	Short: "List the cached orders of a customer, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		customer, _ := cmd.Flags().GetString("customer")

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		orders, err := a.tracker.CustomerOrders(cmd.Context(), customer)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			fmt.Printf("No orders cached for %s\n", customer)
			return nil
		}
		printOrders(orders)
		return nil
	},
}

func printOrders(orders []schema.Order) {
	fmt.Printf("  %-19s %-28s %10s  %-11s %s\n", "DATE", "ORDER", "AMOUNT", "STATUS", "SYNC")
	for _, o := range orders {
		when := o.LocalCreatedAt
		if when.IsZero() {
			when = o.CreatedAt
		}
		sync := ui.RenderMuted("synced")
		if o.SyncStatus == schema.StatusPending {
			sync = ui.RenderWarn("pending")
		}
		fmt.Printf("  %-19s %-28s %10s  %-11s %s\n",
			formatTime(&when), truncate(o.Name, 28), o.Amount.StringFixed(2), o.Status, sync)
	}
}

func init() {
	f := orderAddCmd.Flags()
	f.StringP("customer", "c", "", "Customer unique id")
	f.StringP("name", "n", "", "Order name")
	f.StringP("amount", "a", "", "Order amount, e.g. 12.50")
	f.StringP("description", "d", "", "Order description")
	f.String("status", "", "Order status: pending, processing, completed or cancelled")
	f.Bool("scanned", false, "Order was entered by scanning")
	f.Bool("offline", false, "Queue the order without contacting the remote")

	orderListCmd.Flags().StringP("customer", "c", "", "Customer unique id (required)")
	_ = orderListCmd.MarkFlagRequired("customer")

	orderCmd.AddCommand(orderAddCmd, orderListCmd)
	rootCmd.AddCommand(orderCmd)
}
