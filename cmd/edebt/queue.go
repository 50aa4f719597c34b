package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and repair the pending mutation queue",
	Long: `Inspect the queue of local writes waiting for the remote.

Mutations the remote rejected for good are quarantined: they stay in the
queue, with their local effects still applied, until an operator retries
or discards them.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations, oldest first",
	Long: `List queued mutations, oldest first.

--since accepts a duration such as 2h or a phrase such as "2 hours ago"
or "yesterday".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		quarantined, _ := cmd.Flags().GetBool("quarantined")
		sinceText, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceText != "" {
			t, err := parseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
			since = t
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		ms, err := a.queue.ListAll(cmd.Context())
		if err != nil {
			return err
		}

		shown := 0
		for _, m := range ms {
			if quarantined && m.State != schema.StateQuarantined {
				continue
			}
			if !since.IsZero() && m.CreatedAt.Before(since) {
				continue
			}
			if shown == 0 {
				fmt.Printf("%-36s %-17s %-24s %-8s %s\n", "ID", "TYPE", "TARGET", "ATTEMPTS", "STATE")
			}
			shown++
			state := string(m.State)
			if m.State == schema.StateQuarantined {
				state = ui.RenderFail(state)
			}
			fmt.Printf("%-36s %-17s %-24s %-8d %s\n", m.ID, m.Type(), truncate(describe(m), 24), m.AttemptCount, state)
			if m.LastError != "" {
				fmt.Printf("  %s\n", ui.RenderMuted("last error: "+m.LastError))
			}
		}
		if shown == 0 {
			fmt.Printf("%s Nothing queued\n", ui.RenderPass("✓"))
		}
		return nil
	},
}

// parseSince reads an absolute cutoff from a duration or a phrase.
func parseSince(text string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(text); err == nil {
		return now.Add(-d), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a time", text)
	}
	return r.Time, nil
}

// describe names what a mutation writes.
func describe(m schema.PendingMutation) string {
	switch m.Type() {
	case schema.TypeCustomerCreate:
		if p, err := m.CustomerPayload(); err == nil {
			return p.BusinessID
		}
	case schema.TypeOrderCreate:
		if p, err := m.OrderPayload(); err == nil {
			return p.CustomerBusinessID + " " + p.Amount.StringFixed(2)
		}
	}
	return "?"
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>...",
	Short: "Put quarantined mutations back in line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			m, err := a.tracker.Requeue(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("%s Requeued %s %s\n", ui.RenderPass("✓"), m.Type(), m.ID)
		}
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <id>...",
	Short: "Drop mutations and revert their local effects",
	Long: `Drop mutations that will never be delivered.

Discarding an order removes the pending order and takes its amount off the
customer's balance. Discarding a customer the remote never confirmed
removes the pending customer together with its queued orders.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.IsTerminal() {
				return fmt.Errorf("refusing to discard without --yes")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Discard %s? Local effects are reverted.", strings.Join(args, ", "))).
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Nothing discarded")
				return nil
			}
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			m, err := a.tracker.Discard(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("%s Discarded %s %s (%s)\n", ui.RenderWarn("✗"), m.Type(), m.ID, describe(m))
		}
		return nil
	},
}

func init() {
	queueListCmd.Flags().Bool("quarantined", false, "Only quarantined mutations")
	queueListCmd.Flags().String("since", "", `Only mutations created after this, e.g. "2 hours ago"`)
	queueDiscardCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	queueCmd.AddCommand(queueListCmd, queueRetryCmd, queueDiscardCmd)
	rootCmd.AddCommand(queueCmd)
}
