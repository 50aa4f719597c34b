// Command edebt records customer orders and balances offline and syncs them
// with the remote service when it is reachable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/config"
	"github.com/edebt/syncengine/internal/ui"
)

var (
	configPath string
	noColor    bool
	verbose    bool

	// cfg is loaded before every command except config init.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "edebt",
	Short: "Offline-first customer debt tracker",
	Long: `edebt keeps customers, orders and running balances in a local store and
syncs them with the remote service.

Writes never wait for the network: an order placed while offline is applied
to the local balance at once and queued, and the queue is drained the next
time the remote answers. Run 'edebt daemon' to sync in the background.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.SetColor(false)
		}
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}
		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Customers and orders:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default <data-dir>/edebt.toml)")
	pf.String("data-dir", "", "Data directory (default ~/.edebt)")
	pf.String("remote", "", "Remote service URL")
	pf.String("token", "", "Bearer token for the remote")
	pf.Duration("timeout", 0, "Timeout for each remote call")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.BoolVar(&noColor, "no-color", false, "Disable coloured output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log every remote request")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		}
		cancel()
		os.Exit(1)
	}
}

// errReported is returned by commands that already printed their failure.
var errReported = errors.New("reported")
