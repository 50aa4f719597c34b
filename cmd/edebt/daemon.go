package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/daemon"
	"github.com/edebt/syncengine/internal/dashboard"
	"github.com/edebt/syncengine/internal/tracker"
	"github.com/edebt/syncengine/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync in the foreground until interrupted",
	Long: `Run the sync orchestrator in the foreground.

The daemon probes the remote, syncs when it comes back, syncs periodically
while writes are queued and runs a cycle whenever another edebt command
records a write. Only one daemon may use a data directory at a time.

With --dashboard it also serves a WebSocket dashboard:
  ws://localhost:<port>/ws     live sync events
  GET  /status                 orchestrator and queue state
  POST /sync                   run a cycle now`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		release, err := daemon.Lock(cfg.DataDir)
		if errors.Is(err, daemon.ErrLocked) {
			return fmt.Errorf("another daemon is running for %s", cfg.DataDir)
		}
		if err != nil {
			return err
		}
		defer func() { _ = release() }()

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireRemote(); err != nil {
			return err
		}

		orch, err := daemon.New(a.syncer(), a.queue, a.gateway, &daemon.Config{
			DebounceInterval: a.cfg.Sync.Debounce,
			PeriodicInterval: a.cfg.Sync.PeriodicInterval,
			HealthInterval:   a.cfg.Sync.HealthInterval,
			HealthTimeout:    a.cfg.Remote.Timeout,
			InitialSyncDelay: a.cfg.Sync.InitialDelay,
			WakeDir:          a.cfg.WakeDir(),
			Logger:           a.logger("[daemon] "),
		})
		if err != nil {
			return err
		}
		// Writes made by this process go through the orchestrator.
		svc := tracker.New(a.store, a.queue, a.gateway, &tracker.Options{
			Notifier: orch,
			Logger:   a.logger("[tracker] "),
		})

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Remote: %s\n", a.cfg.Remote.URL)
		fmt.Printf("   Store: %s (%s)\n", a.cfg.DataDir, a.store.Backend())
		fmt.Printf("   Wake dir: %s\n", a.cfg.WakeDir())

		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   a.cfg.Dashboard.Port,
				Logger: a.logger("[dashboard] "),
			}, orch, svc)
			detach := dashboard.NewHandler(server, a.logger("[dashboard] ")).Attach(orch)
			defer detach()

			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					a.logger("[dashboard] ").Printf("WARNING: failed to stop dashboard: %v", err)
				}
			}()
			fmt.Printf("   Dashboard: http://%s\n", server.GetAddr())
		}

		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := orch.Run(cmd.Context()); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		fmt.Println("Daemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port")
	daemonCmd.Flags().Bool("batch", false, "Upload each customer's orders in one call")
	rootCmd.AddCommand(daemonCmd)
}
