package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/daemon"
	esync "github.com/edebt/syncengine/internal/sync"
	"github.com/edebt/syncengine/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Upload queued writes and refresh the local cache",
	Long: `Run one sync cycle: upload queued customers and orders, then download
customers, orders and the menu.

When a daemon holds the data directory the cycle is handed to it instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		release, err := daemon.Lock(cfg.DataDir)
		if errors.Is(err, daemon.ErrLocked) {
			if err := daemon.RequestWake(cfg.WakeDir()); err != nil {
				return err
			}
			fmt.Printf("%s Daemon is running; requested a background sync\n", ui.RenderAccent("↻"))
			return nil
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

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), a.cfg.Remote.URL)
		res := a.syncer().FullSync(cmd.Context(), esync.TriggerManual)
		printResult(res)
		if res.Status() == esync.StatusFailed {
			return errReported
		}
		return nil
	},
}

func printResult(res esync.Result) {
	switch res.Status() {
	case esync.StatusSuccess:
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), res.Duration.Round(time.Millisecond))
	case esync.StatusPartial:
		fmt.Printf("%s Sync partially complete in %v\n", ui.RenderWarn("⚠"), res.Duration.Round(time.Millisecond))
	case esync.StatusSkipped:
		fmt.Printf("%s Sync skipped (%s)\n", ui.RenderMuted("-"), res.Skipped)
		return
	default:
		fmt.Printf("%s Sync failed\n", ui.RenderFail("✗"))
	}

	fmt.Printf("   Uploaded: %d customers, %d orders\n", res.UploadedCustomers, res.UploadedOrders)
	if res.Failed > 0 {
		fmt.Printf("   Failed:   %d\n", res.Failed)
	}
	if res.Deferred > 0 {
		fmt.Printf("   Deferred: %d (waiting for their customer)\n", res.Deferred)
	}
	if res.Quarantined > 0 {
		fmt.Printf("   %s %d quarantined; see 'edebt queue list --quarantined'\n", ui.RenderWarn("Quarantined:"), res.Quarantined)
	}
	for _, f := range res.Failures {
		fmt.Printf("   %s %s %s: %s\n", ui.RenderMuted("·"), f.Type, f.Key, f.Error)
	}
	if res.Download != nil {
		fmt.Printf("   Downloaded: %d customers, %d orders, %d menu items\n",
			res.Download.Customers, res.Download.Orders, res.Download.MenuItems)
		for _, w := range res.Download.Warnings {
			fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), w)
		}
	} else if res.DownloadError != "" {
		fmt.Printf("   %s download failed: %s\n", ui.RenderWarn("⚠"), res.DownloadError)
	}
	if res.UploadError != "" {
		fmt.Printf("   %s upload failed: %s\n", ui.RenderWarn("⚠"), res.UploadError)
	}
}

func init() {
	syncCmd.Flags().Bool("batch", false, "Upload each customer's orders in one call")
	rootCmd.AddCommand(syncCmd)
}
