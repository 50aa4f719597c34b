package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edebt/syncengine/internal/tracker"
	"github.com/edebt/syncengine/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show queue depth, last sync and connectivity",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output != "text" && output != "json" && output != "yaml" {
			return fmt.Errorf("--output must be 'text', 'json' or 'yaml'")
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.tracker.SyncStatus(cmd.Context())
		if err != nil {
			return err
		}
		view := statusView{SyncStatus: st, Remote: a.cfg.Remote.URL, DataDir: a.cfg.DataDir}
		return writeStatus(os.Stdout, output, view)
	},
}

// statusView is what 'edebt status' prints.
type statusView struct {
	tracker.SyncStatus `yaml:",inline"`
	Remote             string `json:"remote" yaml:"remote"`
	DataDir            string `json:"dataDir" yaml:"data_dir"`
}

func writeStatus(w io.Writer, output string, v statusView) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	conn := ui.RenderPass("online")
	if !v.Online {
		conn = ui.RenderWarn("offline")
	}
	fmt.Fprintf(w, "\n%s Sync Status\n\n", ui.RenderAccent("📊"))
	fmt.Fprintf(w, "Remote:       %s (%s)\n", v.Remote, conn)
	fmt.Fprintf(w, "Data dir:     %s\n", v.DataDir)
	backend := v.Backend
	if v.Degraded {
		backend += " " + ui.RenderWarn("(degraded)")
	}
	fmt.Fprintf(w, "Store:        %s\n", backend)
	fmt.Fprintf(w, "Pending:      %d\n", v.Pending)
	quarantined := fmt.Sprintf("%d", v.Quarantined)
	if v.Quarantined > 0 {
		quarantined = ui.RenderFail(quarantined)
	}
	fmt.Fprintf(w, "Quarantined:  %s\n", quarantined)
	fmt.Fprintf(w, "Last sync:    %s\n\n", formatTime(v.LastSync))
	return nil
}

func init() {
	statusCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(statusCmd)
}
