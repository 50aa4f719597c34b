package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/config"
	"github.com/edebt/syncengine/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Write <data-dir>/edebt.toml holding the effective settings, defaults
included, so they can be edited. Flags given on this command line are
written too, e.g.:

  edebt config init --remote https://api.example.com --token s3cret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := configPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, config.FileName+".toml")
		}
		if err := config.WriteFile(path, cfg, force); err != nil {
			if !force {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.File != "" {
			fmt.Printf("# loaded from %s\n", cfg.File)
		} else {
			fmt.Printf("# no config file; defaults, environment and flags\n")
		}
		return cfg.Encode(os.Stdout)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
