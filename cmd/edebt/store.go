package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edebt/syncengine/internal/migrate"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/ui"
)

var storeCmd = &cobra.Command{
	Use:     "store",
	GroupID: "maint",
	Short:   "Back up and restore the local store",
}

var storeExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export every collection as JSONL",
	Long: `Export every collection, the queue included, as one JSON record per line.
Without a file the records are written to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			_, err := migrate.Export(cmd.Context(), a.store, os.Stdout)
			return err
		}
		res, err := migrate.ExportFile(cmd.Context(), a.store, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s Exported %d records to %s\n", ui.RenderPass("✓"), res.Total, args[0])
		printCounts(res)
		return nil
	},
}

var storeImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSONL export",
	Long: `Import a JSONL export in one transaction.

Records are validated first; invalid ones are reported and skipped. Unless
--no-backup is given the current store is exported next to the file first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		replace, _ := cmd.Flags().GetBool("replace")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noBackup, _ := cmd.Flags().GetBool("no-backup")

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := migrate.ImportFile(cmd.Context(), a.store, args[0],
			migrate.ImportOptions{Replace: replace, DryRun: dryRun}, !noBackup)
		if err != nil {
			return err
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d records from %s\n", ui.RenderPass("✓"), verb, res.Total, args[0])
		printCounts(res)
		if res.Backup != "" {
			fmt.Printf("   Backup: %s\n", res.Backup)
		}
		if len(res.Errors) > 0 {
			fmt.Printf("%s Skipped %d invalid records:\n", ui.RenderWarn("⚠"), res.Skipped)
			for _, e := range res.Errors {
				fmt.Printf("   %s\n", e)
			}
		}
		return nil
	},
}

func printCounts(res *migrate.Result) {
	for _, coll := range schema.Collections {
		if n := res.Counts[coll]; n > 0 {
			fmt.Printf("   %-13s %d\n", coll+":", n)
		}
	}
}

func init() {
	storeImportCmd.Flags().Bool("replace", false, "Clear every collection before importing")
	storeImportCmd.Flags().Bool("dry-run", false, "Validate without writing")
	storeImportCmd.Flags().Bool("no-backup", false, "Skip the backup export")

	storeCmd.AddCommand(storeExportCmd, storeImportCmd)
	rootCmd.AddCommand(storeCmd)
}
