package main

import (
	"fmt"

	"github.com/pseur/menagerie/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportDataDir string
	exportDBPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Export a saved run log to SQLite",
	Long: `Materializes a saved run's log into a SQLite database with
normalized tables for runs, cycles, per-population cycle records, and
member positions, suitable for ad-hoc SQL analysis.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportDataDir, "data", "./data", "Base directory for run storage")
	exportCmd.Flags().StringVar(&exportDBPath, "db", "runs.db", "SQLite database path")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	runID := args[0]

	runStore, err := store.NewFSStore(exportDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	log, err := runStore.LoadLog(runID)
	if err != nil {
		return fmt.Errorf("failed to load run log: %w", err)
	}

	if err := store.ExportSQLite(exportDBPath, runID, log); err != nil {
		return err
	}

	fmt.Printf("Exported run %s to %s\n", runID, exportDBPath)
	return nil
}
