package main

import (
	"fmt"

	"github.com/pseur/menagerie/internal/server"
	"github.com/pseur/menagerie/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts the HTTP server exposing the job API: submit run specs,
query status, stream per-cycle progress over SSE, and fetch run logs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runStore, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}

		s := server.NewServer(serveAddr, runStore)
		return s.Start()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data", "./data", "Base directory for run storage")
	rootCmd.AddCommand(serveCmd)
}
