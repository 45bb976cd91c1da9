package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "formwork",
		Short: "Formwork metadata-driven entity editing engine",
		Long: `Formwork serves entity schemas, drafts, optimistic commits, and lookup
options to UI runtimes over HTTP. Field metadata is fetched from an upstream
backend and drives which components render and which fields are editable.`,
	}

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
