package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "starlance",
		Short: "Starlance - Mission Availability and Lifecycle Engine",
		Long: `Starlance manages a catalog of scripted mission templates: where they can
appear, how likely they are to spawn, and the full lifecycle of each live
instance from creation through acceptance to completion.

Features:
  - Mission templates with availability matching and weighted spawning
  - Starlark-scripted mission behavior
  - Exclusive and shared claims over universe systems
  - Durable saves with per-mission script state`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newSimulateCommand())
	rootCmd.AddCommand(newSaveCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
