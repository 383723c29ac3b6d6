// Package cmd contains the harvester's command line interface.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Journal metadata harvester and record converter.",
		Long: `harvester acquires journal article metadata through a translation
server, normalizes it per journal configuration and converts it into
structured bibliographic records, deduplicating deliveries across runs.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(func() {
		// A .env file is optional; the environment still overrides
		// config values either way.
		_ = godotenv.Load()
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newHarvestCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
