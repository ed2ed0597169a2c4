package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X main.version=..." at release time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bfftrace",
		Short: "Replicator lineage tracker for BFF primordial soup runs",
		Long: `bfftrace follows a self-replicating program through the per-epoch
snapshots of a two-dimensional BFF soup simulation.

Starting from one cell it finds, epoch by epoch, the neighbouring cells
whose programs resemble their parent and still copy themselves, and
reports the resulting lineage forest.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.bfftrace/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newTrackCmd(),
		newVerifyCmd(),
		newIngestCmd(),
		newRunsCmd(),
		newGraphCmd(),
		newValidateCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
