package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/snapshot"
)

// ingestResult is the --json output of ingest.
type ingestResult struct {
	Source   string `json:"source"`
	Database string `json:"database"`
	Epochs   []int  `json:"epochs"`
	Cells    int    `json:"cells"`
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import snapshot CSV files into the project database",
		Long: `Parse every pairing CSV in --snapshots (optionally limited to
--from..--to) and store its cells, replacing epochs already ingested.
Later runs of 'bfftrace track' without --snapshots read from the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, _ := cmd.Flags().GetString("snapshots")
			from, _ := cmd.Flags().GetInt("from")
			to, _ := cmd.Flags().GetInt("to")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("pattern") {
				cfg.Snapshots.Pattern, _ = cmd.Flags().GetString("pattern")
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid flags: %w", err)
				}
			}
			logger := newLogger(cmd, cfg)

			src := snapshot.NewDir(dir, cfg.Snapshots.Pattern)
			epochs, err := src.Epochs()
			if err != nil {
				return fmt.Errorf("list snapshots: %w", err)
			}

			st, err := openStore(root, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx, stop := signalContext(context.Background())
			defer stop()

			result := ingestResult{Source: dir, Database: st.Path(), Epochs: []int{}}
			for _, epoch := range epochs {
				if epoch < from || (cmd.Flags().Changed("to") && epoch > to) {
					continue
				}
				snap, err := src.Load(ctx, epoch)
				if err != nil {
					return err
				}
				if err := st.ImportSnapshot(ctx, snap, dir); err != nil {
					return fmt.Errorf("import epoch %d: %w", epoch, err)
				}
				logger.Debug("epoch ingested", "epoch", epoch, "cells", snap.Len())
				result.Epochs = append(result.Epochs, epoch)
				result.Cells += snap.Len()
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d epoch(s), %d cell(s) into %s\n",
				len(result.Epochs), result.Cells, result.Database)
			return nil
		},
	}

	cmd.Flags().String("snapshots", "", "Directory of per-epoch pairing CSV files")
	cmd.Flags().String("pattern", "", "Snapshot file name pattern (default pairings_epoch_%04d.csv)")
	cmd.Flags().Int("from", 0, "First epoch to ingest")
	cmd.Flags().Int("to", 0, "Last epoch to ingest (default: all)")
	cmd.MarkFlagRequired("snapshots")

	return cmd
}
