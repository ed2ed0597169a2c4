package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/config"
	"github.com/nvandessel/bfftrace/internal/export"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/logging"
	"github.com/nvandessel/bfftrace/internal/metrics"
	"github.com/nvandessel/bfftrace/internal/runner"
	"github.com/nvandessel/bfftrace/internal/snapshot"
	"github.com/nvandessel/bfftrace/internal/store"
	"github.com/nvandessel/bfftrace/internal/telemetry"
)

// trackResult is the --json output of track.
type trackResult struct {
	Total      int                  `json:"total"`
	Summary    lineage.Summary      `json:"summary"`
	Stats      []lineage.EpochStats `json:"stats"`
	RunID      string               `json:"run_id,omitempty"`
	Output     string               `json:"output,omitempty"`
	Incomplete bool                 `json:"incomplete,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func newTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Trace a replicator's lineage through epoch snapshots",
		Long: `Start from the program at (--x, --y) in --epoch and follow its verified
descendants up to --end.

Snapshots are read from --snapshots (one pairing CSV per epoch) or, when no
directory is given, from snapshots previously ingested into the database.`,
		Example: `  bfftrace track --snapshots runs/seed42 --epoch 16000 --x 120 --y 40 --end 16400
  bfftrace track --snapshots runs/seed42 --epoch 100 --x 3 --y 7 --end 200 --out lineage.csv
  bfftrace track --epoch 100 --x 3 --y 7 --end 200 --mode spatial --save`,
		RunE: runTrack,
	}

	cmd.Flags().String("snapshots", "", "Directory of per-epoch pairing CSV files")
	cmd.Flags().String("pattern", "", "Snapshot file name pattern (default pairings_epoch_%04d.csv)")
	cmd.Flags().Int("epoch", 0, "Epoch holding the root program")
	cmd.Flags().Int("x", 0, "Root grid column")
	cmd.Flags().Int("y", 0, "Root grid row")
	cmd.Flags().Int("end", 0, "Last epoch to track (inclusive)")
	cmd.Flags().String("mode", "", "Candidate selection: auto, linked or spatial")
	cmd.Flags().Float64("threshold", 0, "Similarity a candidate must exceed (0.0-1.0)")
	cmd.Flags().Int("max-iter", 0, "Emulation step cap per verification")
	cmd.Flags().Int("workers", 0, "Concurrent candidate checks (default: one per CPU)")
	cmd.Flags().Bool("bounds", false, "Drop candidates outside the grid")
	cmd.Flags().Bool("save", false, "Store the run in the project database")
	cmd.Flags().StringP("out", "o", "", "Write the lineage to this file")
	cmd.Flags().String("format", "", "Lineage format: csv, json, dot or arrow (default csv)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile")

	cmd.MarkFlagRequired("end")

	return cmd
}

// applyTrackFlags overrides cfg with the flags the user set.
func applyTrackFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Tracker.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("threshold") {
		cfg.Tracker.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("max-iter") {
		cfg.Tracker.MaxIterations, _ = flags.GetInt("max-iter")
	}
	if flags.Changed("workers") {
		cfg.Tracker.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("bounds") {
		cfg.Tracker.BoundsCheck, _ = flags.GetBool("bounds")
	}
	if flags.Changed("pattern") {
		cfg.Snapshots.Pattern, _ = flags.GetString("pattern")
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile, _ = flags.GetString("metrics-file")
	}
	return cfg.Validate()
}

func runTrack(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("root")
	jsonOut, _ := cmd.Flags().GetBool("json")
	dir, _ := cmd.Flags().GetString("snapshots")
	epoch, _ := cmd.Flags().GetInt("epoch")
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	end, _ := cmd.Flags().GetInt("end")
	save, _ := cmd.Flags().GetBool("save")
	out, _ := cmd.Flags().GetString("out")
	formatName, _ := cmd.Flags().GetString("format")

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := applyTrackFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	var format export.Format
	if formatName != "" || out != "" {
		if formatName == "" {
			formatName = string(export.FormatCSV)
		}
		if format, err = export.ParseFormat(formatName); err != nil {
			return err
		}
	}
	if format == export.FormatArrow && out == "" {
		return fmt.Errorf("arrow output is binary, use --out FILE")
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdown(context.Background())

	logger := newLogger(cmd, cfg)
	decisions := logging.NewDecisionLogger(store.LocalPath(root), cfg.Logging.Level)
	defer decisions.Close()

	var m *metrics.Collector
	if cfg.Metrics.Textfile != "" {
		m = metrics.New()
	}

	var st *store.SQLiteStore
	if save || (dir == "" && cfg.Snapshots.Dir == "") {
		if st, err = openStore(root, cfg); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	var fallback snapshot.Source
	if st != nil {
		fallback = st
	}
	src, name, err := runner.OpenSource(cfg, dir, fallback)
	if err != nil {
		return err
	}

	r, err := runner.New(cfg,
		runner.WithLogger(logger),
		runner.WithDecisionLogger(decisions),
		runner.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	req := runner.NewRequest(src, name, epoch, x, y, end)
	res, trackErr := r.Run(ctx, req)

	if m != nil {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	if res == nil {
		return fmt.Errorf("track: %w", trackErr)
	}

	result := trackResult{
		Total:   res.Forest.Len(),
		Summary: res.Summary,
		Stats:   res.Stats,
		Output:  out,
	}
	if trackErr != nil {
		result.Incomplete = true
		result.Error = trackErr.Error()
	}

	if save && trackErr == nil {
		if result.RunID, err = r.Save(ctx, st, req, res); err != nil {
			return err
		}
	}

	records := res.Forest.Records()
	switch {
	case out != "":
		if err := writeRecordsFile(out, format, records); err != nil {
			return err
		}
	case format != "":
		// Lineage to stdout; the summary would corrupt it.
		if err := export.Write(cmd.OutOrStdout(), format, records); err != nil {
			return fmt.Errorf("write %s: %w", format, err)
		}
		return wrapIncomplete(trackErr)
	}

	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printTrackSummary(cmd.OutOrStdout(), req, result)
	}
	return wrapIncomplete(trackErr)
}

func wrapIncomplete(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("track interrupted: %w", err)
	}
	return fmt.Errorf("track incomplete: %w", err)
}

func writeRecordsFile(path string, format export.Format, records []lineage.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := export.Write(f, format, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", format, err)
	}
	return f.Close()
}

func printTrackSummary(w io.Writer, req runner.Request, r trackResult) {
	fmt.Fprintf(w, "Lineage of %v from epoch %d to %d\n", req.Start.Position, req.Start.Epoch, req.Start.EndEpoch)
	for _, e := range r.Summary.Epochs {
		fmt.Fprintf(w, "  epoch %-8d %d\n", e.Epoch, e.Count)
	}
	fmt.Fprintf(w, "Total programs: %d (%d distinct)\n", r.Total, len(r.Summary.Unique))
	if r.RunID != "" {
		fmt.Fprintf(w, "Saved as %s\n", r.RunID)
	}
	if r.Output != "" {
		fmt.Fprintf(w, "Wrote %s\n", r.Output)
	}
}
