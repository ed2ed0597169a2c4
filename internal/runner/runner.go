// Package runner assembles a lineage tracker from configuration and executes
// runs for the CLI and the MCP server.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nvandessel/bfftrace/internal/config"
	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/logging"
	"github.com/nvandessel/bfftrace/internal/metrics"
	"github.com/nvandessel/bfftrace/internal/snapshot"
	"github.com/nvandessel/bfftrace/internal/store"
	"github.com/nvandessel/bfftrace/internal/verify"
)

// Request names one tracking run.
type Request struct {
	Source     snapshot.Source
	SourceName string // recorded with saved runs
	Start      lineage.Start
}

// Result is a finished (or partial) run.
type Result struct {
	Forest  *lineage.Forest
	Stats   []lineage.EpochStats
	Summary lineage.Summary
}

// Runner holds the verifier and logging shared by every run it executes.
// The verifier's program cache persists across runs.
type Runner struct {
	cfg       *config.Config
	mode      lineage.Mode
	verifier  *verify.Verifier
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	metrics   *metrics.Collector
	progress  func(lineage.EpochStats)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDecisionLogger records every candidate decision.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(r *Runner) { r.decisions = dl }
}

// WithMetrics records verifier and tracker counters into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithProgress is called once per resolved epoch.
func WithProgress(fn func(lineage.EpochStats)) Option {
	return func(r *Runner) { r.progress = fn }
}

// New validates cfg and builds a Runner.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, err := lineage.ParseMode(cfg.Tracker.Mode)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		mode:   mode,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.verifier = verify.New(nil,
		verify.WithMaxIterations(cfg.Tracker.MaxIterations),
		verify.WithMetrics(r.metrics),
	)
	return r, nil
}

// Config returns the configuration the Runner was built from.
func (r *Runner) Config() *config.Config { return r.cfg }

// Verifier returns the shared verifier.
func (r *Runner) Verifier() *verify.Verifier { return r.verifier }

// Run tracks req. When the tracker fails after the root was found, the
// partial result is returned together with the error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("no snapshot source")
	}

	var (
		mu    sync.Mutex
		stats []lineage.EpochStats
	)
	opts := []lineage.Option{
		lineage.WithMode(r.mode),
		lineage.WithThreshold(r.cfg.Tracker.Threshold),
		lineage.WithWorkers(r.cfg.Tracker.Workers),
		lineage.WithRootVerification(r.cfg.Tracker.VerifyRoot),
		lineage.WithLogger(r.logger),
		lineage.WithDecisionLogger(r.decisions),
		lineage.WithMetrics(r.metrics),
		lineage.WithProgress(func(s lineage.EpochStats) {
			mu.Lock()
			stats = append(stats, s)
			mu.Unlock()
			if r.progress != nil {
				r.progress(s)
			}
		}),
	}
	if r.cfg.Tracker.BoundsCheck {
		opts = append(opts, lineage.WithInferredBounds())
	}

	forest, err := lineage.NewTracker(req.Source, r.verifier, opts...).Track(ctx, req.Start)
	if forest == nil {
		return nil, err
	}

	return &Result{
		Forest:  forest,
		Stats:   stats,
		Summary: lineage.Summarize(forest.Records()),
	}, err
}

// Save stores a finished run and returns its ID.
func (r *Runner) Save(ctx context.Context, st store.Store, req Request, res *Result) (string, error) {
	if res == nil || res.Forest == nil {
		return "", fmt.Errorf("nothing to save")
	}
	run := store.Run{
		Source:        req.SourceName,
		StartEpoch:    req.Start.Epoch,
		EndEpoch:      req.Start.EndEpoch,
		Root:          req.Start.Position,
		Mode:          string(r.mode),
		Threshold:     r.cfg.Tracker.Threshold,
		MaxIterations: r.cfg.Tracker.MaxIterations,
	}
	id, err := st.SaveRun(ctx, run, res.Forest.Records())
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return id, nil
}

// NewRequest builds a Request for the root at (x, y) in epoch, tracked until end.
func NewRequest(src snapshot.Source, name string, epoch, x, y, end int) Request {
	return Request{
		Source:     src,
		SourceName: name,
		Start: lineage.Start{
			Epoch:    epoch,
			Position: grid.Position{X: x, Y: y},
			EndEpoch: end,
		},
	}
}

// OpenSource returns a cached snapshot source. A non-empty dir reads CSV
// files with the configured pattern; otherwise fallback (usually the SQLite
// store) is used. The returned name identifies the source in saved runs.
func OpenSource(cfg *config.Config, dir string, fallback snapshot.Source) (snapshot.Source, string, error) {
	if dir == "" {
		dir = cfg.Snapshots.Dir
	}
	if dir != "" {
		return snapshot.NewCached(snapshot.NewDir(dir, cfg.Snapshots.Pattern), cfg.Snapshots.CacheSize), dir, nil
	}
	if fallback == nil {
		return nil, "", fmt.Errorf("no snapshot directory configured and no store available")
	}
	return snapshot.NewCached(fallback, cfg.Snapshots.CacheSize), "store", nil
}
