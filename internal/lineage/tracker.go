package lineage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/logging"
	"github.com/nvandessel/bfftrace/internal/metrics"
	"github.com/nvandessel/bfftrace/internal/program"
	"github.com/nvandessel/bfftrace/internal/similarity"
	"github.com/nvandessel/bfftrace/internal/snapshot"
	"github.com/nvandessel/bfftrace/internal/verify"
)

const tracerName = "github.com/nvandessel/bfftrace/internal/lineage"

// Outcome classifies one examined candidate.
type Outcome string

const (
	OutcomeEmpty      Outcome = "empty"      // empty or missing cell
	OutcomeDissimilar Outcome = "dissimilar" // score at or below threshold
	OutcomeRejected   Outcome = "rejected"   // similar but not a replicator
	OutcomeVerified   Outcome = "verified"   // new node created
)

// Start names the root cell and the last epoch to examine.
type Start struct {
	Epoch    int
	Position grid.Position
	EndEpoch int
}

// EpochStats summarises one transition into Epoch.
type EpochStats struct {
	Epoch      int `json:"epoch"`
	Active     int `json:"active"`
	Candidates int `json:"candidates"`
	Similar    int `json:"similar"`
	Verified   int `json:"verified"`
	Rejected   int `json:"rejected"`
	Extinct    int `json:"extinct"`
}

// Verifier decides whether a program replicates. *verify.Verifier satisfies it.
type Verifier interface {
	Verify(p program.Program) verify.Outcome
}

// Tracker walks a lineage forward through snapshots.
type Tracker struct {
	source     snapshot.Source
	verifier   Verifier
	mode       Mode
	threshold  float64
	workers    int
	bounds     *grid.Bounds
	boundsAuto bool
	verifyRoot bool
	logger     *slog.Logger
	decisions  *logging.DecisionLogger
	metrics    *metrics.Collector
	progress   func(EpochStats)
	tracer     trace.Tracer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMode selects the candidate rule.
func WithMode(m Mode) Option {
	return func(t *Tracker) { t.mode = m }
}

// WithThreshold sets the similarity threshold a candidate must exceed.
func WithThreshold(th float64) Option {
	return func(t *Tracker) { t.threshold = th }
}

// WithWorkers bounds concurrent candidate checks. Values below 1 use NumCPU.
func WithWorkers(n int) Option {
	return func(t *Tracker) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		t.workers = n
	}
}

// WithBounds drops candidates outside b.
func WithBounds(b grid.Bounds) Option {
	return func(t *Tracker) {
		t.bounds = &b
		t.boundsAuto = false
	}
}

// WithInferredBounds drops candidates outside each next snapshot's own extent.
func WithInferredBounds() Option {
	return func(t *Tracker) {
		t.bounds = nil
		t.boundsAuto = true
	}
}

// WithRootVerification runs the verifier on the root and warns when it fails.
func WithRootVerification(on bool) Option {
	return func(t *Tracker) { t.verifyRoot = on }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithDecisionLogger records every candidate judgement.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(t *Tracker) { t.decisions = dl }
}

// WithMetrics records candidate outcomes and node counts into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tracker) { t.metrics = c }
}

// WithProgress calls fn once per transition, in epoch order.
func WithProgress(fn func(EpochStats)) Option {
	return func(t *Tracker) { t.progress = fn }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Tracker) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// NewTracker creates a Tracker reading snapshots from source.
// A nil verifier selects verify.New(nil).
func NewTracker(source snapshot.Source, verifier Verifier, opts ...Option) *Tracker {
	if verifier == nil {
		verifier = verify.New(nil)
	}
	t := &Tracker{
		source:     source,
		verifier:   verifier,
		mode:       ModeAuto,
		threshold:  similarity.DefaultThreshold,
		workers:    runtime.NumCPU(),
		verifyRoot: true,
		logger:     logging.Discard(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track builds the lineage forest rooted at start. On a failure after the
// root was found, the forest built so far is returned with the error.
func (t *Tracker) Track(ctx context.Context, start Start) (*Forest, error) {
	if start.EndEpoch < start.Epoch {
		return nil, fmt.Errorf("%w: %d < %d", ErrInvalidRange, start.EndEpoch, start.Epoch)
	}

	ctx, span := t.tracer.Start(ctx, "lineage.Track",
		trace.WithAttributes(
			attribute.Int("start_epoch", start.Epoch),
			attribute.Int("end_epoch", start.EndEpoch),
			attribute.String("root", start.Position.String()),
			attribute.String("mode", string(t.mode)),
		),
	)
	defer span.End()

	forest, err := t.track(ctx, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "track failed")
	}
	if forest != nil {
		span.SetAttributes(attribute.Int("nodes", forest.Len()))
	}
	return forest, err
}

func (t *Tracker) track(ctx context.Context, start Start) (*Forest, error) {
	first, err := t.source.Load(ctx, start.Epoch)
	if err != nil {
		return nil, fmt.Errorf("load start epoch %d: %w", start.Epoch, err)
	}
	cell, ok := first.Lookup(start.Position)
	if !ok {
		return nil, fmt.Errorf("%w: %v in epoch %d", ErrRootNotFound, start.Position, start.Epoch)
	}
	if cell.Program.Empty() {
		return nil, fmt.Errorf("%w: %v in epoch %d", ErrEmptyRoot, start.Position, start.Epoch)
	}

	if t.verifyRoot {
		if out := t.verifier.Verify(cell.Program); !out.Replicator {
			t.logger.Warn("root is not a verified replicator",
				"epoch", start.Epoch, "position", start.Position.String(),
				"state", out.Result.State, "iterations", out.Result.Iterations)
		} else {
			t.logger.Debug("root verified", "epoch", start.Epoch, "position", start.Position.String())
		}
	}

	forest := newForest(start.Epoch, start.Position, cell.Program)
	t.metrics.NodesCreated(1)

	for epoch := start.Epoch; epoch < start.EndEpoch; epoch++ {
		if err := ctx.Err(); err != nil {
			return forest, err
		}

		parents := forest.Active(epoch)
		if len(parents) == 0 {
			t.report(EpochStats{Epoch: epoch + 1})
			continue
		}

		next, err := t.source.Load(ctx, epoch+1)
		if err != nil {
			return forest, fmt.Errorf("load epoch %d: %w", epoch+1, err)
		}

		stats, err := t.transition(ctx, forest, parents, next)
		if err != nil {
			return forest, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		t.report(stats)
	}

	return forest, nil
}

func (t *Tracker) report(s EpochStats) {
	t.metrics.EpochProcessed()
	t.logger.Info("epoch resolved",
		"epoch", s.Epoch,
		"active", s.Active,
		"candidates", s.Candidates,
		"similar", s.Similar,
		"verified", s.Verified,
		"rejected", s.Rejected,
		"extinct", s.Extinct,
	)
	if t.progress != nil {
		t.progress(s)
	}
}

type candidate struct {
	parent *Node
	pos    grid.Position
	prog   program.Program
}

type judgement struct {
	score   float64
	outcome Outcome
}

// transition resolves every parent against the next snapshot. Candidates are
// judged concurrently; nodes are created afterwards in candidate order so the
// forest does not depend on scheduling.
func (t *Tracker) transition(ctx context.Context, f *Forest, parents []*Node, next *snapshot.Snapshot) (EpochStats, error) {
	mode := t.mode.resolve(next)
	bounds := t.bounds
	if t.boundsAuto {
		b := next.Bounds()
		bounds = &b
	}

	ctx, span := t.tracer.Start(ctx, "lineage.transition",
		trace.WithAttributes(
			attribute.Int("epoch", next.Epoch),
			attribute.Int("active", len(parents)),
			attribute.String("mode", string(mode)),
		),
	)
	defer span.End()

	var cands []candidate
	for _, n := range parents {
		for _, q := range candidatePositions(mode, n.Position, next, bounds) {
			cands = append(cands, candidate{parent: n, pos: q, prog: next.ProgramAt(q)})
		}
	}

	verdicts := make([]judgement, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = t.judge(cands[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate check aborted")
		return EpochStats{}, err
	}

	stats := EpochStats{Epoch: next.Epoch, Active: len(parents), Candidates: len(cands)}
	// Each parent gets its own child for every verified cell, even when
	// neighbouring parents verify the same cell.
	for i, c := range cands {
		v := &verdicts[i]
		switch v.outcome {
		case OutcomeVerified:
			f.add(c.parent, next.Epoch, c.pos, c.prog)
			stats.Similar++
			stats.Verified++
		case OutcomeRejected:
			stats.Similar++
			stats.Rejected++
		}

		t.metrics.Candidate(string(v.outcome))
		t.decisions.Log(logging.Decision{
			Epoch:    next.Epoch,
			ParentID: c.parent.ID,
			ParentX:  c.parent.Position.X,
			ParentY:  c.parent.Position.Y,
			X:        c.pos.X,
			Y:        c.pos.Y,
			Score:    v.score,
			Outcome:  string(v.outcome),
			Program:  c.prog.String(),
		})
	}

	for _, n := range parents {
		f.resolve(n)
		if f.Status(n) == StatusExtinct {
			stats.Extinct++
		}
	}
	t.metrics.NodesCreated(stats.Verified)

	span.SetAttributes(
		attribute.Int("candidates", stats.Candidates),
		attribute.Int("verified", stats.Verified),
		attribute.Int("extinct", stats.Extinct),
	)
	return stats, nil
}

func (t *Tracker) judge(c candidate) judgement {
	if c.prog.Empty() {
		return judgement{outcome: OutcomeEmpty}
	}
	score := similarity.Positional(c.prog, c.parent.Program)
	if !similarity.Plausible(score, t.threshold) {
		return judgement{score: score, outcome: OutcomeDissimilar}
	}
	if !t.verifier.Verify(c.prog).Replicator {
		return judgement{score: score, outcome: OutcomeRejected}
	}
	return judgement{score: score, outcome: OutcomeVerified}
}
