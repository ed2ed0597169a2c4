package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/bfftrace/internal/export"
	"github.com/nvandessel/bfftrace/internal/pathutil"
	"github.com/nvandessel/bfftrace/internal/program"
	"github.com/nvandessel/bfftrace/internal/ratelimit"
	"github.com/nvandessel/bfftrace/internal/runner"
	"github.com/nvandessel/bfftrace/internal/store"
	"github.com/nvandessel/bfftrace/internal/verify"
)

// RunsResourceURI lists saved runs as markdown.
const RunsResourceURI = "bfftrace://runs"

// registerTools registers all bfftrace MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bfftrace_verify",
		Description: "Run a program on the tape machine and report whether it copies itself",
	}, s.handleVerify)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bfftrace_track",
		Description: "Trace the descendants of a replicator through successive epoch snapshots",
	}, s.handleTrack)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bfftrace_runs",
		Description: "List saved tracking runs, or render one run's lineage as JSON, DOT or CSV",
	}, s.handleRuns)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         RunsResourceURI,
		Name:        "bfftrace-runs",
		Description: "Saved lineage tracking runs in this project.",
		MIMEType:    "text/markdown",
	}, s.handleRunsResource)
}

// handleRunsResource renders the saved runs as a markdown table.
func (s *Server) handleRunsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# bfftrace runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("*No saved runs.*\n")
	} else {
		sb.WriteString("| id | source | epochs | root | mode | nodes |\n")
		sb.WriteString("|----|--------|--------|------|------|-------|\n")
		for _, r := range runs {
			fmt.Fprintf(&sb, "| %s | %s | %d-%d | %s | %s | %d |\n",
				r.ID, r.Source, r.StartEpoch, r.EndEpoch, r.Root, r.Mode, r.Nodes)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      RunsResourceURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleVerify implements the bfftrace_verify tool.
func (s *Server) handleVerify(ctx context.Context, req *sdk.CallToolRequest, args VerifyInput) (_ *sdk.CallToolResult, _ VerifyOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bfftrace_verify", start, retErr, sanitizeToolParams(map[string]any{
			"program": args.Program, "max_iterations": args.MaxIterations,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bfftrace_verify"); err != nil {
		return nil, VerifyOutput{}, err
	}
	if args.MaxIterations < 0 {
		return nil, VerifyOutput{}, fmt.Errorf("'max_iterations' must be positive, got %d", args.MaxIterations)
	}

	v := s.runner.Verifier()
	if args.MaxIterations > 0 && args.MaxIterations != v.MaxIterations() {
		v = verify.New(nil, verify.WithMaxIterations(args.MaxIterations))
	}

	out := v.Verify(program.Normalize(args.Program))
	return nil, VerifyOutput{
		Verified:   out.Replicator,
		Reason:     string(out.Reason),
		State:      string(out.Result.State),
		Iterations: out.Result.Iterations,
		Skipped:    out.Result.Skipped,
		Tape:       string(out.Result.Tape),
		Cached:     out.Cached,
	}, nil
}

// handleTrack implements the bfftrace_track tool.
func (s *Server) handleTrack(ctx context.Context, req *sdk.CallToolRequest, args TrackInput) (_ *sdk.CallToolResult, _ TrackOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bfftrace_track", start, retErr, sanitizeToolParams(map[string]any{
			"snapshots": args.Snapshots, "epoch": args.Epoch, "x": args.X, "y": args.Y,
			"end": args.End, "mode": args.Mode, "threshold": thresholdParam(args.Threshold), "save": args.Save,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bfftrace_track"); err != nil {
		return nil, TrackOutput{}, err
	}

	if args.Snapshots != "" {
		if err := pathutil.ValidatePath(args.Snapshots, s.allowedDirs); err != nil {
			return nil, TrackOutput{}, fmt.Errorf("snapshots directory rejected: %w", err)
		}
	}

	r, err := s.runnerFor(args)
	if err != nil {
		return nil, TrackOutput{}, err
	}

	src, name, err := runner.OpenSource(r.Config(), args.Snapshots, s.store)
	if err != nil {
		return nil, TrackOutput{}, err
	}

	runReq := runner.NewRequest(src, name, args.Epoch, args.X, args.Y, args.End)
	res, err := r.Run(ctx, runReq)
	if res == nil {
		return nil, TrackOutput{}, fmt.Errorf("track failed: %w", err)
	}

	out := TrackOutput{
		Total:  res.Summary.Total,
		Unique: len(res.Summary.Unique),
		Epochs: res.Summary.Epochs,
		Stats:  res.Stats,
	}
	for _, p := range res.Forest.Programs() {
		out.Programs = append(out.Programs, p.String())
	}

	if err != nil {
		out.Incomplete = true
		out.Error = err.Error()
		out.Message = fmt.Sprintf("Tracking stopped early with %d node(s): %v", out.Total, err)
		return nil, out, nil
	}

	if args.Save {
		id, err := r.Save(ctx, s.store, runReq, res)
		if err != nil {
			return nil, TrackOutput{}, err
		}
		out.RunID = id
	}

	out.Message = fmt.Sprintf("Tracked %d node(s), %d distinct program(s), epochs %d-%d",
		out.Total, out.Unique, args.Epoch, args.End)
	return nil, out, nil
}

// runnerFor returns the server's runner, or a fresh one when the call
// overrides tracker settings.
func (s *Server) runnerFor(args TrackInput) (*runner.Runner, error) {
	if args.Mode == "" && args.Threshold == nil {
		return s.runner, nil
	}

	cfg := *s.runner.Config()
	if args.Mode != "" {
		cfg.Tracker.Mode = args.Mode
	}
	if args.Threshold != nil {
		cfg.Tracker.Threshold = *args.Threshold
	}
	return runner.New(&cfg, runner.WithLogger(s.logger))
}

// thresholdParam is the audit value for an optional threshold.
func thresholdParam(t *float64) any {
	if t == nil {
		return "default"
	}
	return *t
}

// handleRuns implements the bfftrace_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bfftrace_runs", start, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bfftrace_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	if args.RunID == "" {
		runs, err := s.store.ListRuns(ctx)
		if err != nil {
			return nil, RunsOutput{}, fmt.Errorf("list runs: %w", err)
		}
		return nil, RunsOutput{Runs: runs, Count: len(runs)}, nil
	}

	run, err := s.store.GetRun(ctx, args.RunID)
	if err != nil {
		return nil, RunsOutput{}, err
	}
	records, err := s.store.RunRecords(ctx, args.RunID)
	if err != nil {
		return nil, RunsOutput{}, err
	}

	format := export.FormatJSON
	if args.Format != "" {
		if format, err = export.ParseFormat(args.Format); err != nil {
			return nil, RunsOutput{}, err
		}
	}

	out := RunsOutput{Runs: []store.Run{run}, Count: 1, Format: string(format)}
	switch format {
	case export.FormatJSON:
		out.Graph = export.RenderJSON(records)
	case export.FormatDOT, export.FormatCSV:
		var buf bytes.Buffer
		if err := export.Write(&buf, format, records); err != nil {
			return nil, RunsOutput{}, fmt.Errorf("render %s: %w", format, err)
		}
		out.Graph = buf.String()
	default:
		return nil, RunsOutput{}, fmt.Errorf("%w: %q is binary, use 'json', 'dot' or 'csv'", export.ErrUnknownFormat, format)
	}
	return nil, out, nil
}
