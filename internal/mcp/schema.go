package mcp

import (
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/store"
)

// VerifyInput defines the input for bfftrace_verify tool.
type VerifyInput struct {
	Program       string `json:"program" jsonschema:"Program text; bytes outside the instruction alphabet become blanks"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"Emulation step cap (default from config: 1024)"`
}

// VerifyOutput defines the output for bfftrace_verify tool.
type VerifyOutput struct {
	Verified   bool   `json:"verified" jsonschema:"Whether the program copies itself onto the second half of its tape"`
	Reason     string `json:"reason" jsonschema:"Why the verdict was reached"`
	State      string `json:"state,omitempty" jsonschema:"How the emulation stopped"`
	Iterations int    `json:"iterations" jsonschema:"Steps executed"`
	Skipped    int    `json:"skipped" jsonschema:"Non-instruction bytes stepped over"`
	Tape       string `json:"tape,omitempty" jsonschema:"Final tape contents"`
	Cached     bool   `json:"cached" jsonschema:"Whether the verdict came from the program cache"`
}

// TrackInput defines the input for bfftrace_track tool.
type TrackInput struct {
	Snapshots string  `json:"snapshots,omitempty" jsonschema:"Directory of per-epoch pairing CSV files; empty uses ingested snapshots"`
	Epoch     int     `json:"epoch" jsonschema:"Epoch holding the root program"`
	X         int     `json:"x" jsonschema:"Root grid column"`
	Y         int     `json:"y" jsonschema:"Root grid row"`
	End       int     `json:"end" jsonschema:"Last epoch to track (inclusive)"`
	Mode      string  `json:"mode,omitempty" jsonschema:"Candidate selection: auto, linked or spatial (default: auto)"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Similarity a candidate must exceed (0.0-1.0, default: 0.9); 0 examines every non-empty neighbour"`
	Save      bool    `json:"save,omitempty" jsonschema:"Store the run in the project database"`
}

// TrackOutput defines the output for bfftrace_track tool.
type TrackOutput struct {
	Total      int                  `json:"total" jsonschema:"Number of lineage nodes including the root"`
	Unique     int                  `json:"unique" jsonschema:"Number of distinct programs"`
	Epochs     []lineage.EpochCount `json:"epochs" jsonschema:"Node count per epoch"`
	Stats      []lineage.EpochStats `json:"stats" jsonschema:"Candidate counts per transition"`
	Programs   []string             `json:"programs" jsonschema:"Verified programs in creation order"`
	RunID      string               `json:"run_id,omitempty" jsonschema:"ID of the saved run"`
	Incomplete bool                 `json:"incomplete,omitempty" jsonschema:"Whether tracking stopped early"`
	Error      string               `json:"error,omitempty" jsonschema:"Why tracking stopped early"`
	Message    string               `json:"message" jsonschema:"Human-readable summary"`
}

// RunsInput defines the input for bfftrace_runs tool.
type RunsInput struct {
	RunID  string `json:"run_id,omitempty" jsonschema:"Render this run instead of listing all runs"`
	Format string `json:"format,omitempty" jsonschema:"Rendering for run_id: json, dot or csv (default: json)"`
}

// RunsOutput defines the output for bfftrace_runs tool.
type RunsOutput struct {
	Runs   []store.Run `json:"runs" jsonschema:"Saved runs, newest first"`
	Count  int         `json:"count" jsonschema:"Number of runs returned"`
	Format string      `json:"format,omitempty" jsonschema:"Rendering format of graph"`
	Graph  any         `json:"graph,omitempty" jsonschema:"Rendered lineage of run_id"`
}
