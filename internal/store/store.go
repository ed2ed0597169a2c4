// Package store persists ingested snapshots and saved tracking runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/snapshot"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run describes one saved tracking run.
type Run struct {
	ID            string        `json:"id"`
	Source        string        `json:"source"`
	StartEpoch    int           `json:"start_epoch"`
	EndEpoch      int           `json:"end_epoch"`
	Root          grid.Position `json:"root"`
	Mode          string        `json:"mode"`
	Threshold     float64       `json:"threshold"`
	MaxIterations int           `json:"max_iterations"`
	Nodes         int           `json:"nodes"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Store holds snapshots and runs. It is also a snapshot.Source over the
// ingested cells.
type Store interface {
	snapshot.Source

	ImportSnapshot(ctx context.Context, s *snapshot.Snapshot, source string) error
	Epochs(ctx context.Context) ([]int, error)

	SaveRun(ctx context.Context, run Run, records []lineage.Record) (string, error)
	ListRuns(ctx context.Context) ([]Run, error)
	GetRun(ctx context.Context, id string) (Run, error)
	RunRecords(ctx context.Context, id string) ([]lineage.Record, error)
	DeleteRun(ctx context.Context, id string) error

	Close() error
}
