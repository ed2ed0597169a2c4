// Package snapshot provides read access to per-epoch grid snapshots: the
// program held by each cell and, when the simulation recorded pairings, the
// position each occupant descends from.
package snapshot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/program"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for an epoch.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrDuplicateCell is returned when a snapshot lists a position twice.
	ErrDuplicateCell = errors.New("duplicate cell")

	// ErrMalformed is returned for unreadable snapshot data.
	ErrMalformed = errors.New("malformed snapshot")
)

// Cell is the content of one grid position at one epoch.
type Cell struct {
	Program program.Program
	// Origin is the previous-epoch position this occupant descends from,
	// or grid.Sentinel if none was recorded.
	Origin grid.Position
}

// Snapshot is the immutable-after-load state of the grid at one epoch.
type Snapshot struct {
	Epoch int
	// Linked is true when origins were recorded for this epoch.
	Linked bool

	cells  map[grid.Position]Cell
	width  int
	height int
}

// New creates an empty snapshot.
func New(epoch int, linked bool) *Snapshot {
	return &Snapshot{
		Epoch:  epoch,
		Linked: linked,
		cells:  make(map[grid.Position]Cell),
	}
}

// Set stores the cell at p. Each position may be set at most once.
func (s *Snapshot) Set(p grid.Position, c Cell) error {
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("%w: negative position %v", ErrMalformed, p)
	}
	if _, exists := s.cells[p]; exists {
		return fmt.Errorf("%w at %v in epoch %d", ErrDuplicateCell, p, s.Epoch)
	}
	if !s.Linked {
		c.Origin = grid.Sentinel
	}
	s.cells[p] = c
	s.width = max(s.width, p.X+1)
	s.height = max(s.height, p.Y+1)
	return nil
}

// Lookup returns the cell at p and whether it exists.
func (s *Snapshot) Lookup(p grid.Position) (Cell, bool) {
	c, ok := s.cells[p]
	return c, ok
}

// ProgramAt returns the program at p, or the empty program if p is absent.
func (s *Snapshot) ProgramAt(p grid.Position) program.Program {
	return s.cells[p].Program
}

// OriginOf returns the recorded origin of p, or grid.Sentinel if p is absent
// or the snapshot carries no origins.
func (s *Snapshot) OriginOf(p grid.Position) grid.Position {
	c, ok := s.cells[p]
	if !ok || !s.Linked {
		return grid.Sentinel
	}
	return c.Origin
}

// Bounds returns the grid dimensions inferred as (max_x+1, max_y+1).
func (s *Snapshot) Bounds() grid.Bounds {
	return grid.Bounds{Width: s.width, Height: s.height}
}

// Len returns the number of cells.
func (s *Snapshot) Len() int { return len(s.cells) }

// Positions returns every occupied position, row-major.
func (s *Snapshot) Positions() []grid.Position {
	out := make([]grid.Position, 0, len(s.cells))
	for p := range s.cells {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b grid.Position) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})
	return out
}

// Source loads snapshots by epoch.
// Load must return an error wrapping ErrSnapshotNotFound when the epoch is absent.
type Source interface {
	Load(ctx context.Context, epoch int) (*Snapshot, error)
}
