package lineage

import (
	"fmt"
	"strings"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/snapshot"
)

// Mode selects how neighbours become candidates.
type Mode string

const (
	// ModeAuto uses ModeLinked when the next snapshot recorded origins, else ModeSpatial.
	ModeAuto Mode = "auto"
	// ModeLinked only follows cells whose recorded origin is the parent.
	ModeLinked Mode = "linked"
	// ModeSpatial treats the whole kernel as candidates.
	ModeSpatial Mode = "spatial"
)

// ParseMode maps a name to a Mode. The empty string selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeLinked:
		return ModeLinked, nil
	case ModeSpatial:
		return ModeSpatial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// resolve picks the concrete mode for a snapshot.
func (m Mode) resolve(next *snapshot.Snapshot) Mode {
	if m == ModeAuto || m == "" {
		if next.Linked {
			return ModeLinked
		}
		return ModeSpatial
	}
	return m
}

// candidatePositions returns the positions examined for a parent at p, in
// kernel order with duplicates removed.
//
// In linked mode a neighbour q qualifies when its origin is p, or when it has
// no recorded origin and q == p. When any neighbour descends from p the
// parent's own cell qualifies too, since a pairing rewrites both cells.
func candidatePositions(mode Mode, p grid.Position, next *snapshot.Snapshot, bounds *grid.Bounds) []grid.Position {
	kernel := grid.Kernel(p)

	keep := func(q grid.Position) bool {
		return bounds == nil || bounds.Contains(q)
	}

	out := make([]grid.Position, 0, len(kernel))
	seen := make(map[grid.Position]bool, len(kernel))
	push := func(q grid.Position) {
		if !seen[q] && keep(q) {
			seen[q] = true
			out = append(out, q)
		}
	}

	if mode != ModeLinked {
		for _, q := range kernel {
			push(q)
		}
		return out
	}

	paired := false
	for _, q := range kernel {
		if next.OriginOf(q) == p {
			paired = true
			break
		}
	}
	for _, q := range kernel {
		origin := next.OriginOf(q)
		switch {
		case origin == p:
			push(q)
		case q == p && (paired || origin.IsSentinel()):
			push(q)
		}
	}
	return out
}
