// Package grid provides positions on the simulation grid and the fixed
// neighbourhood used to search for descendants.
package grid

import "fmt"

// Position is an integer cell coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Sentinel marks a cell with no recorded origin (spontaneous appearance or reset).
var Sentinel = Position{X: -1, Y: -1}

// IsSentinel reports whether p is the no-origin marker.
func (p Position) IsSentinel() bool { return p == Sentinel }

// Add returns p shifted by the offset o.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

// String implements fmt.Stringer.
func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// KernelSize is the number of offsets returned by Kernel.
const KernelSize = 13

// offsets is the candidate neighbourhood: self, distance-1 orthogonal,
// diagonal corners, distance-2 orthogonal.
var offsets = [KernelSize]Position{
	{0, 0},
	{-1, 0}, {1, 0}, {0, -1}, {0, 1},
	{-1, -1}, {1, 1}, {1, -1}, {-1, 1},
	{-2, 0}, {2, 0}, {0, -2}, {0, 2},
}

// Offsets returns a copy of the relative kernel offsets in search order.
func Offsets() []Position {
	out := make([]Position, KernelSize)
	copy(out, offsets[:])
	return out
}

// Kernel returns the 13 candidate positions around p, self first.
// Positions are not clipped to any grid.
func Kernel(p Position) []Position {
	out := make([]Position, KernelSize)
	for i, o := range offsets {
		out[i] = p.Add(o)
	}
	return out
}

// Bounds describes a grid of Width x Height cells starting at (0, 0).
type Bounds struct {
	Width  int
	Height int
}

// Contains reports whether p lies inside the grid.
// A zero Bounds contains nothing.
func (b Bounds) Contains(p Position) bool {
	return p.X >= 0 && p.X < b.Width && p.Y >= 0 && p.Y < b.Height
}
