// Package lineage follows a self-replicating program forward through epoch
// snapshots and records every verified descendant as a forest of nodes.
package lineage

import (
	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/program"
)

// Status is the resolution state of a node.
type Status string

const (
	// StatusActive marks a node whose next epoch has not been examined.
	StatusActive Status = "active"
	// StatusExtended marks a node with at least one verified child.
	StatusExtended Status = "extended"
	// StatusExtinct marks a resolved node with no verified child.
	StatusExtinct Status = "extinct"
)

// Node is one verified replicator instance. Nodes are never mutated after
// creation; children and status live on the Forest.
type Node struct {
	ID       int
	Epoch    int
	Position grid.Position
	Program  program.Program
	// Parent is nil for the root.
	Parent *Node
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.Parent == nil }

// ParentID returns the parent's ID, or -1 for the root.
func (n *Node) ParentID() int {
	if n.Parent == nil {
		return -1
	}
	return n.Parent.ID
}

// Record is the flat form of a node used by storage and export.
type Record struct {
	ID       int             `json:"id"`
	ParentID int             `json:"parent_id"`
	Epoch    int             `json:"epoch"`
	X        int             `json:"x"`
	Y        int             `json:"y"`
	Program  program.Program `json:"program"`
	Status   Status          `json:"status"`
}

// Position returns the record's grid position.
func (r Record) Position() grid.Position { return grid.Position{X: r.X, Y: r.Y} }
