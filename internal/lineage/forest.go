package lineage

import (
	"slices"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/program"
)

// Forest holds every node of one tracking run. The zero value is not usable;
// forests are built by Tracker.Track.
type Forest struct {
	root     *Node
	nodes    []*Node
	epochs   []int
	active   map[int][]*Node
	children map[int][]*Node
	resolved map[int]bool
}

func newForest(epoch int, pos grid.Position, prog program.Program) *Forest {
	f := &Forest{
		active:   make(map[int][]*Node),
		children: make(map[int][]*Node),
		resolved: make(map[int]bool),
	}
	f.root = f.add(nil, epoch, pos, prog)
	return f
}

// add creates a node and appends it to its epoch's active set.
func (f *Forest) add(parent *Node, epoch int, pos grid.Position, prog program.Program) *Node {
	n := &Node{
		ID:       len(f.nodes),
		Epoch:    epoch,
		Position: pos,
		Program:  prog,
		Parent:   parent,
	}
	f.nodes = append(f.nodes, n)
	if _, ok := f.active[epoch]; !ok {
		f.epochs = append(f.epochs, epoch)
	}
	f.active[epoch] = append(f.active[epoch], n)
	if parent != nil {
		f.children[parent.ID] = append(f.children[parent.ID], n)
	}
	return n
}

// resolve marks n as examined against the next epoch.
func (f *Forest) resolve(n *Node) { f.resolved[n.ID] = true }

// Root returns the starting node.
func (f *Forest) Root() *Node { return f.root }

// Len returns the number of nodes including the root.
func (f *Forest) Len() int { return len(f.nodes) }

// Nodes returns all nodes in creation order.
func (f *Forest) Nodes() []*Node { return slices.Clone(f.nodes) }

// Node returns the node with the given ID.
func (f *Forest) Node(id int) (*Node, bool) {
	if id < 0 || id >= len(f.nodes) {
		return nil, false
	}
	return f.nodes[id], true
}

// Epochs returns the epochs that hold at least one node, ascending.
func (f *Forest) Epochs() []int { return slices.Clone(f.epochs) }

// Active returns the nodes at epoch in creation order.
func (f *Forest) Active(epoch int) []*Node { return slices.Clone(f.active[epoch]) }

// Children returns n's children in creation order.
func (f *Forest) Children(n *Node) []*Node { return slices.Clone(f.children[n.ID]) }

// Status returns n's resolution state.
func (f *Forest) Status(n *Node) Status {
	switch {
	case len(f.children[n.ID]) > 0:
		return StatusExtended
	case f.resolved[n.ID]:
		return StatusExtinct
	default:
		return StatusActive
	}
}

// Programs returns every node's program in creation order.
func (f *Forest) Programs() []program.Program {
	out := make([]program.Program, len(f.nodes))
	for i, n := range f.nodes {
		out[i] = n.Program
	}
	return out
}

// Records flattens the forest in creation order.
func (f *Forest) Records() []Record {
	out := make([]Record, len(f.nodes))
	for i, n := range f.nodes {
		out[i] = Record{
			ID:       n.ID,
			ParentID: n.ParentID(),
			Epoch:    n.Epoch,
			X:        n.Position.X,
			Y:        n.Position.Y,
			Program:  n.Program,
			Status:   f.Status(n),
		}
	}
	return out
}

// Lineage returns the chain from the root to n, root first.
func (f *Forest) Lineage(n *Node) []*Node {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}
