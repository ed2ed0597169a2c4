package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nvandessel/bfftrace/internal/grid"
)

// ValidationError describes an inconsistency in a saved run.
type ValidationError struct {
	RunID  string `json:"run_id"`
	NodeID int    `json:"node_id"` // -1 for run-level issues
	Issue  string `json:"issue"`   // "count-mismatch", "root", "dangling", "self-reference", "epoch-gap", "duplicate-cell"
	Detail string `json:"detail,omitempty"`
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	where := e.RunID
	if e.NodeID >= 0 {
		where += " node " + strconv.Itoa(e.NodeID)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Issue, where)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Issue, where, e.Detail)
}

type storedNode struct {
	id, parent, epoch int
	pos               grid.Position
}

// ValidateRuns checks every saved run for forest invariants:
//   - node_count matches the stored nodes
//   - exactly one root, with parent -1
//   - every parent exists, is not the node itself, and sits one epoch earlier
//   - no two nodes share an (epoch, position)
func (s *SQLiteStore) ValidateRuns(ctx context.Context) ([]ValidationError, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	var errs []ValidationError
	for _, run := range runs {
		nodes, err := s.storedNodes(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read nodes of %s: %w", run.ID, err)
		}
		errs = append(errs, checkRun(run, nodes)...)
	}
	return errs, nil
}

// Validate runs the SQLite integrity checks followed by ValidateRuns.
func (s *SQLiteStore) Validate(ctx context.Context) ([]ValidationError, error) {
	s.mu.RLock()
	err := ValidateIntegrity(ctx, s.db)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.ValidateRuns(ctx)
}

func (s *SQLiteStore) storedNodes(ctx context.Context, runID string) ([]storedNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, parent_id, epoch, x, y FROM lineage_nodes WHERE run_id = ? ORDER BY node_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedNode
	for rows.Next() {
		var n storedNode
		if err := rows.Scan(&n.id, &n.parent, &n.epoch, &n.pos.X, &n.pos.Y); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func checkRun(run Run, nodes []storedNode) []ValidationError {
	var errs []ValidationError
	issue := func(nodeID int, kind, detail string) {
		errs = append(errs, ValidationError{RunID: run.ID, NodeID: nodeID, Issue: kind, Detail: detail})
	}

	if run.Nodes != len(nodes) {
		issue(-1, "count-mismatch", fmt.Sprintf("run says %d, found %d", run.Nodes, len(nodes)))
	}

	byID := make(map[int]storedNode, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	type cellKey struct {
		epoch int
		pos   grid.Position
	}
	seen := make(map[cellKey]int, len(nodes))
	roots := 0

	for _, n := range nodes {
		key := cellKey{n.epoch, n.pos}
		if other, dup := seen[key]; dup {
			issue(n.id, "duplicate-cell", fmt.Sprintf("same cell as node %d", other))
		} else {
			seen[key] = n.id
		}

		switch {
		case n.parent == -1:
			roots++
		case n.parent == n.id:
			issue(n.id, "self-reference", "")
		default:
			p, ok := byID[n.parent]
			if !ok {
				issue(n.id, "dangling", fmt.Sprintf("parent %d", n.parent))
			} else if p.epoch != n.epoch-1 {
				issue(n.id, "epoch-gap", fmt.Sprintf("parent epoch %d, node epoch %d", p.epoch, n.epoch))
			}
		}
	}

	if len(nodes) > 0 && roots != 1 {
		issue(-1, "root", fmt.Sprintf("%d roots", roots))
	}
	return errs
}
