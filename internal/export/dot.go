// Package export renders lineage forests in various output formats.
package export

import (
	"fmt"
	"strings"

	"github.com/nvandessel/bfftrace/internal/lineage"
)

// statusColors maps node status to DOT colors.
var statusColors = map[lineage.Status]string{
	lineage.StatusActive:   "mediumseagreen",
	lineage.StatusExtended: "steelblue",
	lineage.StatusExtinct:  "tomato",
}

func nodeName(id int) string { return fmt.Sprintf("n%d", id) }

// RenderDOT produces a Graphviz DOT representation of a lineage forest.
// Nodes of the same epoch share a rank.
func RenderDOT(records []lineage.Record) string {
	var b strings.Builder
	b.WriteString("digraph bfftrace {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	var epochs []int
	byEpoch := make(map[int][]lineage.Record)
	for _, r := range records {
		if _, ok := byEpoch[r.Epoch]; !ok {
			epochs = append(epochs, r.Epoch)
		}
		byEpoch[r.Epoch] = append(byEpoch[r.Epoch], r)
	}

	for _, epoch := range epochs {
		fmt.Fprintf(&b, "  subgraph epoch_%d {\n    rank=same;\n", epoch)
		for _, r := range byEpoch[epoch] {
			color := statusColors[r.Status]
			if color == "" {
				color = "lightgray"
			}
			label := fmt.Sprintf("e%d (%d,%d)", r.Epoch, r.X, r.Y)
			fmt.Fprintf(&b, "    %s [label=%q, fillcolor=%q, tooltip=%q];\n",
				nodeName(r.ID), label, color, truncate(r.Program.String(), 40))
		}
		b.WriteString("  }\n")
	}
	b.WriteString("\n")

	for _, r := range records {
		if r.ParentID < 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s;\n", nodeName(r.ParentID), nodeName(r.ID))
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes, edges and a
// per-epoch summary.
func RenderJSON(records []lineage.Record) map[string]any {
	nodes := make([]map[string]any, 0, len(records))
	edges := make([]map[string]any, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, map[string]any{
			"id":      r.ID,
			"epoch":   r.Epoch,
			"x":       r.X,
			"y":       r.Y,
			"program": r.Program.String(),
			"status":  string(r.Status),
		})
		if r.ParentID >= 0 {
			edges = append(edges, map[string]any{
				"source": r.ParentID,
				"target": r.ID,
			})
		}
	}

	return map[string]any{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
		"summary":    lineage.Summarize(records),
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
