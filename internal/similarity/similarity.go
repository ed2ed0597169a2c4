// Package similarity scores how closely a candidate program matches its
// presumed parent.
package similarity

import "github.com/nvandessel/bfftrace/internal/program"

// DefaultThreshold is the score a candidate must strictly exceed to be
// considered a plausible descendant.
const DefaultThreshold = 0.9

// Matches counts equal bytes over the first min(len(a), len(b)) positions.
func Matches(a, b program.Program) int {
	n := min(len(a), len(b))
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return matches
}

// Positional returns the fraction of positions at which candidate and parent
// hold the same symbol. Only the first min(len) positions are compared; every
// position past the shorter program counts as a mismatch, so the denominator
// is the longer length. Returns 0.0 when both programs are empty.
func Positional(candidate, parent program.Program) float64 {
	longest := max(len(candidate), len(parent))
	if longest == 0 {
		return 0.0
	}
	return float64(Matches(candidate, parent)) / float64(longest)
}

// Plausible reports whether score clears threshold. The comparison is strict.
func Plausible(score, threshold float64) bool {
	return score > threshold
}
