// Package verify decides whether a program is a genuine self-replicator by
// running it once under a tape oracle.
package verify

import (
	"bytes"
	"sync"

	"github.com/nvandessel/bfftrace/internal/metrics"
	"github.com/nvandessel/bfftrace/internal/program"
	"github.com/nvandessel/bfftrace/internal/tape"
)

// DefaultMaxIterations bounds one emulation.
const DefaultMaxIterations = 1024

// Reason explains a verification outcome.
type Reason string

const (
	ReasonCopied   Reason = "copied"        // second half equals first half
	ReasonMismatch Reason = "halves-differ" // emulation ended without an exact copy
	ReasonEmpty    Reason = "empty-program" // zero-length programs never replicate
)

// Outcome is the full result of verifying one program.
type Outcome struct {
	Replicator bool        `json:"replicator"`
	Reason     Reason      `json:"reason"`
	Result     tape.Result `json:"result"`
	Cached     bool        `json:"cached"`
}

// Verifier wraps an Oracle with the tape layout and the half-equality check.
// Results are memoised by program, which is sound because the oracle is pure.
// A Verifier is safe for concurrent use.
type Verifier struct {
	oracle        tape.Oracle
	maxIterations int
	metrics       *metrics.Collector

	mu    sync.Mutex
	cache map[program.Program]Outcome
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMaxIterations sets the emulation step cap. Non-positive values keep the default.
func WithMaxIterations(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxIterations = n
		}
	}
}

// WithMetrics records verifications into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(v *Verifier) { v.metrics = c }
}

// WithoutCache disables memoisation.
func WithoutCache() Option {
	return func(v *Verifier) { v.cache = nil }
}

// New creates a Verifier. A nil oracle selects the reference tape.BFF machine.
func New(oracle tape.Oracle, opts ...Option) *Verifier {
	if oracle == nil {
		oracle = tape.BFF{}
	}
	v := &Verifier{
		oracle:        oracle,
		maxIterations: DefaultMaxIterations,
		cache:         make(map[program.Program]Outcome),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaxIterations returns the configured step cap.
func (v *Verifier) MaxIterations() int { return v.maxIterations }

// IsReplicator reports whether p copies itself within the step cap.
func (v *Verifier) IsReplicator(p program.Program) bool {
	return v.Verify(p).Replicator
}

// Verify runs p on a tape of its own bytes followed by len(p) Zero bytes and
// succeeds iff the final tape's two halves are byte-for-byte identical.
func (v *Verifier) Verify(p program.Program) Outcome {
	if p.Empty() {
		v.metrics.EmptyProgram()
		return Outcome{Reason: ReasonEmpty}
	}

	if out, ok := v.lookup(p); ok {
		v.metrics.CacheHit()
		out.Cached = true
		return out
	}

	out := v.run(p)
	v.metrics.Verification(out.Replicator, out.Result.Iterations)
	v.store(p, out)
	return out
}

// CacheSize returns the number of memoised programs.
func (v *Verifier) CacheSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cache)
}

func (v *Verifier) run(p program.Program) Outcome {
	n := p.Len()
	buf := make([]byte, 2*n)
	copy(buf, p)
	for i := n; i < len(buf); i++ {
		buf[i] = tape.Zero
	}

	res := v.oracle.Emulate(buf, 0, n, false, v.maxIterations)

	out := Outcome{Result: res, Reason: ReasonMismatch}
	if len(res.Tape) == 2*n && bytes.Equal(res.Tape[:n], res.Tape[n:]) {
		out.Replicator = true
		out.Reason = ReasonCopied
	}
	return out
}

func (v *Verifier) lookup(p program.Program) (Outcome, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cache == nil {
		return Outcome{}, false
	}
	out, ok := v.cache[p]
	return out, ok
}

func (v *Verifier) store(p program.Program, out Outcome) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cache != nil {
		v.cache[p] = out
	}
}
