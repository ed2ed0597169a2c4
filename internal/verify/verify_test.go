package verify

import (
	"strings"
	"sync"
	"testing"

	"github.com/nvandessel/bfftrace/internal/metrics"
	"github.com/nvandessel/bfftrace/internal/program"
	"github.com/nvandessel/bfftrace/internal/tape"
)

// copyLoop copies the tape under head0 to head1 forever, so the second half
// becomes an exact copy of the first.
const copyLoop = "[.>}]"

func TestVerifier_Verify(t *testing.T) {
	tests := []struct {
		name    string
		program program.Program
		want    bool
		reason  Reason
	}{
		{"copy loop", copyLoop, true, ReasonCopied},
		{"copy loop padded", program.Program(copyLoop + strings.Repeat(" ", 15)), true, ReasonCopied},
		{"copy loop with dead tail", program.Program(copyLoop + "  +"), true, ReasonCopied},
		{"count down loop", "+.[-]", false, ReasonMismatch},
		// Only the first tape byte changes, so the copy never lands.
		{"count down loop padded", program.Program("+.[-]" + strings.Repeat(" ", 15)), false, ReasonMismatch},
		{"never writes second half", "+++++", false, ReasonMismatch},
		{"unclosed copy loop", program.Program("[.>}-" + strings.Repeat(" ", 15)), false, ReasonMismatch},
		{"empty", "", false, ReasonEmpty},
	}

	v := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Verify(tt.program)
			if got.Replicator != tt.want {
				t.Errorf("Verify(%q).Replicator = %v, want %v (state %s, tape %q)",
					tt.program, got.Replicator, tt.want, got.Result.State, got.Result.Tape)
			}
			if got.Reason != tt.reason {
				t.Errorf("Verify(%q).Reason = %q, want %q", tt.program, got.Reason, tt.reason)
			}
		})
	}
}

func TestVerifier_TapeLayout(t *testing.T) {
	var gotTape []byte
	var gotStart, gotLen, gotMax int
	var gotVerbose bool
	oracle := tape.OracleFunc(func(in []byte, start, programLength int, verbose bool, maxIterations int) tape.Result {
		gotTape = append([]byte(nil), in...)
		gotStart, gotLen, gotVerbose, gotMax = start, programLength, verbose, maxIterations
		return tape.Result{Tape: in, State: tape.StateFinished}
	})

	New(oracle, WithMaxIterations(77)).Verify("+-.")

	if string(gotTape) != "+-.000" {
		t.Errorf("tape = %q, want %q", gotTape, "+-.000")
	}
	if gotStart != 0 || gotLen != 3 || gotVerbose || gotMax != 77 {
		t.Errorf("oracle args start=%d len=%d verbose=%v max=%d", gotStart, gotLen, gotVerbose, gotMax)
	}
}

func TestVerifier_EmptyNeverCallsOracle(t *testing.T) {
	called := false
	oracle := tape.OracleFunc(func(in []byte, start, programLength int, verbose bool, maxIterations int) tape.Result {
		called = true
		return tape.Result{Tape: in}
	})

	out := New(oracle).Verify("")
	if called {
		t.Error("oracle invoked for empty program")
	}
	if out.Replicator {
		t.Error("empty program classified as replicator")
	}
}

func TestVerifier_ShortTapeRejected(t *testing.T) {
	oracle := tape.OracleFunc(func(in []byte, start, programLength int, verbose bool, maxIterations int) tape.Result {
		return tape.Result{Tape: []byte{}}
	})
	if New(oracle).IsReplicator("++") {
		t.Error("truncated oracle tape accepted as replicator")
	}
}

func TestVerifier_Cache(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	oracle := tape.OracleFunc(func(in []byte, start, programLength int, verbose bool, maxIterations int) tape.Result {
		mu.Lock()
		calls++
		mu.Unlock()
		return tape.BFF{}.Emulate(in, start, programLength, verbose, maxIterations)
	})

	c := metrics.New()
	v := New(oracle, WithMetrics(c))
	first := v.Verify(copyLoop)
	second := v.Verify(copyLoop)

	if calls != 1 {
		t.Errorf("oracle calls = %d, want 1", calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("Cached flags = %v/%v, want false/true", first.Cached, second.Cached)
	}
	if first.Replicator != second.Replicator {
		t.Error("cached outcome differs from computed outcome")
	}
	if v.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", v.CacheSize())
	}

	uncached := New(oracle, WithoutCache())
	uncached.Verify(copyLoop)
	uncached.Verify(copyLoop)
	if calls != 3 {
		t.Errorf("oracle calls with cache disabled = %d, want 3", calls)
	}
}

func TestVerifier_Concurrent(t *testing.T) {
	v := New(nil)
	programs := []program.Program{copyLoop, "+.[-]", "+++++", program.Program(copyLoop + "   ")}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := programs[i%len(programs)]
			want := p == copyLoop || p == copyLoop+"   "
			if got := v.IsReplicator(p); got != want {
				t.Errorf("IsReplicator(%q) = %v, want %v", p, got, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestWithMaxIterations_IgnoresNonPositive(t *testing.T) {
	if got := New(nil, WithMaxIterations(0)).MaxIterations(); got != DefaultMaxIterations {
		t.Errorf("MaxIterations() = %d, want %d", got, DefaultMaxIterations)
	}
}
