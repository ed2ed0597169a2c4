// Package tape defines the execution oracle used to decide whether a program
// copies itself, and provides a reference implementation of the two-head
// tape machine the simulation runs.
package tape

// State is the reason an emulation stopped.
type State string

const (
	// StateTerminated means the iteration cap was reached.
	StateTerminated State = "terminated"
	// StateFinished means the instruction pointer ran off the end of the tape.
	StateFinished State = "finished"
	// StateUnmatchedOpen means a taken '[' had no matching ']'.
	StateUnmatchedOpen State = "unmatched-open"
	// StateUnmatchedClose means a taken ']' had no matching '['.
	StateUnmatchedClose State = "unmatched-close"
)

// Result is the outcome of one emulation.
type Result struct {
	Tape       []byte `json:"tape"`
	State      State  `json:"state"`
	Iterations int    `json:"iterations"`
	Skipped    int    `json:"skipped"`
}

// Oracle executes a tape and reports its final contents.
// Implementations must be pure: the same inputs always give the same Result,
// the input slice is never modified, and Emulate always returns within
// maxIterations steps. Implementations must be safe for concurrent use.
type Oracle interface {
	Emulate(tape []byte, start, programLength int, verbose bool, maxIterations int) Result
}

// OracleFunc adapts an ordinary function to the Oracle interface.
type OracleFunc func(tape []byte, start, programLength int, verbose bool, maxIterations int) Result

// Emulate calls f.
func (f OracleFunc) Emulate(tape []byte, start, programLength int, verbose bool, maxIterations int) Result {
	return f(tape, start, programLength, verbose, maxIterations)
}
