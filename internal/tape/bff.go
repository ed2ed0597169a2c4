package tape

import (
	"fmt"
	"io"
)

// Zero is the byte loops test against and the filler used for blank tape.
const Zero byte = '0'

// BFF is the reference two-head tape machine.
//
//	<  head0 = head0 - 1        >  head0 = head0 + 1
//	{  head1 = head1 - 1        }  head1 = head1 + 1
//	-  tape[head0]--            +  tape[head0]++
//	.  tape[head1] = tape[head0]
//	,  tape[head0] = tape[head1]
//	[  if tape[head0] == Zero, jump past the matching ]
//	]  if tape[head0] != Zero, jump back to the matching [
//
// head0 starts at 0 and head1 at programLength. Both heads wrap around the
// tape. Any other byte is a no-op and counted in Result.Skipped.
//
// When Trace is set and Emulate is called with verbose, one line per step is
// written to it. The zero value is ready to use.
type BFF struct {
	Trace io.Writer
}

// Emulate runs the machine on a copy of in.
func (m BFF) Emulate(in []byte, start, programLength int, verbose bool, maxIterations int) Result {
	tape := make([]byte, len(in))
	copy(tape, in)

	size := len(tape)
	if size == 0 {
		return Result{Tape: tape, State: StateFinished}
	}

	head0 := 0
	head1 := wrap(programLength, size)
	pc := start
	iteration := 0
	skipped := 0
	state := StateTerminated

	if pc < 0 || pc >= size {
		return Result{Tape: tape, State: StateFinished}
	}

	for iteration < maxIterations {
		switch tape[pc] {
		case '<':
			head0 = wrap(head0-1, size)
		case '>':
			head0 = wrap(head0+1, size)
		case '{':
			head1 = wrap(head1-1, size)
		case '}':
			head1 = wrap(head1+1, size)
		case '-':
			tape[head0]--
		case '+':
			tape[head0]++
		case '.':
			tape[head1] = tape[head0]
		case ',':
			tape[head0] = tape[head1]
		case '[':
			if tape[head0] == Zero {
				target, ok := matchForward(tape, pc)
				if !ok {
					state = StateUnmatchedOpen
					return m.finish(tape, state, iteration, skipped)
				}
				pc = target
			}
		case ']':
			if tape[head0] != Zero {
				target, ok := matchBackward(tape, pc)
				if !ok {
					state = StateUnmatchedClose
					return m.finish(tape, state, iteration, skipped)
				}
				pc = target
			}
		default:
			skipped++
		}

		if verbose && m.Trace != nil {
			fmt.Fprintf(m.Trace, "iteration=%d pc=%d head0=%d head1=%d tape=%q\n",
				iteration, pc, head0, head1, tape)
		}

		iteration++
		pc++
		if pc >= size {
			state = StateFinished
			break
		}
	}

	return m.finish(tape, state, iteration, skipped)
}

func (m BFF) finish(tape []byte, state State, iteration, skipped int) Result {
	return Result{Tape: tape, State: state, Iterations: iteration, Skipped: skipped}
}

// matchForward finds the ']' matching the '[' at pc.
func matchForward(tape []byte, pc int) (int, bool) {
	depth := 1
	for i := pc + 1; i < len(tape); i++ {
		switch tape[i] {
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth == 0 {
			return i, true
		}
	}
	return 0, false
}

// matchBackward finds the '[' matching the ']' at pc.
func matchBackward(tape []byte, pc int) (int, bool) {
	depth := 1
	for i := pc - 1; i >= 0; i-- {
		switch tape[i] {
		case ']':
			depth++
		case '[':
			depth--
		}
		if depth == 0 {
			return i, true
		}
	}
	return 0, false
}

func wrap(v, size int) int {
	v %= size
	if v < 0 {
		v += size
	}
	return v
}
