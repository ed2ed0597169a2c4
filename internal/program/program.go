// Package program models the instruction strings held by grid cells.
package program

import "strings"

// Alphabet lists every byte the tape machine treats as an instruction.
const Alphabet = ",.[]{}<>+-"

// Blank replaces any byte outside Alphabet during normalization.
const Blank = ' '

// Program is a normalized instruction string. The zero value is the empty program.
type Program string

// Normalize maps every byte outside Alphabet to Blank.
// The result has the same length as the input.
func Normalize(raw string) Program {
	if isNormalized(raw) {
		return Program(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if IsInstruction(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte(Blank)
		}
	}
	return Program(b.String())
}

// IsInstruction reports whether c belongs to Alphabet.
func IsInstruction(c byte) bool {
	return strings.IndexByte(Alphabet, c) >= 0
}

func isNormalized(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != Blank && !IsInstruction(s[i]) {
			return false
		}
	}
	return true
}

// Len returns the program length in bytes.
func (p Program) Len() int { return len(p) }

// Empty reports whether the program has no symbols.
func (p Program) Empty() bool { return len(p) == 0 }

// Bytes returns a fresh copy of the program bytes.
func (p Program) Bytes() []byte { return []byte(p) }

// String implements fmt.Stringer.
func (p Program) String() string { return string(p) }

// Instructions counts the non-blank symbols.
func (p Program) Instructions() int {
	n := 0
	for i := 0; i < len(p); i++ {
		if p[i] != Blank {
			n++
		}
	}
	return n
}
