package program

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Program
	}{
		{"empty", "", ""},
		{"all instructions", ",.[]{}<>+-", ",.[]{}<>+-"},
		{"letters become blanks", "a+b-", " + -"},
		{"digits become blanks", "0[1]", " [ ]"},
		{"high bytes become blanks", "\xff.\x00", " . "},
		{"already blank", "  +", "  +"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got.Len() != len(tt.in) {
				t.Errorf("Normalize(%q) changed length: %d -> %d", tt.in, len(tt.in), got.Len())
			}
		})
	}
}

func TestProgram_Instructions(t *testing.T) {
	if got := Program(" +  - ").Instructions(); got != 2 {
		t.Errorf("Instructions() = %d, want 2", got)
	}
	if !Program("").Empty() {
		t.Error("expected empty program to report Empty()")
	}
}

func TestProgram_BytesIsCopy(t *testing.T) {
	p := Program("+-")
	b := p.Bytes()
	b[0] = '.'
	if p != "+-" {
		t.Errorf("mutating Bytes() changed program to %q", p)
	}
}
