package snapshot

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/program"
)

// DefaultPattern is the file name the simulator uses for pairing snapshots.
const DefaultPattern = "pairings_epoch_%04d.csv"

// Column names in pairing CSV files.
const (
	ColumnX       = "position_x"
	ColumnY       = "position_y"
	ColumnProgram = "program"
	ColumnOriginX = "combined_x"
	ColumnOriginY = "combined_y"
)

// Parse reads a pairing CSV with a header row. The position and program
// columns are required; the snapshot is linked only when both origin columns
// are present. Programs are normalized.
func Parse(r io.Reader, epoch int) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformed, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{ColumnX, ColumnY, ColumnProgram} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, required)
		}
	}
	_, hasOX := cols[ColumnOriginX]
	_, hasOY := cols[ColumnOriginY]

	snap := New(epoch, hasOX && hasOY)

	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, row, err)
		}

		x, err := intField(rec, cols[ColumnX])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %v", ErrMalformed, row, ColumnX, err)
		}
		y, err := intField(rec, cols[ColumnY])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %v", ErrMalformed, row, ColumnY, err)
		}
		raw, err := field(rec, cols[ColumnProgram])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %v", ErrMalformed, row, ColumnProgram, err)
		}

		cell := Cell{Program: program.Normalize(raw), Origin: grid.Sentinel}
		if snap.Linked {
			ox, err := intField(rec, cols[ColumnOriginX])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d %s: %v", ErrMalformed, row, ColumnOriginX, err)
			}
			oy, err := intField(rec, cols[ColumnOriginY])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d %s: %v", ErrMalformed, row, ColumnOriginY, err)
			}
			cell.Origin = grid.Position{X: ox, Y: oy}
		}

		if err := snap.Set(grid.Position{X: x, Y: y}, cell); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
	}

	return snap, nil
}

func field(rec []string, i int) (string, error) {
	if i >= len(rec) {
		return "", fmt.Errorf("row has %d fields", len(rec))
	}
	return rec[i], nil
}

func intField(rec []string, i int) (int, error) {
	s, err := field(rec, i)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// Write emits s as a pairing CSV that Parse reads back.
func Write(w io.Writer, s *Snapshot) error {
	cw := csv.NewWriter(w)
	header := []string{"epoch", ColumnX, ColumnY, ColumnProgram}
	if s.Linked {
		header = append(header, ColumnOriginX, ColumnOriginY)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	epoch := strconv.Itoa(s.Epoch)
	for _, p := range s.Positions() {
		c, _ := s.Lookup(p)
		rec := []string{epoch, strconv.Itoa(p.X), strconv.Itoa(p.Y), c.Program.String()}
		if s.Linked {
			rec = append(rec, strconv.Itoa(c.Origin.X), strconv.Itoa(c.Origin.Y))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write cell %v: %w", p, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Dir reads one CSV file per epoch from a directory.
type Dir struct {
	Path    string
	Pattern string // fmt pattern with a single integer verb
}

// NewDir creates a Dir source. An empty pattern selects DefaultPattern.
func NewDir(path, pattern string) *Dir {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Dir{Path: path, Pattern: pattern}
}

var (
	paddedVerb  = regexp.MustCompile(`%0\d+d`)
	integerVerb = regexp.MustCompile(`%(0\d+)?d`)
)

// ValidPattern reports whether pattern holds exactly one integer verb and no
// other formatting directive.
func ValidPattern(pattern string) bool {
	return strings.Count(pattern, "%") == 1 && integerVerb.MatchString(pattern)
}

// candidates lists the file names tried for epoch, padded first.
func (d *Dir) candidates(epoch int) []string {
	names := []string{fmt.Sprintf(d.Pattern, epoch)}
	if unpadded := paddedVerb.ReplaceAllString(d.Pattern, "%d"); unpadded != d.Pattern {
		if alt := fmt.Sprintf(unpadded, epoch); alt != names[0] {
			names = append(names, alt)
		}
	}
	return names
}

// Load opens and parses the file for epoch.
func (d *Dir) Load(ctx context.Context, epoch int) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, name := range d.candidates(epoch) {
		path := filepath.Join(d.Path, name)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		snap, err := Parse(f, epoch)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return snap, nil
	}

	return nil, fmt.Errorf("epoch %d in %s: %w", epoch, d.Path, ErrSnapshotNotFound)
}

// Epochs lists the epochs with a snapshot file, ascending.
func (d *Dir) Epochs() ([]int, error) {
	verb := paddedVerb.FindStringIndex(d.Pattern)
	if verb == nil {
		i := strings.Index(d.Pattern, "%d")
		if i < 0 {
			return nil, fmt.Errorf("pattern %q has no integer verb", d.Pattern)
		}
		verb = []int{i, i + 2}
	}
	prefix, suffix := d.Pattern[:verb[0]], d.Pattern[verb[1]:]

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var epochs []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		n, err := strconv.Atoi(digits)
		if err != nil || n < 0 {
			continue
		}
		if !slices.Contains(epochs, n) {
			epochs = append(epochs, n)
		}
	}
	slices.Sort(epochs)
	return epochs, nil
}
