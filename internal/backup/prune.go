package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// defaultNewest is how many archives survive when neither limit is set.
const defaultNewest = 10

// ArchiveFile describes one run archive on disk.
type ArchiveFile struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Runs      int       `json:"runs"`
	Records   int       `json:"records"`
}

// Pruning decides which run archives outlive a new backup. An archive
// survives if it is one of the Newest most recent or younger than Within.
// The zero value keeps the ten most recent.
type Pruning struct {
	Newest int
	Within time.Duration
}

// NewPruning builds a Pruning from the backup settings. within accepts
// anything ParseAge does; empty means no age limit.
func NewPruning(newest int, within string) (Pruning, error) {
	p := Pruning{Newest: newest}
	if within != "" {
		d, err := ParseAge(within)
		if err != nil {
			return Pruning{}, err
		}
		p.Within = d
	}
	return p, nil
}

// Survivors returns the archives p keeps, in input order. archives must be
// sorted newest first, as ListArchives returns them.
func (p Pruning) Survivors(archives []ArchiveFile, now time.Time) []ArchiveFile {
	newest := p.Newest
	if newest <= 0 && p.Within <= 0 {
		newest = defaultNewest
	}

	var keep []ArchiveFile
	for i, a := range archives {
		if i < newest || (p.Within > 0 && now.Sub(a.CreatedAt) < p.Within) {
			keep = append(keep, a)
		}
	}
	return keep
}

// ListArchives returns the run archives in dir, newest first. Run and node
// counts come from each header and stay zero when it cannot be read.
// A missing dir has no archives.
func ListArchives(dir string) ([]ArchiveFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var archives []ArchiveFile
	for _, e := range entries {
		if e.IsDir() || !isArchiveName(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}

		a := ArchiveFile{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(a.Path); err == nil {
			a.Runs = h.RunCount
			a.Records = h.RecordCount
		}
		archives = append(archives, a)
	}

	// Names embed a sortable timestamp.
	sort.Slice(archives, func(i, j int) bool {
		return filepath.Base(archives[i].Path) > filepath.Base(archives[j].Path)
	})
	return archives, nil
}

// Prune removes the archives in dir that p does not keep and returns
// their paths. Other files in dir are never touched.
func Prune(dir string, p Pruning, now time.Time) (removed []string, err error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, a := range p.Survivors(archives, now) {
		keep[a.Path] = true
	}

	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return removed, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		removed = append(removed, a.Path)
	}
	return removed, nil
}

// ParseAge parses an archive age limit: any time.ParseDuration string, or
// a whole number of days ("30d") or weeks ("2w").
func ParseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty age")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	num, unit := s[:len(s)-1], s[len(s)-1]
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	switch unit {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid age %q: unit must be d, w or a Go duration", s)
}

func isArchiveName(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}
