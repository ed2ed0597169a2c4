// Package backup archives saved tracking runs to compressed files and
// restores them into a store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/store"
)

// RunStore is the subset of store.Store that archives read and write.
type RunStore interface {
	SaveRun(ctx context.Context, run store.Run, records []lineage.Record) (string, error)
	ListRuns(ctx context.Context) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (store.Run, error)
	RunRecords(ctx context.Context, id string) ([]lineage.Record, error)
	DeleteRun(ctx context.Context, id string) error
}

// Archive is the payload of a backup file.
type Archive struct {
	Version   int           `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	Runs      []ArchivedRun `json:"runs"`
}

// ArchivedRun is one run with its lineage nodes.
type ArchivedRun struct {
	store.Run
	Records []lineage.Record `json:"records"`
}

// RecordCount returns the number of lineage nodes across all runs.
func (a *Archive) RecordCount() int {
	n := 0
	for _, r := range a.Runs {
		n += len(r.Records)
	}
	return n
}

// Backup writes every saved run in st to outputPath.
func Backup(ctx context.Context, st RunStore, outputPath string) (*Archive, error) {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	archive := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Runs:      make([]ArchivedRun, 0, len(runs)),
	}
	for _, run := range runs {
		records, err := st.RunRecords(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read run %s: %w", run.ID, err)
		}
		archive.Runs = append(archive.Runs, ArchivedRun{Run: run, Records: records})
	}

	if err := Write(outputPath, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// RestoreMode controls how restore handles runs already in the store.
type RestoreMode string

const (
	// RestoreMerge skips runs whose ID already exists (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace overwrites runs whose ID already exists.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode maps a flag value to a RestoreMode. Empty means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	}
	return "", fmt.Errorf("invalid restore mode %q (valid: merge, replace)", s)
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsReplaced int `json:"runs_replaced"`
	Records      int `json:"records"`
}

// Restore imports the runs in inputPath into st. Run IDs and creation
// times are preserved.
func Restore(ctx context.Context, st RunStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	archive, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, ar := range archive.Runs {
		_, err := st.GetRun(ctx, ar.ID)
		switch {
		case err == nil && mode == RestoreMerge:
			result.RunsSkipped++
			continue
		case err == nil:
			if err := st.DeleteRun(ctx, ar.ID); err != nil {
				return result, fmt.Errorf("failed to replace run %s: %w", ar.ID, err)
			}
			result.RunsReplaced++
		case !errors.Is(err, store.ErrRunNotFound):
			return result, fmt.Errorf("failed to check existing run %s: %w", ar.ID, err)
		}

		if _, err := st.SaveRun(ctx, ar.Run, ar.Records); err != nil {
			return result, fmt.Errorf("failed to restore run %s: %w", ar.ID, err)
		}
		result.RunsRestored++
		result.Records += len(ar.Records)
	}
	return result, nil
}

// GeneratePath creates a timestamped archive filename in dir.
func GeneratePath(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, filePrefix+ts+fileSuffix)
}
