package backup

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecords() []lineage.Record {
	return []lineage.Record{
		{ID: 0, ParentID: -1, Epoch: 0, X: 2, Y: 2, Program: "[.>}]", Status: lineage.StatusExtended},
		{ID: 1, ParentID: 0, Epoch: 1, X: 2, Y: 2, Program: "[.>}]+", Status: lineage.StatusActive},
	}
}

func addTestRuns(t *testing.T, s store.Store) []string {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for i, src := range []string{"/data/a", "/data/b"} {
		id, err := s.SaveRun(ctx, store.Run{
			Source:        src,
			StartEpoch:    0,
			EndEpoch:      1,
			Root:          grid.Position{X: 2, Y: 2},
			Mode:          "auto",
			Threshold:     0.9,
			MaxIterations: 1 << 13,
			CreatedAt:     time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		}, testRecords())
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	ids := addTestRuns(t, src)

	path := filepath.Join(t.TempDir(), "runs.json.gz")
	archive, err := Backup(ctx, src, path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if len(archive.Runs) != 2 {
		t.Fatalf("archived %d runs, want 2", len(archive.Runs))
	}
	if got := archive.RecordCount(); got != 4 {
		t.Errorf("RecordCount() = %d, want 4", got)
	}

	dst := createTestStore(t)
	result, err := Restore(ctx, dst, path, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RunsRestored != 2 || result.RunsSkipped != 0 || result.Records != 4 {
		t.Errorf("Restore() = %+v, want 2 restored, 0 skipped, 4 records", result)
	}

	for _, id := range ids {
		want, err := src.GetRun(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		got, err := dst.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun(%s) after restore: %v", id, err)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) || got.Source != want.Source || got.Nodes != want.Nodes {
			t.Errorf("restored run = %+v, want %+v", got, want)
		}
		records, err := dst.RunRecords(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(records, testRecords()) {
			t.Errorf("restored records = %+v, want %+v", records, testRecords())
		}
	}
}

func TestRestore_Modes(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	addTestRuns(t, src)
	path := filepath.Join(t.TempDir(), "runs.json.gz")
	if _, err := Backup(ctx, src, path); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	t.Run("merge skips existing", func(t *testing.T) {
		result, err := Restore(ctx, src, path, RestoreMerge)
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if result.RunsRestored != 0 || result.RunsSkipped != 2 {
			t.Errorf("Restore() = %+v, want 0 restored, 2 skipped", result)
		}
	})

	t.Run("replace overwrites existing", func(t *testing.T) {
		result, err := Restore(ctx, src, path, RestoreReplace)
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if result.RunsRestored != 2 || result.RunsReplaced != 2 {
			t.Errorf("Restore() = %+v, want 2 restored, 2 replaced", result)
		}
		runs, err := src.ListRuns(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 2 {
			t.Errorf("ListRuns() after replace = %d runs, want 2", len(runs))
		}
	})
}

func TestBackup_EmptyStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.json.gz")

	archive, err := Backup(ctx, createTestStore(t), path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if len(archive.Runs) != 0 {
		t.Errorf("archived %d runs, want 0", len(archive.Runs))
	}

	result, err := Restore(ctx, createTestStore(t), path, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RunsRestored != 0 {
		t.Errorf("RunsRestored = %d, want 0", result.RunsRestored)
	}
}

func TestBackup_FilePermissions(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	addTestRuns(t, src)

	backupDir := filepath.Join(t.TempDir(), "newdir", "backups")
	path := filepath.Join(backupDir, "runs.json.gz")
	if _, err := Backup(ctx, src, path); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	dirInfo, err := os.Stat(backupDir)
	if err != nil {
		t.Fatalf("Stat(backupDir) error = %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0700 {
		t.Errorf("backup dir permissions = %o, want 0700", perm)
	}
	fileInfo, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat(path) error = %v", err)
	}
	if perm := fileInfo.Mode().Perm(); perm != 0600 {
		t.Errorf("backup file permissions = %o, want 0600", perm)
	}
}

func TestRestore_MissingFile(t *testing.T) {
	_, err := Restore(context.Background(), createTestStore(t), filepath.Join(t.TempDir(), "nope.json.gz"), RestoreMerge)
	if err == nil || !strings.Contains(err.Error(), "opening file") {
		t.Errorf("Restore() error = %v, want opening file error", err)
	}
}

func TestParseRestoreMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RestoreMode
		wantErr bool
	}{
		{"", RestoreMerge, false},
		{"merge", RestoreMerge, false},
		{"replace", RestoreReplace, false},
		{"clobber", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRestoreMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRestoreMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRestoreMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGeneratePath(t *testing.T) {
	dir := t.TempDir()
	path := GeneratePath(dir)

	if filepath.Dir(path) != dir {
		t.Errorf("GeneratePath() dir = %s, want %s", filepath.Dir(path), dir)
	}
	if !isArchiveName(filepath.Base(path)) {
		t.Errorf("GeneratePath() = %s, not recognised as an archive name", path)
	}
}
