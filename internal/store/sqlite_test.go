package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/snapshot"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []lineage.Record {
	return []lineage.Record{
		{ID: 0, ParentID: -1, Epoch: 3, X: 5, Y: 5, Program: "[.>}]", Status: lineage.StatusExtended},
		{ID: 1, ParentID: 0, Epoch: 4, X: 5, Y: 5, Program: "[.>}]", Status: lineage.StatusActive},
		{ID: 2, ParentID: 0, Epoch: 4, X: 6, Y: 5, Program: "[.>}]+", Status: lineage.StatusActive},
	}
}

func TestNewSQLiteStore(t *testing.T) {
	root := t.TempDir()

	s, err := NewSQLiteStore(root)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(root, DirName)); os.IsNotExist(err) {
		t.Errorf("%s directory was not created", DirName)
	}
	if want := filepath.Join(root, DirName, DBFile); s.Path() != want {
		t.Errorf("Path() = %s, want %s", s.Path(), want)
	}
	if _, err := os.Stat(s.Path()); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteStore(root)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.ImportSnapshot(ctx, snapshot.New(1, false), "mem"); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	epochs, err := s.Epochs(ctx)
	if err != nil || !reflect.DeepEqual(epochs, []int{1}) {
		t.Errorf("Epochs() after reopen = %v, %v", epochs, err)
	}
}

func TestSQLiteStore_SnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := snapshot.New(7, true)
	cells := map[grid.Position]snapshot.Cell{
		{X: 0, Y: 0}: {Program: "[.>}]", Origin: grid.Sentinel},
		{X: 3, Y: 1}: {Program: "+-  ", Origin: grid.Position{X: 2, Y: 1}},
		{X: 1, Y: 2}: {Program: "", Origin: grid.Position{X: 1, Y: 1}},
	}
	for p, c := range cells {
		if err := snap.Set(p, c); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.ImportSnapshot(ctx, snap, "test"); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}

	got, err := s.Load(ctx, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Linked || got.Epoch != 7 || got.Len() != 3 {
		t.Errorf("loaded snapshot: linked=%v epoch=%d len=%d", got.Linked, got.Epoch, got.Len())
	}
	if got.Bounds() != snap.Bounds() {
		t.Errorf("Bounds = %+v, want %+v", got.Bounds(), snap.Bounds())
	}
	for p, want := range cells {
		c, ok := got.Lookup(p)
		if !ok || c != want {
			t.Errorf("cell %v = %+v, %v; want %+v", p, c, ok, want)
		}
	}
}

func TestSQLiteStore_ImportReplacesEpoch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := snapshot.New(2, false)
	_ = first.Set(grid.Position{X: 0, Y: 0}, snapshot.Cell{Program: "+"})
	_ = first.Set(grid.Position{X: 1, Y: 0}, snapshot.Cell{Program: "-"})
	second := snapshot.New(2, false)
	_ = second.Set(grid.Position{X: 4, Y: 4}, snapshot.Cell{Program: "."})

	if err := s.ImportSnapshot(ctx, first, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.ImportSnapshot(ctx, second, "b"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 1 || got.ProgramAt(grid.Position{X: 4, Y: 4}) != "." {
		t.Errorf("re-import did not replace cells: %v", got.Positions())
	}
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), 99)
	if !errors.Is(err, snapshot.ErrSnapshotNotFound) {
		t.Errorf("Load(99) error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSQLiteStore_Epochs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, e := range []int{9, 2, 5} {
		if err := s.ImportSnapshot(ctx, snapshot.New(e, false), ""); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Epochs(ctx)
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if !reflect.DeepEqual(got, []int{2, 5, 9}) {
		t.Errorf("Epochs() = %v, want [2 5 9]", got)
	}
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		Source:        "/data/pairings",
		StartEpoch:    3,
		EndEpoch:      4,
		Root:          grid.Position{X: 5, Y: 5},
		Mode:          "linked",
		Threshold:     0.9,
		MaxIterations: 1024,
		CreatedAt:     created,
	}
	records := sampleRecords()

	id, err := s.SaveRun(ctx, run, records)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if id == "" {
		t.Fatal("SaveRun returned empty ID")
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	run.ID = id
	run.Nodes = len(records)
	if !reflect.DeepEqual(got, run) {
		t.Errorf("GetRun = %+v, want %+v", got, run)
	}

	gotRecords, err := s.RunRecords(ctx, id)
	if err != nil {
		t.Fatalf("RunRecords: %v", err)
	}
	if !reflect.DeepEqual(gotRecords, records) {
		t.Errorf("RunRecords = %+v, want %+v", gotRecords, records)
	}
}

func TestSQLiteStore_ListAndDeleteRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := Run{Source: "a", Mode: "auto", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := Run{Source: "b", Mode: "auto", CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	oldID, err := s.SaveRun(ctx, older, sampleRecords())
	if err != nil {
		t.Fatal(err)
	}
	newID, err := s.SaveRun(ctx, newer, sampleRecords()[:1])
	if err != nil {
		t.Fatal(err)
	}
	if oldID == newID {
		t.Fatalf("distinct runs share ID %s", oldID)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != newID || runs[1].ID != oldID {
		t.Fatalf("ListRuns order = %v", runs)
	}
	if runs[0].Nodes != 1 || runs[1].Nodes != 3 {
		t.Errorf("node counts = %d, %d", runs[0].Nodes, runs[1].Nodes)
	}

	if err := s.DeleteRun(ctx, oldID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, oldID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun after delete error = %v", err)
	}
	if _, err := s.RunRecords(ctx, oldID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("RunRecords after delete error = %v", err)
	}
	var orphans int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lineage_nodes WHERE run_id = ?`, oldID).Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d nodes left after DeleteRun", orphans)
	}
	if err := s.DeleteRun(ctx, oldID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun error = %v", err)
	}
}

func TestSQLiteStore_TrackFromStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prog := snapshot.Cell{Program: "[.>}]", Origin: grid.Sentinel}
	for e := 0; e <= 2; e++ {
		snap := snapshot.New(e, false)
		_ = snap.Set(grid.Position{X: 2, Y: 2}, prog)
		if err := s.ImportSnapshot(ctx, snap, "mem"); err != nil {
			t.Fatal(err)
		}
	}

	var src snapshot.Source = s
	f, err := lineage.NewTracker(src, nil).Track(ctx, lineage.Start{Epoch: 0, Position: grid.Position{X: 2, Y: 2}, EndEpoch: 2})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.Len())
	}
}

var _ Store = (*SQLiteStore)(nil)
