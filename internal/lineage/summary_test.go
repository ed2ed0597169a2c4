package lineage

import (
	"context"
	"reflect"
	"testing"

	"github.com/nvandessel/bfftrace/internal/grid"
)

func TestSummarize(t *testing.T) {
	f, err := NewTracker(branchingSource(t), nil).
		Track(context.Background(), Start{Epoch: 0, Position: root, EndEpoch: 2})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	s := Summarize(f.Records())
	if s.Total != 5 {
		t.Errorf("Total = %d, want 5", s.Total)
	}
	wantEpochs := []EpochCount{{Epoch: 0, Count: 1}, {Epoch: 1, Count: 3}, {Epoch: 2, Count: 1}}
	if !reflect.DeepEqual(s.Epochs, wantEpochs) {
		t.Errorf("Epochs = %+v, want %+v", s.Epochs, wantEpochs)
	}
	wantUnique := []FirstSeen{
		{Program: rep, Epoch: 0, Position: root, Count: 3},
		{Program: rep1, Epoch: 1, Position: grid.Position{X: 6, Y: 5}, Count: 1},
		{Program: rep2, Epoch: 1, Position: grid.Position{X: 5, Y: 7}, Count: 1},
	}
	if !reflect.DeepEqual(s.Unique, wantUnique) {
		t.Errorf("Unique = %+v, want %+v", s.Unique, wantUnique)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || len(s.Epochs) != 0 || len(s.Unique) != 0 {
		t.Errorf("Summarize(nil) = %+v", s)
	}
}

func TestForest_RecordsAndLineage(t *testing.T) {
	f, err := NewTracker(branchingSource(t), nil).
		Track(context.Background(), Start{Epoch: 0, Position: root, EndEpoch: 2})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	recs := f.Records()
	if recs[0].ParentID != -1 || recs[0].Status != StatusExtended {
		t.Errorf("root record = %+v", recs[0])
	}
	for i, r := range recs {
		if r.ID != i {
			t.Errorf("record %d has ID %d", i, r.ID)
		}
	}

	last := f.Active(2)[0]
	chain := f.Lineage(last)
	if len(chain) != 3 || chain[0] != f.Root() || chain[2] != last {
		t.Errorf("Lineage = %v", positions(chain))
	}

	if n, ok := f.Node(last.ID); !ok || n != last {
		t.Errorf("Node(%d) = %v, %v", last.ID, n, ok)
	}
	if _, ok := f.Node(99); ok {
		t.Error("Node(99) reported found")
	}
	if got := f.Epochs(); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Epochs() = %v", got)
	}
}
