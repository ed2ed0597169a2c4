package lineage

import (
	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/program"
)

// EpochCount is the number of nodes at one epoch.
type EpochCount struct {
	Epoch int `json:"epoch"`
	Count int `json:"count"`
}

// FirstSeen is a distinct program and where it first appeared.
type FirstSeen struct {
	Program  program.Program `json:"program"`
	Epoch    int             `json:"epoch"`
	Position grid.Position   `json:"position"`
	Count    int             `json:"count"`
}

// Summary condenses a run's records.
type Summary struct {
	Epochs []EpochCount `json:"epochs"`
	Total  int          `json:"total"`
	Unique []FirstSeen  `json:"unique"`
}

// Summarize counts records per epoch and collects distinct programs in
// first-seen order. Records are expected in creation order.
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	epochIdx := make(map[int]int)
	uniqueIdx := make(map[program.Program]int)

	for _, r := range records {
		i, ok := epochIdx[r.Epoch]
		if !ok {
			i = len(s.Epochs)
			epochIdx[r.Epoch] = i
			s.Epochs = append(s.Epochs, EpochCount{Epoch: r.Epoch})
		}
		s.Epochs[i].Count++

		j, ok := uniqueIdx[r.Program]
		if !ok {
			j = len(s.Unique)
			uniqueIdx[r.Program] = j
			s.Unique = append(s.Unique, FirstSeen{
				Program:  r.Program,
				Epoch:    r.Epoch,
				Position: r.Position(),
			})
		}
		s.Unique[j].Count++
	}
	return s
}
