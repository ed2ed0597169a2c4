package snapshot

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Source.
type Memory struct {
	mu    sync.RWMutex
	snaps map[int]*Snapshot
}

// NewMemory creates a Memory source holding snaps.
func NewMemory(snaps ...*Snapshot) *Memory {
	m := &Memory{snaps: make(map[int]*Snapshot, len(snaps))}
	for _, s := range snaps {
		m.snaps[s.Epoch] = s
	}
	return m
}

// Add stores s, replacing any snapshot for the same epoch.
func (m *Memory) Add(s *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.Epoch] = s
}

// Load returns the snapshot for epoch.
func (m *Memory) Load(ctx context.Context, epoch int) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[epoch]
	if !ok {
		return nil, fmt.Errorf("epoch %d: %w", epoch, ErrSnapshotNotFound)
	}
	return s, nil
}
