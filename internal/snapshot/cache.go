package snapshot

import (
	"context"
	"slices"
	"sync"
)

// DefaultCacheSize is enough for one epoch transition (t and t+1).
const DefaultCacheSize = 2

// Cached wraps a Source and keeps the most recently loaded epochs in memory.
// Failed loads are not cached.
type Cached struct {
	src  Source
	size int

	mu      sync.Mutex
	entries map[int]*Snapshot
	order   []int // least recently used first
	loads   int
}

// NewCached wraps src, keeping at most size epochs. size < 1 uses DefaultCacheSize.
func NewCached(src Source, size int) *Cached {
	if size < 1 {
		size = DefaultCacheSize
	}
	return &Cached{
		src:     src,
		size:    size,
		entries: make(map[int]*Snapshot, size),
	}
}

// Load returns the cached snapshot or loads it from the wrapped source.
func (c *Cached) Load(ctx context.Context, epoch int) (*Snapshot, error) {
	c.mu.Lock()
	if s, ok := c.entries[epoch]; ok {
		c.touch(epoch)
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	s, err := c.src.Load(ctx, epoch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if _, ok := c.entries[epoch]; !ok {
		c.entries[epoch] = s
		c.order = append(c.order, epoch)
		for len(c.order) > c.size {
			evict := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, evict)
		}
	}
	return c.entries[epoch], nil
}

// Loads returns how many times the wrapped source was hit.
func (c *Cached) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *Cached) touch(epoch int) {
	i := slices.Index(c.order, epoch)
	if i < 0 {
		return
	}
	c.order = append(slices.Delete(c.order, i, i+1), epoch)
}
