package utils

import (
	"sort"
	"sync"
)

// HutTracker is a concurrency-safe set of hut ids
type HutTracker struct {
	mu   sync.Mutex
	seen map[int]struct{}
}

// NewHutTracker creates a tracker seeded with ids
func NewHutTracker(ids ...int) *HutTracker {
	t := &HutTracker{seen: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		t.seen[id] = struct{}{}
	}
	return t
}

// Add returns true if the id is new, false if already tracked
func (t *HutTracker) Add(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.seen[id]; exists {
		return false
	}
	t.seen[id] = struct{}{}
	return true
}

// Has reports whether id is tracked
func (t *HutTracker) Has(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return ok
}

// Count returns the number of tracked ids
func (t *HutTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// IDs returns the tracked ids in ascending order
func (t *HutTracker) IDs() []int {
	t.mu.Lock()
	ids := make([]int, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Ints(ids)
	return ids
}
