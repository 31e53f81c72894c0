package memory

import (
	"sync"

	"github.com/ravenwood/storyteller/pkg/types"
)

// ring is a bounded FIFO of memory entries. One ring exists per room; its
// mutex guards append and snapshot.
type ring struct {
	mu       sync.Mutex
	capacity int
	entries  []types.MemoryEntry
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{
		capacity: capacity,
		entries:  make([]types.MemoryEntry, 0, capacity),
	}
}

// append adds an entry, evicting the oldest when the ring is full. It
// returns the evicted entry and whether an eviction happened.
func (r *ring) append(entry types.MemoryEntry) (types.MemoryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, entry)
		return types.MemoryEntry{}, false
	}

	evicted := r.entries[0]
	copy(r.entries, r.entries[1:])
	r.entries[len(r.entries)-1] = entry
	return evicted, true
}

// snapshot copies the ring contents oldest-first.
func (r *ring) snapshot() []types.MemoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.MemoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
