package channel

import (
	"sync"
	"time"
)

// Entry is one recorded channel event.
type Entry struct {
	At   time.Time
	Text string
}

// eventRing is a fixed-size ring of recent channel events. It backs the
// connectivity status surface without letting a flapping connection grow
// memory without bound.
type eventRing struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int // write position
	full    bool
}

func newEventRing(size int) *eventRing {
	if size <= 0 {
		size = 32
	}
	return &eventRing{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry, overwriting the oldest when full.
func (r *eventRing) Record(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = Entry{At: time.Now(), Text: text}
	r.head = (r.head + 1) % r.size
	if r.head == 0 {
		r.full = true
	}
}

// Snapshot returns the recorded entries oldest first.
func (r *eventRing) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Entry, r.head)
		copy(out, r.entries[:r.head])
		return out
	}

	out := make([]Entry, 0, r.size)
	out = append(out, r.entries[r.head:]...)
	out = append(out, r.entries[:r.head]...)
	return out
}

// Len returns the number of recorded entries.
func (r *eventRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.size
	}
	return r.head
}
