package service

import (
	"sync"
)

// stampedeTracker counts in-flight misses per cache key. A count above one
// means several callers are fetching upstream for the same key at once.
type stampedeTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		active: make(map[string]int),
	}
}

// begin records a miss for key and returns the concurrent count including it.
// Callers defer done(key).
func (st *stampedeTracker) begin(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[key]++
	return st.active[key]
}

// done marks one miss for key as resolved.
func (st *stampedeTracker) done(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if n, ok := st.active[key]; ok && n > 0 {
		st.active[key]--
		if st.active[key] == 0 {
			delete(st.active, key)
		}
	}
}

func (st *stampedeTracker) inFlight() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.active)
}
