// Package lifecycle tracks process-level state shared by the HTTP layer and
// the shutdown path.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State is owned by main and passed to whoever needs it.
type State struct {
	startedAt    time.Time
	shuttingDown atomic.Bool
}

// New returns a State started now.
func New() *State {
	return &State{startedAt: time.Now()}
}

// BeginShutdown marks the process as draining. It reports whether this call
// made the transition. Health returns 503 while draining.
func (s *State) BeginShutdown() bool {
	return s.shuttingDown.CompareAndSwap(false, true)
}

// ShuttingDown reports whether the process is draining and should not
// receive new traffic.
func (s *State) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime is the time since New.
func (s *State) Uptime() time.Duration {
	return time.Since(s.startedAt)
}
