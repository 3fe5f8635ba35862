// Package traffic keeps a sliding window of request outcomes. The health
// check reads it to decide whether the service is degraded.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how long outcomes are kept.
const DefaultRetention = 5 * time.Minute

// Counts are outcomes observed within a window.
type Counts struct {
	Success int
	Errors  int
	Denied  int
}

// Total is every outcome, denials included.
func (c Counts) Total() int { return c.Success + c.Errors + c.Denied }

// ErrorPercent is errors over successes plus errors; denials are excluded.
// Zero when nothing was served.
func (c Counts) ErrorPercent() float64 {
	served := c.Success + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

// Tracker records outcome timestamps. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time
	success   []time.Time
	errors    []time.Time
	denied    []time.Time
}

// NewTracker keeps outcomes for retention (DefaultRetention if zero).
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// RecordSuccess records a request served without a server-side failure.
func (t *Tracker) RecordSuccess() { t.record(&t.success) }

// RecordError records a request that failed (no provider available, timeout).
func (t *Tracker) RecordError() { t.record(&t.errors) }

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() { t.record(&t.denied) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Window returns outcome counts from the last window.
func (t *Tracker) Window(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return Counts{
		Success: countSince(t.success, cutoff),
		Errors:  countSince(t.errors, cutoff),
		Denied:  countSince(t.denied, cutoff),
	}
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.success, t.errors, t.denied = nil, nil, nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Slices are append-only
// in time order, so the stale prefix is contiguous.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.success)
	prune(&t.errors)
	prune(&t.denied)
}
