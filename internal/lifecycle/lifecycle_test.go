package lifecycle

import "testing"

// TestState_BeginShutdown verifies the flag flips once and stays set.
func TestState_BeginShutdown(t *testing.T) {
	s := New()
	if s.ShuttingDown() {
		t.Fatal("ShuttingDown() = true on new state")
	}
	if !s.BeginShutdown() {
		t.Error("BeginShutdown() first = false, want true")
	}
	if s.BeginShutdown() {
		t.Error("BeginShutdown() second = true, want false")
	}
	if !s.ShuttingDown() {
		t.Error("ShuttingDown() = false after BeginShutdown")
	}
	if s.Uptime() < 0 {
		t.Errorf("Uptime() = %v, want non-negative", s.Uptime())
	}
}
