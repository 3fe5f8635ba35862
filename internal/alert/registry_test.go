package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

func consoleDef(name string) models.AlertDefinition {
	return models.AlertDefinition{
		Name:      name,
		Location:  models.CityQuery("Seattle", "US"),
		Condition: models.AlertCondition{Type: models.ConditionRain},
		Channel:   models.ChannelConsole,
	}
}

// TestRegistry_RegisterListRemove verifies ids are fresh, listing preserves
// insertion order, and removal reports presence.
func TestRegistry_RegisterListRemove(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	a := r.Register(consoleDef("a"))
	b := r.Register(consoleDef("b"))
	c := r.Register(consoleDef("c"))

	if a.ID == "" || a.ID == b.ID || b.ID == c.ID {
		t.Fatalf("Register() ids = %q,%q,%q, want distinct non-empty", a.ID, b.ID, c.ID)
	}
	if !a.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, fixed)
	}
	if a.LastTriggeredAt != nil {
		t.Errorf("LastTriggeredAt = %v, want nil", a.LastTriggeredAt)
	}

	if !r.Remove(b.ID) {
		t.Error("Remove(b) = false, want true")
	}
	if r.Remove(b.ID) {
		t.Error("Remove(b) second = true, want false")
	}
	if r.Remove("no-such-id") {
		t.Error("Remove(unknown) = true, want false")
	}

	got := r.List()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("List() = %+v, want [a c]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

// TestRegistry_ReturnsCopies verifies callers cannot mutate stored records.
func TestRegistry_ReturnsCopies(t *testing.T) {
	r := NewRegistry()
	a := r.Register(consoleDef("a"))

	list := r.List()
	list[0].Name = "mutated"
	if got, _ := r.Get(a.ID); got.Name != "a" {
		t.Errorf("Get().Name = %q, want a", got.Name)
	}

	stamped, ok := r.MarkTriggered(a.ID, time.Now())
	if !ok {
		t.Fatal("MarkTriggered() ok = false, want true")
	}
	*stamped.LastTriggeredAt = time.Time{}
	if got, _ := r.Get(a.ID); got.LastTriggeredAt == nil || got.LastTriggeredAt.IsZero() {
		t.Errorf("stored LastTriggeredAt = %v, want unchanged", got.LastTriggeredAt)
	}
}

// TestRegistry_MarkTriggered_Removed verifies stamping a removed alert is a no-op.
func TestRegistry_MarkTriggered_Removed(t *testing.T) {
	r := NewRegistry()
	a := r.Register(consoleDef("a"))
	r.Remove(a.ID)

	if _, ok := r.MarkTriggered(a.ID, time.Now()); ok {
		t.Error("MarkTriggered() ok = true, want false for removed alert")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := r.Register(consoleDef("x"))
			_ = r.List()
			r.MarkTriggered(a.ID, time.Now())
			r.Remove(a.ID)
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}
