// Package alert holds registered weather alerts and evaluates them on a
// schedule against fresh aggregator output.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// Registry stores alerts in insertion order. Safe for concurrent use; every
// read returns copies.
type Registry struct {
	mu     sync.RWMutex
	alerts map[string]*models.WeatherAlert
	order  []string
	now    func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		alerts: make(map[string]*models.WeatherAlert),
		now:    time.Now,
	}
}

// Register stores def under a fresh id and returns the stored record.
func (r *Registry) Register(def models.AlertDefinition) models.WeatherAlert {
	a := &models.WeatherAlert{
		ID:              uuid.NewString(),
		AlertDefinition: def,
		CreatedAt:       r.now().UTC(),
	}

	r.mu.Lock()
	r.alerts[a.ID] = a
	r.order = append(r.order, a.ID)
	n := len(r.alerts)
	r.mu.Unlock()

	observability.AlertsRegistered.Set(float64(n))
	return cloneAlert(a)
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	if _, ok := r.alerts[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.alerts, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	n := len(r.alerts)
	r.mu.Unlock()

	observability.AlertsRegistered.Set(float64(n))
	return true
}

// List returns all alerts in insertion order.
func (r *Registry) List() []models.WeatherAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.WeatherAlert, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneAlert(r.alerts[id]))
	}
	return out
}

// Get returns the alert with id.
func (r *Registry) Get(id string) (models.WeatherAlert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return models.WeatherAlert{}, false
	}
	return cloneAlert(a), true
}

// MarkTriggered stamps LastTriggeredAt. It is a no-op, returning false, when
// the alert was removed in the meantime.
func (r *Registry) MarkTriggered(id string, at time.Time) (models.WeatherAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return models.WeatherAlert{}, false
	}
	t := at.UTC()
	a.LastTriggeredAt = &t
	return cloneAlert(a), true
}

// Len returns the number of registered alerts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}

func cloneAlert(a *models.WeatherAlert) models.WeatherAlert {
	out := *a
	if a.LastTriggeredAt != nil {
		t := *a.LastTriggeredAt
		out.LastTriggeredAt = &t
	}
	return out
}
