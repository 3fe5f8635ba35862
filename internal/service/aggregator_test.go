package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/cache"
	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/provider"
)

// mockProvider implements provider.Provider and counts calls per capability.
type mockProvider struct {
	name string
	err  error

	mu            sync.Mutex
	currentCalls  int
	forecastCalls int
	lastUnits     models.Units
	lastDays      int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchCurrent(ctx context.Context, q models.LocationQuery, u models.Units) (models.NormalizedCurrent, error) {
	m.mu.Lock()
	m.currentCalls++
	m.lastUnits = u
	m.mu.Unlock()
	if m.err != nil {
		return models.NormalizedCurrent{}, m.err
	}
	return models.NormalizedCurrent{Provider: m.name, TemperatureC: 20, TemperatureF: 68}, nil
}

func (m *mockProvider) FetchForecast(ctx context.Context, q models.LocationQuery, u models.Units, days int) (models.Forecast, error) {
	m.mu.Lock()
	m.forecastCalls++
	m.lastDays = days
	m.mu.Unlock()
	if m.err != nil {
		return models.Forecast{}, m.err
	}
	out := models.Forecast{Provider: m.name}
	for i := 0; i < days; i++ {
		out.Days = append(out.Days, models.ForecastDay{Date: time.Date(2024, 5, 1+i, 0, 0, 0, 0, time.UTC).Format(models.DateLayout)})
	}
	return out, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCalls + m.forecastCalls
}

// mockHistoricalProvider adds the optional historical capability.
type mockHistoricalProvider struct {
	mockProvider
	historicalCalls int
}

func (m *mockHistoricalProvider) FetchHistorical(ctx context.Context, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, error) {
	m.mu.Lock()
	m.historicalCalls++
	m.mu.Unlock()
	if m.err != nil {
		return models.NormalizedHistorical{}, m.err
	}
	h := models.NormalizedHistorical{Date: date.UTC().Format(models.DateLayout)}
	h.Provider = m.name
	return h, nil
}

// errCache fails every operation.
type errCache[V any] struct{}

func (errCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	return zero, false, errors.New("cache down")
}

func (errCache[V]) Set(ctx context.Context, key string, value V) error {
	return errors.New("cache down")
}

func newStores() cache.Stores {
	s := cache.Settings{TTL: time.Minute, MaxEntries: 100}
	return cache.NewLRUStores(cache.StoresConfig{Current: s, Forecast: s, Historical: s})
}

var seattle = models.CityQuery("Seattle", "US")

// TestAggregator_GetCurrent_CachesResult verifies a repeated query within the
// TTL is served from cache with a single upstream call.
func TestAggregator_GetCurrent_CachesResult(t *testing.T) {
	p := &mockProvider{name: "primary"}
	agg := NewAggregator([]provider.Provider{p}, newStores(), nil)
	ctx := context.Background()

	first, err := agg.GetCurrent(ctx, seattle, models.UnitsMetric)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	second, attempts, err := agg.current(ctx, models.CityQuery(" seattle ", "us"), models.UnitsMetric)
	if err != nil {
		t.Fatalf("GetCurrent() second error = %v", err)
	}

	if first != second {
		t.Errorf("GetCurrent() second = %+v, want %+v", second, first)
	}
	if len(attempts) != 0 {
		t.Errorf("cache hit attempts = %v, want none", attempts)
	}
	if n := p.calls(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

// TestAggregator_Fallback verifies providers are tried in order and the first
// success is returned.
func TestAggregator_Fallback(t *testing.T) {
	primary := &mockProvider{name: "primary", err: provider.ErrTransport}
	secondary := &mockProvider{name: "secondary"}
	tertiary := &mockProvider{name: "tertiary"}
	agg := NewAggregator([]provider.Provider{primary, secondary, tertiary}, newStores(), nil)

	got, attempts, err := agg.current(context.Background(), seattle, models.UnitsMetric)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if got.Provider != "secondary" {
		t.Errorf("Provider = %q, want secondary", got.Provider)
	}
	if len(attempts) != 2 {
		t.Fatalf("len(attempts) = %d, want 2", len(attempts))
	}
	if attempts[0].Provider != "primary" || !errors.Is(attempts[0].Err, provider.ErrTransport) {
		t.Errorf("attempts[0] = %+v, want primary with transport error", attempts[0])
	}
	if attempts[1].Provider != "secondary" || attempts[1].Err != nil {
		t.Errorf("attempts[1] = %+v, want secondary success", attempts[1])
	}
	if tertiary.calls() != 0 {
		t.Errorf("tertiary calls = %d, want 0", tertiary.calls())
	}
}

// TestAggregator_NoProviders verifies an empty priority list fails with
// reason unconfigured and makes no calls.
func TestAggregator_NoProviders(t *testing.T) {
	agg := NewAggregator(nil, newStores(), nil)

	_, attempts, err := agg.forecast(context.Background(), seattle, models.UnitsMetric, 3)
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("GetForecast() error = %v, want ErrNoProviderAvailable", err)
	}
	var npe *NoProviderError
	if !errors.As(err, &npe) {
		t.Fatalf("GetForecast() error type = %T, want *NoProviderError", err)
	}
	if npe.Reason != ReasonUnconfigured || npe.Kind != KindForecast {
		t.Errorf("NoProviderError = %+v, want forecast/unconfigured", npe)
	}
	if len(attempts) != 0 {
		t.Errorf("attempts = %v, want none", attempts)
	}
}

// TestAggregator_AllFail verifies every provider is tried exactly once and the
// failure is not cached.
func TestAggregator_AllFail(t *testing.T) {
	a := &mockProvider{name: "a", err: provider.ErrUpstreamFormat}
	b := &mockProvider{name: "b", err: provider.ErrRateLimited}
	agg := NewAggregator([]provider.Provider{a, b}, newStores(), nil)
	ctx := context.Background()

	_, attempts, err := agg.current(ctx, seattle, models.UnitsMetric)
	var npe *NoProviderError
	if !errors.As(err, &npe) || npe.Reason != ReasonAllFailed {
		t.Fatalf("GetCurrent() error = %v, want all_failed NoProviderError", err)
	}
	if len(attempts) != 2 || attempts[0].Provider != "a" || attempts[1].Provider != "b" {
		t.Errorf("attempts = %+v, want [a b]", attempts)
	}
	for _, at := range attempts {
		if at.Err == nil {
			t.Errorf("attempt %s Err = nil, want failure", at.Provider)
		}
	}

	// A later success must not be masked by the earlier failure.
	b.mu.Lock()
	b.err = nil
	b.mu.Unlock()
	got, err := agg.GetCurrent(ctx, seattle, models.UnitsMetric)
	if err != nil {
		t.Fatalf("GetCurrent() after recovery error = %v", err)
	}
	if got.Provider != "b" {
		t.Errorf("Provider = %q, want b", got.Provider)
	}
	if a.calls() != 2 || b.calls() != 2 {
		t.Errorf("calls a=%d b=%d, want 2 each", a.calls(), b.calls())
	}
}

// TestAggregator_GetHistorical_SkipsUnsupported verifies a provider without
// the historical capability is treated as an ordinary failure.
func TestAggregator_GetHistorical_SkipsUnsupported(t *testing.T) {
	noHistory := &mockProvider{name: "current-only"}
	withHistory := &mockHistoricalProvider{mockProvider: mockProvider{name: "archive"}}
	agg := NewAggregator([]provider.Provider{noHistory, withHistory}, newStores(), nil)

	date := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	got, attempts, err := agg.historical(context.Background(), seattle, date)
	if err != nil {
		t.Fatalf("GetHistorical() error = %v", err)
	}
	if got.Provider != "archive" || got.Date != "2024-03-10" {
		t.Errorf("GetHistorical() = %s/%s, want archive/2024-03-10", got.Provider, got.Date)
	}
	if len(attempts) != 2 || !errors.Is(attempts[0].Err, provider.ErrCapabilityUnsupported) {
		t.Errorf("attempts = %+v, want unsupported then success", attempts)
	}

	if _, err := agg.GetHistorical(context.Background(), seattle, date.Add(-time.Hour)); err != nil {
		t.Fatalf("GetHistorical() same day error = %v", err)
	}
	if withHistory.historicalCalls != 1 {
		t.Errorf("historical calls = %d, want 1 (same UTC date is cached)", withHistory.historicalCalls)
	}
}

// TestAggregator_KeysDistinguishParameters verifies units and day count are
// part of the cache identity.
func TestAggregator_KeysDistinguishParameters(t *testing.T) {
	p := &mockProvider{name: "primary"}
	agg := NewAggregator([]provider.Provider{p}, newStores(), nil)
	ctx := context.Background()

	_, _ = agg.GetCurrent(ctx, seattle, models.UnitsMetric)
	_, _ = agg.GetCurrent(ctx, seattle, models.UnitsImperial)
	if p.currentCalls != 2 {
		t.Errorf("current calls = %d, want 2 (units differ)", p.currentCalls)
	}

	_, _ = agg.GetForecast(ctx, seattle, models.UnitsMetric, 3)
	f, _ := agg.GetForecast(ctx, seattle, models.UnitsMetric, 5)
	if p.forecastCalls != 2 {
		t.Errorf("forecast calls = %d, want 2 (days differ)", p.forecastCalls)
	}
	if len(f.Days) != 5 {
		t.Errorf("len(Days) = %d, want 5", len(f.Days))
	}

	_, _ = agg.GetCurrent(ctx, models.CoordsQuery(47.6062, -122.3321), models.UnitsMetric)
	if p.currentCalls != 3 {
		t.Errorf("current calls = %d, want 3 (coords key differs from city key)", p.currentCalls)
	}
}

func TestAggregator_InvalidUnitsDefaultToMetric(t *testing.T) {
	p := &mockProvider{name: "primary"}
	agg := NewAggregator([]provider.Provider{p}, newStores(), nil)

	if _, err := agg.GetCurrent(context.Background(), seattle, models.Units("kelvin")); err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if p.lastUnits != models.UnitsMetric {
		t.Errorf("units = %q, want metric", p.lastUnits)
	}
}

// TestAggregator_CacheErrorTreatedAsMiss verifies a failing cache does not
// fail the query.
func TestAggregator_CacheErrorTreatedAsMiss(t *testing.T) {
	p := &mockProvider{name: "primary"}
	stores := cache.Stores{
		Current:    errCache[models.NormalizedCurrent]{},
		Forecast:   errCache[models.Forecast]{},
		Historical: errCache[models.NormalizedHistorical]{},
	}
	agg := NewAggregator([]provider.Provider{p}, stores, nil)

	got, err := agg.GetCurrent(context.Background(), seattle, models.UnitsMetric)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if got.Provider != "primary" {
		t.Errorf("Provider = %q, want primary", got.Provider)
	}
}

func TestCacheKeys(t *testing.T) {
	lat, lon := 47.6062, -122.3321
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"current city", CurrentKey(seattle, models.UnitsMetric), "current|city:seattle,US|metric"},
		{"current coords", CurrentKey(models.CoordsQuery(lat, lon), models.UnitsImperial), "current|coords:47.6062,-122.3321|imperial"},
		{"forecast", ForecastKey(seattle, models.UnitsMetric, 3), "forecast|city:seattle,US|metric|days=3"},
		{"historical", HistoricalKey(seattle, time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)), "historical|city:seattle,US|2024-03-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("key = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestAggregator_Providers(t *testing.T) {
	agg := NewAggregator([]provider.Provider{&mockProvider{name: "x"}, &mockProvider{name: "y"}}, newStores(), nil)
	got := agg.Providers()
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("Providers() = %v, want [x y]", got)
	}
}
