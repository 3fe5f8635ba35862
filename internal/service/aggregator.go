// Package service implements the Aggregator: a cache-or-fetch front over an
// ordered list of provider adapters.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/cache"
	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/provider"
)

// Kind names the query kind; it is the first cache-key segment and a metric label.
type Kind string

const (
	KindCurrent    Kind = "current"
	KindForecast   Kind = "forecast"
	KindHistorical Kind = "historical"
)

// Reasons carried by NoProviderError.
const (
	ReasonUnconfigured = "unconfigured"
	ReasonAllFailed    = "all_failed"
)

// ErrNoProviderAvailable is the only error the Aggregator returns to callers.
var ErrNoProviderAvailable = errors.New("no provider available")

// NoProviderError reports why a query could not be served. It matches
// ErrNoProviderAvailable with errors.Is.
type NoProviderError struct {
	Kind     Kind
	Reason   string
	Attempts []Attempt
}

func (e *NoProviderError) Error() string {
	if e.Reason == ReasonUnconfigured {
		return fmt.Sprintf("%s: %s: no providers configured", ErrNoProviderAvailable, e.Kind)
	}
	return fmt.Sprintf("%s: %s: all %d providers failed", ErrNoProviderAvailable, e.Kind, len(e.Attempts))
}

func (e *NoProviderError) Unwrap() error { return ErrNoProviderAvailable }

// Attempt is one provider invocation. Err is nil for the attempt that succeeded.
type Attempt struct {
	Provider string
	Err      error
	Duration time.Duration
}

// Aggregator serves normalized weather records, consulting the cache first and
// otherwise trying providers in priority order. Provider failures are absorbed;
// only a terminal NoProviderError reaches the caller.
type Aggregator struct {
	providers []provider.Provider
	stores    cache.Stores
	logger    *zap.Logger
	stampede  *stampedeTracker
}

// NewAggregator creates an Aggregator. providers is the fixed priority order
// used for every kind.
func NewAggregator(providers []provider.Provider, stores cache.Stores, logger *zap.Logger) *Aggregator {
	ps := make([]provider.Provider, len(providers))
	copy(ps, providers)
	return &Aggregator{
		providers: ps,
		stores:    stores,
		logger:    observability.OrNop(logger),
		stampede:  newStampedeTracker(),
	}
}

// Providers returns the configured provider names in priority order.
func (a *Aggregator) Providers() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// CurrentKey is the cache key for current conditions.
func CurrentKey(q models.LocationQuery, u models.Units) string {
	return fmt.Sprintf("%s|%s|%s", KindCurrent, q.Key(), u)
}

// ForecastKey is the cache key for a forecast of days days.
func ForecastKey(q models.LocationQuery, u models.Units, days int) string {
	return fmt.Sprintf("%s|%s|%s|days=%d", KindForecast, q.Key(), u, days)
}

// HistoricalKey is the cache key for a past calendar date (UTC).
func HistoricalKey(q models.LocationQuery, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", KindHistorical, q.Key(), date.UTC().Format(models.DateLayout))
}

// GetCurrent returns current conditions for q.
func (a *Aggregator) GetCurrent(ctx context.Context, q models.LocationQuery, u models.Units) (models.NormalizedCurrent, error) {
	v, _, err := a.current(ctx, q, u)
	return v, err
}

// GetForecast returns a daily forecast of up to days days for q.
func (a *Aggregator) GetForecast(ctx context.Context, q models.LocationQuery, u models.Units, days int) (models.Forecast, error) {
	v, _, err := a.forecast(ctx, q, u, days)
	return v, err
}

// GetHistorical returns the daily summary for q on date.
func (a *Aggregator) GetHistorical(ctx context.Context, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, error) {
	v, _, err := a.historical(ctx, q, date)
	return v, err
}

func (a *Aggregator) current(ctx context.Context, q models.LocationQuery, u models.Units) (models.NormalizedCurrent, []Attempt, error) {
	u = normalizeUnits(u)
	return resolve(ctx, a, KindCurrent, q, a.stores.Current, CurrentKey(q, u),
		func(ctx context.Context, p provider.Provider) (models.NormalizedCurrent, error) {
			return p.FetchCurrent(ctx, q, u)
		})
}

func (a *Aggregator) forecast(ctx context.Context, q models.LocationQuery, u models.Units, days int) (models.Forecast, []Attempt, error) {
	u = normalizeUnits(u)
	if days < 1 {
		days = 1
	}
	return resolve(ctx, a, KindForecast, q, a.stores.Forecast, ForecastKey(q, u, days),
		func(ctx context.Context, p provider.Provider) (models.Forecast, error) {
			return p.FetchForecast(ctx, q, u, days)
		})
}

func (a *Aggregator) historical(ctx context.Context, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, []Attempt, error) {
	return resolve(ctx, a, KindHistorical, q, a.stores.Historical, HistoricalKey(q, date),
		func(ctx context.Context, p provider.Provider) (models.NormalizedHistorical, error) {
			return provider.FetchHistorical(ctx, p, q, date)
		})
}

// resolve is the shared cache-or-fetch algorithm. The returned attempt log is
// empty on a cache hit.
func resolve[V any](
	ctx context.Context,
	a *Aggregator,
	kind Kind,
	q models.LocationQuery,
	store cache.Cache[V],
	key string,
	fetch func(context.Context, provider.Provider) (V, error),
) (V, []Attempt, error) {
	var zero V
	logger := observability.LoggerFromContext(ctx, a.logger)
	observability.RecordWeatherQuery(string(kind), q.String())

	if store != nil {
		cached, ok, err := store.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues(string(kind), "get").Inc()
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			observability.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
			logger.Debug("cache hit", zap.String("key", key))
			return cached, nil, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues(string(kind)).Inc()

	if len(a.providers) == 0 {
		observability.NoProviderAvailableTotal.WithLabelValues(string(kind), ReasonUnconfigured).Inc()
		return zero, nil, &NoProviderError{Kind: kind, Reason: ReasonUnconfigured}
	}

	if n := a.stampede.begin(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(string(kind)).Inc()
		logger.Debug("concurrent miss", zap.String("key", key), zap.Int("concurrent", n))
	}
	defer a.stampede.done(key)

	attempts := make([]Attempt, 0, len(a.providers))
	for i, p := range a.providers {
		start := time.Now()
		v, err := fetch(ctx, p)
		attempts = append(attempts, Attempt{Provider: p.Name(), Err: err, Duration: time.Since(start)})
		if err != nil {
			category := provider.CategorizeError(err)
			observability.ProviderErrorsTotal.WithLabelValues(p.Name(), string(category)).Inc()
			logger.Warn("provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("kind", string(kind)),
				zap.String("category", string(category)),
				zap.Error(err),
			)
			continue
		}

		if i > 0 {
			observability.ProviderFallbacksTotal.WithLabelValues(string(kind), p.Name()).Inc()
		}
		if store != nil {
			if err := store.Set(ctx, key, v); err != nil {
				observability.CacheErrorsTotal.WithLabelValues(string(kind), "set").Inc()
				logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		logger.Debug("served from provider",
			zap.String("provider", p.Name()),
			zap.String("kind", string(kind)),
			zap.Int("attempts", len(attempts)),
		)
		return v, attempts, nil
	}

	observability.NoProviderAvailableTotal.WithLabelValues(string(kind), ReasonAllFailed).Inc()
	return zero, attempts, &NoProviderError{Kind: kind, Reason: ReasonAllFailed, Attempts: attempts}
}

func normalizeUnits(u models.Units) models.Units {
	if u.Valid() {
		return u
	}
	return models.UnitsMetric
}
