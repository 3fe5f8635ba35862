package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// CurrentFetcher is implemented by the aggregator. Fetching through it
// populates the current-conditions store as a side effect.
type CurrentFetcher interface {
	GetCurrent(ctx context.Context, q models.LocationQuery, units models.Units) (models.NormalizedCurrent, error)
}

// CacheWarmer prefetches current conditions for tracked locations.
type CacheWarmer struct {
	fetcher CurrentFetcher
	units   models.Units
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer fetching in the given units.
func NewCacheWarmer(fetcher CurrentFetcher, units models.Units, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, units: units, logger: logger}
}

// Warm fetches each location concurrently. Returns the joined failures, if any.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.LocationQuery) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetCurrent(ctx, loc, w.units); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []models.LocationQuery, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
