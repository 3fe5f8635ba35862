// Package provider adapts independent upstream weather APIs to the normalized
// record shapes in internal/models. Each adapter call issues at most one
// outbound HTTP request; retries and fallback belong to the aggregator.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

// Provider is the capability every adapter implements.
type Provider interface {
	Name() string
	FetchCurrent(ctx context.Context, q models.LocationQuery, units models.Units) (models.NormalizedCurrent, error)
	FetchForecast(ctx context.Context, q models.LocationQuery, units models.Units, days int) (models.Forecast, error)
}

// HistoricalProvider is implemented by adapters whose upstream serves past dates.
type HistoricalProvider interface {
	FetchHistorical(ctx context.Context, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, error)
}

var (
	ErrInvalidQuery          = errors.New("invalid location query")
	ErrCapabilityUnsupported = errors.New("capability unsupported")
	ErrTransport             = errors.New("transport error")
	ErrUpstreamFormat        = errors.New("unexpected upstream response")

	// Finer transport causes. Errors carrying these also match ErrTransport.
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrCircuitOpen      = errors.New("circuit breaker open")
)

// FetchHistorical calls p's historical capability, or fails with
// ErrCapabilityUnsupported when the adapter has none.
func FetchHistorical(ctx context.Context, p Provider, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, error) {
	hp, ok := p.(HistoricalProvider)
	if !ok {
		return models.NormalizedHistorical{}, fmt.Errorf("%w: %s has no historical data", ErrCapabilityUnsupported, p.Name())
	}
	return hp.FetchHistorical(ctx, q, date)
}

// checkQuery rejects queries that resolve to no addressing mode.
func checkQuery(q models.LocationQuery) error {
	if q.Mode() == models.AddressNone {
		return fmt.Errorf("%w: need city or lat/lon", ErrInvalidQuery)
	}
	return nil
}

func transportError(cause error, detail string) error {
	return fmt.Errorf("%w: %w: %s", ErrTransport, cause, detail)
}

func formatError(detail string) error {
	return fmt.Errorf("%w: %s", ErrUpstreamFormat, detail)
}
