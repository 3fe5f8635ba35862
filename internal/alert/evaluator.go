package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// RainChanceThreshold is the rain-chance percentage a rain alert trips at,
// before sensitivity adjustment.
const RainChanceThreshold = 50.0

var (
	ErrMissingThreshold = errors.New("alert condition has no threshold")
	ErrMissingWind      = errors.New("current conditions have no wind speed")
	ErrUnknownCondition = errors.New("unknown alert condition type")
)

// WeatherSource is the subset of the aggregator the evaluator needs.
type WeatherSource interface {
	GetCurrent(ctx context.Context, q models.LocationQuery, units models.Units) (models.NormalizedCurrent, error)
	GetForecast(ctx context.Context, q models.LocationQuery, units models.Units, days int) (models.Forecast, error)
}

// Evaluator checks every registered alert and notifies those that trip.
type Evaluator struct {
	registry *Registry
	source   WeatherSource
	notifier Notifier
	units    models.Units
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator creates an Evaluator that queries in units, the same units
// ordinary callers default to, so sweeps share their cache entries.
func NewEvaluator(registry *Registry, source WeatherSource, notifier Notifier, units models.Units, logger *zap.Logger) *Evaluator {
	if !units.Valid() {
		units = models.UnitsMetric
	}
	return &Evaluator{
		registry: registry,
		source:   source,
		notifier: notifier,
		units:    units,
		logger:   observability.OrNop(logger),
		now:      time.Now,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Evaluated int
	Triggered int
	Failed    int
}

// Outcome is the result of checking one alert.
type Outcome struct {
	Tripped bool
	Message string
	Payload interface{}
}

// Sweep evaluates every alert independently. A failure on one alert is
// logged and counted; the rest are still evaluated.
func (e *Evaluator) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	observability.AlertSweepsTotal.Inc()
	defer func() {
		observability.AlertSweepDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	var res SweepResult
	for _, a := range e.registry.List() {
		res.Evaluated++
		outcome, err := e.Check(ctx, a)
		if err != nil {
			res.Failed++
			observability.AlertEvaluationErrorsTotal.WithLabelValues(string(a.Condition.Type)).Inc()
			e.logger.Warn("alert evaluation failed",
				zap.String("alert_id", a.ID),
				zap.String("condition", string(a.Condition.Type)),
				zap.Error(err),
			)
			continue
		}
		if !outcome.Tripped {
			continue
		}

		stamped, ok := e.registry.MarkTriggered(a.ID, e.now())
		if !ok {
			// Removed while being evaluated.
			continue
		}
		res.Triggered++
		observability.AlertTriggersTotal.WithLabelValues(string(a.Condition.Type), string(a.Channel)).Inc()
		e.notifier.Notify(ctx, Notification{
			ID:      stamped.ID,
			Message: outcome.Message,
			Alert:   stamped,
			Payload: outcome.Payload,
		})
	}

	e.logger.Debug("alert sweep complete",
		zap.Int("evaluated", res.Evaluated),
		zap.Int("triggered", res.Triggered),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

// Check evaluates a single alert without side effects on the registry.
func (e *Evaluator) Check(ctx context.Context, a models.WeatherAlert) (Outcome, error) {
	factor := a.Sensitivity.Factor()
	cond := a.Condition

	switch cond.Type {
	case models.ConditionRain:
		days := 1
		if cond.DaysAhead != nil && *cond.DaysAhead > 0 {
			days = *cond.DaysAhead
		}
		fc, err := e.source.GetForecast(ctx, a.Location, e.units, days)
		if err != nil {
			return Outcome{}, err
		}
		limit := RainChanceThreshold * factor
		for _, d := range fc.Days {
			if d.ChanceOfRainPct != nil && float64(*d.ChanceOfRainPct) >= limit {
				return Outcome{
					Tripped: true,
					Message: fmt.Sprintf("%d%% chance of rain on %s in %s", *d.ChanceOfRainPct, d.Date, a.Location),
					Payload: fc,
				}, nil
			}
		}
		return Outcome{Payload: fc}, nil

	case models.ConditionTempAbove, models.ConditionTempBelow, models.ConditionWindAbove:
		if cond.Threshold == nil {
			return Outcome{}, fmt.Errorf("%w: %s", ErrMissingThreshold, cond.Type)
		}
		limit := *cond.Threshold * factor
		cur, err := e.source.GetCurrent(ctx, a.Location, e.units)
		if err != nil {
			return Outcome{}, err
		}
		switch cond.Type {
		case models.ConditionTempAbove:
			if cur.TemperatureC >= limit {
				return Outcome{Tripped: true, Message: fmt.Sprintf("temperature %.1f°C at or above %.1f°C in %s", cur.TemperatureC, limit, a.Location), Payload: cur}, nil
			}
		case models.ConditionTempBelow:
			if cur.TemperatureC <= limit {
				return Outcome{Tripped: true, Message: fmt.Sprintf("temperature %.1f°C at or below %.1f°C in %s", cur.TemperatureC, limit, a.Location), Payload: cur}, nil
			}
		default:
			if cur.WindKph == nil {
				return Outcome{}, ErrMissingWind
			}
			if *cur.WindKph >= limit {
				return Outcome{Tripped: true, Message: fmt.Sprintf("wind %.1f kph at or above %.1f kph in %s", *cur.WindKph, limit, a.Location), Payload: cur}, nil
			}
		}
		return Outcome{Payload: cur}, nil

	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCondition, cond.Type)
	}
}
