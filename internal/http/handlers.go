package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/alert"
	"github.com/kjstillabower/weather-aggregator/internal/lifecycle"
	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/service"
	"github.com/kjstillabower/weather-aggregator/internal/traffic"
	"github.com/kjstillabower/weather-aggregator/internal/validation"
)

// DefaultForecastDays is used when a forecast request omits days.
const DefaultForecastDays = 3

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeNoProviderAvailable = "NO_PROVIDER_AVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// WeatherService is what the weather routes need from the aggregator.
type WeatherService interface {
	GetCurrent(ctx context.Context, q models.LocationQuery, u models.Units) (models.NormalizedCurrent, error)
	GetForecast(ctx context.Context, q models.LocationQuery, u models.Units, days int) (models.Forecast, error)
	GetHistorical(ctx context.Context, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, error)
	Providers() []string
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	// Overload trips when requests in OverloadWindow (denials included)
	// exceed OverloadThresholdPct of what RateLimitRPS admits.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int

	DegradedWindow      time.Duration
	DegradedErrorPct    int
	DegradedMinRequests int
	// Breakers are reported per provider in checks.
	Breakers []*gobreaker.CircuitBreaker
	// CachePing, when set, is called to check a shared cache backend.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather      WeatherService
	alerts       *alert.Registry
	state        *lifecycle.State
	traffic      *traffic.Tracker
	healthConfig *HealthConfig
	defaultUnits models.Units
	logger       *zap.Logger
	now          func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. state and tracker may be nil in tests.
func NewHandler(
	weather WeatherService,
	alerts *alert.Registry,
	state *lifecycle.State,
	tracker *traffic.Tracker,
	healthConfig *HealthConfig,
	defaultUnits models.Units,
	logger *zap.Logger,
) *Handler {
	if state == nil {
		state = lifecycle.New()
	}
	if tracker == nil {
		tracker = traffic.NewTracker(0)
	}
	if !defaultUnits.Valid() {
		defaultUnits = models.UnitsMetric
	}
	return &Handler{
		weather:      weather,
		alerts:       alerts,
		state:        state,
		traffic:      tracker,
		healthConfig: healthConfig,
		defaultUnits: defaultUnits,
		logger:       observability.OrNop(logger),
		now:          time.Now,
	}
}

// GetCurrent handles GET /weather/current.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	q, units, ok := h.parseLocationAndUnits(w, r)
	if !ok {
		return
	}
	result, err := h.weather.GetCurrent(r.Context(), q, units)
	h.respond(w, r, result, err)
}

// GetForecast handles GET /weather/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q, units, ok := h.parseLocationAndUnits(w, r)
	if !ok {
		return
	}
	days := DefaultForecastDays
	if s := strings.TrimSpace(r.URL.Query().Get("days")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, validation.ErrDays.Error())
			return
		}
		days = n
	}
	if err := validation.ValidateDays(days); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	result, err := h.weather.GetForecast(r.Context(), q, units, days)
	h.respond(w, r, result, err)
}

// GetHistorical handles GET /weather/historical.
func (h *Handler) GetHistorical(w http.ResponseWriter, r *http.Request) {
	q, err := parseLocation(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	date, err := validation.ParseDate(r.URL.Query().Get("date"), h.now())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	result, err := h.weather.GetHistorical(r.Context(), q, date)
	h.respond(w, r, result, err)
}

func (h *Handler) parseLocationAndUnits(w http.ResponseWriter, r *http.Request) (models.LocationQuery, models.Units, bool) {
	q, err := parseLocation(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return q, "", false
	}
	units, err := validation.ParseUnits(r.URL.Query().Get("units"), h.defaultUnits)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return q, "", false
	}
	return q, units, true
}

// parseLocation reads city/country/lat/lon query parameters and validates
// that they resolve to one addressing mode.
func parseLocation(r *http.Request) (models.LocationQuery, error) {
	v := r.URL.Query()
	q := models.LocationQuery{City: v.Get("city"), Country: v.Get("country")}
	if s := strings.TrimSpace(v.Get("lat")); s != "" {
		lat, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, validation.ErrLatitudeRange
		}
		q.Lat = &lat
	}
	if s := strings.TrimSpace(v.Get("lon")); s != "" {
		lon, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, validation.ErrLongitudeRange
		}
		q.Lon = &lon
	}
	return validation.ValidateQuery(q)
}

// respond writes a weather result or maps the aggregator error, recording the
// outcome for health.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, result interface{}, err error) {
	if err != nil {
		h.traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// CreateAlert handles POST /alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var def models.AlertDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	def, err := validation.ValidateAlert(def)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	stored := h.alerts.Register(def)
	observability.LoggerFromContext(r.Context(), h.logger).Info("alert registered",
		zap.String("alert_id", stored.ID),
		zap.String("condition", string(stored.Condition.Type)),
		zap.String("location", stored.Location.String()))
	writeJSON(w, http.StatusCreated, stored)
}

// ListAlerts handles GET /alerts. Alerts are returned in registration order.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": h.alerts.List()})
}

// DeleteAlert handles DELETE /alerts/{id}.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.alerts.Remove(id) {
		writeJSON(w, http.StatusNotFound, map[string]bool{"removed": false})
		return
	}
	observability.LoggerFromContext(r.Context(), h.logger).Info("alert removed", zap.String("alert_id", id))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	for _, name := range h.weather.Providers() {
		checks["provider:"+name] = "configured"
	}
	if h.healthConfig != nil {
		for _, cb := range h.healthConfig.Breakers {
			checks["provider:"+cb.Name()] = cb.State().String()
		}
		if h.healthConfig.CachePing != nil {
			if err := h.healthConfig.CachePing(r.Context()); err == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-aggregator",
		"version":   "dev",
		"providers": h.weather.Providers(),
		"checks":    checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > no provider configured > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.state.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if len(h.weather.Providers()) == 0 {
		return healthResult{"unavailable", http.StatusServiceUnavailable, "no_provider_configured"}
	}
	if hc := h.healthConfig; hc != nil && hc.OverloadWindow > 0 && hc.OverloadThresholdPct > 0 && hc.RateLimitRPS > 0 {
		threshold := float64(hc.RateLimitRPS) * hc.OverloadWindow.Seconds() * float64(hc.OverloadThresholdPct) / 100
		if float64(h.traffic.Window(hc.OverloadWindow).Total()) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		counts := h.traffic.Window(h.healthConfig.DegradedWindow)
		served := counts.Success + counts.Errors
		if served > 0 && served >= h.healthConfig.DegradedMinRequests &&
			counts.ErrorPercent() >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps aggregator failures. Which providers failed and why
// is logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), nil)
	var npe *service.NoProviderError
	switch {
	case errors.As(err, &npe):
		logger.Debug("no provider available",
			zap.String("kind", string(npe.Kind)),
			zap.String("reason", npe.Reason),
			zap.Int("attempts", len(npe.Attempts)))
		writeError(w, r, http.StatusServiceUnavailable, CodeNoProviderAvailable, "No weather provider available")
	default:
		logger.Error("unexpected service error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "Internal error")
	}
}
