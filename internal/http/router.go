package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/traffic"
)

// RouterConfig holds the cross-cutting settings applied to routes.
type RouterConfig struct {
	// Limiter throttles /weather; nil disables rate limiting.
	Limiter *rate.Limiter
	// Tracker receives rate-limit denials.
	Tracker *traffic.Tracker
	// RequestTimeout bounds /weather requests; zero disables it.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter wires every route with its middleware.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(cfg.Logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/alerts", h.CreateAlert).Methods(http.MethodPost)
	router.HandleFunc("/alerts", h.ListAlerts).Methods(http.MethodGet)
	router.HandleFunc("/alerts/{id}", h.DeleteAlert).Methods(http.MethodDelete)

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	if cfg.RequestTimeout > 0 {
		weatherRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	weatherRouter.HandleFunc("/current", h.GetCurrent).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/historical", h.GetHistorical).Methods(http.MethodGet)

	return router
}
