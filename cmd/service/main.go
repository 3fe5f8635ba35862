package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-aggregator/internal/alert"
	"github.com/kjstillabower/weather-aggregator/internal/cache"
	"github.com/kjstillabower/weather-aggregator/internal/circuitbreaker"
	"github.com/kjstillabower/weather-aggregator/internal/config"
	httphandler "github.com/kjstillabower/weather-aggregator/internal/http"
	"github.com/kjstillabower/weather-aggregator/internal/lifecycle"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/provider"
	"github.com/kjstillabower/weather-aggregator/internal/service"
	"github.com/kjstillabower/weather-aggregator/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	providers, breakers, err := buildProviders(cfg, logger)
	if err != nil {
		logger.Fatal("providers", zap.Error(err))
	}
	if len(cfg.Unconfigured) > 0 {
		logger.Warn("providers without credentials excluded", zap.Strings("providers", cfg.Unconfigured))
	}
	if len(providers) == 0 {
		logger.Warn("no weather providers configured; weather routes will return 503")
	}

	stores, remote, err := cache.NewStores(storesConfig(cfg))
	if err != nil {
		logger.Fatal("cache stores", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	aggregator := service.NewAggregator(providers, stores, logger)
	logger.Info("provider priority", zap.Strings("order", aggregator.Providers()))

	registry := alert.NewRegistry()
	dispatcher := alert.NewDispatcher(logger, cfg.WebhookTimeout)
	evaluator := alert.NewEvaluator(registry, aggregator, dispatcher, cfg.DefaultUnits, logger)
	scheduler := alert.NewScheduler(evaluator, cfg.AlertSweepInterval, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("alert scheduler", zap.Error(err))
	}

	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}
	warmCtx, warmCancel := context.WithCancel(context.Background())
	defer warmCancel()
	if tracked := cfg.TrackedQueries(); len(tracked) > 0 && cfg.CacheWarmInterval > 0 && len(providers) > 0 {
		warmer := cache.NewCacheWarmer(aggregator, cfg.DefaultUnits, logger)
		go func() {
			if err := warmer.WarmPeriodic(warmCtx, tracked, cfg.CacheWarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	state := lifecycle.New()
	tracker := traffic.NewTracker(max(cfg.DegradedWindow, cfg.OverloadWindow))
	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		DegradedMinRequests:  cfg.DegradedMinRequests,
		Breakers:             breakers,
	}
	if remote != nil {
		healthConfig.CachePing = remote.Ping
	}
	handler := httphandler.NewHandler(aggregator, registry, state, tracker, healthConfig, cfg.DefaultUnits, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		Tracker:        tracker,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	scheduler.Stop()
	warmCancel()

	if remote != nil {
		if err := remote.Close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete", zap.Duration("uptime", state.Uptime()))
	if err := observability.FlushTelemetry(logger); err != nil && !isSyncOnTTY(err) {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// buildProviders constructs adapters in configured order, each behind its own
// circuit breaker when enabled.
func buildProviders(cfg *config.Config, logger *zap.Logger) ([]provider.Provider, []*gobreaker.CircuitBreaker, error) {
	providers := make([]provider.Provider, 0, len(cfg.Providers))
	var breakers []*gobreaker.CircuitBreaker
	for _, pc := range cfg.Providers {
		opts := provider.Options{BaseURL: pc.BaseURL, Timeout: cfg.ProviderTimeout}
		if cfg.CircuitBreakerEnabled {
			opts.Breaker = circuitbreaker.New(pc.Name, circuitbreaker.Config{
				FailureThreshold: cfg.CircuitBreakerFailureThreshold,
				Timeout:          cfg.CircuitBreakerTimeout,
				OnStateChange: func(name string, from, to gobreaker.State) {
					observability.CircuitBreakerState.WithLabelValues(name).Set(circuitbreaker.StateValue(to))
					logger.Warn("circuit breaker state change",
						zap.String("provider", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			})
			observability.CircuitBreakerState.WithLabelValues(pc.Name).Set(0)
			breakers = append(breakers, opts.Breaker)
		}

		var (
			p   provider.Provider
			err error
		)
		switch pc.Name {
		case config.ProviderOpenWeather:
			p, err = provider.NewOpenWeather(pc.APIKey, opts)
		case config.ProviderWeatherAPI:
			p, err = provider.NewWeatherAPI(pc.APIKey, opts)
		default:
			err = fmt.Errorf("unknown provider %q", pc.Name)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, breakers, nil
}

func storesConfig(cfg *config.Config) cache.StoresConfig {
	return cache.StoresConfig{
		Backend:               cfg.CacheBackend,
		Current:               cache.Settings{TTL: cfg.CacheCurrent.TTL, MaxEntries: cfg.CacheCurrent.MaxEntries},
		Forecast:              cache.Settings{TTL: cfg.CacheForecast.TTL, MaxEntries: cfg.CacheForecast.MaxEntries},
		Historical:            cache.Settings{TTL: cfg.CacheHistorical.TTL, MaxEntries: cfg.CacheHistorical.MaxEntries},
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		RedisAddr:             cfg.RedisAddr,
		RedisPassword:         cfg.RedisPassword,
		RedisDB:               cfg.RedisDB,
		RedisTimeout:          cfg.RedisTimeout,
	}
}

// isSyncOnTTY reports the harmless error zap returns when syncing a terminal.
func isSyncOnTTY(err error) bool {
	return strings.Contains(err.Error(), "inappropriate ioctl") || strings.Contains(err.Error(), "invalid argument")
}
