package main

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/config"
)

// TestBuildProviders verifies adapters are built in configured order with one
// breaker each.
func TestBuildProviders(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.Provider{
			{Name: config.ProviderWeatherAPI, APIKey: "wa"},
			{Name: config.ProviderOpenWeather, APIKey: "ow", BaseURL: "http://ow.local"},
		},
		ProviderTimeout:                time.Second,
		CircuitBreakerEnabled:          true,
		CircuitBreakerFailureThreshold: 3,
		CircuitBreakerTimeout:          time.Second,
	}

	providers, breakers, err := buildProviders(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildProviders() error = %v", err)
	}
	if len(providers) != 2 || providers[0].Name() != config.ProviderWeatherAPI || providers[1].Name() != config.ProviderOpenWeather {
		t.Fatalf("providers = %v, want [weatherapi openweather]", providers)
	}
	if len(breakers) != 2 || breakers[0].Name() != config.ProviderWeatherAPI {
		t.Errorf("breakers = %d, want 2 named after providers", len(breakers))
	}
}

func TestBuildProviders_BreakersDisabled(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.Provider{{Name: config.ProviderOpenWeather, APIKey: "ow"}},
	}

	providers, breakers, err := buildProviders(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildProviders() error = %v", err)
	}
	if len(providers) != 1 || len(breakers) != 0 {
		t.Errorf("got %d providers, %d breakers, want 1 and 0", len(providers), len(breakers))
	}
}

func TestBuildProviders_Unknown(t *testing.T) {
	cfg := &config.Config{Providers: []config.Provider{{Name: "accuweather", APIKey: "x"}}}

	if _, _, err := buildProviders(cfg, zap.NewNop()); err == nil {
		t.Error("buildProviders() error = nil, want unknown provider error")
	}
}

func TestStoresConfig(t *testing.T) {
	cfg := &config.Config{
		CacheBackend:  config.BackendRedis,
		CacheCurrent:  config.Store{TTL: time.Minute, MaxEntries: 5},
		CacheForecast: config.Store{TTL: 2 * time.Minute, MaxEntries: 6},
		RedisAddr:     "redis:6379",
	}

	sc := storesConfig(cfg)
	if sc.Backend != config.BackendRedis || sc.RedisAddr != "redis:6379" {
		t.Errorf("storesConfig() = %+v", sc)
	}
	if sc.Current.TTL != time.Minute || sc.Forecast.MaxEntries != 6 {
		t.Errorf("store settings = %+v / %+v", sc.Current, sc.Forecast)
	}
}
