package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

// Provider names understood by the service.
const (
	ProviderOpenWeather = "openweather"
	ProviderWeatherAPI  = "weatherapi"
)

// Cache backends.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Provider is one configured upstream, ready to construct.
type Provider struct {
	Name    string
	APIKey  string
	BaseURL string
}

// Store bounds one cache store.
type Store struct {
	TTL        time.Duration
	MaxEntries int
}

// Config holds service configuration loaded from YAML, .env and environment.
type Config struct {
	ServerPort   string
	DefaultUnits models.Units

	// Providers holds, in priority order, every provider that has a credential.
	Providers []Provider
	// Unconfigured lists providers named in the order but lacking a credential.
	Unconfigured    []string
	ProviderTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend    string
	CacheCurrent    Store
	CacheForecast   Store
	CacheHistorical Store

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	AlertSweepInterval time.Duration
	WebhookTimeout     time.Duration

	RequestTimeout       time.Duration
	RateLimitRPS         int
	RateLimitBurst       int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	ShutdownTimeout      time.Duration

	DegradedWindow      time.Duration
	DegradedErrorPct    int
	DegradedMinRequests int

	TrackedLocations  []string
	CacheWarmInterval time.Duration
}

type storeFile struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Units struct {
		Default string `yaml:"default"`
	} `yaml:"units"`

	Providers struct {
		Order       []string `yaml:"order"`
		Timeout     string   `yaml:"timeout"`
		OpenWeather struct {
			URL string `yaml:"url"`
		} `yaml:"openweather"`
		WeatherAPI struct {
			URL string `yaml:"url"`
		} `yaml:"weatherapi"`
	} `yaml:"providers"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		OpenTimeout      string `yaml:"open_timeout"`
	} `yaml:"circuit_breaker"`

	Cache struct {
		Backend    string    `yaml:"backend"`
		Current    storeFile `yaml:"current"`
		Forecast   storeFile `yaml:"forecast"`
		Historical storeFile `yaml:"historical"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Alerts struct {
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		WebhookTimeout       string `yaml:"webhook_timeout"`
	} `yaml:"alerts"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS         int    `yaml:"rate_limit_rps"`
		RateLimitBurst       int    `yaml:"rate_limit_burst"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow      string `yaml:"degraded_window"`
		DegradedErrorPct    int    `yaml:"degraded_error_pct"`
		DegradedMinRequests int    `yaml:"degraded_min_requests"`
	} `yaml:"health"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`

	Warming struct {
		Interval string `yaml:"interval"`
	} `yaml:"warming"`
}

type secretsFile struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
	WeatherAPIAPIKey  string `yaml:"weatherapi_api_key"`
	RedisPassword     string `yaml:"redis_password"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir loads dir/.env (if present) into the environment, then reads
// dir/config/{ENV_NAME}.yaml (default dev) and dir/config/secrets.yaml.
// Environment variables override file values.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.DefaultUnits = models.Units(strings.ToLower(firstNonEmpty(os.Getenv("DEFAULT_UNITS"), fc.Units.Default, string(models.UnitsMetric))))

	order := fc.Providers.Order
	if len(order) == 0 {
		order = []string{ProviderOpenWeather, ProviderWeatherAPI}
	}
	keys := map[string]string{
		ProviderOpenWeather: firstNonEmpty(os.Getenv("OPENWEATHER_API_KEY"), sec.OpenWeatherAPIKey),
		ProviderWeatherAPI:  firstNonEmpty(os.Getenv("WEATHERAPI_API_KEY"), sec.WeatherAPIAPIKey),
	}
	urls := map[string]string{
		ProviderOpenWeather: fc.Providers.OpenWeather.URL,
		ProviderWeatherAPI:  fc.Providers.WeatherAPI.URL,
	}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, known := keys[name]; !known {
			return nil, fmt.Errorf("providers.order: unknown provider %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if keys[name] == "" {
			cfg.Unconfigured = append(cfg.Unconfigured, name)
			continue
		}
		cfg.Providers = append(cfg.Providers, Provider{Name: name, APIKey: keys[name], BaseURL: urls[name]})
	}
	cfg.ProviderTimeout = parseDuration(fc.Providers.Timeout, 5*time.Second)

	cfg.CircuitBreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.OpenTimeout, 30*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendInMemory))
	cfg.CacheCurrent = store(fc.Cache.Current, 600, 500)
	cfg.CacheForecast = store(fc.Cache.Forecast, 1800, 200)
	cfg.CacheHistorical = store(fc.Cache.Historical, 86400, 200)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	sweep := fc.Alerts.SweepIntervalSeconds
	if v := strings.TrimSpace(os.Getenv("ALERT_SWEEP_INTERVAL_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("ALERT_SWEEP_INTERVAL_SECONDS: %w", err)
		}
		sweep = n
	}
	if sweep <= 0 {
		sweep = 300
	}
	cfg.AlertSweepInterval = time.Duration(sweep) * time.Second
	cfg.WebhookTimeout = parseDuration(fc.Alerts.WebhookTimeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.OverloadWindow = parseDuration(fc.Reliability.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Reliability.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinRequests = fc.Health.DegradedMinRequests
	if cfg.DegradedMinRequests <= 0 {
		cfg.DegradedMinRequests = 10
	}

	cfg.TrackedLocations = fc.Metrics.TrackedLocations
	cfg.CacheWarmInterval = parseDuration(fc.Warming.Interval, 0)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// TrackedQueries parses TrackedLocations. "lat,lon" entries become coordinate
// queries; anything else is "city[,country]". Blank entries are skipped.
func (c *Config) TrackedQueries() []models.LocationQuery {
	out := make([]models.LocationQuery, 0, len(c.TrackedLocations))
	for _, s := range c.TrackedLocations {
		if q, ok := ParseLocation(s); ok {
			out = append(out, q)
		}
	}
	return out
}

// ParseLocation parses "lat,lon" or "city[,country]".
func ParseLocation(s string) (models.LocationQuery, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.LocationQuery{}, false
	}
	parts := strings.Split(s, ",")
	if len(parts) == 2 {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errLat == nil && errLon == nil {
			return models.CoordsQuery(lat, lon), true
		}
	}
	city := strings.TrimSpace(parts[0])
	country := ""
	if len(parts) > 1 {
		country = strings.TrimSpace(parts[len(parts)-1])
	}
	return models.CityQuery(city, country), city != ""
}

func store(f storeFile, defTTLSeconds, defMax int) Store {
	ttl := f.TTLSeconds
	if ttl <= 0 {
		ttl = defTTLSeconds
	}
	maxEntries := f.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defMax
	}
	return Store{TTL: time.Duration(ttl) * time.Second, MaxEntries: maxEntries}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised to cover
// one timeout per configured provider when it is too short for a full
// fallback pass.
func validate(cfg *Config) error {
	if !cfg.DefaultUnits.Valid() {
		return fmt.Errorf("units.default must be metric or imperial, got %q", cfg.DefaultUnits)
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if n := len(cfg.Providers); n > 0 {
		if floor := time.Duration(n)*cfg.ProviderTimeout + time.Second; cfg.RequestTimeout < floor {
			cfg.RequestTimeout = floor
		}
	}
	return nil
}
