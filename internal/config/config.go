// Package config loads wmscache configuration from YAML with WMS_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/circuitbreaker"
	"github.com/mikasazwj/warehouse-inventory-system/internal/durable"
	"github.com/mikasazwj/warehouse-inventory-system/internal/observability"
)

// PolicyConfig overrides the TTL and backend of one cache domain.
type PolicyConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Backend string        `yaml:"backend"` // memory, durable
}

// CacheConfig holds TieredCache settings
type CacheConfig struct {
	Namespace     string                  `yaml:"namespace"`
	SweepInterval time.Duration           `yaml:"sweep_interval"`
	SingleFlight  bool                    `yaml:"single_flight"`
	Policies      map[string]PolicyConfig `yaml:"policies"`
}

// FileConfig holds file store settings
type FileConfig struct {
	Dir              string `yaml:"dir"`
	MaxBytes         int64  `yaml:"max_bytes"`
	CompressionLevel int    `yaml:"compression_level"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// BreakerConfig guards networked durable drivers
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorPct       float64       `yaml:"error_pct"`
	MinRequests    int           `yaml:"min_requests"`
	Window         time.Duration `yaml:"window"`
	OpenDuration   time.Duration `yaml:"open_duration"`
	HalfOpenProbes int           `yaml:"half_open_probes"`
}

// DurableConfig selects the durable store
type DurableConfig struct {
	Driver   string         `yaml:"driver"` // memory, file, redis, postgres
	MapQuota int64          `yaml:"map_quota"`
	File     FileConfig     `yaml:"file"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // otlp-http, noop
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Version     string  `yaml:"service_version"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// LoggingConfig holds operational logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// APIConfig points the loaders at the warehouse back end
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Durable DurableConfig `yaml:"durable"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Logging LoggingConfig `yaml:"logging"`
	API     APIConfig     `yaml:"api"`
	Daemon  DaemonConfig  `yaml:"daemon"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	bc := circuitbreaker.DefaultConfig()
	return &Config{
		Cache: CacheConfig{
			Namespace:     cache.DefaultNamespace,
			SweepInterval: cache.DefaultSweepInterval,
		},
		Durable: DurableConfig{
			Driver:   durable.DriverMemory,
			MapQuota: durable.DefaultMapQuota,
			File: FileConfig{
				Dir:              "/var/lib/wmscache",
				CompressionLevel: 3,
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			Postgres: PostgresConfig{
				Table: durable.DefaultPostgresTable,
			},
			Breaker: BreakerConfig{
				Enabled:        true,
				ErrorPct:       bc.ErrorPct,
				MinRequests:    bc.MinRequests,
				Window:         bc.WindowDuration,
				OpenDuration:   bc.OpenDuration,
				HalfOpenProbes: bc.HalfOpenProbes,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "wms",
		},
		Tracing: TracingConfig{
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "wmscache",
			Version:     "dev",
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: 10 * time.Second,
		},
		Daemon: DaemonConfig{
			HTTPAddr: ":9090",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("WMS_CACHE_NAMESPACE"); v != "" {
		cfg.Cache.Namespace = v
	}
	if v := os.Getenv("WMS_CACHE_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WMS_CACHE_SWEEP_INTERVAL: %w", err)
		}
		cfg.Cache.SweepInterval = d
	}
	if v := os.Getenv("WMS_CACHE_SINGLE_FLIGHT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WMS_CACHE_SINGLE_FLIGHT: %w", err)
		}
		cfg.Cache.SingleFlight = b
	}
	if v := os.Getenv("WMS_DURABLE_DRIVER"); v != "" {
		cfg.Durable.Driver = v
	}
	if v := os.Getenv("WMS_FILE_DIR"); v != "" {
		cfg.Durable.File.Dir = v
	}
	if v := os.Getenv("WMS_REDIS_ADDR"); v != "" {
		cfg.Durable.Redis.Addr = v
	}
	if v := os.Getenv("WMS_REDIS_PASSWORD"); v != "" {
		cfg.Durable.Redis.Password = v
	}
	if v := os.Getenv("WMS_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WMS_REDIS_DB: %w", err)
		}
		cfg.Durable.Redis.DB = n
	}
	if v := os.Getenv("WMS_POSTGRES_DSN"); v != "" {
		cfg.Durable.Postgres.DSN = v
	}
	if v := os.Getenv("WMS_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("WMS_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("WMS_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("WMS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WMS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WMS_OTEL_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
		cfg.Tracing.Enabled = true
	}
	if v := os.Getenv("WMS_ENV"); v != "" {
		cfg.Tracing.Environment = v
	}
	return nil
}

// Load reads path (if non-empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Cache.Namespace == "" {
		return fmt.Errorf("cache.namespace must not be empty")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be positive")
	}
	if _, err := c.PolicyTable(); err != nil {
		return err
	}

	switch c.Durable.Driver {
	case durable.DriverMemory:
	case durable.DriverFile:
		if c.Durable.File.Dir == "" {
			return fmt.Errorf("durable.file.dir is required for the file driver")
		}
		if l := c.Durable.File.CompressionLevel; l < 0 || l > 22 {
			return fmt.Errorf("durable.file.compression_level must be 0-22, got %d", l)
		}
	case durable.DriverRedis:
		if c.Durable.Redis.Addr == "" {
			return fmt.Errorf("durable.redis.addr is required for the redis driver")
		}
	case durable.DriverPostgres:
		if c.Durable.Postgres.DSN == "" {
			return fmt.Errorf("durable.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown durable driver %q", c.Durable.Driver)
	}

	if b := c.Durable.Breaker; b.Enabled {
		if b.ErrorPct <= 0 || b.ErrorPct > 100 {
			return fmt.Errorf("durable.breaker.error_pct must be in (0, 100]")
		}
		if b.Window <= 0 || b.OpenDuration <= 0 {
			return fmt.Errorf("durable.breaker window and open_duration must be positive")
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// PolicyTable applies the configured overrides to the default policies.
// An override without a TTL keeps the default TTL, and one without a
// backend keeps the default backend.
func (c *Config) PolicyTable() (cache.PolicyTable, error) {
	table := cache.DefaultPolicies()
	for name, pc := range c.Cache.Policies {
		key := cache.Key(name)
		p, _ := table.Resolve(key)
		if pc.TTL != 0 {
			p.TTL = pc.TTL
		}
		if pc.Backend != "" {
			b, err := cache.ParseBackend(pc.Backend)
			if err != nil {
				return nil, fmt.Errorf("cache.policies.%s: %w", name, err)
			}
			p.Backend = b
		}
		table[key] = p
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// DurableOptions converts the durable section for durable.Open.
func (c *Config) DurableOptions() durable.Options {
	d := c.Durable
	opts := durable.Options{
		Driver:   d.Driver,
		MapQuota: d.MapQuota,
		File: durable.FileOptions{
			Dir:              d.File.Dir,
			MaxBytes:         d.File.MaxBytes,
			CompressionLevel: d.File.CompressionLevel,
		},
		Redis: durable.RedisConfig{
			Addr:     d.Redis.Addr,
			Password: d.Redis.Password,
			DB:       d.Redis.DB,
		},
		Postgres: durable.PostgresConfig{
			DSN:   d.Postgres.DSN,
			Table: d.Postgres.Table,
		},
	}
	if d.Breaker.Enabled {
		opts.Breaker = circuitbreaker.Config{
			ErrorPct:       d.Breaker.ErrorPct,
			MinRequests:    d.Breaker.MinRequests,
			WindowDuration: d.Breaker.Window,
			OpenDuration:   d.Breaker.OpenDuration,
			HalfOpenProbes: d.Breaker.HalfOpenProbes,
		}
	}
	return opts
}

// TracingOptions converts the tracing section for observability.Init.
func (c *Config) TracingOptions() observability.Config {
	return observability.Config{
		Enabled:        c.Tracing.Enabled,
		Exporter:       c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: c.Tracing.Version,
		Environment:    c.Tracing.Environment,
		SampleRate:     c.Tracing.SampleRate,
		Namespace:      c.Cache.Namespace,
		DurableDriver:  c.Durable.Driver,
	}
}
