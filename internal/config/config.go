package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PathEnv overrides the config file location.
const PathEnv = "TELEVET_CONFIG_PATH"

const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

type Config struct {
	App struct {
		Name string `yaml:"name"`
	} `yaml:"app"`

	Logging struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`

	Store struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		Firestore  struct {
			ProjectID       string `yaml:"project_id"`
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"firestore"`
	} `yaml:"store"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		Address   string `yaml:"address"`
		APIKey    string `yaml:"api_key"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduling struct {
		DefaultMinAdvanceMinutes int    `yaml:"default_min_advance_minutes"`
		MaxApplyRangeDays        int    `yaml:"max_apply_range_days"`
		SessionIdleMinutes       int    `yaml:"session_idle_minutes"`
		Timezone                 string `yaml:"timezone"`
	} `yaml:"scheduling"`
}

// Load reads the YAML config at path. An empty path falls back to
// TELEVET_CONFIG_PATH and then configs/config.yaml. A .env file next to the
// working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Store.Driver == DriverSQLite {
		if err = os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "televet"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "data/televet.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverFirestore:
		if c.Store.Firestore.ProjectID == "" {
			return fmt.Errorf("store.firestore.project_id is required for the firestore driver")
		}
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	if c.Backup.Enabled && c.Store.Driver != DriverSQLite {
		return fmt.Errorf("backup.enabled requires the sqlite store driver")
	}
	if c.Backup.IntervalHours < 0 || c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.interval_hours and backup.retention_days cannot be negative")
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative, got %d", c.Redis.DB)
	}
	if c.Redis.CacheTTLSeconds < 0 {
		return fmt.Errorf("redis.cache_ttl_seconds cannot be negative, got %d", c.Redis.CacheTTLSeconds)
	}

	if c.API.RateLimit.RPS < 0 {
		return fmt.Errorf("api.rate_limit.rps cannot be negative")
	}
	if c.API.RateLimit.Burst < 0 {
		return fmt.Errorf("api.rate_limit.burst cannot be negative, got %d", c.API.RateLimit.Burst)
	}

	if m := c.Scheduling.DefaultMinAdvanceMinutes; m < 0 || m > 1440 {
		return fmt.Errorf("scheduling.default_min_advance_minutes must be between 1 and 1440, got %d", m)
	}
	if c.Scheduling.MaxApplyRangeDays < 0 {
		return fmt.Errorf("scheduling.max_apply_range_days cannot be negative, got %d", c.Scheduling.MaxApplyRangeDays)
	}
	if c.Scheduling.SessionIdleMinutes < 0 {
		return fmt.Errorf("scheduling.session_idle_minutes cannot be negative, got %d", c.Scheduling.SessionIdleMinutes)
	}
	if c.Scheduling.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
			return fmt.Errorf("scheduling.timezone: %w", err)
		}
	}

	return nil
}

// Location is the zone vets' dates and slot times are read in.
func (c *Config) Location() *time.Location {
	if c.Scheduling.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) DefaultMinAdvance() int {
	if c.Scheduling.DefaultMinAdvanceMinutes <= 0 {
		return 30
	}
	return c.Scheduling.DefaultMinAdvanceMinutes
}

func (c *Config) MaxApplyRange() int {
	if c.Scheduling.MaxApplyRangeDays <= 0 {
		return 365
	}
	return c.Scheduling.MaxApplyRangeDays
}

// SessionIdle is how long a vet's scheduling session may go unused before
// it is closed.
func (c *Config) SessionIdle() time.Duration {
	if c.Scheduling.SessionIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Scheduling.SessionIdleMinutes) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

// CacheTTL is zero when the Redis cache is disabled.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.Address == "" || c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) RateLimit() (rps float64, burst int) {
	rps, burst = c.API.RateLimit.RPS, c.API.RateLimit.Burst
	if rps == 0 {
		rps = 20
	}
	if burst == 0 {
		burst = 40
	}
	return rps, burst
}
