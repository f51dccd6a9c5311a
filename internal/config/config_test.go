package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TELEVET_TEST_API_KEY", "secret")
	path := writeConfig(t, `
logging:
  level: debug
  console: true
store:
  driver: sqlite
  sqlite_path: `+filepath.Join(dir, "nested", "televet.db")+`
redis:
  address: localhost:6379
  cache_ttl_seconds: 15
api:
  api_key: ${TELEVET_TEST_API_KEY}
scheduling:
  default_min_advance_minutes: 45
  session_idle_minutes: 10
  timezone: America/New_York
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, ":8080", cfg.API.Address)
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, 45, cfg.DefaultMinAdvance())
	assert.Equal(t, 365, cfg.MaxApplyRange())
	assert.Equal(t, 15*time.Second, cfg.CacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 10*time.Minute, cfg.SessionIdle())
	assert.Equal(t, "data/backups", cfg.Backup.Path)
	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.DirExists(t, filepath.Join(dir, "nested"))

	rps, burst := cfg.RateLimit()
	assert.Equal(t, 20.0, rps)
	assert.Equal(t, 40, burst)
}

func TestLoad_PathFromEnv(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Zero(t, cfg.CacheTTL())
	assert.Equal(t, time.Local, cfg.Location())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdle())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "store: ["))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, `store.driver: unknown driver "mongo"`},
		{"firestore without project", func(c *Config) { c.Store.Driver = DriverFirestore }, "store.firestore.project_id is required"},
		{"backup without sqlite", func(c *Config) { c.Store.Driver = DriverMemory; c.Backup.Enabled = true }, "backup.enabled requires the sqlite store driver"},
		{"negative redis db", func(c *Config) { c.Redis.DB = -1 }, "redis.db cannot be negative"},
		{"negative burst", func(c *Config) { c.API.RateLimit.Burst = -3 }, "api.rate_limit.burst cannot be negative"},
		{"advance too large", func(c *Config) { c.Scheduling.DefaultMinAdvanceMinutes = 2000 }, "default_min_advance_minutes must be between"},
		{"negative session idle", func(c *Config) { c.Scheduling.SessionIdleMinutes = -1 }, "scheduling.session_idle_minutes cannot be negative"},
		{"bad timezone", func(c *Config) { c.Scheduling.Timezone = "Mars/Olympus" }, "scheduling.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.applyDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
