package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "quote.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "memory", cfg.Cities.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://www8.caixa.gov.br/siopiinternet-web", cfg.Remote.BaseURL)
	assert.Equal(t, 20, cfg.Remote.TimeoutSecs)
	assert.Equal(t, 20*time.Second, cfg.Remote.Timeout())
	assert.Equal(t, 5, cfg.Remote.BreakerFailures)
	assert.Equal(t, 60, cfg.Remote.BreakerResetSecs)
	assert.InDelta(t, 1.0, cfg.Remote.RatePerSec, 0.001)
	assert.False(t, cfg.Remote.Disabled)
	assert.InDelta(t, 0.01, cfg.Reconcile.Tolerance, 1e-9)
	assert.Equal(t, 24, cfg.Cities.RedisTTLHours)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 1, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.5, cfg.Monitoring.BlockRateThreshold, 1e-9)

	for _, mode := range []string{"serve", "simulate", "cities", "store"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/quotes
log:
  level: debug
  format: console
server:
  port: 9090
reconcile:
  tolerance: 0.05
engine:
  annual_contract_rate: 10.5
  monthly_insurance: 245
cities:
  driver: redis
  warm: [DF, SP]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/quotes", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.05, cfg.Reconcile.Tolerance, 1e-9)
	assert.InDelta(t, 10.5, cfg.Engine.AnnualContractRate, 1e-9)
	assert.InDelta(t, 245.0, cfg.Engine.MonthlyInsurance, 1e-9)
	assert.Equal(t, "redis", cfg.Cities.Driver)
	assert.Equal(t, []string{"DF", "SP"}, cfg.Cities.Warm)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Remote.TimeoutSecs)
	assert.Equal(t, "localhost:6379", cfg.Cities.RedisAddr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("QUOTE_STORE_DRIVER", "postgres")
	t.Setenv("QUOTE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("QUOTE_SERVER_PORT", "3000")
	t.Setenv("QUOTE_REMOTE_BASE_URL", "http://localhost:9999")
	t.Setenv("QUOTE_REMOTE_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "http://localhost:9999", cfg.Remote.BaseURL)
	assert.True(t, cfg.Remote.Disabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Remote.TimeoutSecs = 20
	cfg.Reconcile.Tolerance = 0.01
	cfg.Cities.Driver = "memory"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "quote.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)

	// Simulation without persistence does not care about the store.
	assert.NoError(t, cfg.Validate("simulate"))
}

func TestValidateStoreURLRequired(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Reconcile.Tolerance = -1
	cfg.Remote.TimeoutSecs = 0
	cfg.Cities.Driver = "memcached"

	err := cfg.Validate("cities")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile.tolerance must be >= 0")
	assert.Contains(t, err.Error(), "remote.timeout_secs must be > 0")
	assert.Contains(t, err.Error(), `cities.driver "memcached"`)
}

func TestValidateRedisNeedsAddr(t *testing.T) {
	cfg := validDefaults()
	cfg.Cities.Driver = "redis"

	err := cfg.Validate("cities")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cities.redis_addr")

	cfg.Cities.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate("cities"))
}

func TestValidateServe_MonitoringLookback(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.Enabled = true

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.lookback_window_hours must be > 0")

	cfg.Monitoring.LookbackWindowHours = 1
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\nreconcile:\n  tolerance: 0.05\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.InDelta(t, 0.05, cfg.Reconcile.Tolerance, 1e-9)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}
