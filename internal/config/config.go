package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Remote     RemoteConfig     `yaml:"remote" mapstructure:"remote"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Cities     CitiesConfig     `yaml:"cities" mapstructure:"cities"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// RemoteConfig describes the remote lending authority and how hard we may
// call it.
type RemoteConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	EntryPath        string  `yaml:"entry_path" mapstructure:"entry_path"`
	EligibilityPath  string  `yaml:"eligibility_path" mapstructure:"eligibility_path"`
	SimulatePath     string  `yaml:"simulate_path" mapstructure:"simulate_path"`
	CitiesPath       string  `yaml:"cities_path" mapstructure:"cities_path"`
	PagePath         string  `yaml:"page_path" mapstructure:"page_path"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	VersionTag       string  `yaml:"version_tag" mapstructure:"version_tag"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	Disabled         bool    `yaml:"disabled" mapstructure:"disabled"`
}

// Timeout returns the per-request timeout.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// ReconcileConfig configures the reconciliation classifier.
type ReconcileConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// EngineConfig holds the rates applied when a request omits them. Rates are
// annual percentages.
type EngineConfig struct {
	AnnualContractRate float64 `yaml:"annual_contract_rate" mapstructure:"annual_contract_rate"`
	AnnualIndexRate    float64 `yaml:"annual_index_rate" mapstructure:"annual_index_rate"`
	MonthlyInsurance   float64 `yaml:"monthly_insurance" mapstructure:"monthly_insurance"`
	MonthlyAdminFee    float64 `yaml:"monthly_admin_fee" mapstructure:"monthly_admin_fee"`
}

// CitiesConfig selects the city cache tier.
type CitiesConfig struct {
	Driver        string   `yaml:"driver" mapstructure:"driver"`
	RedisAddr     string   `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisTTLHours int      `yaml:"redis_ttl_hours" mapstructure:"redis_ttl_hours"`
	Warm          []string `yaml:"warm" mapstructure:"warm"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures remote health alerting.
type MonitoringConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	BlockRateThreshold      float64 `yaml:"block_rate_threshold" mapstructure:"block_rate_threshold"`
	DivergenceRateThreshold float64 `yaml:"divergence_rate_threshold" mapstructure:"divergence_rate_threshold"`
	MinSamples              int     `yaml:"min_samples" mapstructure:"min_samples"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. With no path it looks
// for an optional ./config.yaml; an explicit path must exist.
func Load(path ...string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if len(path) > 0 && path[0] != "" {
		v.SetConfigFile(path[0])
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("QUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("remote.base_url", "https://www8.caixa.gov.br/siopiinternet-web")
	v.SetDefault("remote.entry_path", "/simulaOperacaoInternet.do?method=inicializarCasoUso")
	v.SetDefault("remote.eligibility_path", "/simulaOperacaoInternet.do?method=enquadrarProdutos")
	v.SetDefault("remote.simulate_path", "/dwr/call/plaincall/SimuladorAjax.simular.dwr")
	v.SetDefault("remote.cities_path", "/dwr/call/plaincall/CidadeAjax.listarCidades.dwr")
	v.SetDefault("remote.page_path", "/siopiinternet-web/simulaOperacaoInternet.do?method=inicializarCasoUso")
	v.SetDefault("remote.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("remote.version_tag", "201505")
	v.SetDefault("remote.timeout_secs", 20)
	v.SetDefault("remote.rate_per_sec", 1.0)
	v.SetDefault("remote.burst", 3)
	v.SetDefault("remote.breaker_failures", 5)
	v.SetDefault("remote.breaker_reset_secs", 60)
	v.SetDefault("remote.disabled", false)
	v.SetDefault("reconcile.tolerance", 0.01)
	v.SetDefault("engine.annual_contract_rate", 0.0)
	v.SetDefault("engine.annual_index_rate", 0.0)
	v.SetDefault("engine.monthly_insurance", 0.0)
	v.SetDefault("engine.monthly_admin_fee", 0.0)
	v.SetDefault("cities.driver", "memory")
	v.SetDefault("cities.redis_addr", "localhost:6379")
	v.SetDefault("cities.redis_ttl_hours", 24)
	v.SetDefault("cities.warm", []string{})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "quote.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 1)
	v.SetDefault("monitoring.block_rate_threshold", 0.5)
	v.SetDefault("monitoring.divergence_rate_threshold", 0.2)
	v.SetDefault("monitoring.min_samples", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: serve,
// simulate, cities, store.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Reconcile.Tolerance < 0 {
		errs = append(errs, "reconcile.tolerance must be >= 0")
	}
	if c.Remote.TimeoutSecs <= 0 {
		errs = append(errs, "remote.timeout_secs must be > 0")
	}
	if c.Remote.RatePerSec < 0 {
		errs = append(errs, "remote.rate_per_sec must be >= 0")
	}
	switch c.Cities.Driver {
	case "memory":
	case "redis":
		if c.Cities.RedisAddr == "" {
			errs = append(errs, "cities.redis_addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("cities.driver %q is not one of memory, redis", c.Cities.Driver))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
		errs = append(errs, c.storeErrors()...)
	case "store":
		errs = append(errs, c.storeErrors()...)
	case "simulate", "cities":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 {
		errs = append(errs, "store pool sizes must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
