package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Google       GoogleConfig       `yaml:"google" mapstructure:"google"`
	Foursquare   FoursquareConfig   `yaml:"foursquare" mapstructure:"foursquare"`
	Geocode      GeocodeConfig      `yaml:"geocode" mapstructure:"geocode"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Discovery    DiscoveryConfig    `yaml:"discovery" mapstructure:"discovery"`
	Registration RegistrationConfig `yaml:"registration" mapstructure:"registration"`
	Auth         AuthConfig         `yaml:"auth" mapstructure:"auth"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// FoursquareConfig holds the backup places provider settings. An empty key
// disables backup search.
type FoursquareConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GeocodeConfig holds Google Geocoding settings. The key falls back to google.key.
type GeocodeConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// RedisConfig enables the neighborhood lease and the geocode cache when URL is set.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// DiscoveryConfig configures discovery runs.
type DiscoveryConfig struct {
	TimeBudgetSecs     int     `yaml:"time_budget_secs" mapstructure:"time_budget_secs"`
	ZoneDelayMs        int     `yaml:"zone_delay_ms" mapstructure:"zone_delay_ms"`
	DefaultMaxResults  int     `yaml:"default_max_results" mapstructure:"default_max_results"`
	DefaultMaxZones    int     `yaml:"default_max_zones" mapstructure:"default_max_zones"`
	ZoneResultLimit    int     `yaml:"zone_result_limit" mapstructure:"zone_result_limit"`
	InsertChunkSize    int     `yaml:"insert_chunk_size" mapstructure:"insert_chunk_size"`
	LeaseTTLSecs       int     `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
	BackupQuery        string  `yaml:"backup_query" mapstructure:"backup_query"`
	BackupLimit        int     `yaml:"backup_limit" mapstructure:"backup_limit"`
	BackupSmallYield   int     `yaml:"backup_small_yield" mapstructure:"backup_small_yield"`
	BackupLargeYield   int     `yaml:"backup_large_yield" mapstructure:"backup_large_yield"`
	BackupDedupeMeters float64 `yaml:"backup_dedupe_meters" mapstructure:"backup_dedupe_meters"`
}

// RegistrationConfig configures the store registration flow.
type RegistrationConfig struct {
	CoordinateThresholdM float64 `yaml:"coordinate_threshold_m" mapstructure:"coordinate_threshold_m"`
}

// AuthConfig holds the static admin credential that gates discovery.
type AuthConfig struct {
	AdminUsername string `yaml:"admin_username" mapstructure:"admin_username"`
	AdminPassword string `yaml:"admin_password" mapstructure:"admin_password"`
}

// RetryConfig configures provider retries and circuit breaking.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerFailures  int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// PricingConfig holds per-call provider rates in USD.
type PricingConfig struct {
	PlacesPerCall     float64 `yaml:"places_per_call" mapstructure:"places_per_call"`
	FoursquarePerCall float64 `yaml:"foursquare_per_call" mapstructure:"foursquare_per_call"`
	GeocodePerCall    float64 `yaml:"geocode_per_call" mapstructure:"geocode_per_call"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures audit-log alerting. An empty WebhookURL
// disables the background checker.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BudgetExceededThreshold float64 `yaml:"budget_exceeded_threshold" mapstructure:"budget_exceeded_threshold"`
	CostThresholdUSD        float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Geocode.Key == "" {
		cfg.Geocode.Key = cfg.Google.Key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys with no default still need registering so AutomaticEnv can fill them.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("foursquare.key", "")
	v.SetDefault("foursquare.base_url", "https://api.foursquare.com/v3")
	v.SetDefault("foursquare.rate_limit", 5.0)
	v.SetDefault("geocode.key", "")
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.cache_ttl_hours", 720)
	v.SetDefault("redis.url", "")
	v.SetDefault("discovery.time_budget_secs", 24)
	v.SetDefault("discovery.zone_delay_ms", 100)
	v.SetDefault("discovery.default_max_results", 200)
	v.SetDefault("discovery.default_max_zones", 10)
	v.SetDefault("discovery.zone_result_limit", 20)
	v.SetDefault("discovery.insert_chunk_size", 100)
	v.SetDefault("discovery.lease_ttl_secs", 60)
	v.SetDefault("discovery.backup_query", "store")
	v.SetDefault("discovery.backup_limit", 30)
	v.SetDefault("discovery.backup_small_yield", 10)
	v.SetDefault("discovery.backup_large_yield", 45)
	v.SetDefault("discovery.backup_dedupe_meters", 50.0)
	v.SetDefault("registration.coordinate_threshold_m", 1000.0)
	v.SetDefault("auth.admin_username", "")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("retry.breaker_failures", 5)
	v.SetDefault("retry.breaker_reset_secs", 30)
	v.SetDefault("pricing.places_per_call", 0.032)
	v.SetDefault("pricing.foursquare_per_call", 0.015)
	v.SetDefault("pricing.geocode_per_call", 0.005)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.budget_exceeded_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 25.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the keys a command needs. mode is one of "discovery",
// "serve", "registration" or "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "migrate":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	case "discovery":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
		require(c.Google.Key != "", "google.key is required")
		problems = append(problems, c.discoveryProblems()...)
	case "registration":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
		require(c.Google.Key != "", "google.key is required")
		require(c.Registration.CoordinateThresholdM > 0, "registration.coordinate_threshold_m must be > 0")
	case "serve":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
		require(c.Google.Key != "", "google.key is required")
		require(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535")
		require(c.Auth.AdminUsername != "" && c.Auth.AdminPassword != "", "auth.admin_username and auth.admin_password are required")
		require(c.Registration.CoordinateThresholdM > 0, "registration.coordinate_threshold_m must be > 0")
		problems = append(problems, c.discoveryProblems()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) discoveryProblems() []string {
	var problems []string
	d := c.Discovery
	if d.TimeBudgetSecs <= 0 {
		problems = append(problems, "discovery.time_budget_secs must be > 0")
	}
	if d.ZoneResultLimit < 1 || d.ZoneResultLimit > 20 {
		problems = append(problems, "discovery.zone_result_limit must be between 1 and 20")
	}
	if d.InsertChunkSize < 1 || d.InsertChunkSize > 500 {
		problems = append(problems, "discovery.insert_chunk_size must be between 1 and 500")
	}
	if d.ZoneDelayMs < 0 {
		problems = append(problems, "discovery.zone_delay_ms must be >= 0")
	}
	return problems
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
