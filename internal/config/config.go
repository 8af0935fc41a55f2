// Package config handles configuration loading for marketd.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	API        APIConfig        `mapstructure:"api"        yaml:"api"`
	Cache      CacheConfig      `mapstructure:"cache"      yaml:"cache"`
	Stocks     FamilyConfig     `mapstructure:"stocks"     yaml:"stocks"`
	Indices    FamilyConfig     `mapstructure:"indices"    yaml:"indices"`
	Providers  ProvidersConfig  `mapstructure:"providers"  yaml:"providers"`
	Indicators IndicatorsConfig `mapstructure:"indicators" yaml:"indicators"`
	News       NewsConfig       `mapstructure:"news"       yaml:"news"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// CacheConfig selects and configures the quote store backend.
type CacheConfig struct {
	Backend   string `mapstructure:"backend"    yaml:"backend"` // "memory" or "redis"
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"   yaml:"redis_db"`
}

// FamilyConfig parameterizes one quote service family (stocks or indices).
// The original deployment ran several near-identical service variants with
// drifting constants; here every variant is an instance of this struct.
type FamilyConfig struct {
	Symbols          []string `mapstructure:"symbols"             yaml:"symbols"`
	CacheTTLSec      int      `mapstructure:"cache_ttl_sec"       yaml:"cache_ttl_sec"`
	PollIntervalSec  int      `mapstructure:"poll_interval_sec"   yaml:"poll_interval_sec"`
	InitialDelaySec  int      `mapstructure:"initial_delay_sec"   yaml:"initial_delay_sec"`
	MinRequestGapSec int      `mapstructure:"min_request_gap_sec" yaml:"min_request_gap_sec"`
	MaxRequestGapSec int      `mapstructure:"max_request_gap_sec" yaml:"max_request_gap_sec"`
	CooldownMin      int      `mapstructure:"cooldown_min"        yaml:"cooldown_min"`
	FetchTimeoutSec  int      `mapstructure:"fetch_timeout_sec"   yaml:"fetch_timeout_sec"`
	BatchLimit       int      `mapstructure:"batch_limit"         yaml:"batch_limit"`
	FallbackOnMiss   bool     `mapstructure:"fallback_on_miss"    yaml:"fallback_on_miss"`
	CacheFallback    bool     `mapstructure:"cache_fallback"      yaml:"cache_fallback"`
	RealDataOnly     bool     `mapstructure:"real_data_only"      yaml:"real_data_only"`
	JitterPct        float64  `mapstructure:"jitter_pct"          yaml:"jitter_pct"`
}

// CacheTTL returns the cache TTL as a duration.
func (f FamilyConfig) CacheTTL() time.Duration { return time.Duration(f.CacheTTLSec) * time.Second }

// PollInterval returns the poll interval as a duration.
func (f FamilyConfig) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalSec) * time.Second
}

// InitialDelay returns the delay before the first poll pass.
func (f FamilyConfig) InitialDelay() time.Duration {
	return time.Duration(f.InitialDelaySec) * time.Second
}

// Cooldown returns the provider cool-down duration.
func (f FamilyConfig) Cooldown() time.Duration { return time.Duration(f.CooldownMin) * time.Minute }

// FetchTimeout returns the per-request upstream timeout.
func (f FamilyConfig) FetchTimeout() time.Duration {
	return time.Duration(f.FetchTimeoutSec) * time.Second
}

// ProvidersConfig holds upstream data provider settings.
type ProvidersConfig struct {
	AlphaVantageKey string `mapstructure:"alpha_vantage_key" yaml:"alpha_vantage_key"`
	YahooBaseURL    string `mapstructure:"yahoo_base_url"    yaml:"yahoo_base_url"`
}

// IndicatorsConfig holds Banco Central series API credentials.
type IndicatorsConfig struct {
	User        string `mapstructure:"user"          yaml:"user"`
	Password    string `mapstructure:"password"      yaml:"password"`
	BaseURL     string `mapstructure:"base_url"      yaml:"base_url"`
	CacheTTLSec int    `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
}

// NewsConfig holds news collection settings.
type NewsConfig struct {
	RefreshMin int `mapstructure:"refresh_min"  yaml:"refresh_min"`
	MaxPerFeed int `mapstructure:"max_per_feed" yaml:"max_per_feed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.marketd/config.yaml (home directory)
//  3. /etc/marketd/config.yaml (system)
//
// Environment variables override config file values.
// Format: MARKETD_<SECTION>_<KEY>, e.g. MARKETD_PROVIDERS_ALPHA_VANTAGE_KEY
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".marketd"))
	v.AddConfigPath("/etc/marketd")

	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	// Stocks: 15-minute cache, 30-minute polls, 10-15s between upstream
	// calls, one-hour cool-down when the provider throttles us.
	v.SetDefault("stocks.symbols", []string{"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN"})
	v.SetDefault("stocks.cache_ttl_sec", 900)
	v.SetDefault("stocks.poll_interval_sec", 1800)
	v.SetDefault("stocks.initial_delay_sec", 120)
	v.SetDefault("stocks.min_request_gap_sec", 10)
	v.SetDefault("stocks.max_request_gap_sec", 15)
	v.SetDefault("stocks.cooldown_min", 60)
	v.SetDefault("stocks.fetch_timeout_sec", 30)
	v.SetDefault("stocks.batch_limit", 5)
	v.SetDefault("stocks.fallback_on_miss", false)
	v.SetDefault("stocks.cache_fallback", true)
	v.SetDefault("stocks.real_data_only", false)
	v.SetDefault("stocks.jitter_pct", 3.0)

	// Indices: wider request gaps, short upstream timeout, and immediate
	// fallback for on-demand misses so reads never block on Yahoo.
	v.SetDefault("indices.symbols", []string{"^GSPC", "^DJI", "^IXIC", "^FTSE", "^GDAXI", "^BVSP", "^IBEX", "^N225"})
	v.SetDefault("indices.cache_ttl_sec", 900)
	v.SetDefault("indices.poll_interval_sec", 1800)
	v.SetDefault("indices.initial_delay_sec", 300)
	v.SetDefault("indices.min_request_gap_sec", 15)
	v.SetDefault("indices.max_request_gap_sec", 25)
	v.SetDefault("indices.cooldown_min", 120)
	v.SetDefault("indices.fetch_timeout_sec", 5)
	v.SetDefault("indices.batch_limit", 5)
	v.SetDefault("indices.fallback_on_miss", true)
	v.SetDefault("indices.cache_fallback", true)
	v.SetDefault("indices.real_data_only", false)
	v.SetDefault("indices.jitter_pct", 0.5)

	// Provider defaults
	v.SetDefault("providers.yahoo_base_url", "https://query1.finance.yahoo.com")

	// Indicators defaults
	v.SetDefault("indicators.base_url", "https://si3.bcentral.cl/SieteRestWS/SieteRestWS.ashx")
	v.SetDefault("indicators.cache_ttl_sec", 3600)

	// News defaults
	v.SetDefault("news.refresh_min", 60)
	v.SetDefault("news.max_per_feed", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("MARKETD_PROVIDERS_ALPHA_VANTAGE_KEY"); key != "" {
		cfg.Providers.AlphaVantageKey = key
	}
	if user := os.Getenv("MARKETD_INDICATORS_USER"); user != "" {
		cfg.Indicators.User = user
	}
	if pass := os.Getenv("MARKETD_INDICATORS_PASSWORD"); pass != "" {
		cfg.Indicators.Password = pass
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
