// Package config provides configuration loading for the analyzer: a YAML
// file with env-var overrides, plus the helper accessors used across the
// codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Chain    ChainConfig    `yaml:"chain"`
	Rewards  RewardsConfig  `yaml:"rewards"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ChainConfig identifies the chain endpoint and the analyzed vault.
type ChainConfig struct {
	RPCEndpoint     string  `yaml:"rpc_endpoint"`
	VaultAddress    string  `yaml:"vault_address"`
	ShareDecimals   uint8   `yaml:"share_decimals"`
	AssetDecimals   uint8   `yaml:"asset_decimals"`
	UnderlyingAsset string  `yaml:"underlying_asset"` // token id for USD pricing
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
}

// RewardsConfig points at the rewards distribution API.
type RewardsConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// AnalysisConfig carries the yield-computation policy knobs.
type AnalysisConfig struct {
	MinPeriodDuration time.Duration `yaml:"min_period_duration"`
	OverdrawPolicy    string        `yaml:"overdraw_policy"` // error | clamp | allow
	SignedInterest    bool          `yaml:"signed_interest"`
	SecondsPerYear    float64       `yaml:"seconds_per_year"`
	MaxPlausibleAPY   float64       `yaml:"max_plausible_apy"`
}

// BreakerConfig configures the price-sample circuit breaker.
type BreakerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MaxJumpRatio    float64       `yaml:"max_jump_ratio"`
	MaxDropRatio    float64       `yaml:"max_drop_ratio"`
	Cooldown        time.Duration `yaml:"cooldown"`
	HealthThreshold int           `yaml:"health_threshold"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port          string        `yaml:"port"`
	Timeout       time.Duration `yaml:"timeout"`
	SignResponses bool          `yaml:"sign_responses"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// StorageConfig controls the persistent cache; empty DSN disables it.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path (optional: empty path skips it), loads a
// .env file when present, applies env overrides and fills defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPC_ENDPOINT"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := os.Getenv("VAULT_ADDRESS"); v != "" {
		cfg.Chain.VaultAddress = v
	}
	if v := os.Getenv("REWARDS_API_URL"); v != "" {
		cfg.Rewards.BaseURL = v
	}
	if v := os.Getenv("REWARDS_API_KEY"); v != "" {
		cfg.Rewards.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Chain.ShareDecimals == 0 {
		cfg.Chain.ShareDecimals = 18
	}
	if cfg.Chain.AssetDecimals == 0 {
		cfg.Chain.AssetDecimals = 18
	}
	if cfg.Chain.RateLimitRPS == 0 {
		cfg.Chain.RateLimitRPS = 10
	}
	if cfg.Analysis.MinPeriodDuration == 0 {
		cfg.Analysis.MinPeriodDuration = time.Hour
	}
	if cfg.Analysis.OverdrawPolicy == "" {
		cfg.Analysis.OverdrawPolicy = "error"
	}
	if cfg.Analysis.SecondsPerYear == 0 {
		cfg.Analysis.SecondsPerYear = 365 * 24 * 60 * 60
	}
	if cfg.Analysis.MaxPlausibleAPY == 0 {
		cfg.Analysis.MaxPlausibleAPY = 1000
	}
	if cfg.Breaker.MaxJumpRatio == 0 {
		cfg.Breaker.MaxJumpRatio = 0.5
	}
	if cfg.Breaker.MaxDropRatio == 0 {
		cfg.Breaker.MaxDropRatio = 0.05
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = time.Minute
	}
	if cfg.Breaker.HealthThreshold == 0 {
		cfg.Breaker.HealthThreshold = 3
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 60 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// GetEnv retrieves an environment variable and whether it exists.
func GetEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// GetEnvOrDefault retrieves an environment variable or the default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a bool with a default.
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
