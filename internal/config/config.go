// Package config loads harvester settings from defaults, an optional config
// file, BONGARD_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/bongard-harvester/pkg/client"
	"github.com/Sternrassler/bongard-harvester/pkg/index"
	"github.com/Sternrassler/bongard-harvester/pkg/logging"
	"github.com/Sternrassler/bongard-harvester/pkg/ratelimit"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BONGARD_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "BONGARD"

// Config is the complete harvester configuration.
type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	AssetBaseURL string `mapstructure:"asset_base_url"`

	StartID int `mapstructure:"start_id"`
	EndID   int `mapstructure:"end_id"`

	OutputDir string `mapstructure:"output_dir"`
	IndexName string `mapstructure:"index_name"`
	IndexMode string `mapstructure:"index_mode"`

	Workers   int           `mapstructure:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	// MaxRPS caps origin requests per second across workers; 0 means no cap.
	MaxRPS float64 `mapstructure:"max_rps"`

	Retry      RetryConfig      `mapstructure:"retry"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// RetryConfig is the transport retry policy.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	Statuses       []int         `mapstructure:"statuses"`
}

// PolitenessConfig bounds the random pause after each problem.
type PolitenessConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig enables the page cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SetDefaults registers every key with its default value. Keys unknown to
// viper are not looked up in the environment, so all keys are listed here.
func SetDefaults(v *viper.Viper) {
	retry := client.DefaultRetryConfig()
	pacing := ratelimit.DefaultConfig()

	v.SetDefault("base_url", "https://oebp.org/BP")
	v.SetDefault("asset_base_url", "")
	v.SetDefault("start_id", 1)
	v.SetDefault("end_id", 3000)
	v.SetDefault("output_dir", "Bongard_Dataset_v2")
	v.SetDefault("index_name", "solutions_and_images.csv")
	v.SetDefault("index_mode", string(index.ModeTruncate))
	v.SetDefault("workers", 7)
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("user_agent", client.DefaultConfig().UserAgent)
	v.SetDefault("max_rps", 0.0)

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", retry.MaxBackoff)
	v.SetDefault("retry.multiplier", retry.BackoffMultiplier)
	v.SetDefault("retry.statuses", retry.RetryableStatuses)

	v.SetDefault("politeness.min", pacing.MinDelay)
	v.SetDefault("politeness.max", pacing.MaxDelay)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
}

// Load reads configFile (if not empty) and the environment into a Config.
// Flags must already be bound to v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if ext := strings.TrimPrefix(filepath.Ext(configFile), "."); ext != "" {
			v.SetConfigType(ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		// Weak so "429,503" from the environment decodes into []int.
		mapstructure.StringToWeakSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate returns every problem with the configuration.
func (c *Config) Validate() []error {
	var errs []error

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL))
	}
	if c.AssetBaseURL != "" {
		if u, err := url.Parse(c.AssetBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("asset_base_url %q is not an absolute URL", c.AssetBaseURL))
		}
	}
	if c.StartID < 1 {
		errs = append(errs, fmt.Errorf("start_id must be >= 1 (got %d)", c.StartID))
	}
	if c.EndID < c.StartID {
		errs = append(errs, fmt.Errorf("end_id %d is below start_id %d", c.EndID, c.StartID))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.IndexName == "" || strings.ContainsAny(c.IndexName, `/\`) {
		errs = append(errs, fmt.Errorf("index_name %q must be a plain file name", c.IndexName))
	}
	if _, err := index.ParseMode(c.IndexMode); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1 (got %d)", c.Workers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive (got %v)", c.Timeout))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user_agent is required"))
	}
	if c.MaxRPS < 0 {
		errs = append(errs, fmt.Errorf("max_rps must not be negative (got %v)", c.MaxRPS))
	}
	if err := c.retryConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, s := range c.Retry.Statuses {
		if s < 400 || s > 599 || s == 404 {
			errs = append(errs, fmt.Errorf("retry.statuses: %d is not a retryable error status", s))
		}
	}
	if err := c.PacerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		errs = append(errs, fmt.Errorf("redis.ttl must be positive (got %v)", c.Redis.TTL))
	}

	return errs
}

// IndexPath returns the path of the index file.
func (c *Config) IndexPath() string {
	return filepath.Join(c.OutputDir, c.IndexName)
}

// Mode returns the parsed index mode.
func (c *Config) Mode() index.Mode {
	m, _ := index.ParseMode(c.IndexMode)
	return m
}

func (c *Config) retryConfig() client.RetryConfig {
	return client.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialBackoff:    c.Retry.InitialBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		BackoffMultiplier: c.Retry.Multiplier,
		RetryableStatuses: c.Retry.Statuses,
	}
}

// ClientConfig returns the transport configuration. Cache and Observer are
// left for the caller to wire.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.Timeout = c.Timeout
	cfg.UserAgent = c.UserAgent
	cfg.MaxIdleConnsPerHost = c.Workers + 1
	cfg.MaxRequestsPerSecond = c.MaxRPS
	cfg.Retry = c.retryConfig()
	return cfg
}

// PacerConfig returns the politeness configuration.
func (c *Config) PacerConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.MinDelay = c.Politeness.Min
	cfg.MaxDelay = c.Politeness.Max
	return cfg
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
