package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/bongard-harvester/pkg/index"
	"github.com/Sternrassler/bongard-harvester/pkg/logging"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "https://oebp.org/BP", cfg.BaseURL)
	assert.Equal(t, 1, cfg.StartID)
	assert.Equal(t, 3000, cfg.EndID)
	assert.Equal(t, "Bongard_Dataset_v2", cfg.OutputDir)
	assert.Equal(t, filepath.Join("Bongard_Dataset_v2", "solutions_and_images.csv"), cfg.IndexPath())
	assert.Equal(t, index.ModeTruncate, cfg.Mode())
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialBackoff)
	assert.Equal(t, []int{429, 500, 502, 503, 504}, cfg.Retry.Statuses)
	assert.Equal(t, time.Second, cfg.Politeness.Min)
	assert.Equal(t, 2*time.Second, cfg.Politeness.Max)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Metrics.Addr)

	assert.Empty(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
start_id: 10
end_id: 20
workers: 3
index_mode: append
retry:
  max_attempts: 5
  initial_backoff: 250ms
politeness:
  min: 0s
  max: 500ms
log:
  level: debug
`), 0o644))

	t.Setenv("BONGARD_WORKERS", "9")
	t.Setenv("BONGARD_RETRY_STATUSES", "429,503")
	t.Setenv("BONGARD_REDIS_ADDR", "localhost:6379")
	t.Setenv("BONGARD_MAX_RPS", "2.5")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.StartID)
	assert.Equal(t, 20, cfg.EndID)
	assert.Equal(t, 9, cfg.Workers, "environment overrides the file")
	assert.Equal(t, index.ModeAppend, cfg.Mode())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, []int{429, 503}, cfg.Retry.Statuses)
	assert.Equal(t, time.Duration(0), cfg.Politeness.Min)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Validate())

	assert.Equal(t, logging.LevelDebug, cfg.LoggingConfig().Level)

	cc := cfg.ClientConfig()
	assert.Equal(t, 5, cc.Retry.MaxAttempts)
	assert.Equal(t, 10, cc.MaxIdleConnsPerHost)
	assert.Equal(t, 2.5, cc.MaxRequestsPerSecond)

	pc := cfg.PacerConfig()
	assert.Equal(t, 500*time.Millisecond, pc.MaxDelay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("BONGARD_END_ID", "50")

	v := viper.New()
	v.Set("end_id", 60)

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.EndID)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"start below one", func(c *Config) { c.StartID = 0 }, "start_id"},
		{"end before start", func(c *Config) { c.StartID, c.EndID = 10, 5 }, "end_id"},
		{"relative base url", func(c *Config) { c.BaseURL = "oebp.org/BP" }, "base_url"},
		{"bad asset url", func(c *Config) { c.AssetBaseURL = "/examples" }, "asset_base_url"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative rate", func(c *Config) { c.MaxRPS = -2 }, "max_rps"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"404 retried", func(c *Config) { c.Retry.Statuses = []int{404} }, "retry.statuses"},
		{"politeness inverted", func(c *Config) { c.Politeness.Min = 3 * time.Second }, "politeness"},
		{"unknown mode", func(c *Config) { c.IndexMode = "merge" }, "index mode"},
		{"index path", func(c *Config) { c.IndexName = "../x.csv" }, "index_name"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"redis ttl", func(c *Config) { c.Redis.Addr = "r:6379"; c.Redis.TTL = 0 }, "redis.ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			joined := ""
			for _, e := range errs {
				joined += e.Error() + "\n"
			}
			assert.True(t, strings.Contains(joined, tt.want), "want %q in %s", tt.want, joined)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	cfg.StartID = 0
	cfg.Workers = 0
	cfg.Timeout = 0
	assert.Len(t, cfg.Validate(), 3)
}
