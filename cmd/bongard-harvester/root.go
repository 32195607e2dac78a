package main

import (
	"fmt"
	"time"

	"github.com/Sternrassler/bongard-harvester/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bongard-harvester",
		Short: "Crawl Bongard problems into an image dataset with a CSV index",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableNoDescFlag:   true,
			DisableDescriptions: true,
			HiddenDefaultCmd:    true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewVersionCommand())

	rootCmd.Version = version
	return rootCmd
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":           "base_url",
	"asset-base-url":     "asset_base_url",
	"start":              "start_id",
	"end":                "end_id",
	"output":             "output_dir",
	"index-name":         "index_name",
	"index-mode":         "index_mode",
	"workers":            "workers",
	"timeout":            "timeout",
	"user-agent":         "user_agent",
	"max-rps":            "max_rps",
	"max-attempts":       "retry.max_attempts",
	"initial-backoff":    "retry.initial_backoff",
	"max-backoff":        "retry.max_backoff",
	"backoff-multiplier": "retry.multiplier",
	"retry-statuses":     "retry.statuses",
	"politeness-min":     "politeness.min",
	"politeness-max":     "politeness.max",
	"log-level":          "log.level",
	"log-pretty":         "log.pretty",
	"metrics-addr":       "metrics.addr",
	"redis-addr":         "redis.addr",
	"redis-db":           "redis.db",
	"redis-ttl":          "redis.ttl",
}

// addOutputFlags registers the flags locating the dataset on disk.
func addOutputFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "config file (yaml, toml or json)")
	flags.StringP("output", "o", "Bongard_Dataset_v2", "output root directory")
	flags.String("index-name", "solutions_and_images.csv", "index file name inside the output root")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
}

// addCrawlFlags registers the flags controlling a crawl.
func addCrawlFlags(flags *pflag.FlagSet) {
	flags.String("base-url", "https://oebp.org/BP", "problem URL prefix; the numeric ID is appended")
	flags.String("asset-base-url", "", "base URL for relative image references (default: origin of base-url)")
	flags.Int("start", 1, "first problem ID")
	flags.Int("end", 3000, "last problem ID (inclusive)")
	flags.String("index-mode", "truncate", "truncate: start a fresh index; append: keep rows and skip indexed IDs")
	flags.IntP("workers", "w", 7, "problems processed in parallel")
	flags.Duration("timeout", 10*time.Second, "timeout of a single HTTP request")
	flags.String("user-agent", "", "User-Agent header (default: built-in)")
	flags.Float64("max-rps", 0, "cap on origin requests per second across workers (0: no cap)")
	flags.Int("max-attempts", 3, "total attempts per request, first one included")
	flags.Duration("initial-backoff", time.Second, "backoff before the first retry")
	flags.Duration("max-backoff", 30*time.Second, "backoff cap")
	flags.Float64("backoff-multiplier", 2, "backoff growth factor")
	flags.IntSlice("retry-statuses", []int{429, 500, 502, 503, 504}, "HTTP statuses that are retried")
	flags.Duration("politeness-min", time.Second, "minimum pause after each problem")
	flags.Duration("politeness-max", 2*time.Second, "maximum pause after each problem")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("redis-addr", "", "Redis address for the page cache (empty: no cache)")
	flags.Int("redis-db", 0, "Redis database")
	flags.Duration("redis-ttl", 24*time.Hour, "page cache TTL")
}

// loadConfig binds the command's flags and loads the configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(v, configFile)
}
