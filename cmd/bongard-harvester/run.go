package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/Sternrassler/bongard-harvester/internal/config"
	"github.com/Sternrassler/bongard-harvester/pkg/assets"
	"github.com/Sternrassler/bongard-harvester/pkg/cache"
	"github.com/Sternrassler/bongard-harvester/pkg/client"
	"github.com/Sternrassler/bongard-harvester/pkg/harvest"
	"github.com/Sternrassler/bongard-harvester/pkg/index"
	"github.com/Sternrassler/bongard-harvester/pkg/logging"
	"github.com/Sternrassler/bongard-harvester/pkg/metrics"
	"github.com/Sternrassler/bongard-harvester/pkg/pagefetch"
	"github.com/Sternrassler/bongard-harvester/pkg/problem"
	"github.com/Sternrassler/bongard-harvester/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRunCommand builds the "run" command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl a range of problems into the output directory",
		Long: "Fetches every problem page in [start, end], stores its twelve example images and " +
			"solution text under <output>/BP<id>/ and appends one index row per completed problem. " +
			"Images already on disk are not downloaded again. SIGINT or SIGTERM stops dispatching " +
			"new problems; problems in progress are finished.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runHarvest(ctx, cfg, cmd.ErrOrStderr())
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}

	addOutputFlags(cmd.Flags())
	addCrawlFlags(cmd.Flags())
	return cmd
}

// runHarvest wires the components from cfg and runs one crawl.
func runHarvest(ctx context.Context, cfg *config.Config, logOutput io.Writer) (harvest.Summary, error) {
	logCfg := cfg.LoggingConfig()
	logCfg.Output = logOutput
	logging.Setup(logCfg)
	logger := logging.NewLogger("cli")

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr, logging.NewLogger("metrics"))
		if err != nil {
			return harvest.Summary{}, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	pacer, err := ratelimit.NewPacer(cfg.PacerConfig(), logging.NewLogger("pacer"))
	if err != nil {
		return harvest.Summary{}, err
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Observer = pacer
	if pageCache, closeCache := openPageCache(ctx, cfg, logger); pageCache != nil {
		defer closeCache()
		clientCfg.Cache = pageCache
	}

	transport, err := client.New(clientCfg)
	if err != nil {
		return harvest.Summary{}, fmt.Errorf("create transport: %w", err)
	}
	defer transport.Close()

	fetcher, err := pagefetch.New(transport, pagefetch.Config{
		BaseURL:      cfg.BaseURL,
		AssetBaseURL: cfg.AssetBaseURL,
	}, logging.NewLogger("pagefetch"))
	if err != nil {
		return harvest.Summary{}, err
	}

	store, err := assets.NewStore(cfg.OutputDir, transport, logging.NewLogger("assets"))
	if err != nil {
		logger.Error().Err(err).Str("output_dir", cfg.OutputDir).Msg("Cannot open output root")
		return harvest.Summary{}, err
	}

	writer, err := index.Open(cfg.IndexPath(), cfg.Mode())
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.IndexPath()).Msg("Cannot open index")
		return harvest.Summary{}, err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error().Err(err).Msg("Closing index failed")
			return
		}
		logger.Debug().Str("path", writer.Path()).Int("rows_written", writer.Rows()).Msg("Index closed")
	}()
	if writer.Repaired() {
		logger.Warn().Str("path", writer.Path()).Msg("Removed an incomplete trailing index row")
	}
	if cfg.Mode() == index.ModeAppend {
		logger.Info().Str("path", writer.Path()).Int("existing_rows", writer.Existing()).Msg("Appending to existing index")
		if partial := writer.Partial(); len(partial) > 0 {
			ids := make([]int, len(partial))
			for i, id := range partial {
				ids[i] = int(id)
			}
			logger.Warn().Ints("problem_ids", ids).Msg("Indexed problems with failed images are not retried in append mode; use --index-mode truncate to refetch them")
		}
	}

	h, err := harvest.New(harvest.Deps{
		Fetcher: fetcher,
		Store:   store,
		Index:   writer,
		Pacer:   pacer,
		Logger:  logging.NewLogger("harvest"),
	}, harvest.Config{Workers: cfg.Workers})
	if err != nil {
		return harvest.Summary{}, err
	}

	summary, err := h.Run(ctx, problem.ID(cfg.StartID), problem.ID(cfg.EndID))

	if st := pacer.State(); st.Throttles > 0 {
		logger.Warn().
			Int("throttles", st.Throttles).
			Time("last_throttle", st.LastThrottle).
			Dur("throttle_remaining", st.Remaining(time.Now())).
			Msg("Origin rate limited this run")
	}
	return summary, err
}

// openPageCache connects to Redis when configured. The cache is optional: an
// unreachable server is logged and the run continues without it.
func openPageCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*cache.Manager, func()) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	manager := cache.NewManager(rdb, cfg.Redis.TTL)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := manager.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable - running without page cache")
		_ = rdb.Close()
		return nil, nil
	}

	logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("Page cache enabled")
	return manager, func() { _ = rdb.Close() }
}

func printSummary(w io.Writer, s harvest.Summary) {
	if s.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run %s: BP%d..BP%d in %s\n", s.RunID, s.Start, s.End, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  completed:       %d (%d with failed images)\n", s.Completed, s.Partial)
	fmt.Fprintf(w, "  already indexed: %d\n", s.AlreadyIndexed)

	kinds := make([]string, 0, len(s.Skipped))
	for k := range s.Skipped {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "  skipped:         %d\n", s.SkippedTotal())
	for _, k := range kinds {
		fmt.Fprintf(w, "    %-14s %d\n", k+":", s.Skipped[problem.Kind(k)])
	}
	if s.Cancelled {
		fmt.Fprintf(w, "  cancelled after dispatching %d problems\n", s.Dispatched)
	}
}
