// Package logging configures zerolog for the harvester.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-request and per-image detail.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs one line per problem plus run start and end.
	LevelInfo LogLevel = "info"

	// LevelWarn logs skips, retries and failed images only.
	LevelWarn LogLevel = "warn"

	// LevelError logs fatal run conditions only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: detail useful when a single problem misbehaves
//   - Page cache hit/miss
//   - Each HTTP attempt that returned an error status
//   - Each stored image, worker start/stop
//
// Info: normal progress
//   - Run start, periodic progress, run summary
//   - One line per completed problem
//   - Problems skipped because the ID does not exist (404)
//
// Warn: the run continues but something was lost
//   - Retries and exhausted retries
//   - Skipped problems (validation, retriable, network, internal)
//   - Completed problems with failed images (kind=partial_assets)
//   - Missing solution text, cache errors, 429 throttling
//
// Error: the run cannot continue
//   - Output root or index cannot be opened or written
//   - Invalid configuration
//
// Context Fields:
//   - run_id: UUID of the run
//   - problem_id: numeric problem ID
//   - worker_id: worker index
//   - url: page or image URL
//   - status: HTTP status code
//   - error_class: transport error class (client, not_found, server, rate_limit, network)
//   - kind: problem outcome kind (not_found, retriable, network, validation, http_status, partial_assets, internal)
//   - attempt, backoff: retry bookkeeping
//   - duration: elapsed time in milliseconds
