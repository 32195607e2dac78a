// Package metrics exposes the harvester's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagefetch, assets, index, harvest) and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics for the duration of a run.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
	done     chan error
}

// Start listens on addr and serves /metrics in the background.
func Start(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logger,
		done:     make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Metrics Documentation
//
// Transport (pkg/client):
//   - harvest_http_requests_total{status} (Counter): origin responses by status, "error" for network failures
//   - harvest_http_request_duration_seconds (Histogram): single attempt duration
//   - harvest_http_errors_total{class} (Counter): failed attempts by error class
//   - harvest_http_retries_total{error_class} (Counter): retries scheduled
//   - harvest_http_retry_backoff_seconds{error_class} (Histogram): backoff waited before a retry
//   - harvest_http_retry_exhausted_total{error_class} (Counter): requests that used every attempt
//
// Page Cache (pkg/cache):
//   - harvest_page_cache_hits_total (Counter)
//   - harvest_page_cache_misses_total (Counter)
//   - harvest_page_cache_errors_total{operation} (Counter): Redis errors by operation
//
// Politeness (pkg/ratelimit):
//   - harvest_politeness_pauses_total (Counter)
//   - harvest_politeness_pause_seconds (Histogram)
//   - harvest_politeness_throttle_events_total (Counter): 429 responses seen
//
// Pages and Assets (pkg/pagefetch, pkg/assets, pkg/index):
//   - harvest_page_fetch_total{outcome} (Counter): "ok" or the failure kind
//   - harvest_images_total{outcome} (Counter): downloaded, reused, failed
//   - harvest_image_bytes_total (Counter)
//   - harvest_image_types_total{mime} (Counter): sniffed content type of downloads
//   - harvest_stale_parts_removed_total (Counter)
//   - harvest_index_rows_written_total (Counter)
//
// Run (pkg/harvest):
//   - harvest_problems_total{outcome} (Counter): completed, already_indexed or the failure kind
//   - harvest_problem_duration_seconds (Histogram)
//   - harvest_in_flight_problems (Gauge)
//   - harvest_reorder_buffered (Gauge)
//
// Example Prometheus Queries:
//
//   # Share of problems skipped
//   sum(rate(harvest_problems_total{outcome!~"completed|already_indexed"}[5m])) /
//   sum(rate(harvest_problems_total[5m]))
//
//   # Resume efficiency
//   rate(harvest_images_total{outcome="reused"}[5m]) / rate(harvest_images_total[5m])
//
//   # P95 attempt latency
//   histogram_quantile(0.95, rate(harvest_http_request_duration_seconds_bucket[5m]))
