// Package metrics exposes the Prometheus registry used by the scraper.
// All metrics are defined in their respective packages (client, ratelimit,
// checkpoint, pagination, output) via promauto to maintain modularity and
// avoid circular dependencies.
//
// This package serves them over HTTP and documents the catalogue.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the scraper.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the handler serving the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux with /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server serves metrics for the duration of a scrape.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
	done     chan error
}

// Start listens on addr and serves metrics in the background.
func Start(addr string, logger zerolog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logger,
		done:     make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	logger.Info().Str("addr", s.Addr()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - jira_requests_total{partition, status} (Counter): Search requests by partition and HTTP status
//   - jira_request_duration_seconds{partition} (Histogram): Search request duration
//   - jira_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, network, payload)
//
// Retry Metrics (pkg/client):
//   - jira_retries_total{error_class} (Counter): Retry attempts by error class
//   - jira_retry_backoff_seconds{error_class} (Histogram): Delay before a retry
//   - jira_retry_exhausted_total{error_class} (Counter): Pages that exhausted max attempts
//
// Pacing Metrics (pkg/ratelimit):
//   - jira_pacer_cooldowns_total (Counter): Shared cooldowns requested after 429
//   - jira_pacer_cooldown_waits_total (Counter): Requests held back by a cooldown
//   - jira_pacer_cooldown_seconds (Gauge): Length of the latest cooldown
//
// Checkpoint Metrics (pkg/checkpoint):
//   - jira_checkpoint_commits_total (Counter): Persisted page commits
//   - jira_checkpoint_errors_total{operation} (Counter): Load/save failures
//   - jira_checkpoint_resets_total (Counter): Checkpoints discarded as unreadable
//
// Partition Metrics (pkg/pagination):
//   - jira_pages_committed_total{partition} (Counter): Pages written and checkpointed
//   - jira_records_committed_total{partition} (Counter): Records written and checkpointed
//   - jira_partition_outcomes_total{state, reason} (Counter): Finished partitions
//
// Output Metrics (pkg/output):
//   - jira_output_bytes_written_total{target} (Counter): JSONL bytes appended (partition, combined)
//   - jira_output_write_errors_total{target} (Counter): Failed page writes
//
// Example Prometheus Queries:
//
//   # Records per second per project
//   sum by (partition) (rate(jira_records_committed_total[5m]))
//
//   # Rate limiting pressure
//   rate(jira_retries_total{error_class="rate_limit"}[5m])
//
//   # Aborted partitions
//   sum by (reason) (jira_partition_outcomes_total{state="aborted"})
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(jira_request_duration_seconds_bucket[5m]))
