// Package metrics exports the snapfetch Prometheus metrics. The metrics
// themselves are defined in their packages (client, batch, sink, ledger) via
// promauto; a batch run is short-lived, so this package hands the gathered
// values to a node_exporter textfile or a Pushgateway instead of serving them.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Gatherer is the source of exported metric values. All metrics are
// registered on the default registry via promauto in their packages.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job name.
const DefaultJob = "snapfetch"

// WriteTextfile writes all gathered metrics to path in the text exposition
// format. The file is replaced atomically.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics file path is required")
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push sends all gathered metrics to the Pushgateway at url, replacing the
// previous values of job.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if job == "" {
		job = DefaultJob
	}
	if err := push.New(url, job).Gatherer(Gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - snapfetch_requests_total{status} (Counter): Fetch attempts by HTTP status or failure class
//   - snapfetch_request_duration_seconds (Histogram): Fetch attempt duration
//   - snapfetch_errors_total{class} (Counter): Failed attempts by class (client, server, unexpected, network, timeout)
//   - snapfetch_response_bytes_total (Counter): Bytes received in successful responses
//
// Retry Metrics (pkg/client):
//   - snapfetch_retries_total{error_class} (Counter): Retries by error class
//   - snapfetch_retry_backoff_seconds{error_class} (Histogram): Wait before each retry
//   - snapfetch_retry_exhausted_total{error_class} (Counter): Tasks that spent every attempt
//
// Batch Metrics (pkg/batch):
//   - snapfetch_tasks_total{outcome} (Counter): Tasks by outcome (success, fetch_failed, write_failed)
//   - snapfetch_last_run_timestamp_seconds (Gauge): Unix time the last batch finished
//   - snapfetch_last_run_duration_seconds (Gauge): Duration of the last batch
//   - snapfetch_last_run_tasks{result} (Gauge): attempts, successes and failures of the last batch
//
// Sink Metrics (pkg/sink):
//   - snapfetch_sink_bytes_written_total (Counter): Artifact bytes written
//   - snapfetch_sink_write_errors_total (Counter): Failed artifact writes
//
// Ledger Metrics (pkg/ledger):
//   - snapfetch_ledger_writes_total{kind} (Counter): Records written (task, run)
//   - snapfetch_ledger_errors_total{operation} (Counter): Failed Redis operations
//
// Example Prometheus Queries:
//
//   # Batches that saved nothing
//   snapfetch_last_run_tasks{result="successes"} == 0
//
//   # Stale batch (no run in 26h)
//   time() - snapfetch_last_run_timestamp_seconds > 26 * 3600
//
//   # Fetch error rate by class
//   rate(snapfetch_errors_total[1h])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(snapfetch_request_duration_seconds_bucket[1h]))
