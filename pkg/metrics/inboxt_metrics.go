// Package metrics holds the Prometheus collectors shared by the API and the worker.
package metrics

import (
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"inboxt_server/pkg/logger"
)

const namespace = "inboxt"

var (
	DigestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "digest_runs_total",
		Help:      "Digest builds by trigger and outcome.",
	}, []string{"trigger", "status"})

	DigestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "digest_build_seconds",
		Help:      "Wall time of a digest build.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"trigger"})

	EmailsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_processed_total",
		Help:      "Emails run through the summarization pipeline.",
	}, []string{"result"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "Completion requests by purpose and outcome.",
	}, []string{"purpose", "status"})

	LLMRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_retries_total",
		Help:      "Completion retries by reason.",
	}, []string{"reason"})

	GmailRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gmail_requests_total",
		Help:      "Gmail API calls by operation and outcome.",
	}, []string{"op", "status"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gmail_token_refreshes_total",
		Help:      "Access token refresh attempts.",
	}, []string{"status"})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_seconds",
		Help:      "API latency by route and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Background jobs by type and outcome.",
	}, []string{"type", "status"})

	JobQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_jobs_in_flight",
		Help:      "Jobs submitted to the worker pool and not yet finished.",
	})
)

// ObserveSince records the elapsed time since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Status converts an error into the status label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RegisterDBStats exports database/sql pool statistics for db under name.
// Registering the same name twice is a no-op.
func RegisterDBStats(db *sql.DB, name string) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.Warn("failed to register db stats for %s: %v", name, err)
	}
}
