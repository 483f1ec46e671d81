package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Log pipeline metrics
var (
	LogRecordsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherd_log_records_emitted_total",
			Help: "Total number of log records accepted onto the ingestion queue",
		},
	)

	LogRecordsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherd_log_records_persisted_total",
			Help: "Total number of log records newly inserted into storage",
		},
	)

	LogRecordsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherd_log_records_deduplicated_total",
			Help: "Total number of log records skipped because their id already existed",
		},
	)

	LogPipelineFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherd_log_pipeline_faults_total",
			Help: "Total number of faults reported by the log pipeline",
		},
		[]string{"kind"},
	)

	LogQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cipherd_log_queue_depth",
			Help: "Number of log records waiting on the ingestion queue",
		},
	)

	LogWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cipherd_log_write_duration_seconds",
			Help:    "Time taken to write a single log record",
			Buckets: prometheus.DefBuckets,
		},
	)

	LogQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cipherd_log_query_duration_seconds",
			Help:    "Time taken to read a page of log records",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// HTTP metrics
var (
	HTTPRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherd_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"backend"},
	)

	CryptoOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherd_crypto_operations_total",
			Help: "Total number of encrypt and decrypt requests by outcome",
		},
		[]string{"operation", "outcome"},
	)
)
