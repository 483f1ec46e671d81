package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage connection pool metrics, labelled by pool ("read" or "write")
var (
	StoragePoolOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherd_storage_pool_open_connections",
			Help: "Number of established connections in the pool",
		},
		[]string{"pool"},
	)

	StoragePoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherd_storage_pool_in_use",
			Help: "Number of connections currently in use",
		},
		[]string{"pool"},
	)

	StoragePoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherd_storage_pool_idle",
			Help: "Number of idle connections",
		},
		[]string{"pool"},
	)

	StoragePoolMaxOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherd_storage_pool_max_open_connections",
			Help: "Configured maximum number of open connections",
		},
		[]string{"pool"},
	)

	StoragePoolWaitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherd_storage_pool_wait_count_total",
			Help: "Total number of connections waited for",
		},
		[]string{"pool"},
	)

	StoragePoolWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherd_storage_pool_wait_duration_seconds",
			Help:    "Cumulative time blocked waiting for a connection, sampled per collection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	StoragePoolMaxIdleClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherd_storage_pool_max_idle_closed_total",
			Help: "Total number of connections closed due to SetMaxIdleConns",
		},
		[]string{"pool"},
	)

	StoragePoolMaxLifetimeClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherd_storage_pool_max_lifetime_closed_total",
			Help: "Total number of connections closed due to SetConnMaxLifetime",
		},
		[]string{"pool"},
	)
)
