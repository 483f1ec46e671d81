package storage

import (
	"context"
	"database/sql"
	"time"

	"cipherd/metrics"
	"cipherd/util/goroutine"
)

// poolCounters holds the last observed cumulative values so counters only receive deltas
type poolCounters struct {
	waitCount         int64
	maxIdleClosed     int64
	maxLifetimeClosed int64
	waitDuration      time.Duration
}

// StartMetricsCollection publishes pool statistics every interval until ctx is
// cancelled or the database is closed.
func (db *DB) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	if db.IsClosed() {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	db.updatePoolMetrics()

	goroutine.Go(&db.metricsWG, "storage-pool-metrics", db.Logger, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				db.Logger.Infow("Storage metrics collection stopped")
				return
			case <-db.stopCh:
				return
			case <-ticker.C:
				db.updatePoolMetrics()
			}
		}
	})

	db.Logger.Infow("Storage metrics collection started", "interval", interval)
}

func (db *DB) updatePoolMetrics() {
	db.metricsMu.Lock()
	defer db.metricsMu.Unlock()

	db.updatePoolMetricsForType("write", db.WriteDB.Stats())
	db.updatePoolMetricsForType("read", db.ReadDB.Stats())
}

func (db *DB) updatePoolMetricsForType(pool string, stats sql.DBStats) {
	prev := db.prev[pool]

	metrics.StoragePoolOpenConnections.WithLabelValues(pool).Set(float64(stats.OpenConnections))
	metrics.StoragePoolInUse.WithLabelValues(pool).Set(float64(stats.InUse))
	metrics.StoragePoolIdle.WithLabelValues(pool).Set(float64(stats.Idle))
	metrics.StoragePoolMaxOpenConnections.WithLabelValues(pool).Set(float64(stats.MaxOpenConnections))

	if delta := stats.WaitCount - prev.waitCount; delta > 0 {
		metrics.StoragePoolWaitCount.WithLabelValues(pool).Add(float64(delta))
		prev.waitCount = stats.WaitCount
	}
	if delta := stats.MaxIdleClosed - prev.maxIdleClosed; delta > 0 {
		metrics.StoragePoolMaxIdleClosed.WithLabelValues(pool).Add(float64(delta))
		prev.maxIdleClosed = stats.MaxIdleClosed
	}
	if delta := stats.MaxLifetimeClosed - prev.maxLifetimeClosed; delta > 0 {
		metrics.StoragePoolMaxLifetimeClosed.WithLabelValues(pool).Add(float64(delta))
		prev.maxLifetimeClosed = stats.MaxLifetimeClosed
	}
	if delta := stats.WaitDuration - prev.waitDuration; delta > 0 {
		metrics.StoragePoolWaitDuration.WithLabelValues(pool).Observe(delta.Seconds())
		prev.waitDuration = stats.WaitDuration
	}
}
