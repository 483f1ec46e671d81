package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"cipherd/config"
	"cipherd/ingest"
	"cipherd/storage"

	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

// StorageComponents holds all storage-related components.
type StorageComponents struct {
	DB   *storage.DB
	Logs *storage.LogStorage
}

// StorageOptions maps the storage section of cfg onto storage.Options
func StorageOptions(cfg *config.Config) storage.Options {
	opts := storage.Options{
		Driver:       cfg.Storage.Driver,
		SQLitePath:   cfg.Storage.SQLitePath,
		ReadPoolSize: cfg.Storage.ReadPoolSize,
	}
	if cfg.Storage.Driver == storage.DriverPostgres {
		opts.PostgresDSN = cfg.Storage.Postgres.DSN
		if opts.PostgresDSN == "" {
			pg := cfg.Storage.Postgres
			opts.PostgresDSN = storage.PostgresParams{
				Host:     pg.Host,
				Port:     pg.Port,
				Database: pg.Database,
				User:     pg.User,
				Password: pg.Password,
				SSLMode:  pg.SSLMode,
			}.DSN()
		}
	}
	return opts
}

// StorageTarget describes where cfg points, without credentials
func StorageTarget(cfg *config.Config) string {
	if cfg.Storage.Driver == storage.DriverPostgres {
		pg := cfg.Storage.Postgres
		return fmt.Sprintf("%s:%d/%s", pg.Host, pg.Port, pg.Database)
	}
	return cfg.Storage.SQLitePath
}

// InitStorage opens the configured database with retry logic and binds the log table.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	const maxRetries = 3
	retryDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

	opts := StorageOptions(cfg)
	target := StorageTarget(cfg)

	// only PostgreSQL connections are retried
	attempts := maxRetries
	if opts.Driver != storage.DriverPostgres {
		attempts = 0
	}

	var db *storage.DB
	var lastErr error

	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			sugar.Infow("Retrying storage connection",
				"attempt", attempt,
				"max_retries", attempts,
				"delay", retryDelays[attempt-1])
			select {
			case <-time.After(retryDelays[attempt-1]):
			case <-ctx.Done():
				return nil, fmt.Errorf("storage connection cancelled: %w", ctx.Err())
			}
		}

		db, lastErr = openAndPing(ctx, opts, sugar)
		if lastErr == nil {
			break
		}

		sugar.Warnw("Storage connection attempt failed",
			"driver", opts.Driver,
			"attempt", attempt+1,
			"error", lastErr)
	}

	if lastErr != nil {
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: Storage Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", ClassifyStorageError(lastErr, opts.Driver, target))
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to open %s storage after %d attempts: %w", opts.Driver, attempts+1, lastErr)
	}

	logs, err := storage.NewLogStorage(db, cfg.Storage.Table, cfg.Storage.QueryTimeout, sugar)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize log storage: %w", err)
	}

	sugar.Infow("Storage ready", "driver", db.Driver, "target", target, "table", logs.Table())
	return &StorageComponents{DB: db, Logs: logs}, nil
}

func openAndPing(ctx context.Context, opts storage.Options, sugar *zap.SugaredLogger) (*storage.DB, error) {
	db, err := storage.Open(opts, sugar)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := db.PingWriter(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.HealthCheck(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database pools
func (s *StorageComponents) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// InitPipeline builds the log pipeline on top of the log table's write connection.
// The pipeline is not started.
func InitPipeline(cfg *config.Config, logs *storage.LogStorage, sugar *zap.SugaredLogger) *ingest.Pipeline {
	opener := func(ctx context.Context) (ingest.Writer, error) {
		w, err := logs.OpenWriter(ctx)
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	return ingest.NewPipeline(opener, ingest.Options{
		MaxQueueSize: cfg.Pipeline.MaxQueueSize,
		WriteTimeout: cfg.Storage.WriteTimeout,
		Reporter:     ingest.NewLoggingReporter(sugar),
	}, sugar)
}

// ServiceHealth backs GET /health: the read pool must answer and the log
// worker must be draining.
type ServiceHealth struct {
	DB       *storage.DB
	Pipeline *ingest.Pipeline
}

// HealthCheck implements api.HealthChecker
func (h ServiceHealth) HealthCheck(ctx context.Context) error {
	if err := h.DB.HealthCheck(ctx); err != nil {
		return err
	}
	if state := h.Pipeline.State(); state != ingest.StateDraining {
		return fmt.Errorf("log pipeline is %s", state)
	}
	return nil
}
