package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultReadPoolSize is the number of pooled read connections
	DefaultReadPoolSize = 10
)

// Options selects and configures the relational backend
type Options struct {
	Driver       string
	SQLitePath   string
	PostgresDSN  string
	ReadPoolSize int
}

// DB holds separate write and read pools for one backend.
// WriteDB is capped at a single connection which the log worker owns.
// ReadDB serves the query path concurrently (SQLite WAL readers, PostgreSQL MVCC).
type DB struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Driver  string
	Logger  *zap.SugaredLogger

	closed    atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	metricsWG sync.WaitGroup

	// Previous counter values for delta calculation
	metricsMu sync.Mutex
	prev      map[string]*poolCounters
}

// Open opens the backend named by opts.Driver
func Open(opts Options, logger *zap.SugaredLogger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.ReadPoolSize <= 0 {
		opts.ReadPoolSize = DefaultReadPoolSize
	}

	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(opts.SQLitePath, opts.ReadPoolSize, logger)
	case DriverPostgres:
		return OpenPostgres(opts.PostgresDSN, opts.ReadPoolSize, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
}

func newDB(driver string, writeDB, readDB *sql.DB, logger *zap.SugaredLogger) *DB {
	return &DB{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Driver:  driver,
		Logger:  logger,
		stopCh:  make(chan struct{}),
		prev: map[string]*poolCounters{
			"write": {},
			"read":  {},
		},
	}
}

// dialect returns the SQL dialect for the backend
func (db *DB) dialect() dialect {
	if db.Driver == DriverPostgres {
		return postgresDialect{}
	}
	return sqliteDialect{}
}

// IsClosed reports whether Close has been called
func (db *DB) IsClosed() bool {
	return db.closed.Load()
}

// HealthCheck pings the read pool. The write pool's only connection belongs
// to the log worker once it runs, so it is not touched here.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.IsClosed() {
		return ErrDatabaseClosed
	}
	if err := db.ReadDB.PingContext(ctx); err != nil {
		return fmt.Errorf("read pool ping failed: %w", err)
	}
	return nil
}

// PingWriter pings the write pool. It blocks while a LogWriter is open.
func (db *DB) PingWriter(ctx context.Context) error {
	if db.IsClosed() {
		return ErrDatabaseClosed
	}
	if err := db.WriteDB.PingContext(ctx); err != nil {
		return fmt.Errorf("write pool ping failed: %w", err)
	}
	return nil
}

// Close stops metrics collection and closes both pools. Safe to call more than once.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}

	db.stopOnce.Do(func() { close(db.stopCh) })
	db.metricsWG.Wait()

	var writeErr, readErr error
	if db.WriteDB != nil {
		writeErr = db.WriteDB.Close()
	}
	if db.ReadDB != nil {
		readErr = db.ReadDB.Close()
	}

	if writeErr != nil {
		return fmt.Errorf("failed to close write pool: %w", writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to close read pool: %w", readErr)
	}

	db.Logger.Infow("Database closed", "driver", db.Driver)
	return nil
}

func configurePools(writeDB, readDB *sql.DB, readPoolSize int) {
	// Single writer: the log worker holds this connection for its lifetime.
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	writeDB.SetConnMaxIdleTime(0)

	idle := readPoolSize / 2
	if idle < 1 {
		idle = 1
	}
	readDB.SetMaxOpenConns(readPoolSize)
	readDB.SetMaxIdleConns(idle)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	readDB.SetConnMaxIdleTime(10 * time.Minute)
}
