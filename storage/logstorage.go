package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"cipherd/core"
	"cipherd/metrics"

	"go.uber.org/zap"
)

const (
	// DefaultTable is the log table name
	DefaultTable = "logs"

	// MinPageSize and MaxPageSize bound the size argument of ListLogs
	MinPageSize = 1
	MaxPageSize = 100

	// DefaultQueryTimeout bounds a single page read
	DefaultQueryTimeout = 10 * time.Second
)

// SECURITY: the table name is interpolated into SQL, so only plain identifiers are accepted
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// LogStorage is the relational sink of the log pipeline and its read path
type LogStorage struct {
	db           *DB
	table        string
	dialect      dialect
	queryTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewLogStorage binds the log table to db. An empty table means DefaultTable.
func NewLogStorage(db *DB, table string, queryTimeout time.Duration, logger *zap.SugaredLogger) (*LogStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}

	return &LogStorage{
		db:           db,
		table:        table,
		dialect:      db.dialect(),
		queryTimeout: queryTimeout,
		logger:       logger,
	}, nil
}

// Table returns the log table name
func (s *LogStorage) Table() string {
	return s.table
}

// OpenWriter acquires the write pool's only connection. The caller owns it
// until Close; no other writer can proceed meanwhile.
func (s *LogStorage) OpenWriter(ctx context.Context) (*LogWriter, error) {
	if s.db.IsClosed() {
		return nil, ErrDatabaseClosed
	}

	conn, err := s.db.WriteDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire write connection: %w", err)
	}

	return &LogWriter{
		conn:      conn,
		table:     s.table,
		dialect:   s.dialect,
		insertSQL: s.dialect.insertStatement(s.table),
		logger:    s.logger,
	}, nil
}

// ListLogs returns one page of records ordered by timestamp, oldest first.
// An offset past the end yields an empty, non-nil slice.
func (s *LogStorage) ListLogs(ctx context.Context, size, offset int) ([]core.LogRecord, error) {
	if err := ValidatePage(size, offset); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, fmt.Errorf("%w: %w", core.ErrQuery, ErrDatabaseClosed)
	}

	start := time.Now()
	defer func() {
		metrics.LogQueryDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	conn, err := s.db.ReadDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to acquire read connection: %w", core.ErrQuery, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warnw("Failed to release read connection", "error", cerr)
		}
	}()

	rows, err := conn.QueryContext(ctx, s.dialect.selectPageStatement(s.table), size, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrQuery, err)
	}
	defer rows.Close()

	records := make([]core.LogRecord, 0, size)
	for rows.Next() {
		rec, err := scanLogRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan log row: %w", core.ErrQuery, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrQuery, err)
	}

	return records, nil
}

// CountLogs returns the number of persisted records
func (s *LogStorage) CountLogs(ctx context.Context) (int64, error) {
	if s.db.IsClosed() {
		return 0, fmt.Errorf("%w: %w", core.ErrQuery, ErrDatabaseClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var count int64
	if err := s.db.ReadDB.QueryRowContext(ctx, countStatement(s.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrQuery, err)
	}
	return count, nil
}

// ValidatePage checks ListLogs arguments
func ValidatePage(size, offset int) error {
	if size < MinPageSize || size > MaxPageSize {
		return fmt.Errorf("%w: size must be between %d and %d, got %d", ErrInvalidPage, MinPageSize, MaxPageSize, size)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative, got %d", ErrInvalidPage, offset)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLogRecord(row rowScanner) (core.LogRecord, error) {
	var (
		rec  core.LogRecord
		ts   timestampColumn
		ip   sql.NullString
		data sql.NullString
	)
	if err := row.Scan(&rec.ID, &ts, &ip, &data); err != nil {
		return core.LogRecord{}, err
	}
	rec.Timestamp = ts.Time
	rec.IP = ip.String
	rec.Data = data.String
	return rec, nil
}

// LogWriter is the log worker's handle on the write connection. Not safe for concurrent use.
type LogWriter struct {
	conn      *sql.Conn
	table     string
	dialect   dialect
	insertSQL string
	logger    *zap.SugaredLogger
}

// EnsureSchema creates the log table and its timestamp index if missing
func (w *LogWriter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range w.dialect.schemaStatements(w.table) {
		if _, err := w.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to provision table %s: %w", w.table, err)
		}
	}
	w.logger.Infow("Log table ready", "table", w.table)
	return nil
}

// Insert stores rec. A duplicate id is left untouched and reported as not inserted.
func (w *LogWriter) Insert(ctx context.Context, rec core.LogRecord) (bool, error) {
	result, err := w.conn.ExecContext(ctx, w.insertSQL,
		rec.ID,
		w.dialect.encodeTimestamp(rec.Timestamp),
		rec.IP,
		rec.Data,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert log %s: %w", rec.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Close returns the connection to the write pool
func (w *LogWriter) Close() error {
	if err := w.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
