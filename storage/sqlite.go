package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sqliteBusyTimeoutMs lets the read pool wait out a checkpoint instead of failing with SQLITE_BUSY
const sqliteBusyTimeoutMs = 5000

// OpenSQLite opens dbPath with a single-connection write pool and a query_only read pool.
// Pragmas are set through the DSN so every pooled connection gets them, not only the first.
func OpenSQLite(dbPath string, readPoolSize int, logger *zap.SugaredLogger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	// SECURITY: Validate database path to prevent path traversal
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", sqliteDSN(dbPath, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write database: %w", err)
	}

	readDB, err := sql.Open("sqlite", sqliteDSN(dbPath, true))
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read database: %w", err)
	}

	configurePools(writeDB, readDB, readPoolSize)

	// The write pool creates the file and switches it to WAL before readers attach.
	if err := verifyJournalMode(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, err
	}

	var queryOnly int
	if err := readDB.QueryRow("PRAGMA query_only").Scan(&queryOnly); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to verify query_only mode: %w", err)
	}
	if queryOnly != 1 {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("query_only mode not enabled on read pool (got %d)", queryOnly)
	}

	logger.Infow("SQLite database opened",
		"path", dbPath,
		"write_pool", 1,
		"read_pool", readPoolSize)

	return newDB(DriverSQLite, writeDB, readDB, logger), nil
}

// sqliteDSN builds a modernc.org/sqlite DSN with per-connection pragmas
func sqliteDSN(dbPath string, readOnly bool) string {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMs))
	params.Add("_pragma", "synchronous(NORMAL)")
	if readOnly {
		params.Add("_pragma", "query_only(1)")
	}
	return "file:" + dbPath + "?" + params.Encode()
}

func verifyJournalMode(db *sql.DB) error {
	var mode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("SQLite WAL mode not enabled (got %q)", mode)
	}
	return nil
}

// validateDatabasePath rejects paths that could escape the working directory.
// Absolute paths are accepted only under the system temp directory.
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if len(dbPath) > 512 {
		return fmt.Errorf("database path exceeds maximum length of 512 characters")
	}
	if strings.Contains(dbPath, "\x00") {
		return fmt.Errorf("null bytes not allowed in path")
	}
	if strings.ContainsAny(dbPath, "?#") {
		return fmt.Errorf("query characters not allowed in path: %s", dbPath)
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("path traversal not allowed (..): %s", dbPath)
	}

	base := strings.ToUpper(filepath.Base(dbPath))
	for _, r := range []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
		"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3", "LPT4",
		"LPT5", "LPT6", "LPT7", "LPT8", "LPT9"} {
		if base == r || strings.HasPrefix(base, r+".") {
			return fmt.Errorf("reserved name not allowed: %s", filepath.Base(dbPath))
		}
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if isUnder(absPath, os.TempDir()) {
		return nil
	}
	if filepath.IsAbs(dbPath) {
		return fmt.Errorf("absolute paths not allowed: %s", dbPath)
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if !isUnder(absPath, wd) {
		return fmt.Errorf("path escapes working directory: %s resolves to %s", dbPath, absPath)
	}
	return nil
}

func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
