package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"syscall"

	"cipherd/storage"
)

// ClassifyStorageError provides specific error messages based on the type of storage failure.
func ClassifyStorageError(err error, driver, target string) string {
	if err == nil {
		return ""
	}
	if driver == storage.DriverPostgres {
		return ClassifyConnectionError(err, target)
	}
	return ClassifySQLiteError(err, target)
}

// ClassifyConnectionError provides specific error messages based on the type of PostgreSQL connection failure.
func ClassifyConnectionError(err error, addr string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to PostgreSQL at %s timed out.\n"+
			"  Possible causes:\n"+
			"  - PostgreSQL is starting up (wait and retry)\n"+
			"  - Network latency or firewall blocking the connection\n"+
			"  Remediation:\n"+
			"  - Check if PostgreSQL is running: pg_isready -h <host> -p <port>\n"+
			"  - Verify network connectivity to %s", addr, addr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			(opErr.Err != nil && containsIgnoreCase(opErr.Err.Error(), "connection refused")) {
			return connectionRefusedMessage(addr)
		}
	}
	if containsIgnoreCase(errStr, "connection refused") {
		return connectionRefusedMessage(addr)
	}

	if containsIgnoreCase(errStr, "no such host") || containsIgnoreCase(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in PostgreSQL address %s.\n"+
			"  Remediation:\n"+
			"  - Verify PG_HOST or storage.postgres.host\n"+
			"  - Check DNS configuration\n"+
			"  - Try using IP address (127.0.0.1) instead of hostname", addr)
	}

	if containsIgnoreCase(errStr, "password authentication failed") || containsIgnoreCase(errStr, "authentication") {
		return fmt.Sprintf("Authentication failed for PostgreSQL at %s.\n"+
			"  Remediation:\n"+
			"  - Verify PG_USER and PG_PASSWORD\n"+
			"  - With vault or aws secrets, check the db_password secret", addr)
	}

	if containsIgnoreCase(errStr, "does not exist") {
		return fmt.Sprintf("Database at %s does not exist.\n"+
			"  Remediation:\n"+
			"  - Create it: createdb -h <host> -U <user> <database>\n"+
			"  - Verify PG_DATABASE or storage.postgres.database", addr)
	}

	return fmt.Sprintf("Failed to connect to PostgreSQL at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure PostgreSQL is running and accessible\n"+
		"  - Check the storage.postgres settings or CIPHERD_STORAGE_POSTGRES_DSN\n"+
		"  - Verify network connectivity", addr, err)
}

func connectionRefusedMessage(addr string) string {
	return fmt.Sprintf("Connection refused by PostgreSQL at %s.\n"+
		"  This usually means PostgreSQL is not running.\n"+
		"  Remediation:\n"+
		"  - Start PostgreSQL: docker compose up -d postgres\n"+
		"  - Verify PG_HOST and PG_PORT", addr)
}

// ClassifySQLiteError provides specific error messages based on the type of SQLite failure.
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	if containsIgnoreCase(errStr, "permission denied") || containsIgnoreCase(errStr, "access denied") {
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s\n"+
			"  - For Docker: Ensure volume is mounted with proper user permissions",
			absPath, absPath, parentDir)
	}

	if containsIgnoreCase(errStr, "database is locked") || containsIgnoreCase(errStr, "SQLITE_BUSY") {
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Possible causes:\n"+
			"  - Another cipherd instance is running\n"+
			"  - A crashed process left a stale lock\n"+
			"  Remediation:\n"+
			"  - Check for running processes: ps aux | grep cipherd\n"+
			"  - Check for lock files: ls -la %s*", absPath, absPath)
	}

	if containsIgnoreCase(errStr, "disk full") || containsIgnoreCase(errStr, "no space") || containsIgnoreCase(errStr, "SQLITE_FULL") {
		return fmt.Sprintf("Disk full - cannot write to SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s\n"+
			"  - Free up disk space or expand the volume", absPath, parentDir)
	}

	if containsIgnoreCase(errStr, "corrupt") || containsIgnoreCase(errStr, "malformed") || containsIgnoreCase(errStr, "SQLITE_CORRUPT") {
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  CRITICAL: Backup any existing data before proceeding!\n"+
			"  Remediation options:\n"+
			"  1. Try recovery: sqlite3 %s \".recover\" | sqlite3 %s.recovered\n"+
			"  2. Check integrity: sqlite3 %s \"PRAGMA integrity_check;\"",
			absPath, absPath, absPath, absPath)
	}

	if containsIgnoreCase(errStr, "path traversal") || containsIgnoreCase(errStr, "invalid database path") {
		return fmt.Sprintf("SQLite database path %q was rejected.\n"+
			"  Remediation:\n"+
			"  - Use a plain path inside the working directory or an absolute path\n"+
			"  - Set storage.sqlite_path or CIPHERD_STORAGE_SQLITE_PATH", dbPath)
	}

	if containsIgnoreCase(errStr, "read-only") {
		return fmt.Sprintf("SQLite database location is on a read-only file system: %s.\n"+
			"  Remediation:\n"+
			"  - Remount the file system as read-write\n"+
			"  - Move database to a writable location via CIPHERD_STORAGE_SQLITE_PATH", absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable\n"+
		"  - Check disk space and permissions", absPath, err, parentDir)
}

// containsIgnoreCase checks if a string contains a substring (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if equalFoldAt(s, substr, i) {
			return true
		}
	}
	return false
}

func equalFoldAt(s, substr string, start int) bool {
	for i := 0; i < len(substr); i++ {
		c1, c2 := s[start+i], substr[i]
		if c1 == c2 {
			continue
		}
		if 'A' <= c1 && c1 <= 'Z' {
			c1 += 'a' - 'A'
		}
		if 'A' <= c2 && c2 <= 'Z' {
			c2 += 'a' - 'A'
		}
		if c1 != c2 {
			return false
		}
	}
	return true
}
