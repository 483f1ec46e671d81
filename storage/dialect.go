package storage

import (
	"fmt"
	"time"
)

// dialect holds the per-backend SQL for the log table.
// Table names are validated identifiers before they reach these builders.
type dialect interface {
	schemaStatements(table string) []string
	insertStatement(table string) string
	selectPageStatement(table string) string
	encodeTimestamp(t time.Time) interface{}
}

func countStatement(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
}

// sqliteDialect stores timestamps as INTEGER unix nanoseconds so ordering is exact
type sqliteDialect struct{}

func (sqliteDialect) schemaStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			ip TEXT,
			data TEXT
		)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)", table, table),
	}
}

func (sqliteDialect) insertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s (id, timestamp, ip, data) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING", table)
}

func (sqliteDialect) selectPageStatement(table string) string {
	return fmt.Sprintf("SELECT id, timestamp, ip, data FROM %s ORDER BY timestamp ASC, id ASC LIMIT ? OFFSET ?", table)
}

func (sqliteDialect) encodeTimestamp(t time.Time) interface{} {
	return t.UTC().UnixNano()
}

type postgresDialect struct{}

func (postgresDialect) schemaStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			ip TEXT,
			data TEXT
		)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)", table, table),
	}
}

func (postgresDialect) insertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s (id, timestamp, ip, data) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING", table)
}

func (postgresDialect) selectPageStatement(table string) string {
	return fmt.Sprintf("SELECT id, timestamp, ip, data FROM %s ORDER BY timestamp ASC, id ASC LIMIT $1 OFFSET $2", table)
}

func (postgresDialect) encodeTimestamp(t time.Time) interface{} {
	return t.UTC()
}

// timestampColumn scans either representation back into UTC time
type timestampColumn struct {
	Time time.Time
}

func (c *timestampColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		c.Time = time.Time{}
	case int64:
		c.Time = time.Unix(0, v).UTC()
	case time.Time:
		c.Time = v.UTC()
	case []byte:
		return c.parse(string(v))
	case string:
		return c.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (c *timestampColumn) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	c.Time = t.UTC()
	return nil
}
