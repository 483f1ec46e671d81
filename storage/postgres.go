package storage

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresParams are the discrete connection settings used when no DSN is configured
type PostgresParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN renders p as a postgres:// URL
func (p PostgresParams) DSN() string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// OpenPostgres opens dsn through the pgx database/sql driver.
// Read connections are opened with default_transaction_read_only so the query path cannot write.
func OpenPostgres(dsn string, readPoolSize int, logger *zap.SugaredLogger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	readDSN, err := readOnlyDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}

	writeDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL write pool: %w", err)
	}
	readDB, err := sql.Open("pgx", readDSN)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open PostgreSQL read pool: %w", err)
	}

	configurePools(writeDB, readDB, readPoolSize)

	logger.Infow("PostgreSQL pools configured",
		"host", redactedHost(dsn),
		"write_pool", 1,
		"read_pool", readPoolSize)

	return newDB(DriverPostgres, writeDB, readDB, logger), nil
}

// readOnlyDSN adds the read-only session default as a runtime parameter.
// pgx forwards unknown URL parameters to the server as startup settings.
func readOnlyDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("expected postgres:// URL, got scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("default_transaction_read_only", "on")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redactedHost(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "invalid"
	}
	return u.Host
}
