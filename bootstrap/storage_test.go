package bootstrap

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"cipherd/config"
	"cipherd/core"
	"cipherd/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000
	cfg.Server.BodyLimit = 1 << 20
	cfg.Storage.Driver = storage.DriverSQLite
	cfg.Storage.Table = "logs"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "cipherd.db")
	cfg.Storage.ReadPoolSize = 2
	cfg.Storage.WriteTimeout = 5 * time.Second
	cfg.Storage.QueryTimeout = 5 * time.Second
	cfg.Storage.MetricsInterval = time.Hour
	cfg.Pipeline.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	return cfg
}

func TestStorageOptions_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	opts := StorageOptions(cfg)

	assert.Equal(t, storage.DriverSQLite, opts.Driver)
	assert.Equal(t, cfg.Storage.SQLitePath, opts.SQLitePath)
	assert.Empty(t, opts.PostgresDSN)
	assert.Equal(t, cfg.Storage.SQLitePath, StorageTarget(cfg))
}

func TestStorageOptions_PostgresFromParams(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Storage.Driver = storage.DriverPostgres
	cfg.Storage.Postgres.Host = "db.example"
	cfg.Storage.Postgres.Port = 6543
	cfg.Storage.Postgres.Database = "cipherd"
	cfg.Storage.Postgres.User = "svc"
	cfg.Storage.Postgres.Password = "p@ss/word"
	cfg.Storage.Postgres.SSLMode = "require"

	opts := StorageOptions(cfg)
	u, err := url.Parse(opts.PostgresDSN)
	require.NoError(t, err)
	assert.Equal(t, "db.example:6543", u.Host)
	assert.Equal(t, "/cipherd", u.Path)
	assert.Equal(t, "svc", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))

	target := StorageTarget(cfg)
	assert.Equal(t, "db.example:6543/cipherd", target)
	assert.NotContains(t, target, "p@ss")
}

func TestStorageOptions_PostgresDSNWins(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Storage.Driver = storage.DriverPostgres
	cfg.Storage.Postgres.Host = "ignored"
	cfg.Storage.Postgres.DSN = "postgres://u:p@explicit:5432/db"

	assert.Equal(t, "postgres://u:p@explicit:5432/db", StorageOptions(cfg).PostgresDSN)
}

func TestInitStorage_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	sc, err := InitStorage(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close() })

	assert.Equal(t, "logs", sc.Logs.Table())
	assert.NoError(t, sc.DB.HealthCheck(context.Background()))

	// second close is harmless
	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
}

func TestInitStorage_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	cfg := sqliteConfig(t)
	cfg.Storage.SQLitePath = "../outside.db"
	_, err := InitStorage(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = sqliteConfig(t)
	cfg.Storage.Table = "logs; DROP TABLE logs"
	_, err = InitStorage(context.Background(), cfg, logger)
	assert.ErrorIs(t, err, storage.ErrInvalidTableName)

	cfg = sqliteConfig(t)
	cfg.Storage.Driver = "mysql"
	_, err = InitStorage(context.Background(), cfg, logger)
	assert.ErrorIs(t, err, storage.ErrUnsupportedDriver)
}

func TestInitStorage_PostgresCancelledDuringRetry(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Storage.Driver = storage.DriverPostgres
	cfg.Storage.Postgres.DSN = "postgres://postgres@127.0.0.1:1/cipherd?sslmode=disable&connect_timeout=1"

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := InitStorage(ctx, cfg, zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInitPipeline_PersistsThroughLogStorage(t *testing.T) {
	cfg := sqliteConfig(t)
	logger := zaptest.NewLogger(t).Sugar()

	sc, err := InitStorage(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close() })

	p := InitPipeline(cfg, sc.Logs, logger)
	p.EmitEvent("198.51.100.1", "POST /api/v1/encrypt")
	require.NoError(t, p.Start(context.Background()))
	p.Emit(core.NewRequestLogRecord("GET", "/health", ""))
	require.NoError(t, p.Shutdown(context.Background()))

	records, err := sc.Logs.ListLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byData := map[string]core.LogRecord{}
	for _, rec := range records {
		byData[rec.Data] = rec
	}
	assert.Equal(t, "198.51.100.1", byData["POST /api/v1/encrypt"].IP)
	assert.Equal(t, core.UnknownIP, byData["GET /health"].IP)
}

func TestServiceHealth_FollowsPipelineState(t *testing.T) {
	cfg := sqliteConfig(t)
	logger := zaptest.NewLogger(t).Sugar()

	sc, err := InitStorage(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close() })

	p := InitPipeline(cfg, sc.Logs, logger)
	health := ServiceHealth{DB: sc.DB, Pipeline: p}

	err = health.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created")

	require.NoError(t, p.Start(context.Background()))

	// the worker now holds the only write connection
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.NoError(t, health.HealthCheck(ctx))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Error(t, health.HealthCheck(context.Background()))
}
