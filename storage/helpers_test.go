package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cipherd/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// setupTestDB opens a file-backed SQLite database in a per-test temp directory
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cipherd.db"), 4, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// setupTestStorage returns a LogStorage with a provisioned table and an open writer
func setupTestStorage(t *testing.T) (*LogStorage, *LogWriter) {
	t.Helper()
	db := setupTestDB(t)

	s, err := NewLogStorage(db, DefaultTable, 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	w, err := s.OpenWriter(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.EnsureSchema(context.Background()))
	return s, w
}

func recordAt(ts time.Time, data string) core.LogRecord {
	return core.LogRecord{
		ID:        uuid.NewString(),
		Timestamp: ts.UTC(),
		IP:        "203.0.113.7",
		Data:      data,
	}
}

func insertAll(t *testing.T, w *LogWriter, recs ...core.LogRecord) {
	t.Helper()
	for _, rec := range recs {
		inserted, err := w.Insert(context.Background(), rec)
		require.NoError(t, err)
		require.True(t, inserted)
	}
}
