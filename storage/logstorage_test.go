package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"cipherd/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestListLogs_EmptyStore(t *testing.T) {
	s, _ := setupTestStorage(t)

	logs, err := s.ListLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestListLogs_OrderedByTimestamp(t *testing.T) {
	s, w := setupTestStorage(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	insertAll(t, w,
		recordAt(base.Add(3*time.Second), "third"),
		recordAt(base.Add(1*time.Second), "first"),
		recordAt(base.Add(2*time.Second), "second"),
	)

	logs, err := s.ListLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "first", logs[0].Data)
	assert.Equal(t, "second", logs[1].Data)
	assert.Equal(t, "third", logs[2].Data)
	assert.True(t, logs[0].Timestamp.Equal(base.Add(time.Second)))
	assert.Equal(t, time.UTC, logs[0].Timestamp.Location())
	assert.Equal(t, "203.0.113.7", logs[0].IP)
}

func TestListLogs_Pagination(t *testing.T) {
	s, w := setupTestStorage(t)
	base := time.Now().UTC()

	var all []core.LogRecord
	for i := 0; i < 7; i++ {
		all = append(all, recordAt(base.Add(time.Duration(i)*time.Millisecond), core.RequestData("GET", "/health")))
	}
	insertAll(t, w, all...)

	page, err := s.ListLogs(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, all[0].ID, page[0].ID)

	page, err = s.ListLogs(context.Background(), 3, 6)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[6].ID, page[0].ID)
}

func TestListLogs_OffsetPastEnd(t *testing.T) {
	s, w := setupTestStorage(t)
	base := time.Now().UTC()
	insertAll(t, w,
		recordAt(base, "a"),
		recordAt(base.Add(time.Millisecond), "b"),
		recordAt(base.Add(2*time.Millisecond), "c"),
	)

	logs, err := s.ListLogs(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestListLogs_SameTimestampTieBreakByID(t *testing.T) {
	s, w := setupTestStorage(t)
	ts := time.Now().UTC()

	a := recordAt(ts, "a")
	a.ID = "00000000-0000-4000-8000-00000000000b"
	b := recordAt(ts, "b")
	b.ID = "00000000-0000-4000-8000-00000000000a"
	insertAll(t, w, a, b)

	logs, err := s.ListLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, b.ID, logs[0].ID)
	assert.Equal(t, a.ID, logs[1].ID)
}

func TestListLogs_InvalidPage(t *testing.T) {
	s, _ := setupTestStorage(t)

	tests := []struct {
		name   string
		size   int
		offset int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"size above max", MaxPageSize + 1, 0},
		{"negative offset", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ListLogs(context.Background(), tt.size, tt.offset)
			assert.ErrorIs(t, err, ErrInvalidPage)
		})
	}
}

func TestListLogs_BoundarySizes(t *testing.T) {
	s, _ := setupTestStorage(t)

	_, err := s.ListLogs(context.Background(), MinPageSize, 0)
	assert.NoError(t, err)
	_, err = s.ListLogs(context.Background(), MaxPageSize, 0)
	assert.NoError(t, err)
}

func TestListLogs_MissingTable(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewLogStorage(db, "never_created", 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	_, err = s.ListLogs(context.Background(), 10, 0)
	assert.ErrorIs(t, err, core.ErrQuery)
}

func TestListLogs_ClosedDatabase(t *testing.T) {
	s, w := setupTestStorage(t)
	require.NoError(t, w.Close())
	require.NoError(t, s.db.Close())

	_, err := s.ListLogs(context.Background(), 10, 0)
	assert.ErrorIs(t, err, core.ErrQuery)
	assert.ErrorIs(t, err, ErrDatabaseClosed)
}

func TestListLogs_ReleasesReadConnections(t *testing.T) {
	s, w := setupTestStorage(t)
	insertAll(t, w, recordAt(time.Now(), "x"))

	for i := 0; i < 20; i++ {
		_, err := s.ListLogs(context.Background(), 10, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.db.ReadDB.Stats().InUse)
}

func TestListLogs_ConcurrentWithWriter(t *testing.T) {
	s, w := setupTestStorage(t)
	base := time.Now().UTC()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := w.Insert(context.Background(), recordAt(base.Add(time.Duration(i)), "w"))
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := s.ListLogs(context.Background(), 50, 0)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	count, err := s.CountLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

func TestLogWriter_DuplicateIsNoop(t *testing.T) {
	s, w := setupTestStorage(t)

	rec := recordAt(time.Now(), "original")
	inserted, err := w.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := rec
	dup.Data = "replacement"
	inserted, err = w.Insert(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	logs, err := s.ListLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "original", logs[0].Data)
}

func TestLogWriter_EnsureSchemaIdempotent(t *testing.T) {
	_, w := setupTestStorage(t)
	assert.NoError(t, w.EnsureSchema(context.Background()))
	assert.NoError(t, w.EnsureSchema(context.Background()))
}

func TestLogWriter_SchemaSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/reopen.db"
	logger := zaptest.NewLogger(t).Sugar()
	rec := recordAt(time.Now(), "persisted")

	db, err := OpenSQLite(path, 2, logger)
	require.NoError(t, err)
	s, err := NewLogStorage(db, DefaultTable, 0, logger)
	require.NoError(t, err)
	w, err := s.OpenWriter(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.EnsureSchema(context.Background()))
	insertAll(t, w, rec)
	require.NoError(t, w.Close())
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path, 2, logger)
	require.NoError(t, err)
	defer db.Close()
	s, err = NewLogStorage(db, DefaultTable, 0, logger)
	require.NoError(t, err)
	w, err = s.OpenWriter(context.Background())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.EnsureSchema(context.Background()))

	logs, err := s.ListLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, rec.ID, logs[0].ID)
}

func TestLogWriter_HoldsOnlyWriteConnection(t *testing.T) {
	s, _ := setupTestStorage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.OpenWriter(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second writer must wait for the first")
}

func TestNewLogStorage_TableName(t *testing.T) {
	db := setupTestDB(t)
	logger := zaptest.NewLogger(t).Sugar()

	s, err := NewLogStorage(db, "", 0, logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, s.Table())

	for _, bad := range []string{"logs; DROP TABLE logs", "1logs", "logs-v2", "public.logs"} {
		_, err := NewLogStorage(db, bad, 0, logger)
		assert.ErrorIs(t, err, ErrInvalidTableName, bad)
	}

	_, err = NewLogStorage(nil, DefaultTable, 0, logger)
	assert.Error(t, err)
}

func TestValidatePage(t *testing.T) {
	assert.NoError(t, ValidatePage(1, 0))
	assert.NoError(t, ValidatePage(100, 1000))
	assert.ErrorIs(t, ValidatePage(101, 0), ErrInvalidPage)
	assert.ErrorIs(t, ValidatePage(10, -5), ErrInvalidPage)
}
