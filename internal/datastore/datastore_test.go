package datastore

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func openMemory(t *testing.T) Interface {
	t.Helper()
	store, err := New(&conf.JournalSettings{Enabled: true, Type: TypeSQLite, Path: ":memory:"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestJournalLifecycle(t *testing.T) {
	store := openMemory(t)

	rec := &SessionRecord{
		LocalID:            "local-1",
		CameraResolution:   "640x480",
		AnalysisIntervalMs: 1000,
		EnabledEmotions:    "happy,sad",
		StartedAt:          t0,
	}
	require.NoError(t, store.Begin(rec))
	assert.NotZero(t, rec.ID)

	require.NoError(t, store.BindServerID("local-1", "srv-1"))
	require.NoError(t, store.BindServerID("local-1", "srv-2"))
	require.NoError(t, store.RecordAnomaly("local-1"))
	require.NoError(t, store.RecordAnomaly("local-1"))

	got, err := store.Get("local-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID, "first server id wins")
	assert.Equal(t, 2, got.Anomalies)
	assert.True(t, got.Open())
	assert.Equal(t, []string{"happy", "sad"}, got.Emotions())

	stats := &SessionStats{TotalAnalyses: 10, SuccessfulDetections: 7, FailedDetections: 3, DetectionRate: 70, AvgFPS: 4.5}
	require.NoError(t, store.Finish("local-1", t0.Add(time.Minute), "user", stats))

	got, err = store.Get("local-1")
	require.NoError(t, err)
	assert.False(t, got.Open())
	assert.Equal(t, "user", got.EndReason)
	assert.Equal(t, int64(7), got.SuccessfulDetections)
	assert.InDelta(t, 4.5, got.AvgFPS, 1e-9)
	assert.Equal(t, time.Minute, got.Duration(time.Now()))

	// a closed record is not reopened or overwritten
	require.NoError(t, store.Finish("local-1", t0.Add(time.Hour), "max_duration", nil))
	got, err = store.Get("local-1")
	require.NoError(t, err)
	assert.Equal(t, "user", got.EndReason)
}

func TestJournalCloseOpenAndList(t *testing.T) {
	store := openMemory(t)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Begin(&SessionRecord{LocalID: id, StartedAt: t0.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, store.Finish("a", t0.Add(30*time.Second), "user", nil))

	n, err := store.CloseOpen("recovered", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.CloseOpen("recovered", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].LocalID, "newest first")
	assert.Equal(t, "recovered", all[0].EndReason)
	assert.Equal(t, "user", all[2].EndReason)

	two, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestJournalGetMissing(t *testing.T) {
	store := openMemory(t)
	_, err := store.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestJournalFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	store, err := New(&conf.JournalSettings{Enabled: true, Type: TypeSQLite, Path: path}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Open())
	require.NoError(t, store.Begin(&SessionRecord{LocalID: "x", StartedAt: t0}))
	require.NoError(t, store.Close())

	reopened, err := New(&conf.JournalSettings{Enabled: true, Path: path}, testLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.Open())
	defer reopened.Close()
	got, err := reopened.Get("x")
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(t0))
}

func TestNewSelection(t *testing.T) {
	store, err := New(&conf.JournalSettings{Enabled: false}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = New(&conf.JournalSettings{Enabled: true, Type: TypeMySQL, DSN: "u:p@tcp(db:3306)/j"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &MySQLStore{}, store)

	_, err = New(&conf.JournalSettings{Enabled: true, Type: "postgres"}, testLogger())
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestUnopenedStore(t *testing.T) {
	store := &SQLiteStore{DataStore: DataStore{Log: testLogger()}}
	assert.True(t, errors.IsCategory(store.Begin(&SessionRecord{}), errors.CategoryState))
	assert.True(t, errors.IsCategory(store.Open(), errors.CategoryConfiguration))
	assert.NoError(t, store.Close())
}
