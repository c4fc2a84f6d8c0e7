package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(nil)
	db, err := NewDB(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, db *DB, id string) {
	t.Helper()
	require.NoError(t, db.CreateSession(context.Background(), SessionRecord{ID: id, Language: "en", Source: "test", CreatedAt: t0}))
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	require.NoError(t, db.MigrateTo(1))
	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)

	require.NoError(t, db.MigrateForce(3))
}

func TestMigrations_RepeatedStepsShareConnection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Already current; each call builds its own migrate instance over db.DB.
	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateTo(3))
	require.NoError(t, db.PingContext(ctx))

	err := db.MigrateTo(99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate to version 99")

	seedSession(t, db, "after")
	_, err = db.GetSession(ctx, "after")
	require.NoError(t, err)
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedSession(t, db, "a")
	require.NoError(t, db.CreateSession(ctx, SessionRecord{ID: "b", Language: "kn", CreatedAt: t0.Add(time.Minute)}))

	got, err := db.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "test", got.Source)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.Nil(t, got.ClosedAt)

	require.NoError(t, db.CloseSession(ctx, "a", t0.Add(time.Hour)))
	got, err = db.GetSession(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(t0.Add(time.Hour)))

	// Creating a closed session again reopens it and keeps its history.
	require.NoError(t, db.RecordFrame(ctx, FrameRecord{SessionID: "a", FrameIndex: 0, Timestamp: t0, Status: "clear", Rule: 3, Safe: true}))
	require.NoError(t, db.CreateSession(ctx, SessionRecord{ID: "a", Language: "ta", Source: "detect", CreatedAt: t0.Add(2 * time.Hour)}))
	got, err = db.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got.ClosedAt)
	assert.Equal(t, "ta", got.Language)
	assert.Equal(t, "detect", got.Source)
	assert.True(t, got.CreatedAt.Equal(t0))
	frames, err := db.FrameVerdicts(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, frames, 1)

	list, err := db.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	_, err = db.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.CloseSession(ctx, "missing", t0), ErrNotFound)
}

func TestFramesAlertsAndSummary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedSession(t, db, "s")

	statuses := []struct {
		status string
		safe   bool
	}{
		{"no_crosswalk", false},
		{"clear", true},
		{"stopped", true},
		{"moving", false},
		{"moving", false},
	}
	for i, s := range statuses {
		require.NoError(t, db.RecordFrame(ctx, FrameRecord{
			SessionID:       "s",
			FrameIndex:      int64(i),
			Timestamp:       t0.Add(time.Duration(i) * 100 * time.Millisecond),
			Status:          s.status,
			Rule:            3,
			Safe:            s.safe,
			VehicleCount:    i,
			Moving:          s.status == "moving",
			MaxDisplacement: float64(i) * 5,
		}))
	}

	frames, err := db.FrameVerdicts(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	assert.Equal(t, "no_crosswalk", frames[0].Status)
	assert.True(t, frames[1].Safe)
	assert.True(t, frames[4].Moving)
	assert.InDelta(t, 20, frames[4].MaxDisplacement, 1e-9)

	recent, err := db.FrameVerdicts(ctx, "s", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].FrameIndex)
	assert.Equal(t, int64(4), recent[1].FrameIndex)

	require.NoError(t, db.RecordAlert(ctx, AlertRecord{ID: "a1", SessionID: "s", FrameIndex: 0, Status: "no_crosswalk", Message: "No crosswalk detected.", Language: "en", EmittedAt: t0}))
	require.NoError(t, db.RecordAlert(ctx, AlertRecord{ID: "a2", SessionID: "s", FrameIndex: 3, Status: "moving", Message: "Warning!", Language: "en", EmittedAt: t0.Add(300 * time.Millisecond)}))
	require.NoError(t, db.MarkAlertFailed(ctx, "a2", "narration timed out"))
	assert.ErrorIs(t, db.MarkAlertFailed(ctx, "nope", "x"), ErrNotFound)

	alerts, err := db.Alerts(ctx, "s")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a1", alerts[0].ID)
	assert.Equal(t, "narration timed out", alerts[1].NarrationError)

	sum, err := db.Summary(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Frames)
	assert.Equal(t, 2, sum.Safe)
	assert.Equal(t, 3, sum.Unsafe)
	assert.Equal(t, 2, sum.Alerts)
	assert.Equal(t, 2, sum.ByStatus["moving"])

	require.NoError(t, db.DeleteSession(ctx, "s"))
	frames, err = db.FrameVerdicts(ctx, "s", 0)
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.ErrorIs(t, db.DeleteSession(ctx, "s"), ErrNotFound)
}

func TestRecordFrame_RequiresSession(t *testing.T) {
	db := newTestDB(t)
	err := db.RecordFrame(context.Background(), FrameRecord{SessionID: "ghost", Timestamp: t0, Status: "clear"})
	assert.Error(t, err)
}

func TestBackupTo(t *testing.T) {
	db := newTestDB(t)
	seedSession(t, db, "s")
	dir := t.TempDir()

	target := filepath.Join(dir, "copy.db")
	require.NoError(t, db.BackupTo(context.Background(), target, dir))

	copyDB, err := NewDB(target)
	require.NoError(t, err)
	defer copyDB.Close()
	_, err = copyDB.GetSession(context.Background(), "s")
	assert.NoError(t, err)

	assert.Error(t, db.BackupTo(context.Background(), target, dir), "existing target")
	assert.Error(t, db.BackupTo(context.Background(), filepath.Join(dir, "..", "escape.db"), dir))
}

func TestAdminRoutes_Backup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosswalk.db")
	monitoring.SetLogger(nil)
	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	seedSession(t, db, "s")

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".db.gz")

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	restored := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(restored, data, 0o644))
	rdb, err := OpenDB(restored)
	require.NoError(t, err)
	defer rdb.Close()
	_, err = rdb.GetSession(context.Background(), "s")
	assert.NoError(t, err)
}
