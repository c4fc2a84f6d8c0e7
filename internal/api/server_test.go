package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/assistant"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/events"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/narration"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/testutil"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/timeutil"
)

type testEnv struct {
	store    *db.DB
	registry *assistant.Registry
	clock    *timeutil.MockClock
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := db.NewDB(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	rt := &assistant.Runtime{
		Config: crosswalk.DefaultConfig(),
		Narrator: narration.NarratorFunc(func(context.Context, crosswalk.AlertEvent) error {
			return nil
		}),
		NarratorTimeout: time.Second,
		Store:           store,
		Sink:            &events.MemorySink{},
		Clock:           clock,
		Logger:          zerolog.Nop(),
	}
	reg := assistant.NewRegistry(rt)
	t.Cleanup(func() { reg.Close(context.Background()) })

	srv := NewServer(reg, Options{History: store, DB: store, Threshold: crosswalk.DefaultMovementThreshold})
	h, err := srv.Handler()
	require.NoError(t, err)
	return &testEnv{store: store, registry: reg, clock: clock, handler: h}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.LocalRequest(method, path, testutil.JSONBody(t, body))
	} else {
		req = testutil.LocalRequest(method, path, nil)
	}
	return testutil.Serve(e.handler, req)
}

func clearFrame(idx int64) crosswalk.Frame {
	return crosswalk.Frame{
		Index: idx,
		Detections: []crosswalk.Detection{{
			Box:        crosswalk.Box{XMin: 250, YMin: 300, XMax: 390, YMax: 380},
			Label:      "Pedestrian Crossing",
			Confidence: 0.8,
		}},
	}
}

func (e *testEnv) createSession(t *testing.T, lang string) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/api/sessions", map[string]string{"language": lang})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	return testutil.DecodeJSON[sessionView](t, res).ID
}

func TestLanguagesAndVersion(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/languages", nil)
	require.Equal(t, http.StatusOK, res.Code)
	langs := testutil.DecodeJSON[[]crosswalk.LanguageInfo](t, res)
	assert.Len(t, langs, 7)

	res = env.do(t, http.MethodGet, "/api/version", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"version":"dev"`)

	res = env.do(t, http.MethodPost, "/api/languages", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)

	res = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"default language", nil, http.StatusCreated},
		{"hindi", map[string]string{"language": "hi"}, http.StatusCreated},
		{"unknown language", map[string]string{"language": "xx"}, http.StatusBadRequest},
		{"unknown field", map[string]string{"lang": "hi"}, http.StatusBadRequest},
		{"explicit id", map[string]string{"id": "walk-1"}, http.StatusCreated},
		{"duplicate id", map[string]string{"id": "walk-1"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.do(t, http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.status, res.Code, res.Body.String())
		})
	}

	res := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, res.Code)
	list := testutil.DecodeJSON[struct {
		Count int `json:"count"`
	}](t, res)
	assert.Equal(t, 3, list.Count)
}

func TestPostFrame(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "en")

	res := env.do(t, http.MethodPost, "/api/sessions/"+id+"/frames", clearFrame(0))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	got := testutil.DecodeJSON[assistant.Result](t, res)
	assert.Equal(t, crosswalk.StatusClear, got.Verdict.Status)
	assert.Equal(t, "The path is clear. Safe to cross now.", got.Message)
	assert.Equal(t, "Safe to Cross", got.Display)
	require.NotNil(t, got.Alert)
	assert.Equal(t, []string{"pedestrian crossing"}, got.Zones.Center)

	res = env.do(t, http.MethodPost, "/api/sessions/missing/frames", clearFrame(0))
	assert.Equal(t, http.StatusNotFound, res.Code)

	req := testutil.LocalRequest(http.MethodPost, "/api/sessions/"+id+"/frames", strings.NewReader(`{"index":`))
	assert.Equal(t, http.StatusBadRequest, testutil.Serve(env.handler, req).Code)

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/frames", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/bogus", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestSessionHistory(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "en")

	res := env.do(t, http.MethodGet, "/api/sessions/"+id+"/report.png", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	for i := int64(0); i < 3; i++ {
		env.clock.Advance(100 * time.Millisecond)
		res := env.do(t, http.MethodPost, "/api/sessions/"+id+"/frames", clearFrame(i))
		require.Equal(t, http.StatusOK, res.Code)
	}

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/alerts", nil)
	require.Equal(t, http.StatusOK, res.Code)
	alerts := testutil.DecodeJSON[struct {
		Alerts []db.AlertRecord `json:"alerts"`
	}](t, res)
	require.Len(t, alerts.Alerts, 1)
	assert.Equal(t, "clear", alerts.Alerts[0].Status)

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/verdicts?limit=2", nil)
	require.Equal(t, http.StatusOK, res.Code)
	verdicts := testutil.DecodeJSON[struct {
		Verdicts []db.FrameRecord `json:"verdicts"`
	}](t, res)
	require.Len(t, verdicts.Verdicts, 2)
	assert.Equal(t, int64(1), verdicts.Verdicts[0].FrameIndex)

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/verdicts?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, res.Code)
	sum := testutil.DecodeJSON[struct {
		Summary db.SessionSummary `json:"summary"`
	}](t, res)
	assert.Equal(t, 3, sum.Summary.Frames)
	assert.Equal(t, 3, sum.Summary.Safe)
	assert.Equal(t, 1, sum.Summary.Alerts)

	res = env.do(t, http.MethodGet, "/api/sessions/"+id+"/report.png", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "image/png", res.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(res.Body.Bytes(), []byte("\x89PNG")))

	res = env.do(t, http.MethodGet, "/charts/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Crosswalk Timeline")

	res = env.do(t, http.MethodGet, "/charts/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = env.do(t, http.MethodGet, "/api/sessions/missing/alerts", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "en")

	res := env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	// Closed sessions remain readable from history.
	res = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, res.Code)
	rec := testutil.DecodeJSON[db.SessionRecord](t, res)
	assert.NotNil(t, rec.ClosedAt)

	res = env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = env.do(t, http.MethodDelete, "/api/sessions/"+id+"?purge=true", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestDetect(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/detect/", clearFrame(0))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	got := testutil.DecodeJSON[detectResponse](t, res)
	assert.Equal(t, "safe", got.Status)
	assert.Equal(t, []string{"pedestrian crossing"}, got.Detections.Center)
	assert.Empty(t, got.Detections.Left)

	res = env.do(t, http.MethodPost, "/detect/", crosswalk.Frame{Index: 1})
	require.Equal(t, http.StatusOK, res.Code)
	got = testutil.DecodeJSON[detectResponse](t, res)
	assert.Equal(t, "unsafe", got.Status)
	assert.Equal(t, crosswalk.StatusNoCrosswalk, got.Verdict.Status)

	_, err := env.registry.Get(DefaultSessionID)
	assert.NoError(t, err)

	res = env.do(t, http.MethodGet, "/detect/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
}

func TestDetect_AfterSessionDeleted(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/detect/", clearFrame(0))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = env.do(t, http.MethodDelete, "/api/sessions/"+DefaultSessionID, nil)
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())

	res = env.do(t, http.MethodPost, "/detect/", clearFrame(1))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "safe", testutil.DecodeJSON[detectResponse](t, res).Status)

	rec, err := env.store.GetSession(context.Background(), DefaultSessionID)
	require.NoError(t, err)
	assert.Nil(t, rec.ClosedAt)
	frames, err := env.store.FrameVerdicts(context.Background(), DefaultSessionID, 0)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestDetect_RestartOnSameStore(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodPost, "/detect/", clearFrame(0))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	// A second server over the same database, as after a restart.
	reg := assistant.NewRegistry(&assistant.Runtime{
		Config: crosswalk.DefaultConfig(),
		Store:  env.store,
		Logger: zerolog.Nop(),
	})
	t.Cleanup(func() { reg.Close(context.Background()) })
	h, err := NewServer(reg, Options{History: env.store}).Handler()
	require.NoError(t, err)

	res = testutil.Serve(h, testutil.LocalRequest(http.MethodPost, "/detect/", testutil.JSONBody(t, clearFrame(1))))
	assert.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestAdminRoutesMounted(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodGet, "/debug/", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "tailsql")
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := LoggingMiddleware(l, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	testutil.Serve(h, testutil.LocalRequest(http.MethodGet, "/nope?x=1", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"uri":"/nope?x=1"`)
}
