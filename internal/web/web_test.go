package web

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/board"
	"daycal/internal/clock"
	"daycal/internal/config"
	"daycal/internal/gesture"
	"daycal/internal/kv"
	"daycal/internal/layout"
	"daycal/internal/model"
	"daycal/internal/store"
)

// readOnlyKV rejects every write.
type readOnlyKV struct {
	*kv.Memory
}

func (readOnlyKV) Set(context.Context, string, string) error {
	return stderrors.New("disk full")
}

func newTestServer(t *testing.T, cfg *config.Config, previewPath string) (*Server, *board.Board) {
	t.Helper()
	return newTestServerWith(t, kv.NewMemory(), cfg, previewPath)
}

func newTestServerWith(t *testing.T, backend kv.KV, cfg *config.Config, previewPath string) (*Server, *board.Board) {
	t.Helper()
	s, err := store.Open(context.Background(), backend, store.Options{})
	require.NoError(t, err)
	b := board.New(s, board.Options{
		Geometry: layout.Geometry{HourHeight: 60},
		Gesture:  gesture.DefaultConfig(),
		Clock:    clock.NewFixed(time.Date(2024, 1, 1, 10, 30, 0, 0, time.Local)),
	})
	return NewServer(cfg, b, previewPath), b
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	rec := do(t, srv.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "pw"}
	srv, _ := newTestServer(t, cfg, "")
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)

	rec := do(t, h, http.MethodGet, "/api/board", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.SetBasicAuth("me", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventCRUD(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/events", model.Draft{Date: "2024-01-01", StartMinute: 540, EndMinute: 600, Title: "Standup"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Event](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = do(t, h, http.MethodPatch, "/api/events/"+created.ID, map[string]any{"start_minute": 570, "end_minute": 630})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 570, decode[model.Event](t, rec).StartMinute)

	rec = do(t, h, http.MethodGet, "/api/events?from=2024-01-01&to=2024-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[eventsResponse](t, rec)
	require.Len(t, list.Events, 1)
	assert.Equal(t, "Standup", list.Events[0].Title)

	rec = do(t, h, http.MethodDelete, "/api/events/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/events/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "delete is idempotent")
}

func TestEventErrorsMapToStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/events", model.Draft{Date: "2024-01-01", StartMinute: 600, EndMinute: 540})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_RANGE", decode[errResp](t, rec).Code)

	rec = do(t, h, http.MethodPatch, "/api/events/nope", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/events?from=2024-13-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PARSE_ERROR", decode[errResp](t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString("{oops"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[errResp](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventPersistenceFailureReturnsEvent(t *testing.T) {
	srv, b := newTestServerWith(t, readOnlyKV{Memory: kv.NewMemory()}, nil, "")
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/events", model.Draft{Date: "2024-01-01", StartMinute: 540, EndMinute: 600, Title: "Standup"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[errResp](t, rec)
	assert.Equal(t, "PERSISTENCE", resp.Code)
	require.NotNil(t, resp.Event)
	assert.NotEmpty(t, resp.Event.ID)
	assert.Equal(t, "Standup", resp.Event.Title)
	require.Len(t, b.Store().All(), 1, "kept in memory")

	rec = do(t, h, http.MethodPatch, "/api/events/"+resp.Event.ID, map[string]any{"title": "Retro"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode[errResp](t, rec)
	require.NotNil(t, resp.Event)
	assert.Equal(t, "Retro", resp.Event.Title)

	rec = do(t, h, http.MethodPost, "/api/events", model.Draft{Date: "2024-01-01", StartMinute: 600, EndMinute: 540})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Nil(t, decode[errResp](t, rec).Event)
}

func TestBoardAndDay(t *testing.T) {
	srv, b := newTestServer(t, nil, "")
	h := srv.Handler()
	_, err := b.Store().Create(context.Background(), model.Draft{Date: "2024-01-01", StartMinute: 540, EndMinute: 600})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/api/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[board.Snapshot](t, rec)
	assert.Equal(t, "2024-01-01", snap.CurrentDate)
	assert.Len(t, snap.Days, 5)
	assert.Len(t, snap.Days[2].Events, 1)

	rec = do(t, h, http.MethodGet, "/api/days?date=2024-01-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"top_offset":540`)

	rec = do(t, h, http.MethodGet, "/api/days?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNavigationEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	h := srv.Handler()

	snap := decode[board.Snapshot](t, do(t, h, http.MethodPost, "/api/navigate", navigateRequest{Delta: 2}))
	assert.Equal(t, "2024-01-03", snap.CurrentDate)

	snap = decode[board.Snapshot](t, do(t, h, http.MethodPost, "/api/keys", keyRequest{Key: "ArrowLeft"}))
	assert.Equal(t, "2024-01-02", snap.CurrentDate)

	snap = decode[board.Snapshot](t, do(t, h, http.MethodPost, "/api/today", nil))
	assert.Equal(t, "2024-01-01", snap.CurrentDate)

	snap = decode[board.Snapshot](t, do(t, h, http.MethodPost, "/api/navigate", navigateRequest{Date: "2024-02-10"}))
	assert.Equal(t, "2024-02-10", snap.CurrentDate)
}

func TestPointerTapCreatesSheetAndSave(t *testing.T) {
	srv, b := newTestServer(t, nil, "")
	h := srv.Handler()

	base := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC).UnixMilli()
	rec := do(t, h, http.MethodPost, "/api/pointer", pointerRequest{
		Kind: gesture.Down, PointerID: 1, X: 100, Y: 600, TimeMs: base, Target: gesture.Target{Kind: gesture.TargetGrid},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gesture.StatePending, decode[board.Snapshot](t, rec).Gesture.State)

	rec = do(t, h, http.MethodPost, "/api/pointer", pointerRequest{Kind: gesture.Up, PointerID: 1, X: 100, Y: 600, TimeMs: base + 80})
	snap := decode[board.Snapshot](t, rec)
	require.NotNil(t, snap.Sheet)
	assert.Equal(t, 600, snap.Sheet.Form.StartMinute)

	rec = do(t, h, http.MethodPost, "/api/sheet/times", timesRequest{StartTime: "11:00", EndTime: "10:00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 720, decode[board.Sheet](t, rec).Form.EndMinute)

	rec = do(t, h, http.MethodPost, "/api/sheet/save", board.Form{Title: "Lunch", StartTime: "11:00", EndTime: "12:00", ColorID: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[board.Snapshot](t, rec).Sheet)

	all := b.Store().All()
	require.Len(t, all, 1)
	assert.Equal(t, "Lunch", all[0].Title)
}

func TestPointerRejectsUnknownKind(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	rec := do(t, srv.Handler(), http.MethodPost, "/api/pointer", map[string]any{"kind": "hover"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSheetLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/sheet/save", board.Form{StartTime: "09:00", EndTime: "10:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no sheet open")

	snap := decode[board.Snapshot](t, do(t, h, http.MethodPost, "/api/sheet/new", nil))
	require.NotNil(t, snap.Sheet)
	assert.Equal(t, 540, snap.Sheet.Form.StartMinute)
	assert.Equal(t, 600, snap.Sheet.Form.EndMinute)

	rec = do(t, h, http.MethodPost, "/api/sheet/save", board.Form{StartTime: "09:00", EndTime: "09:10"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	snap = decode[board.Snapshot](t, do(t, h, http.MethodGet, "/api/board", nil))
	require.NotNil(t, snap.Sheet, "rejected save leaves the sheet open")
	assert.NotEmpty(t, snap.Sheet.Error)

	snap = decode[board.Snapshot](t, do(t, h, http.MethodPost, "/api/sheet/close", nil))
	assert.Nil(t, snap.Sheet)

	rec = do(t, h, http.MethodPost, "/api/sheet/delete", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticUI(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	rec := do(t, srv.Handler(), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data-ready")
}

func TestPreview(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/preview.png", nil).Code)

	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o600))
	srv, _ = newTestServer(t, nil, path)
	rec := do(t, srv.Handler(), http.MethodGet, "/preview.png", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}
