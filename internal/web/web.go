package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"daycal/internal/board"
	"daycal/internal/config"
	calerrors "daycal/internal/errors"
	"daycal/internal/gesture"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Server exposes the board to the renderer over HTTP.
type Server struct {
	cfg   *config.Config
	board *board.Board
	mux   *http.ServeMux

	// previewPath is the PNG written by the snapshot command.
	previewPath string
}

// embeddedStatic contains the board UI.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, b *board.Board, previewPath string) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:         cfg,
		board:       b,
		mux:         http.NewServeMux(),
		previewPath: previewPath,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="daycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/board", s.handleBoard)
	s.mux.HandleFunc("GET /api/days", s.handleDay)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("PATCH /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("POST /api/pointer", s.handlePointer)
	s.mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	s.mux.HandleFunc("POST /api/today", s.handleToday)
	s.mux.HandleFunc("POST /api/keys", s.handleKey)

	s.mux.HandleFunc("POST /api/sheet/new", s.handleSheetNew)
	s.mux.HandleFunc("POST /api/sheet/expand", s.handleSheetExpand)
	s.mux.HandleFunc("POST /api/sheet/times", s.handleSheetTimes)
	s.mux.HandleFunc("POST /api/sheet/save", s.handleSheetSave)
	s.mux.HandleFunc("POST /api/sheet/delete", s.handleSheetDelete)
	s.mux.HandleFunc("POST /api/sheet/close", s.handleSheetClose)

	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	// Everything else is the embedded UI.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded files from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* routes get a 404, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewPath == "" {
		http.NotFound(w, r)
		return
	}
	// ServeFile picks 404/500 for missing or unreadable files.
	http.ServeFile(w, r, s.previewPath)
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	s.writeSnapshot(w, http.StatusOK)
}

type dayResponse struct {
	Date   string `json:"date"`
	Events any    `json:"events"`
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.board.CurrentDate()
	}
	views, err := s.board.DayView(date)
	if err != nil {
		writeCalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: date, Events: views})
}

type eventsResponse struct {
	From   string        `json:"from"`
	To     string        `json:"to"`
	Events []model.Event `json:"events"`
}

// handleListEvents returns raw stored events whose date is in [from, to].
// Both default to the centred day.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng := model.DateRange{From: q.Get("from"), To: q.Get("to")}
	if rng.From == "" {
		rng.From = s.board.CurrentDate()
	}
	if rng.To == "" {
		rng.To = rng.From
	}
	if err := rng.Validate(); err != nil {
		writeCalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{From: rng.From, To: rng.To, Events: s.board.Store().Query(rng)})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var d model.Draft
	if !decodeJSON(w, r, &d) {
		return
	}
	if d.Date == "" {
		d.Date = s.board.CurrentDate()
	}
	ev, err := s.board.Store().Create(r.Context(), d)
	if err != nil {
		writeEventError(w, err, ev)
		return
	}
	appLog.Info("event created", "id", ev.ID, "date", ev.Date)
	writeJSON(w, http.StatusCreated, ev)
}

type patchRequest struct {
	Date        *string           `json:"date"`
	StartMinute *int              `json:"start_minute"`
	EndMinute   *int              `json:"end_minute"`
	Title       *string           `json:"title"`
	ColorID     *int              `json:"color_id"`
	Repeat      *model.RepeatRule `json:"repeat"`
	Description *string           `json:"description"`
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.board.Store().Update(r.Context(), r.PathValue("id"), store.Patch{
		Date:        req.Date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Title:       req.Title,
		ColorID:     req.ColorID,
		Repeat:      req.Repeat,
		Description: req.Description,
	})
	if err != nil {
		writeEventError(w, err, ev)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Store().Delete(r.Context(), r.PathValue("id")); err != nil {
		writeCalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pointerRequest is one normalized pointer sample from the renderer.
type pointerRequest struct {
	Kind      gesture.Kind   `json:"kind"`
	PointerID int            `json:"pointer_id"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	TimeMs    int64          `json:"time_ms"`
	Target    gesture.Target `json:"target"`

	// ViewportWidth, when set, updates the swipe reference width.
	ViewportWidth float64 `json:"viewport_width,omitempty"`
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Kind {
	case gesture.Down, gesture.Move, gesture.Up, gesture.Cancel:
	default:
		writeCalError(w, calerrors.NewInvalidRequest("unknown pointer kind: "+string(req.Kind)))
		return
	}
	if req.ViewportWidth > 0 {
		s.board.SetViewportWidth(req.ViewportWidth)
	}

	at := time.Now()
	if req.TimeMs > 0 {
		at = time.UnixMilli(req.TimeMs)
	}
	s.board.HandlePointer(gesture.PointerEvent{
		Kind:      req.Kind,
		PointerID: req.PointerID,
		X:         req.X,
		Y:         req.Y,
		At:        at,
		Target:    req.Target,
	})
	s.writeSnapshot(w, http.StatusOK)
}

type navigateRequest struct {
	Delta int    `json:"delta"`
	Date  string `json:"date,omitempty"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date != "" {
		if err := s.board.SetDate(req.Date); err != nil {
			writeCalError(w, err)
			return
		}
	}
	s.board.Navigate(req.Delta)
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) handleToday(w http.ResponseWriter, _ *http.Request) {
	s.board.GoToToday()
	s.writeSnapshot(w, http.StatusOK)
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.board.Key(req.Key) {
		appLog.Debug("key ignored", "key", req.Key)
	}
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) handleSheetNew(w http.ResponseWriter, _ *http.Request) {
	s.board.NewEventSheet()
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) handleSheetExpand(w http.ResponseWriter, _ *http.Request) {
	if err := s.board.ExpandSheet(); err != nil {
		writeCalError(w, err)
		return
	}
	s.writeSnapshot(w, http.StatusOK)
}

type timesRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (s *Server) handleSheetTimes(w http.ResponseWriter, r *http.Request) {
	var req timesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sh, err := s.board.SetSheetTimes(req.StartTime, req.EndTime)
	if err != nil {
		writeCalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleSheetSave(w http.ResponseWriter, r *http.Request) {
	var form board.Form
	if !decodeJSON(w, r, &form) {
		return
	}
	if _, err := s.board.SaveSheet(r.Context(), form); err != nil {
		writeCalError(w, err)
		return
	}
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) handleSheetDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.board.DeleteSheetEvent(r.Context()); err != nil {
		writeCalError(w, err)
		return
	}
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) handleSheetClose(w http.ResponseWriter, _ *http.Request) {
	s.board.CloseSheet()
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, status int) {
	snap, err := s.board.Snapshot()
	if err != nil {
		appLog.Error("board snapshot failed", err)
		writeCalError(w, err)
		return
	}
	writeJSON(w, status, snap)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeCalError(w, calerrors.NewInvalidRequest("malformed JSON body: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`

	// Event is set when a change was applied in memory but not persisted.
	Event *model.Event `json:"event,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// writeCalError maps an error's code to its HTTP status.
func writeCalError(w http.ResponseWriter, err error) {
	status := calerrors.StatusOf(err)
	var ce *calerrors.CalError
	if errors.As(err, &ce) {
		writeJSON(w, status, errResp{Error: ce.Message, Code: string(ce.Code), Details: ce.Details})
		return
	}
	appLog.Error("unexpected error", err)
	writeError(w, status, "internal error")
}

// writeEventError is writeCalError for create and update. A PersistenceError
// still carries the event, which the store kept in memory, so the renderer
// can show it.
func writeEventError(w http.ResponseWriter, err error, ev model.Event) {
	var ce *calerrors.CalError
	if ev.ID != "" && errors.As(err, &ce) && ce.Code == calerrors.ErrPersistence {
		appLog.Warn("event changed in memory only", "id", ev.ID, "err", err)
		writeJSON(w, ce.Status, errResp{Error: ce.Message, Code: string(ce.Code), Details: ce.Details, Event: &ev})
		return
	}
	writeCalError(w, err)
}
