// Package api serves the crosswalk assistant over HTTP: session lifecycle,
// per-frame decisions, history, charts and the admin debug routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/assistant"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/httputil"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/report"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/serialmux"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/version"
)

// DefaultSessionID is the session used by the /detect/ endpoint.
const DefaultSessionID = "default"

// History is the read side of the store. *db.DB implements it.
type History interface {
	GetSession(ctx context.Context, id string) (db.SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]db.SessionRecord, error)
	FrameVerdicts(ctx context.Context, sessionID string, limit int) ([]db.FrameRecord, error)
	Alerts(ctx context.Context, sessionID string) ([]db.AlertRecord, error)
	Summary(ctx context.Context, sessionID string) (db.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
}

// Options wire optional collaborators into the server.
type Options struct {
	// History serves recorded sessions. Without it the history routes
	// return 404.
	History History
	// DB, when set, mounts the tailsql console and backup routes.
	DB *db.DB
	// Speech, when set, mounts the speech module debug routes.
	Speech serialmux.SerialMuxInterface
	// Threshold is drawn on charts and reports.
	Threshold float64
	Logger    *zerolog.Logger
}

type Server struct {
	sessions *assistant.Registry
	opts     Options
	log      zerolog.Logger
}

func NewServer(sessions *assistant.Registry, opts Options) *Server {
	l := zerolog.Nop()
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &Server{sessions: sessions, opts: opts, log: l}
}

// ServeMux returns the API routes plus any admin routes the options enable.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/languages", s.handleLanguages)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/detect/", s.handleDetect)
	mux.HandleFunc("/charts/sessions/", s.handleSessionChart)

	if s.opts.DB != nil {
		if err := s.opts.DB.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	if s.opts.Speech != nil {
		s.opts.Speech.AttachAdminRoutes(mux)
	}
	return mux, nil
}

// Handler returns ServeMux wrapped in the access log.
func (s *Server) Handler() (http.Handler, error) {
	mux, err := s.ServeMux()
	if err != nil {
		return nil, err
	}
	return LoggingMiddleware(s.log, mux), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"status":   "ok",
		"sessions": len(s.sessions.List()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, crosswalk.Languages())
}

// sessionView is a live session as listed by the API.
type sessionView struct {
	ID        string               `json:"id"`
	Language  crosswalk.Language   `json:"language"`
	CreatedAt time.Time            `json:"created_at"`
	Frames    int64                `json:"frames"`
	Busy      bool                 `json:"narrating"`
	Alert     crosswalk.AlertState `json:"alert"`
}

func viewOf(sess *assistant.Session) sessionView {
	st := sess.State()
	return sessionView{
		ID:        sess.ID(),
		Language:  sess.Language(),
		CreatedAt: sess.CreatedAt(),
		Frames:    st.Frames,
		Busy:      sess.Busy(),
		Alert:     st.Alert,
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		live := s.sessions.List()
		views := make([]sessionView, 0, len(live))
		for _, sess := range live {
			views = append(views, viewOf(sess))
		}
		httputil.WriteJSONOK(w, map[string]any{"sessions": views, "count": len(views)})
	case http.MethodPost:
		var spec assistant.SessionSpec
		if err := httputil.DecodeJSON(r, &spec, true); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		sess, err := s.sessions.Create(r.Context(), spec)
		if errors.Is(err, assistant.ErrSessionExists) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, viewOf(sess))
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleSessionByID routes /api/sessions/{id}[/action].
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		httputil.NotFound(w, "session id required")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.showSession(w, r, id)
		case http.MethodDelete:
			s.deleteSession(w, r, id)
		default:
			httputil.MethodNotAllowed(w)
		}
	case "frames":
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		s.postFrame(w, r, id)
	case "alerts", "verdicts", "summary", "report.png":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		s.showHistory(w, r, id, action)
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown session resource %q", action))
	}
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request, id string) {
	if sess, err := s.sessions.Get(id); err == nil {
		httputil.WriteJSONOK(w, viewOf(sess))
		return
	}
	if s.opts.History == nil {
		httputil.NotFound(w, "session not found")
		return
	}
	rec, err := s.opts.History.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, id string) {
	err := s.sessions.Remove(r.Context(), id)
	if err != nil && !errors.Is(err, assistant.ErrSessionNotFound) {
		httputil.InternalServerError(w, err.Error())
		return
	}
	live := err == nil

	if r.URL.Query().Get("purge") == "true" && s.opts.History != nil {
		if err := s.opts.History.DeleteSession(r.Context(), id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		live = true
	}
	if !live {
		httputil.NotFound(w, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postFrame(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	var frame crosswalk.Frame
	if err := httputil.DecodeJSON(r, &frame, false); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	res, err := sess.HandleFrame(r.Context(), frame)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request, id, what string) {
	if s.opts.History == nil {
		httputil.NotFound(w, "history is not recorded")
		return
	}
	ctx := r.Context()
	if _, err := s.opts.History.GetSession(ctx, id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	switch what {
	case "alerts":
		alerts, err := s.opts.History.Alerts(ctx, id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if alerts == nil {
			alerts = []db.AlertRecord{}
		}
		httputil.WriteJSONOK(w, map[string]any{"alerts": alerts, "count": len(alerts)})
	case "verdicts":
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				httputil.BadRequest(w, "invalid 'limit' parameter")
				return
			}
			limit = n
		}
		frames, err := s.opts.History.FrameVerdicts(ctx, id, limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if frames == nil {
			frames = []db.FrameRecord{}
		}
		httputil.WriteJSONOK(w, map[string]any{"verdicts": frames, "count": len(frames)})
	case "summary":
		sum, err := s.opts.History.Summary(ctx, id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		frames, err := s.opts.History.FrameVerdicts(ctx, id, 0)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]any{"summary": sum, "stats": report.Summarize(frames)})
	case "report.png":
		frames, err := s.opts.History.FrameVerdicts(ctx, id, 0)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		alerts, err := s.opts.History.Alerts(ctx, id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if len(frames) == 0 {
			httputil.NotFound(w, report.ErrNoFrames.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", report.DefaultFilename(id)))
		if err := report.WritePNG(w, frames, alerts, report.Options{Threshold: s.opts.Threshold}); err != nil {
			s.log.Error().Err(err).Str("session", id).Msg("render report")
		}
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "session not found")
		return
	}
	httputil.InternalServerError(w, err.Error())
}

// detectResponse mirrors the single-frame detection API: zone labels and a
// safe/unsafe status, plus the full decision.
type detectResponse struct {
	Detections crosswalk.ZonePartition `json:"detections"`
	Status     string                  `json:"status"`
	Verdict    crosswalk.Verdict       `json:"verdict"`
	Message    string                  `json:"message"`
	Display    string                  `json:"display"`
	Warnings   []string                `json:"warnings,omitempty"`
}

// handleDetect runs one frame through the default session.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var frame crosswalk.Frame
	if err := httputil.DecodeJSON(r, &frame, false); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sess, err := s.sessions.GetOrCreate(r.Context(), assistant.SessionSpec{ID: DefaultSessionID, Source: "detect"})
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	res, err := sess.HandleFrame(r.Context(), frame)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	status := "unsafe"
	if res.Verdict.Safe() {
		status = "safe"
	}
	httputil.WriteJSONOK(w, detectResponse{
		Detections: res.Zones,
		Status:     status,
		Verdict:    res.Verdict,
		Message:    res.Message,
		Display:    res.Display,
		Warnings:   res.Warnings,
	})
}
