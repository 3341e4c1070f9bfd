// ABOUTME: HTTP/JSON surface over the session collaborator interface
// ABOUTME: Lets an external UI read snapshots, send messages and toggle reasoning visibility

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/llm-chat/internal/dialog"
	"github.com/2389/llm-chat/internal/events"
	"github.com/2389/llm-chat/internal/session"
)

// Sessions is what the API needs from the session layer.
type Sessions interface {
	Get(name string) (*session.Session, error)
	Names() []string
	ReasoningHidden() bool
	SetReasoningHidden(hidden bool) bool
}

// Feed streams live session events.
type Feed interface {
	Subscribe(ctx context.Context, session string) (<-chan events.Event, string)
}

// Deduper remembers idempotency keys of recent sends.
type Deduper interface {
	Seen(key string) bool
	Forget(key string)
}

// IdempotencyHeader carries a client-chosen key; a repeated key within the
// dedupe window is refused instead of being sent again.
const IdempotencyHeader = "Idempotency-Key"

// Options configures a Server. Every field is optional.
type Options struct {
	// Feed enables GET /api/sessions/{name}/events.
	Feed Feed
	// Dedupe enables Idempotency-Key handling on send.
	Dedupe Deduper
	Logger *slog.Logger
}

// SessionInfo is one element of GET /api/sessions.
type SessionInfo struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Transport string `json:"transport"`
	State     string `json:"state"`
	Status    string `json:"status"`
}

// SnapshotResponse is the JSON response for GET /api/sessions/{name}/snapshot.
type SnapshotResponse struct {
	Session         string        `json:"session"`
	State           string        `json:"state"`
	SystemPrompt    string        `json:"system_prompt"`
	ReasoningHidden bool          `json:"reasoning_hidden"`
	Messages        []dialog.View `json:"messages"`
}

// SendRequest is the JSON request body for POST /api/sessions/{name}/send.
type SendRequest struct {
	Content string `json:"content"`
}

// SendResponse is the JSON response for POST /api/sessions/{name}/send.
type SendResponse struct {
	Reply string      `json:"reply"`
	View  dialog.View `json:"view"`
}

// SystemPromptRequest is the JSON request body for PUT /api/sessions/{name}/system-prompt.
type SystemPromptRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

// ReasoningRequest is the JSON body for PUT /api/reasoning and its response.
type ReasoningRequest struct {
	Hidden bool `json:"hidden"`
}

// Server serves the collaborator API.
type Server struct {
	sessions Sessions
	feed     Feed
	dedupe   Deduper
	logger   *slog.Logger
}

// New creates a Server.
func New(sessions Sessions, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sessions: sessions,
		feed:     opts.Feed,
		dedupe:   opts.Dedupe,
		logger:   logger.With("component", "api"),
	}
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{name}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/sessions/{name}/send", s.handleSend)
	mux.HandleFunc("POST /api/sessions/{name}/clear", s.handleClear)
	mux.HandleFunc("PUT /api/sessions/{name}/system-prompt", s.handleSystemPrompt)
	mux.HandleFunc("GET /api/sessions/{name}/export", s.handleExport)
	mux.HandleFunc("GET /api/reasoning", s.handleGetReasoning)
	mux.HandleFunc("PUT /api/reasoning", s.handleSetReasoning)
	if s.feed != nil {
		mux.HandleFunc("GET /api/sessions/{name}/events", s.handleEvents)
	}
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	names := s.sessions.Names()
	out := make([]SessionInfo, 0, len(names))
	for _, name := range names {
		sess, err := s.sessions.Get(name)
		if err != nil {
			// Removed by a concurrent reconfigure.
			continue
		}
		out = append(out, SessionInfo{
			Name:      sess.Name(),
			ID:        sess.ID(),
			Transport: string(sess.Transport()),
			State:     sess.State().String(),
			Status:    sess.Status(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SnapshotResponse{
		Session:         sess.Name(),
		State:           sess.State().String(),
		SystemPrompt:    sess.SystemPrompt(),
		ReasoningHidden: sess.ReasoningHidden(),
		Messages:        sess.Views(),
	})
}

// handleSend blocks until the model replies. Transport failures are part of
// a 200 response; only refused input maps to an error status.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var idemKey string
	if s.dedupe != nil {
		if key := r.Header.Get(IdempotencyHeader); key != "" {
			idemKey = sess.Name() + "\x00" + key
			if s.dedupe.Seen(idemKey) {
				sendJSONError(w, http.StatusConflict, "duplicate request")
				return
			}
		}
	}

	// A send cannot be aborted once issued; a client that disconnects still
	// gets the exchange recorded. Only the transport timeout bounds it.
	reply, err := sess.SendMessage(context.WithoutCancel(r.Context()), req.Content)
	if err != nil && idemKey != "" {
		// Nothing was recorded, so the same key may be retried.
		s.dedupe.Forget(idemKey)
	}
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, session.ErrBusy):
		sendJSONError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrClosed):
		sendJSONError(w, http.StatusGone, err.Error())
		return
	case err != nil:
		s.logger.Error("send failed", "session", sess.Name(), "error", err)
		sendJSONError(w, http.StatusInternalServerError, "send failed")
		return
	}

	resp := SendResponse{Reply: reply}
	if views := sess.Views(); len(views) > 0 {
		resp.View = views[len(views)-1]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSystemPrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req SystemPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess.SetSystemPrompt(req.SystemPrompt)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out, err := sess.ExportJSON()
	if err != nil {
		s.logger.Error("export failed", "session", sess.Name(), "error", err)
		sendJSONError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(sess.Name())+`-dialog.json"`)
	}
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleGetReasoning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReasoningRequest{Hidden: s.sessions.ReasoningHidden()})
}

func (s *Server) handleSetReasoning(w http.ResponseWriter, r *http.Request) {
	var req ReasoningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.sessions.SetReasoningHidden(req.Hidden)
	writeJSON(w, http.StatusOK, ReasoningRequest{Hidden: s.sessions.ReasoningHidden()})
}

// handleEvents streams the session's events as server-sent events until the
// client goes away or the feed closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, _ := s.feed.Subscribe(r.Context(), sess.Name())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "started", map[string]string{
		"session": sess.Name(),
		"state":   sess.State().String(),
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.writeSSEEvent(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("name"))
	if err != nil {
		sendJSONError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func safeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
