// ABOUTME: ChatSession orchestrates one conversation over a single transport
// ABOUTME: At most one request is in flight; a second send while Sending is refused

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/llm-chat/internal/dialog"
	"github.com/2389/llm-chat/internal/events"
	"github.com/2389/llm-chat/internal/metrics"
	"github.com/2389/llm-chat/internal/transport"
)

var (
	// ErrEmptyMessage is returned for empty or whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned when a send is attempted while another is in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrClosed is returned by SendMessage after Close.
	ErrClosed = errors.New("session is closed")
)

// State is the send state of a session.
type State int32

// Session states.
const (
	StateIdle State = iota
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RejectionObserver is told about sends refused before reaching the transport.
type RejectionObserver interface {
	ObserveRejected(reason string)
}

// Publisher receives the session's live events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Session.
type Options struct {
	Name         string
	SystemPrompt string
	// Visibility is the shared reasoning flag. Nil gives the session its own,
	// starting hidden.
	Visibility *dialog.Visibility
	Rejections RejectionObserver
	Events     Publisher
	Logger     *slog.Logger
}

// Session owns one dialog store and one transport.
type Session struct {
	id         string
	name       string
	transport  transport.Transport
	store      *dialog.Store
	state      atomic.Int32
	closed     atomic.Bool
	rejections RejectionObserver
	events     Publisher
	unwatch    func()
	logger     *slog.Logger
}

// New creates an idle session that talks through tr.
func New(tr transport.Transport, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.Name
	if name == "" {
		name = string(tr.Kind())
	}

	s := &Session{
		id:         uuid.New().String(),
		name:       name,
		transport:  tr,
		store:      dialog.NewStore(opts.Visibility),
		rejections: opts.Rejections,
		events:     opts.Events,
		logger:     logger.With("component", "session", "session", name),
	}
	s.store.SetSystemPrompt(opts.SystemPrompt)
	if s.events != nil {
		s.unwatch = s.store.OnVisibilityChanged(func(v dialog.View) {
			s.publish(events.Event{Type: events.TypeVisibility, View: &v})
		})
	}
	return s
}

// ID returns the unique identifier of this session instance.
func (s *Session) ID() string { return s.id }

// Name returns the configured session name.
func (s *Session) Name() string { return s.name }

// Transport returns the variant this session sends through.
func (s *Session) Transport() transport.Kind { return s.transport.Kind() }

// State reports whether a send is in flight.
func (s *Session) State() State { return State(s.state.Load()) }

// Status is a one-line human readable description of the session.
func (s *Session) Status() string {
	return s.transport.Name() + " service initialized."
}

// SendMessage sends text with the current history and system prompt, then
// records the user turn followed by the assistant reply.
//
// Only input errors are returned. Transport failures come back as the reply
// text and are recorded like any other answer.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		s.reject(metrics.ReasonEmpty)
		return "", ErrEmptyMessage
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSending)) {
		s.reject(metrics.ReasonBusy)
		return "", ErrBusy
	}
	s.publish(events.Event{Type: events.TypeState, State: StateSending.String()})
	defer func() {
		s.state.Store(int32(StateIdle))
		s.publish(events.Event{Type: events.TypeState, State: StateIdle.String()})
	}()

	userRec := dialog.NewRecord(dialog.RoleUser, text)
	turns := s.store.RequestMessages(s.store.SystemPrompt(), text)

	start := time.Now()
	reply := s.transport.Send(ctx, turns)

	if strings.HasPrefix(reply, transport.SurrogatePrefix) {
		s.logger.Warn("transport reported a failure", "reply", reply)
	}

	replyRec := dialog.NewRecord(dialog.RoleAssistant, reply)
	if err := s.store.Append(userRec, replyRec); err != nil {
		return "", fmt.Errorf("recording exchange: %w", err)
	}
	s.publishRecord(userRec)
	s.publishRecord(replyRec)

	s.logger.Debug("exchange recorded",
		"turns_sent", len(turns),
		"reply_len", len(reply),
		"elapsed", time.Since(start),
		"history_len", s.store.Len())

	return reply, nil
}

func (s *Session) publish(ev events.Event) {
	if s.events == nil {
		return
	}
	ev.Session = s.name
	s.events.Publish(ev)
}

func (s *Session) publishRecord(rec dialog.Record) {
	if s.events == nil {
		return
	}
	v := dialog.NewView(rec, s.store.ReasoningHidden())
	s.publish(events.Event{Type: events.TypeRecord, View: &v})
}

func (s *Session) reject(reason string) {
	s.logger.Debug("send rejected", "reason", reason)
	if s.rejections != nil {
		s.rejections.ObserveRejected(reason)
	}
}

// Clear empties the history. A reply still in flight is appended to the
// emptied history when it arrives.
func (s *Session) Clear() {
	s.store.Clear()
	s.publish(events.Event{Type: events.TypeCleared})
	s.logger.Info("dialog cleared")
}

// SetSystemPrompt replaces the directive for subsequent requests.
func (s *Session) SetSystemPrompt(prompt string) {
	s.store.SetSystemPrompt(prompt)
	s.logger.Info("system prompt updated", "len", len(prompt))
}

// SystemPrompt returns the current directive.
func (s *Session) SystemPrompt() string { return s.store.SystemPrompt() }

// Snapshot returns the history, oldest first.
func (s *Session) Snapshot() []dialog.Record { return s.store.Snapshot() }

// Views returns the history with reasoning derived under the shared flag.
func (s *Session) Views() []dialog.View { return s.store.Views() }

// ReasoningHidden reports the shared flag.
func (s *Session) ReasoningHidden() bool { return s.store.ReasoningHidden() }

// SetReasoningHidden updates the shared flag for every session holding it.
func (s *Session) SetReasoningHidden(hidden bool) bool {
	return s.store.SetReasoningHidden(hidden)
}

// OnVisibilityChanged registers fn for recomputed views after a flag change.
func (s *Session) OnVisibilityChanged(fn func(dialog.View)) (cancel func()) {
	return s.store.OnVisibilityChanged(fn)
}

// ExportJSON serializes the history as an indented JSON array.
func (s *Session) ExportJSON() (string, error) { return s.store.ExportJSON() }

// Close detaches the session from the shared flag and refuses further sends.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		if s.unwatch != nil {
			s.unwatch()
		}
		s.store.Close()
	}
}
