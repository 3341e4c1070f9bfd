// ABOUTME: Manager keeps one named session per configured endpoint
// ABOUTME: All sessions share a single reasoning-visibility flag

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/2389/llm-chat/internal/config"
	"github.com/2389/llm-chat/internal/dialog"
	"github.com/2389/llm-chat/internal/transport"
)

// ErrSessionNotFound indicates no session has the requested name.
var ErrSessionNotFound = errors.New("session not found")

// Recorder receives transport outcomes and send rejections.
type Recorder interface {
	transport.Observer
	RejectionObserver
}

type entry struct {
	cfg     config.SessionConfig
	session *Session
}

// Manager builds sessions from configuration and routes callers to them.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	visibility *dialog.Visibility
	recorder   Recorder
	events     Publisher
	client     *http.Client
	logger     *slog.Logger
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// ReasoningVisible starts the shared flag shown. The zero value hides
	// reasoning.
	ReasoningVisible bool
	Recorder         Recorder
	// Events, when set, receives every session's live events.
	Events Publisher
	// HTTPClient overrides the per-session client; timeouts from config are
	// then ignored.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:   make(map[string]*entry),
		visibility: dialog.NewVisibility(!opts.ReasoningVisible),
		recorder:   opts.Recorder,
		events:     opts.Events,
		client:     opts.HTTPClient,
		logger:     logger,
	}
}

// Configure brings the set of sessions in line with defs.
//
// A session whose endpoint settings are unchanged keeps its history; only its
// system prompt is updated. A changed endpoint replaces the session with a
// fresh one. Sessions missing from defs are closed. On error nothing changes.
func (m *Manager) Configure(defs []config.SessionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*entry, len(defs))
	var built []*Session
	for _, def := range defs {
		if _, dup := next[def.Name]; dup {
			closeAll(built)
			return fmt.Errorf("duplicate session name %q", def.Name)
		}
		if old, ok := m.sessions[def.Name]; ok && old.cfg.SameEndpoint(def) {
			next[def.Name] = &entry{cfg: def, session: old.session}
			continue
		}
		s, err := m.build(def)
		if err != nil {
			closeAll(built)
			return fmt.Errorf("session %q: %w", def.Name, err)
		}
		built = append(built, s)
		next[def.Name] = &entry{cfg: def, session: s}
	}

	for name, old := range m.sessions {
		if e, ok := next[name]; ok && e.session == old.session {
			if old.cfg.SystemPrompt != e.cfg.SystemPrompt {
				e.session.SetSystemPrompt(e.cfg.SystemPrompt)
			}
			continue
		}
		old.session.Close()
		m.logger.Info("session closed", "session", name)
	}
	for _, s := range built {
		m.logger.Info("session ready", "session", s.Name(), "transport", s.Transport(), "status", s.Status())
	}

	m.sessions = next
	return nil
}

func (m *Manager) build(def config.SessionConfig) (*Session, error) {
	opts := transport.Options{
		Endpoint:   def.Endpoint,
		APIKey:     def.APIKey,
		Model:      def.Model,
		MaxTokens:  def.MaxTokens,
		Timeout:    def.Timeout,
		HTTPClient: m.client,
		Logger:     m.logger,
	}
	var rejections RejectionObserver
	if m.recorder != nil {
		opts.Observer = m.recorder
		rejections = m.recorder
	}

	tr, err := transport.New(def.Kind(), opts)
	if err != nil {
		return nil, err
	}
	return New(tr, Options{
		Name:         def.Name,
		SystemPrompt: def.SystemPrompt,
		Visibility:   m.visibility,
		Rejections:   rejections,
		Events:       m.events,
		Logger:       m.logger,
	}), nil
}

func closeAll(sessions []*Session) {
	for _, s := range sessions {
		s.Close()
	}
}

// Get returns the named session.
func (m *Manager) Get(name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	return e.session, nil
}

// Names returns the session names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReasoningHidden reports the shared flag.
func (m *Manager) ReasoningHidden() bool { return m.visibility.Hidden() }

// SetReasoningHidden updates the flag shared by every session.
func (m *Manager) SetReasoningHidden(hidden bool) bool {
	changed := m.visibility.Set(hidden)
	if changed {
		m.logger.Info("reasoning visibility changed", "hidden", hidden)
	}
	return changed
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.sessions {
		e.session.Close()
	}
	m.sessions = make(map[string]*entry)
}
