// ABOUTME: DialogStore keeps the ordered turn history and the system prompt for one session
// ABOUTME: Builds outgoing request turns and derives per-record reasoning visibility

package dialog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/llm-chat/internal/thought"
)

// ErrInvalidRole is returned when appending a record whose role is unknown.
var ErrInvalidRole = errors.New("invalid role")

// View is a record together with its derived reasoning split.
type View struct {
	Record
	VisibleText    string `json:"visibleText"`
	HiddenText     string `json:"hiddenText,omitempty"`
	HasThought     bool   `json:"hasThought"`
	ThoughtVisible bool   `json:"thoughtVisible"`
}

// NewView derives the view of rec under the given hidden flag.
func NewView(rec Record, reasoningHidden bool) View {
	seg := thought.Extract(rec.Content)
	return View{
		Record:         rec,
		VisibleText:    seg.VisibleText,
		HiddenText:     seg.HiddenText,
		HasThought:     seg.HasThought,
		ThoughtVisible: seg.Visible(reasoningHidden),
	}
}

// Store is an append-only (until cleared) history of records.
// It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	systemPrompt string
	history      []Record

	vis         *Visibility
	unsubscribe func()

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func(View)
}

// NewStore creates an empty store bound to vis. A nil vis gets a private
// flag that starts hidden.
func NewStore(vis *Visibility) *Store {
	if vis == nil {
		vis = NewVisibility(true)
	}
	s := &Store{
		vis:       vis,
		observers: make(map[int]func(View)),
	}
	s.unsubscribe = vis.Subscribe(s.visibilityChanged)
	return s
}

// Append adds recs to the end of the history in order, under one lock, so a
// concurrent Clear sees either none or all of them. If any role is invalid
// nothing is appended.
func (s *Store) Append(recs ...Record) error {
	for _, rec := range recs {
		if !rec.Role.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, rec.Role)
		}
	}
	s.mu.Lock()
	s.history = append(s.history, recs...)
	s.mu.Unlock()
	return nil
}

// Clear empties the history. The system prompt is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Snapshot returns a copy of the history, oldest first.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// SystemPrompt returns the directive applied to every request.
func (s *Store) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// SetSystemPrompt replaces the directive for subsequent requests.
func (s *Store) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	s.systemPrompt = prompt
	s.mu.Unlock()
}

// ReasoningHidden reports the shared flag.
func (s *Store) ReasoningHidden() bool {
	return s.vis.Hidden()
}

// SetReasoningHidden updates the shared flag. Observers of every store
// sharing it are notified once per record when the value changes.
func (s *Store) SetReasoningHidden(hidden bool) bool {
	return s.vis.Set(hidden)
}

// OnVisibilityChanged registers fn to receive the recomputed view of each
// record after the shared flag changes.
func (s *Store) OnVisibilityChanged(fn func(View)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) visibilityChanged(hidden bool) {
	s.obsMu.Lock()
	observers := make([]func(View), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()
	if len(observers) == 0 {
		return
	}

	for _, rec := range s.Snapshot() {
		v := NewView(rec, hidden)
		for _, fn := range observers {
			fn(v)
		}
	}
}

// Views returns the snapshot with reasoning derived under the current flag.
func (s *Store) Views() []View {
	hidden := s.vis.Hidden()
	records := s.Snapshot()
	views := make([]View, len(records))
	for i, rec := range records {
		views[i] = NewView(rec, hidden)
	}
	return views
}

// RequestMessages builds [system?] + history + [new user turn]. The new turn
// is not appended to the history.
func (s *Store) RequestMessages(systemPrompt, newUserText string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]Turn, 0, len(s.history)+2)
	if systemPrompt != "" {
		turns = append(turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	for _, rec := range s.history {
		turns = append(turns, Turn{Role: rec.Role, Content: rec.Content})
	}
	return append(turns, Turn{Role: RoleUser, Content: newUserText})
}

// ExportJSON serializes the history as an indented JSON array. Non-ASCII and
// HTML characters are written as is.
func (s *Store) ExportJSON() (string, error) {
	records := s.Snapshot()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("encoding dialog: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Close detaches the store from the shared flag.
func (s *Store) Close() {
	s.unsubscribe()
}
