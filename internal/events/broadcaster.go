// ABOUTME: In-memory fan-out of session events to live subscribers
// ABOUTME: Keyed by session name; full subscriber buffers drop events instead of blocking

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/llm-chat/internal/dialog"
)

const subscriberBufferSize = 64

// Type names what happened in a session.
type Type string

// Event types.
const (
	TypeRecord     Type = "record"
	TypeCleared    Type = "cleared"
	TypeState      Type = "state"
	TypeVisibility Type = "visibility"
)

// Event is one change in a session. View is set for record and visibility
// events, State for state events.
type Event struct {
	Type      Type         `json:"type"`
	Session   string       `json:"session"`
	View      *dialog.View `json:"view,omitempty"`
	State     string       `json:"state,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Broadcaster provides in-memory pub/sub for session events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // session -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers for events of the named session. The subscription is
// removed and the channel closed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, session string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[session]; !ok {
		b.subscribers[session] = make(map[string]chan Event)
	}
	b.subscribers[session][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session", session, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(session, subID)
	}()

	return ch, subID
}

// Publish stamps ev and sends it to every subscriber of ev.Session.
// It never blocks.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	// Sending under the read lock keeps Unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[ev.Session] {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber", "session", ev.Session, "type", ev.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(session, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[session]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, session)
	}

	b.logger.Debug("subscriber removed", "session", session, "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions for session.
func (b *Broadcaster) SubscriberCount(session string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[session])
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for session, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, session)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
