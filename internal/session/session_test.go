// ABOUTME: Tests for ChatSession
// ABOUTME: Verifies input rejection, the single in-flight rule, ordering and failure surrogates

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/llm-chat/internal/dialog"
	"github.com/2389/llm-chat/internal/events"
	"github.com/2389/llm-chat/internal/transport"
)

// stubTransport replies with a fixed text and remembers what it was sent.
type stubTransport struct {
	mu     sync.Mutex
	reply  string
	sent   [][]dialog.Turn
	gate   chan struct{} // when set, Send blocks until it is closed
	called chan struct{} // when set, receives once per Send call
}

func (s *stubTransport) Name() string         { return "Stub" }
func (s *stubTransport) Kind() transport.Kind { return transport.KindCompletions }

func (s *stubTransport) Send(ctx context.Context, turns []dialog.Turn) string {
	s.mu.Lock()
	s.sent = append(s.sent, turns)
	gate, called := s.gate, s.called
	reply := s.reply
	s.mu.Unlock()

	if called != nil {
		called <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return reply
}

func (s *stubTransport) lastSent() []dialog.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type countingRejections struct {
	mu      sync.Mutex
	reasons []string
}

func (c *countingRejections) ObserveRejected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
}

type capturePublisher struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *capturePublisher) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *capturePublisher) types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, len(c.evs))
	for i, ev := range c.evs {
		out[i] = ev.Type
	}
	return out
}

func TestSession_SendMessageRecordsBothTurns(t *testing.T) {
	tr := &stubTransport{reply: "<think>easy</think>4"}
	s := New(tr, Options{Name: "local", SystemPrompt: "be terse"})
	defer s.Close()

	reply, err := s.SendMessage(context.Background(), "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "<think>easy</think>4", reply)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, dialog.RoleUser, snap[0].Role)
	assert.Equal(t, "2+2?", snap[0].Content)
	assert.True(t, snap[0].IsUserOriginated)
	assert.Equal(t, dialog.RoleAssistant, snap[1].Role)
	assert.Equal(t, "<think>easy</think>4", snap[1].Content)
	assert.False(t, snap[1].IsUserOriginated)
	assert.False(t, snap[1].Timestamp.Before(snap[0].Timestamp))

	sent := tr.lastSent()
	require.Len(t, sent, 2)
	assert.Equal(t, dialog.Turn{Role: dialog.RoleSystem, Content: "be terse"}, sent[0])
	assert.Equal(t, dialog.Turn{Role: dialog.RoleUser, Content: "2+2?"}, sent[1])
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_SecondSendCarriesHistory(t *testing.T) {
	tr := &stubTransport{reply: "ok"}
	s := New(tr, Options{})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.SendMessage(context.Background(), "second")
	require.NoError(t, err)

	sent := tr.lastSent()
	require.Len(t, sent, 3)
	assert.Equal(t, "first", sent[0].Content)
	assert.Equal(t, "ok", sent[1].Content)
	assert.Equal(t, "second", sent[2].Content)

	snap := s.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, []string{"first", "ok", "second", "ok"},
		[]string{snap[0].Content, snap[1].Content, snap[2].Content, snap[3].Content})
}

func TestSession_RejectsEmptyText(t *testing.T) {
	tr := &stubTransport{reply: "never"}
	rej := &countingRejections{}
	s := New(tr, Options{Rejections: rej})
	defer s.Close()

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := s.SendMessage(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	assert.Empty(t, s.Snapshot())
	assert.Empty(t, tr.sent)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []string{"empty", "empty", "empty"}, rej.reasons)
}

func TestSession_RejectsConcurrentSend(t *testing.T) {
	tr := &stubTransport{
		reply:  "slow answer",
		gate:   make(chan struct{}),
		called: make(chan struct{}, 1),
	}
	rej := &countingRejections{}
	s := New(tr, Options{Rejections: rej})
	defer s.Close()

	done := make(chan string)
	go func() {
		reply, err := s.SendMessage(context.Background(), "first")
		assert.NoError(t, err)
		done <- reply
	}()

	<-tr.called
	assert.Equal(t, StateSending, s.State())

	_, err := s.SendMessage(context.Background(), "second")
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, []string{"busy"}, rej.reasons)

	close(tr.gate)
	assert.Equal(t, "slow answer", <-done)
	assert.Equal(t, StateIdle, s.State())

	snap := s.Snapshot()
	require.Len(t, snap, 2, "the rejected send must not be recorded")
	assert.Equal(t, "first", snap[0].Content)
	assert.Equal(t, "slow answer", snap[1].Content)
}

func TestSession_TransportFailureIsRecordedAsReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, err := transport.NewCompletions(transport.Options{Endpoint: srv.URL})
	require.NoError(t, err)
	s := New(tr, Options{})
	defer s.Close()

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, transport.SurrogatePrefix), reply)
	assert.Equal(t, StateIdle, s.State())

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "hi", snap[0].Content)
	assert.Equal(t, dialog.RoleAssistant, snap[1].Role)
	assert.True(t, strings.HasPrefix(snap[1].Content, "Error communicating with Local LLM: "))
}

func TestSession_ClearDuringSendStillRecordsReply(t *testing.T) {
	tr := &stubTransport{reply: "late", gate: make(chan struct{}), called: make(chan struct{}, 1)}
	s := New(tr, Options{})
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.SendMessage(context.Background(), "question")
	}()

	<-tr.called
	s.Clear()
	assert.Empty(t, s.Snapshot())

	close(tr.gate)
	<-done

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "question", snap[0].Content)
	assert.Equal(t, "late", snap[1].Content)
}

func TestSession_ClearKeepsSystemPromptAndExportsEmpty(t *testing.T) {
	tr := &stubTransport{reply: "a"}
	s := New(tr, Options{SystemPrompt: "rules"})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "q")
	require.NoError(t, err)

	s.Clear()

	assert.Empty(t, s.Snapshot())
	out, err := s.ExportJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "rules", s.SystemPrompt())
}

func TestSession_SetSystemPromptAppliesToNextRequest(t *testing.T) {
	tr := &stubTransport{reply: "a"}
	s := New(tr, Options{})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "one")
	require.NoError(t, err)
	assert.Len(t, tr.lastSent(), 1, "no system turn without a prompt")

	s.SetSystemPrompt("speak like a pirate")
	_, err = s.SendMessage(context.Background(), "two")
	require.NoError(t, err)

	sent := tr.lastSent()
	require.Len(t, sent, 4)
	assert.Equal(t, dialog.Turn{Role: dialog.RoleSystem, Content: "speak like a pirate"}, sent[0])
}

func TestSession_ExportJSONIsStable(t *testing.T) {
	tr := &stubTransport{reply: "réponse"}
	s := New(tr, Options{})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "question")
	require.NoError(t, err)

	first, err := s.ExportJSON()
	require.NoError(t, err)
	second, err := s.ExportJSON()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "réponse")
	assert.Contains(t, first, `"isUserOriginated": true`)
}

func TestSession_ReasoningToggleDoesNotTouchContent(t *testing.T) {
	tr := &stubTransport{reply: "<think>plan</think>answer"}
	s := New(tr, Options{})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "q")
	require.NoError(t, err)
	before := s.Snapshot()

	assert.True(t, s.ReasoningHidden())
	assert.False(t, s.Views()[1].ThoughtVisible)

	var notified []dialog.View
	s.OnVisibilityChanged(func(v dialog.View) { notified = append(notified, v) })
	require.True(t, s.SetReasoningHidden(false))

	assert.Equal(t, before, s.Snapshot())
	assert.True(t, s.Views()[1].ThoughtVisible)
	assert.Equal(t, "answer", s.Views()[1].VisibleText)
	assert.Len(t, notified, 2)
}

func TestSession_SharedVisibility(t *testing.T) {
	vis := dialog.NewVisibility(true)
	a := New(&stubTransport{reply: "<think>a</think>x"}, Options{Name: "a", Visibility: vis})
	b := New(&stubTransport{reply: "<think>b</think>y"}, Options{Name: "b", Visibility: vis})
	defer a.Close()
	defer b.Close()

	_, err := b.SendMessage(context.Background(), "q")
	require.NoError(t, err)

	a.SetReasoningHidden(false)

	assert.False(t, b.ReasoningHidden())
	assert.True(t, b.Views()[1].ThoughtVisible)
}

func TestSession_ClosedRejectsSends(t *testing.T) {
	s := New(&stubTransport{reply: "x"}, Options{})
	s.Close()
	s.Close()

	_, err := s.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, ErrClosed)
}

func TestSession_Metadata(t *testing.T) {
	s := New(&stubTransport{}, Options{Name: "local"})
	defer s.Close()

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "local", s.Name())
	assert.Equal(t, transport.KindCompletions, s.Transport())
	assert.Equal(t, "Stub service initialized.", s.Status())
	assert.Equal(t, "idle", s.State().String())
	assert.Equal(t, "sending", StateSending.String())

	unnamed := New(&stubTransport{}, Options{})
	defer unnamed.Close()
	assert.Equal(t, "completions", unnamed.Name())
}

func TestSession_ContextCancellationBecomesSurrogate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, err := transport.NewCompletions(transport.Options{Endpoint: srv.URL})
	require.NoError(t, err)
	s := New(tr, Options{})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reply, err := s.SendMessage(ctx, "hi")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, transport.SurrogatePrefix), reply)
	assert.Len(t, s.Snapshot(), 2)
}

func TestSession_PublishesEvents(t *testing.T) {
	pub := &capturePublisher{}
	tr := &stubTransport{reply: "<think>hm</think>ok"}
	s := New(tr, Options{Name: "local", Events: pub})

	_, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	s.SetReasoningHidden(false)
	s.Clear()

	// Rejected sends publish nothing.
	_, err = s.SendMessage(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyMessage)

	assert.Equal(t, []events.Type{
		events.TypeState,
		events.TypeRecord,
		events.TypeRecord,
		events.TypeState,
		events.TypeVisibility,
		events.TypeVisibility,
		events.TypeCleared,
	}, pub.types())

	pub.mu.Lock()
	evs := pub.evs
	pub.mu.Unlock()
	assert.Equal(t, "sending", evs[0].State)
	assert.Equal(t, "hi", evs[1].View.Content)
	assert.Equal(t, "ok", evs[2].View.VisibleText)
	assert.False(t, evs[2].View.ThoughtVisible)
	assert.Equal(t, "idle", evs[3].State)
	assert.True(t, evs[5].View.ThoughtVisible)
	for _, ev := range evs {
		assert.Equal(t, "local", ev.Session)
	}

	// After Close the shared flag no longer reaches this session's subscribers.
	s.Close()
	s.SetReasoningHidden(true)
	assert.Len(t, pub.types(), 7)
}

func TestSession_ClearNeverSplitsAnExchange(t *testing.T) {
	s := New(&stubTransport{reply: "a"}, Options{Name: "local"})
	defer s.Close()

	checkPairs := func(records []dialog.Record) bool {
		if !assert.Zero(t, len(records)%2, "history holds a partial exchange") {
			return false
		}
		for i, rec := range records {
			want := dialog.RoleUser
			if i%2 == 1 {
				want = dialog.RoleAssistant
			}
			if !assert.Equal(t, want, rec.Role) {
				return false
			}
		}
		return true
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				s.Clear()
				if !checkPairs(s.Snapshot()) {
					return
				}
			}
		}
	}()

	for range 200 {
		_, err := s.SendMessage(context.Background(), "q")
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
	checkPairs(s.Snapshot())
}
