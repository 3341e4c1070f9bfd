// ABOUTME: Transport interface, shared HTTP exchange and error-surrogate handling
// ABOUTME: Concrete request/response shapes live in completions.go and contentarray.go

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/llm-chat/internal/dialog"
)

// FallbackText is returned when the reply is valid JSON but lacks the expected field.
const FallbackText = "No response received."

// SurrogatePrefix starts every error-surrogate reply.
const SurrogatePrefix = "Error communicating with "

var (
	// ErrUnknownKind is returned by New for an unsupported variant.
	ErrUnknownKind = errors.New("unknown transport kind")
	// ErrInvalidEndpoint is returned when the endpoint is missing or not an http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrMissingAPIKey is returned when a variant that needs a key has none.
	ErrMissingAPIKey = errors.New("api key is required")

	errMalformedBody = errors.New("malformed JSON in response body")
)

// Kind names a request/response shape.
type Kind string

// Supported variants.
const (
	KindCompletions  Kind = "completions"
	KindContentArray Kind = "content-array"
)

// Outcome classifies a finished exchange for metrics.
type Outcome string

// Outcome values.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeFallback Outcome = "fallback"
	OutcomeError    Outcome = "error"
)

// Transport sends a dialog to a model endpoint. Send makes a single attempt
// and always returns assistant text; failures come back as surrogate text.
type Transport interface {
	Name() string
	Kind() Kind
	Send(ctx context.Context, turns []dialog.Turn) string
}

// Observer receives one call per finished exchange.
type Observer interface {
	ObserveRequest(transport string, outcome Outcome, elapsed time.Duration)
}

// Options configures a transport. Unused fields are ignored by each variant.
type Options struct {
	Endpoint   string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
	Logger     *slog.Logger
}

// New builds the variant named by kind.
func New(kind Kind, opts Options) (Transport, error) {
	switch kind {
	case KindCompletions:
		return NewCompletions(opts)
	case KindContentArray:
		return NewContentArray(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Surrogate formats the reply stored in place of a failed exchange.
func Surrogate(name string, err error) string {
	return SurrogatePrefix + name + ": " + err.Error()
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, Outcome, time.Duration) {}

// exchange is the HTTP plumbing shared by both variants.
type exchange struct {
	name     string
	kind     Kind
	url      string
	header   http.Header
	replyAt  string
	client   *http.Client
	observer Observer
	logger   *slog.Logger
}

func newExchange(name string, kind Kind, endpoint, replyAt string, opts Options) *exchange {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &exchange{
		name:     name,
		kind:     kind,
		url:      endpoint,
		header:   make(http.Header),
		replyAt:  replyAt,
		client:   client,
		observer: observer,
		logger:   logger.With("component", "transport", "transport", string(kind)),
	}
}

// post sends payload and returns the reply text, converting every failure
// into surrogate text.
func (e *exchange) post(ctx context.Context, payload any) string {
	start := time.Now()
	text, outcome, err := e.roundTrip(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Warn("exchange failed", "url", e.url, "error", err, "elapsed", elapsed)
		text, outcome = Surrogate(e.name, err), OutcomeError
	} else {
		e.logger.Debug("exchange complete", "outcome", outcome, "reply_len", len(text), "elapsed", elapsed)
	}
	e.observer.ObserveRequest(string(e.kind), outcome, elapsed)
	return text
}

func (e *exchange) roundTrip(ctx context.Context, payload any) (string, Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", OutcomeError, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", OutcomeError, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range e.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", OutcomeError, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", OutcomeError, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", OutcomeError, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if !gjson.ValidBytes(data) {
		return "", OutcomeError, errMalformedBody
	}

	reply := gjson.GetBytes(data, e.replyAt)
	if reply.Type != gjson.String {
		return FallbackText, OutcomeFallback, nil
	}
	return reply.String(), OutcomeOK, nil
}

// ValidateEndpoint accepts absolute http and https URLs only.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is empty", ErrInvalidEndpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidEndpoint, endpoint)
	}
	return nil
}
