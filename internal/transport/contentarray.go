// ABOUTME: Content-array variant for the hosted messages API
// ABOUTME: Sends only the newest user turn with a fixed model and token cap; reads content[0].text

package transport

import (
	"context"

	"github.com/2389/llm-chat/internal/dialog"
)

const contentArrayName = "API"

// Defaults for the hosted messages API.
const (
	DefaultContentArrayURL = "https://api.anthropic.com/v1/messages"
	DefaultModel           = "claude-3-opus-20240229"
	DefaultMaxTokens       = 1000
	APIVersion             = "2023-06-01"
)

type contentArrayRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []wireMessage `json:"messages"`
}

// ContentArray posts a single-turn request. Prior history and the system
// prompt are not forwarded.
type ContentArray struct {
	ex        *exchange
	model     string
	maxTokens int
}

// NewContentArray builds the transport. Endpoint defaults to
// DefaultContentArrayURL, Model to DefaultModel and MaxTokens to DefaultMaxTokens.
func NewContentArray(opts Options) (*ContentArray, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultContentArrayURL
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	ex := newExchange(contentArrayName, KindContentArray, endpoint, "content.0.text", opts)
	ex.header.Set("Accept", "application/json")
	ex.header.Set("x-api-key", opts.APIKey)
	ex.header.Set("anthropic-version", APIVersion)

	return &ContentArray{ex: ex, model: model, maxTokens: maxTokens}, nil
}

// Name returns the label used in error-surrogate text.
func (c *ContentArray) Name() string { return contentArrayName }

// Kind returns KindContentArray.
func (c *ContentArray) Kind() Kind { return KindContentArray }

// Send posts the newest user turn and returns the assistant reply.
func (c *ContentArray) Send(ctx context.Context, turns []dialog.Turn) string {
	req := contentArrayRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []wireMessage{{Role: string(dialog.RoleUser), Content: lastUserText(turns)}},
	}
	c.ex.logger.Debug("sending request", "model", c.model, "dropped_turns", max(len(turns)-1, 0))
	return c.ex.post(ctx, req)
}

func lastUserText(turns []dialog.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == dialog.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}
