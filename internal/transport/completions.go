// ABOUTME: Generic chat-completions variant (LM Studio, Ollama /v1, llama.cpp server)
// ABOUTME: Forwards system prompt plus full history; reads choices[0].message.content

package transport

import (
	"context"

	"github.com/2389/llm-chat/internal/dialog"
)

const completionsName = "Local LLM"

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionsRequest struct {
	Messages []wireMessage `json:"messages"`
}

// Completions posts the whole dialog to a chat-completions endpoint.
type Completions struct {
	ex *exchange
}

// NewCompletions validates the endpoint and builds the transport.
func NewCompletions(opts Options) (*Completions, error) {
	if err := ValidateEndpoint(opts.Endpoint); err != nil {
		return nil, err
	}
	return &Completions{
		ex: newExchange(completionsName, KindCompletions, opts.Endpoint, "choices.0.message.content", opts),
	}, nil
}

// Name returns the label used in error-surrogate text.
func (c *Completions) Name() string { return completionsName }

// Kind returns KindCompletions.
func (c *Completions) Kind() Kind { return KindCompletions }

// Send posts turns in order and returns the assistant reply.
func (c *Completions) Send(ctx context.Context, turns []dialog.Turn) string {
	req := completionsRequest{Messages: make([]wireMessage, len(turns))}
	for i, t := range turns {
		req.Messages[i] = wireMessage{Role: string(t.Role), Content: t.Content}
	}
	c.ex.logger.Debug("sending request", "messages", len(req.Messages))
	return c.ex.post(ctx, req)
}
