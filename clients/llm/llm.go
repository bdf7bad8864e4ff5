// Package llm implements the LLMClient contract against a local
// Ollama-style chat endpoint (spec §6.2).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hermesagent/hermes/core"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the synchronous chat(messages) -> text contract every stage
// depends on through this interface, never on a concrete provider.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// HTTPClient calls a local LLM server exposing the chat wire contract from
// spec §6.2. Non-2xx is retryable (core.ErrUpstreamUnavailable); a 2xx with
// an empty message.content is a fatal protocol error for that call.
type HTTPClient struct {
	Endpoint string
	Model    string
	HTTP     *http.Client
	Logger   core.Logger
}

// New constructs an HTTPClient bound to endpoint/model with the given
// per-call timeout.
func New(endpoint, model string, timeout time.Duration, logger core.Logger) *HTTPClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &HTTPClient{
		Endpoint: endpoint,
		Model:    model,
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		Logger: logger,
	}
}

func (c *HTTPClient) Chat(ctx context.Context, messages []Message) (string, error) {
	payload := chatRequest{Model: c.Model, Messages: messages, Stream: false}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", core.NewError("llm.Chat", core.KindFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", core.NewError("llm.Chat", core.KindFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", core.NewError("llm.Chat", core.KindUpstreamUnavailable, fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewError("llm.Chat", core.KindUpstreamUnavailable,
			fmt.Errorf("%w: status %d", core.ErrUpstreamUnavailable, resp.StatusCode))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", core.NewError("llm.Chat", core.KindFatal, err)
	}
	if decoded.Message.Content == "" {
		return "", core.NewError("llm.Chat", core.KindFatal, fmt.Errorf("empty message.content in response"))
	}

	return decoded.Message.Content, nil
}
