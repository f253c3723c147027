package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/config"
)

const (
	defaultOpenAIURL     = "https://api.openai.com/v1/chat/completions"
	defaultOpenAITimeout = 60 * time.Second
)

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIHTTPClient sets a custom HTTP client (useful for testing).
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = c }
}

// WithOpenAIEndpoint overrides the full chat completions URL.
func WithOpenAIEndpoint(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.endpoint = url }
}

// OpenAIProvider answers through the OpenAI Chat Completions API. The
// effective role is sent as the system message and the prompt as the user
// message.
type OpenAIProvider struct {
	backend
	endpoint string
	client   *http.Client
}

// NewOpenAIProvider creates an OpenAI provider from its config. A base_url
// in the config points the provider at an OpenAI-compatible API root
// (e.g. "https://gateway.internal/v1").
func NewOpenAIProvider(cfg config.ProviderConfig, logger *zap.Logger, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		backend:  newBackend(NameOpenAI, "OpenAI", cfg, defaultOpenAITimeout, logger, "api_key", "model"),
		endpoint: defaultOpenAIURL,
		client:   &http.Client{},
	}
	if cfg.BaseURL != "" {
		p.endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// openaiRequest is the OpenAI Chat Completions API request body.
type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// openaiResponse is the OpenAI Chat Completions API response body.
type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Invoke sends a single chat completion request.
func (p *OpenAIProvider) Invoke(ctx context.Context, inv Invocation) (string, error) {
	role := p.role(inv)
	user, err := p.render(role, inv.Prompt, inv.Prompt)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(buildOpenAIRequest(p.model(inv), role, user))
	if err != nil {
		return "", backendError(p.display, fmt.Errorf("building request body: %w", err))
	}

	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	p.logger.Debug("invoking provider", zap.String("model", p.model(inv)), zap.Int("prompt_len", len(user)))

	status, respBody, err := p.postJSON(ctx, p.client, p.endpoint, body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}

	if status < 200 || status > 299 {
		var apiErr openaiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", statusError(p.display, status, apiErr.Error.Message)
		}
		return "", statusError(p.display, status, strings.TrimSpace(string(respBody)))
	}

	var or openaiResponse
	if err := json.Unmarshal(respBody, &or); err != nil {
		return "", backendError(p.display, fmt.Errorf("decoding response: %w", err))
	}

	return p.finish(parseOpenAIResponse(&or))
}

func buildOpenAIRequest(model, system, user string) openaiRequest {
	msgs := make([]openaiMessage, 0, 2)

	// OpenAI uses a system message in the messages array.
	if system != "" {
		s := system
		msgs = append(msgs, openaiMessage{Role: "system", Content: &s})
	}
	u := user
	msgs = append(msgs, openaiMessage{Role: "user", Content: &u})

	return openaiRequest{Model: model, Messages: msgs}
}

func parseOpenAIResponse(or *openaiResponse) string {
	if len(or.Choices) == 0 {
		return ""
	}
	if c := or.Choices[0].Message.Content; c != nil {
		return *c
	}
	return ""
}
