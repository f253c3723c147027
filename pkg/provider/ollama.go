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

const defaultOllamaTimeout = 60 * time.Second

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithOllamaHTTPClient sets a custom HTTP client (useful for testing).
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.client = c }
}

// OllamaProvider answers through a local Ollama daemon's generate endpoint.
// The daemon has no system message, so the role is prefixed to the prompt
// as "{role}: {prompt}".
type OllamaProvider struct {
	backend
	client *http.Client
}

// NewOllamaProvider creates an Ollama provider talking to cfg.BaseURL.
func NewOllamaProvider(cfg config.ProviderConfig, logger *zap.Logger, opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		backend: newBackend(NameOllama, "Ollama", cfg, defaultOllamaTimeout, logger, "base_url", "model"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// Invoke sends a single non-streaming generate request.
func (p *OllamaProvider) Invoke(ctx context.Context, inv Invocation) (string, error) {
	role := p.role(inv)
	text, err := p.render(role, inv.Prompt, rolePrefixed(role, inv.Prompt))
	if err != nil {
		return "", err
	}

	model := p.model(inv)
	body, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: text, Stream: false})
	if err != nil {
		return "", backendError(p.display, fmt.Errorf("building request body: %w", err))
	}

	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	p.logger.Debug("invoking provider", zap.String("model", model), zap.String("base_url", p.cfg.BaseURL))

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/generate"
	status, respBody, err := p.postJSON(ctx, p.client, url, body, nil)
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		var apiErr ollamaErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return "", statusError(p.display, status, apiErr.Error)
		}
		return "", statusError(p.display, status, strings.TrimSpace(string(respBody)))
	}

	var gr ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", backendError(p.display, fmt.Errorf("decoding response: %w", err))
	}

	return p.finish(gr.Response)
}

func rolePrefixed(role, prompt string) string {
	if role == "" {
		return prompt
	}
	return role + ": " + prompt
}
