package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/config"
	"github.com/jdgilhuly/go_second_opinion/pkg/prompt"
)

// Provider names, used as config keys and as keys in comparison results.
const (
	NameOpenAI = "openai"
	NameGemini = "gemini"
	NameOllama = "ollama"
	NameClaude = "claude"
)

// Provider defines the contract every opinion backend satisfies.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string

	// DisplayName returns the human-readable name used in messages
	// (e.g. "OpenAI").
	DisplayName() string

	// Ready reports whether the configuration allows a call to be attempted.
	// It performs no I/O and returns the same value until the config changes.
	Ready() bool

	// Invoke performs exactly one outbound call and returns the trimmed,
	// non-empty answer. Failures are *Error values.
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// Invocation carries the per-call inputs of a provider call.
type Invocation struct {
	// Prompt is the effective prompt (context and question combined).
	Prompt string
	// Role overrides the provider's default role when non-empty.
	Role string
	// Model overrides the configured model when non-empty, for backends
	// that accept one.
	Model string
}

// backend holds what every variant shares: its config, deadline handling,
// custom prompt rendering and response normalization.
type backend struct {
	name           string
	display        string
	cfg            config.ProviderConfig
	defaultTimeout time.Duration
	required       []string
	tmpl           *prompt.Template
	tmplErr        error
	logger         *zap.Logger
}

func newBackend(name, display string, cfg config.ProviderConfig, defaultTimeout time.Duration, logger *zap.Logger, required ...string) backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := backend{
		name:           name,
		display:        display,
		cfg:            cfg,
		defaultTimeout: defaultTimeout,
		required:       required,
		logger:         logger.With(zap.String("provider", name)),
	}
	b.tmpl, b.tmplErr = prompt.ParseTemplate(name, cfg.CustomPrompt)
	if b.tmplErr != nil {
		b.logger.Warn("custom prompt template is invalid; provider will not be ready", zap.Error(b.tmplErr))
	}
	return b
}

func (b *backend) Name() string { return b.name }

func (b *backend) DisplayName() string { return b.display }

func (b *backend) Ready() bool {
	if !b.cfg.Enabled || b.tmplErr != nil {
		return false
	}
	for _, field := range b.required {
		if strings.TrimSpace(b.field(field)) == "" {
			return false
		}
	}
	return true
}

func (b *backend) field(name string) string {
	switch name {
	case "api_key":
		return b.cfg.APIKey
	case "base_url":
		return b.cfg.BaseURL
	case "command":
		return b.cfg.Command
	case "model":
		return b.cfg.Model
	}
	return ""
}

func (b *backend) role(inv Invocation) string {
	if inv.Role != "" {
		return inv.Role
	}
	return b.cfg.DefaultRole
}

func (b *backend) model(inv Invocation) string {
	if inv.Model != "" {
		return inv.Model
	}
	return b.cfg.Model
}

func (b *backend) timeout() time.Duration {
	if b.cfg.Timeout > 0 {
		return b.cfg.Timeout
	}
	return b.defaultTimeout
}

// render applies the custom prompt template, if any. fallback is the text
// sent when no template is configured.
func (b *backend) render(role, text, fallback string) (string, error) {
	if b.tmpl == nil {
		return fallback, nil
	}
	out, err := b.tmpl.Render(role, text)
	if err != nil {
		return "", backendError(b.display, err)
	}
	return out, nil
}

// errProviderDeadline is the cancel cause of a context whose deadline was
// set by the provider itself.
var errProviderDeadline = errors.New("provider deadline exceeded")

// withDeadline derives the per-call context. Each call gets its own deadline
// so one provider's timeout never cancels a sibling call.
func (b *backend) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, b.timeout(), errProviderDeadline)
}

// contextError maps an expired or cancelled call context to a provider
// error. It returns nil while ctx is still live. A deadline inherited from
// the caller is a timeout too, but it does not name the provider's limit.
func (b *backend) contextError(ctx context.Context) *Error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(context.Cause(ctx), errProviderDeadline):
		return timeoutError(b.display, b.timeout(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return callerTimeoutError(b.display, err)
	default:
		return canceledError(b.display, err)
	}
}

// finish trims the backend's answer and rejects whitespace-only output.
func (b *backend) finish(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", emptyError(b.display)
	}
	return text, nil
}

// logDiagnostics logs non-fatal backend output. Warnings go to debug,
// anything else to warn; neither fails the call.
func (b *backend) logDiagnostics(stderr string) {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return
	}
	if strings.Contains(strings.ToLower(stderr), "warning") {
		b.logger.Debug("backend diagnostics", zap.String("stderr", stderr))
		return
	}
	b.logger.Warn("backend diagnostics", zap.String("stderr", stderr))
}

// FromConfig builds every provider from cfg in a fixed order: openai,
// gemini, ollama, claude. Disabled providers are included and report
// Ready() == false.
func FromConfig(cfg *config.Config, logger *zap.Logger) []Provider {
	return []Provider{
		NewOpenAIProvider(cfg.Providers.OpenAI, logger),
		NewGeminiProvider(cfg.Providers.Gemini, logger),
		NewOllamaProvider(cfg.Providers.Ollama, logger),
		NewClaudeProvider(cfg.Providers.Claude, logger),
	}
}
