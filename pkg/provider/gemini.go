package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/config"
)

const defaultGeminiTimeout = 60 * time.Second

// GeminiProvider answers by running the Gemini CLI once per call as
// `gemini -m <model> -p <prompt>`. The CLI takes no system prompt; a role
// only reaches it through a custom prompt template.
type GeminiProvider struct {
	backend
}

// NewGeminiProvider creates a Gemini CLI provider. cfg.Command names the
// executable.
func NewGeminiProvider(cfg config.ProviderConfig, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{
		backend: newBackend(NameGemini, "Gemini CLI", cfg, defaultGeminiTimeout, logger, "command", "model"),
	}
}

// Invoke runs the CLI and returns its trimmed stdout.
func (p *GeminiProvider) Invoke(ctx context.Context, inv Invocation) (string, error) {
	text, err := p.render(p.role(inv), inv.Prompt, inv.Prompt)
	if err != nil {
		return "", err
	}

	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	model := p.model(inv)
	p.logger.Debug("invoking provider", zap.String("command", p.cfg.Command), zap.String("model", model))

	out, err := p.runCommand(ctx, command{
		path: p.cfg.Command,
		args: []string{"-m", model, "-p", text},
	})
	if err != nil {
		return "", err
	}
	return p.finish(out)
}
