package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/config"
)

const defaultClaudeTimeout = 30 * time.Second

// ClaudeProvider answers by running the Claude CLI once per call. The prompt
// is written to stdin and no per-call flags are passed; model and persona
// come from the CLI's own configuration. A role only reaches it through a
// custom prompt template.
type ClaudeProvider struct {
	backend
}

// NewClaudeProvider creates a Claude CLI provider. cfg.Command names the
// executable.
func NewClaudeProvider(cfg config.ProviderConfig, logger *zap.Logger) *ClaudeProvider {
	return &ClaudeProvider{
		backend: newBackend(NameClaude, "Claude CLI", cfg, defaultClaudeTimeout, logger, "command"),
	}
}

// Invoke runs the CLI with the prompt on stdin and returns its trimmed
// stdout.
func (p *ClaudeProvider) Invoke(ctx context.Context, inv Invocation) (string, error) {
	text, err := p.render(p.role(inv), inv.Prompt, inv.Prompt)
	if err != nil {
		return "", err
	}

	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	p.logger.Debug("invoking provider", zap.String("command", p.cfg.Command), zap.Int("prompt_len", len(text)))

	out, err := p.runCommand(ctx, command{
		path:  p.cfg.Command,
		stdin: text + "\n",
	})
	if err != nil {
		return "", err
	}
	return p.finish(out)
}
