package provider

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps draining output after the process
// was killed, in case a descendant still holds the pipes open.
const waitDelay = 2 * time.Second

// command describes one subprocess call.
type command struct {
	path  string
	args  []string
	stdin string
}

// runCommand spawns c, writes its stdin and closes it, and collects stdout
// and stderr until exit. When ctx expires the whole process group is killed
// and the process is reaped before runCommand returns.
func (b *backend) runCommand(ctx context.Context, c command) (string, error) {
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = strings.NewReader(c.stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if cerr := b.contextError(ctx); cerr != nil {
		b.logger.Warn("subprocess terminated", zap.String("command", c.path),
			zap.String("kind", string(cerr.Kind)), zap.Duration("elapsed", elapsed))
		return "", cerr
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			diag := strings.TrimSpace(stderr.String())
			b.logger.Error("subprocess failed", zap.String("command", c.path),
				zap.Int("exit_code", exitErr.ExitCode()), zap.String("stderr", diag))
			return "", exitError(b.display, exitErr.ExitCode(), diag, err)
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return "", notFoundError(b.display, c.path, err)
		default:
			return "", unavailableError(b.display, err)
		}
	}

	b.logDiagnostics(stderr.String())
	return stdout.String(), nil
}
