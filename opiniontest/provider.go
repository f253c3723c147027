package opiniontest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

// Option configures a Provider.
type Option func(*Provider)

// WithDisplayName sets the human-readable name used in error messages.
// Defaults to the provider name.
func WithDisplayName(display string) Option {
	return func(p *Provider) {
		p.display = display
	}
}

// WithReply sets the text returned by every successful Invoke.
func WithReply(text string) Option {
	return func(p *Provider) {
		p.reply = text
	}
}

// WithError makes every Invoke fail with err.
func WithError(err error) Option {
	return func(p *Provider) {
		p.err = err
	}
}

// WithDelay makes Invoke wait d before answering. A context that ends first
// produces a timeout or canceled *provider.Error.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.delay = d
	}
}

// WithFunc replaces the canned behavior with fn. Delay still applies.
func WithFunc(fn func(ctx context.Context, inv provider.Invocation) (string, error)) Option {
	return func(p *Provider) {
		p.fn = fn
	}
}

// NotReady makes Ready report false.
func NotReady() Option {
	return func(p *Provider) {
		p.ready = false
	}
}

// Provider is a scripted provider.Provider that records every invocation.
// It is safe for concurrent use.
type Provider struct {
	name    string
	display string
	ready   bool
	reply   string
	err     error
	delay   time.Duration
	fn      func(ctx context.Context, inv provider.Invocation) (string, error)

	mu          sync.Mutex
	invocations []provider.Invocation
}

// New creates a ready Provider that answers "ok" unless options say otherwise.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:    name,
		display: name,
		ready:   true,
		reply:   "ok",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Failing creates a ready Provider whose calls fail with the given kind and
// message.
func Failing(name string, kind provider.Kind, message string) *Provider {
	return New(name, WithError(&provider.Error{Provider: name, Kind: kind, Message: message}))
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) DisplayName() string { return p.display }

func (p *Provider) Ready() bool { return p.ready }

// Invoke records inv and returns the scripted outcome.
func (p *Provider) Invoke(ctx context.Context, inv provider.Invocation) (string, error) {
	p.mu.Lock()
	p.invocations = append(p.invocations, inv)
	p.mu.Unlock()

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", p.contextError(ctx)
		}
	}

	if p.fn != nil {
		return p.fn(ctx, inv)
	}
	if p.err != nil {
		return "", p.err
	}
	text := strings.TrimSpace(p.reply)
	if text == "" {
		return "", &provider.Error{Provider: p.display, Kind: provider.KindEmpty, Message: p.display + " returned empty response"}
	}
	return text, nil
}

func (p *Provider) contextError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &provider.Error{
			Provider: p.display,
			Kind:     provider.KindTimeout,
			Message:  p.display + " timeout - request took too long",
			Err:      ctx.Err(),
		}
	}
	return &provider.Error{
		Provider: p.display,
		Kind:     provider.KindCanceled,
		Message:  p.display + " request canceled",
		Err:      ctx.Err(),
	}
}

// Calls returns how many times Invoke was called.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.invocations)
}

// Invocations returns a copy of every recorded invocation in call order.
func (p *Provider) Invocations() []provider.Invocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.Invocation, len(p.invocations))
	copy(out, p.invocations)
	return out
}

// LastInvocation returns the most recent invocation, or the zero value if
// Invoke was never called.
func (p *Provider) LastInvocation() provider.Invocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.invocations) == 0 {
		return provider.Invocation{}
	}
	return p.invocations[len(p.invocations)-1]
}
