// Package dispatch routes questions to opinion providers, one at a time or
// all at once, and normalizes their outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/prompt"
	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

// ErrUnknownProvider is returned when a request names a provider that was
// never registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Observer is notified after every provider call and every comparison.
type Observer interface {
	// ObserveCall records one provider outcome. kind is empty on success.
	ObserveCall(provider string, kind provider.Kind, elapsed time.Duration)
	// ObserveCompare records a finished comparison and how many providers
	// took part.
	ObserveCompare(participants int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, provider.Kind, time.Duration) {}
func (nopObserver) ObserveCompare(int, time.Duration)                {}

// Dispatcher routes requests to providers. It holds no per-request state and
// is safe for concurrent use.
type Dispatcher struct {
	providers []provider.Provider
	byName    map[string]provider.Provider
	logger    *zap.Logger
	observer  Observer
}

// New creates a Dispatcher over providers. A nil logger or observer is
// replaced with a no-op.
func New(providers []provider.Provider, logger *zap.Logger, observer Observer) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Dispatcher{
		providers: providers,
		byName:    byName,
		logger:    logger,
		observer:  observer,
	}
}

// Providers returns the registered providers in registration order.
func (d *Dispatcher) Providers() []provider.Provider {
	return d.providers
}

// Lookup returns the provider registered under name.
func (d *Dispatcher) Lookup(name string) (provider.Provider, bool) {
	p, ok := d.byName[name]
	return p, ok
}

// Ask sends req to the named provider. The returned error is non-nil only
// for an invalid request or an unknown provider; backend failures are
// reported in the envelope.
func (d *Dispatcher) Ask(ctx context.Context, name string, req Request) (Envelope, error) {
	res, err := d.Opinion(ctx, name, req)
	if err != nil {
		return Envelope{}, err
	}
	return res.Envelope(), nil
}

// Opinion is Ask with the full result, including kind and duration.
func (d *Dispatcher) Opinion(ctx context.Context, name string, req Request) (OpinionResult, error) {
	if err := req.Validate(); err != nil {
		return OpinionResult{}, err
	}
	p, ok := d.byName[name]
	if !ok {
		return OpinionResult{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	callID := uuid.NewString()
	log := d.logger.With(zap.String("call_id", callID))

	if !p.Ready() {
		log.Info("provider not configured", zap.String("provider", name))
		d.observer.ObserveCall(name, KindNotConfigured, 0)
		return OpinionResult{
			Provider: name,
			Kind:     KindNotConfigured,
			Message:  productName(p) + " provider not configured",
		}, nil
	}

	inv := provider.Invocation{
		Prompt: prompt.Effective(req.Question, req.Context),
		Role:   req.Role,
		Model:  req.Model,
	}
	return d.call(ctx, log, p, inv), nil
}

// Compare sends req to every ready provider concurrently and waits for all
// of them. Each provider uses its default role and its own deadline; one
// failure never affects the others.
func (d *Dispatcher) Compare(ctx context.Context, req Request) (Comparison, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	callID := uuid.NewString()
	log := d.logger.With(zap.String("call_id", callID))
	inv := provider.Invocation{Prompt: prompt.Effective(req.Question, req.Context)}

	start := time.Now()
	out := make(Comparison, len(d.providers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range d.providers {
		if !p.Ready() {
			log.Debug("skipping provider that is not ready", zap.String("provider", p.Name()))
			continue
		}
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			res := d.call(ctx, log, p, inv)
			mu.Lock()
			out[p.Name()] = res
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	elapsed := time.Since(start)
	d.observer.ObserveCompare(len(out), elapsed)
	log.Info("comparison finished", zap.Int("providers", len(out)), zap.Duration("elapsed", elapsed))
	return out, nil
}

// call performs one provider invocation and records its outcome.
func (d *Dispatcher) call(ctx context.Context, log *zap.Logger, p provider.Provider, inv provider.Invocation) OpinionResult {
	log = log.With(zap.String("provider", p.Name()))
	log.Debug("dispatching", zap.Int("prompt_len", len(inv.Prompt)))

	start := time.Now()
	text, err := p.Invoke(ctx, inv)
	elapsed := time.Since(start)

	res := OpinionResult{Provider: p.Name(), Duration: elapsed}
	if err != nil {
		res.Kind = provider.KindOf(err)
		if res.Kind == "" {
			res.Kind = provider.KindBackend
		}
		res.Message = err.Error()
		log.Warn("provider call failed", zap.String("kind", string(res.Kind)),
			zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		res.Text = text
		log.Info("provider answered", zap.Duration("elapsed", elapsed), zap.Int("response_len", len(text)))
	}
	d.observer.ObserveCall(p.Name(), res.Kind, elapsed)
	return res
}

// productName drops the " CLI" suffix so the message names the product the
// user configured, e.g. "Gemini" rather than "Gemini CLI".
func productName(p provider.Provider) string {
	return strings.TrimSuffix(p.DisplayName(), " CLI")
}
