package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

// KindNotConfigured marks a result for a provider that was asked directly
// while not ready. No call was made.
const KindNotConfigured provider.Kind = "not_configured"

// Request is one question routed to one or more providers.
type Request struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	Role     string `json:"role,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ValidationError reports a malformed request. It is returned before any
// provider is contacted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Validate checks the request's required fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return &ValidationError{Field: "question", Reason: "is required"}
	}
	return nil
}

// Envelope is the outcome of a single-provider ask: exactly one of Response
// or Error is set.
type Envelope struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the envelope carries a response.
func (e Envelope) OK() bool { return e.Error == "" }

// OpinionResult is one provider's outcome within a dispatch.
type OpinionResult struct {
	Provider string        `json:"provider"`
	Text     string        `json:"text,omitempty"`
	Kind     provider.Kind `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the provider answered.
func (r OpinionResult) OK() bool { return r.Kind == "" }

// Envelope converts the result to its single-ask form.
func (r OpinionResult) Envelope() Envelope {
	if r.OK() {
		return Envelope{Response: r.Text}
	}
	return Envelope{Error: r.Message}
}

// Comparison maps provider name to its result. Providers that were not
// ready are absent.
type Comparison map[string]OpinionResult

// Names returns the provider names in sorted order.
func (c Comparison) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flatten maps each provider to its answer, or to "Error: <message>" when
// the call failed.
func (c Comparison) Flatten() map[string]string {
	out := make(map[string]string, len(c))
	for name, r := range c {
		if r.OK() {
			out[name] = r.Text
		} else {
			out[name] = "Error: " + r.Message
		}
	}
	return out
}
