// Package tools exposes the dispatcher as a fixed set of named tools with
// JSON argument schemas, and binds them to an MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/config"
	"github.com/jdgilhuly/go_second_opinion/pkg/dispatch"
	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

// Tool names.
const (
	AskOpenAI = "ask_chatgpt_second_opinion"
	AskGemini = "ask_gemini_third_opinion"
	AskOllama = "ask_ollama_local_opinion"
	AskClaude = "ask_claude_fourth_opinion"
	Compare   = "compare_ai_opinions"
)

// Spec describes one tool.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`

	// Provider is the target of an ask tool; empty for compare.
	provider string
	// accepts lists the optional string arguments besides question.
	accepts []string
}

// Result is what a tool call returns to its caller. Failures carry the
// "Error: " prefix and IsError set.
type Result struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

// Observer is notified around every tool call.
type Observer interface {
	ToolStarted(tool string)
	ToolFinished(tool string, isError bool, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ToolStarted(string)                      {}
func (nopObserver) ToolFinished(string, bool, time.Duration) {}

var defaultSpecs = []Spec{
	{Name: AskOpenAI, Description: "Ask ChatGPT for a second opinion on a question", provider: provider.NameOpenAI, accepts: []string{"context", "role"}},
	{Name: AskGemini, Description: "Ask Gemini for a third opinion on a question", provider: provider.NameGemini, accepts: []string{"context", "role"}},
	{Name: AskOllama, Description: "Ask a local Ollama model for an opinion on a question", provider: provider.NameOllama, accepts: []string{"context", "role", "model"}},
	{Name: AskClaude, Description: "Ask Claude for a fourth opinion on a question", provider: provider.NameClaude, accepts: []string{"context", "role"}},
	{Name: Compare, Description: "Get opinions from all enabled AIs and compare them", accepts: []string{"context"}},
}

// Registry maps tool names to dispatcher operations.
type Registry struct {
	dispatcher *dispatch.Dispatcher
	specs      []Spec
	byName     map[string]Spec
	logger     *zap.Logger
	observer   Observer
}

// NewRegistry builds the tool set. Descriptions come from overrides when
// set there; tools disabled in overrides are left out entirely.
func NewRegistry(d *dispatch.Dispatcher, overrides map[string]config.ToolConfig, logger *zap.Logger, observer Observer) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	r := &Registry{
		dispatcher: d,
		byName:     make(map[string]Spec, len(defaultSpecs)),
		logger:     logger,
		observer:   observer,
	}
	for _, spec := range defaultSpecs {
		tc := overrides[spec.Name]
		if !tc.IsEnabled() {
			logger.Info("tool disabled by configuration", zap.String("tool", spec.Name))
			continue
		}
		if tc.Description != "" {
			spec.Description = tc.Description
		}
		spec.InputSchema = inputSchema(spec.accepts)
		r.specs = append(r.specs, spec)
		r.byName[spec.Name] = spec
	}
	return r
}

// Specs returns the enabled tools in their fixed order.
func (r *Registry) Specs() []Spec {
	return r.specs
}

// Lookup returns the named tool if it is enabled.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// CallJSON is Call with arguments still encoded as a JSON object.
func (r *Registry) CallJSON(ctx context.Context, name string, raw json.RawMessage) Result {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	return r.Call(ctx, name, args)
}

// Call runs the named tool. It never returns a Go error: unknown tools,
// invalid arguments and backend failures all become error results.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) Result {
	spec, ok := r.byName[name]
	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", name))
		return errorResult("Unknown tool: " + name)
	}

	r.observer.ToolStarted(name)
	start := time.Now()
	res := r.call(ctx, spec, args)
	elapsed := time.Since(start)
	r.observer.ToolFinished(name, res.IsError, elapsed)

	r.logger.Debug("tool call finished", zap.String("tool", name),
		zap.Bool("is_error", res.IsError), zap.Duration("elapsed", elapsed))
	return res
}

func (r *Registry) call(ctx context.Context, spec Spec, args map[string]any) Result {
	req, err := decodeRequest(args, spec.accepts)
	if err != nil {
		return errorResult(err.Error())
	}

	if spec.provider == "" {
		cmp, err := r.dispatcher.Compare(ctx, req)
		if err != nil {
			return errorResult(err.Error())
		}
		out, err := json.MarshalIndent(cmp.Flatten(), "", "  ")
		if err != nil {
			return errorResult(fmt.Sprintf("encoding comparison: %v", err))
		}
		return Result{Text: string(out)}
	}

	env, err := r.dispatcher.Ask(ctx, spec.provider, req)
	if err != nil {
		return errorResult(err.Error())
	}
	if !env.OK() {
		return errorResult(env.Error)
	}
	return Result{Text: env.Response}
}

func errorResult(msg string) Result {
	return Result{Text: "Error: " + msg, IsError: true}
}

// decodeRequest reads the question and the accepted optional fields.
// Arguments outside the tool's schema are ignored.
func decodeRequest(args map[string]any, accepts []string) (dispatch.Request, error) {
	var req dispatch.Request
	question, err := stringArg(args, "question")
	if err != nil {
		return req, err
	}
	req.Question = question

	for _, field := range accepts {
		v, err := stringArg(args, field)
		if err != nil {
			return req, err
		}
		switch field {
		case "context":
			req.Context = v
		case "role":
			req.Role = v
		case "model":
			req.Model = v
		}
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func stringArg(args map[string]any, field string) (string, error) {
	v, ok := args[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &dispatch.ValidationError{Field: field, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	return s, nil
}

// inputSchema builds the JSON schema for a tool taking a required question
// plus the given optional string fields.
func inputSchema(optional []string) map[string]any {
	props := map[string]any{
		"question": map[string]any{"type": "string", "description": "The question to ask"},
	}
	descriptions := map[string]string{
		"context": "Background prepended to the question",
		"role":    "Persona for the model; overrides the configured default role",
		"model":   "Model name overriding the configured model",
	}
	for _, f := range optional {
		props[f] = map[string]any{"type": "string", "description": descriptions[f]}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"question"},
	}
}

