package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdgilhuly/go_second_opinion/opiniontest"
	"github.com/jdgilhuly/go_second_opinion/pkg/config"
	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

type recordedCall struct {
	provider string
	kind     provider.Kind
}

// recordingObserver captures every observation for later assertions.
type recordingObserver struct {
	mu       sync.Mutex
	calls    []recordedCall
	compares []int
}

func (o *recordingObserver) ObserveCall(name string, kind provider.Kind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{provider: name, kind: kind})
}

func (o *recordingObserver) ObserveCompare(participants int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compares = append(o.compares, participants)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"question only", Request{Question: "Is 7 prime?"}, false},
		{"with context", Request{Question: "q", Context: "c"}, false},
		{"empty question", Request{}, true},
		{"whitespace question", Request{Question: " \n\t"}, true},
		{"context without question", Request{Context: "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "question", ve.Field)
		})
	}
}

func TestAsk_Success(t *testing.T) {
	p := opiniontest.New("openai", opiniontest.WithReply("Yes."))
	obs := &recordingObserver{}
	d := New([]provider.Provider{p}, nil, obs)

	env, err := d.Ask(context.Background(), "openai", Request{
		Question: "Is 7 prime?",
		Context:  "number theory",
		Role:     "tutor",
		Model:    "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, Envelope{Response: "Yes."}, env)
	assert.True(t, env.OK())

	inv := p.LastInvocation()
	assert.Equal(t, "number theory\n\nIs 7 prime?", inv.Prompt)
	assert.Equal(t, "tutor", inv.Role)
	assert.Equal(t, "gpt-4o-mini", inv.Model)

	require.Len(t, obs.calls, 1)
	assert.Equal(t, recordedCall{provider: "openai"}, obs.calls[0])
}

func TestAsk_NotConfiguredMakesNoCall(t *testing.T) {
	p := opiniontest.New("claude", opiniontest.WithDisplayName("Claude CLI"), opiniontest.NotReady())
	obs := &recordingObserver{}
	d := New([]provider.Provider{p}, nil, obs)

	env, err := d.Ask(context.Background(), "claude", Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, Envelope{Error: "Claude provider not configured"}, env)
	assert.Zero(t, p.Calls(), "not-ready provider must not be invoked")

	require.Len(t, obs.calls, 1)
	assert.Equal(t, KindNotConfigured, obs.calls[0].kind)
}

func TestAsk_NotConfiguredNamesProduct(t *testing.T) {
	tests := []struct {
		display string
		want    string
	}{
		{"Gemini CLI", "Gemini provider not configured"},
		{"OpenAI", "OpenAI provider not configured"},
		{"Ollama", "Ollama provider not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			p := opiniontest.New("p", opiniontest.WithDisplayName(tt.display), opiniontest.NotReady())
			d := New([]provider.Provider{p}, nil, nil)

			env, err := d.Ask(context.Background(), "p", Request{Question: "q"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.Error)
		})
	}
}

func TestAsk_BackendFailureInEnvelope(t *testing.T) {
	p := opiniontest.Failing("gemini", provider.KindBackend, "Gemini CLI exited with code 1: boom")
	d := New([]provider.Provider{p}, nil, nil)

	env, err := d.Ask(context.Background(), "gemini", Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, Envelope{Error: "Gemini CLI exited with code 1: boom"}, env)
}

func TestAsk_UntypedErrorIsBackendError(t *testing.T) {
	p := opiniontest.New("x", opiniontest.WithError(errors.New("weird")))
	d := New([]provider.Provider{p}, nil, nil)

	res, err := d.Opinion(context.Background(), "x", Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, provider.KindBackend, res.Kind)
	assert.Equal(t, "weird", res.Message)
}

func TestAsk_InvalidRequest(t *testing.T) {
	p := opiniontest.New("openai")
	d := New([]provider.Provider{p}, nil, nil)

	_, err := d.Ask(context.Background(), "openai", Request{Question: "   "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, p.Calls())
}

func TestAsk_UnknownProvider(t *testing.T) {
	d := New([]provider.Provider{opiniontest.New("openai")}, nil, nil)

	_, err := d.Ask(context.Background(), "mistral", Request{Question: "q"})
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), `"mistral"`)
}

func TestCompare_OmitsNotReady(t *testing.T) {
	ready := opiniontest.New("openai", opiniontest.WithReply("A"))
	off := opiniontest.New("claude", opiniontest.NotReady())
	obs := &recordingObserver{}
	d := New([]provider.Provider{ready, off}, nil, obs)

	got, err := d.Compare(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	assert.Equal(t, []string{"openai"}, got.Names())
	assert.Zero(t, off.Calls())
	assert.Equal(t, []int{1}, obs.compares)
}

func TestCompare_NoneReady(t *testing.T) {
	d := New([]provider.Provider{opiniontest.New("a", opiniontest.NotReady())}, nil, nil)

	got, err := d.Compare(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompare_IsolatesFailures(t *testing.T) {
	ok := opiniontest.New("openai", opiniontest.WithReply("seven is prime"))
	timeout := opiniontest.Failing("gemini", provider.KindTimeout, "Gemini CLI timeout - request took too long")
	down := opiniontest.Failing("ollama", provider.KindUnavailable, "Ollama unavailable: connection refused")
	d := New([]provider.Provider{ok, timeout, down}, nil, nil)

	got, err := d.Compare(context.Background(), Request{Question: "Is 7 prime?"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "seven is prime", got["openai"].Text)
	assert.True(t, got["openai"].OK())
	assert.Equal(t, provider.KindTimeout, got["gemini"].Kind)
	assert.Equal(t, provider.KindUnavailable, got["ollama"].Kind)

	assert.Equal(t, map[string]string{
		"openai": "seven is prime",
		"gemini": "Error: Gemini CLI timeout - request took too long",
		"ollama": "Error: Ollama unavailable: connection refused",
	}, got.Flatten())
}

func TestCompare_UsesDefaultRoleAndSharedPrompt(t *testing.T) {
	a := opiniontest.New("a")
	b := opiniontest.New("b")
	d := New([]provider.Provider{a, b}, nil, nil)

	_, err := d.Compare(context.Background(), Request{Question: "q", Context: "ctx", Role: "ignored"})
	require.NoError(t, err)

	for _, p := range []*opiniontest.Provider{a, b} {
		inv := p.LastInvocation()
		assert.Equal(t, "ctx\n\nq", inv.Prompt)
		assert.Empty(t, inv.Role, "compare uses each provider's default role")
	}
}

func TestCompare_RunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	fn := func(ctx context.Context, inv provider.Invocation) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		return "done", nil
	}
	providers := []provider.Provider{
		opiniontest.New("a", opiniontest.WithFunc(fn)),
		opiniontest.New("b", opiniontest.WithFunc(fn)),
		opiniontest.New("c", opiniontest.WithFunc(fn)),
	}
	d := New(providers, nil, nil)

	start := time.Now()
	got, err := d.Compare(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), peak.Load())
	assert.Less(t, elapsed, 250*time.Millisecond, "calls should overlap, not run back to back")
}

func TestCompare_SlowProviderDoesNotBlockSiblingsResult(t *testing.T) {
	fast := opiniontest.New("fast", opiniontest.WithReply("quick"))
	slow := opiniontest.New("slow", opiniontest.WithDelay(5*time.Second))
	d := New([]provider.Provider{fast, slow}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	got, err := d.Compare(ctx, Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "quick", got["fast"].Text)
	assert.Equal(t, provider.KindTimeout, got["slow"].Kind)
}

func TestCompare_InvalidRequest(t *testing.T) {
	p := opiniontest.New("a")
	d := New([]provider.Provider{p}, nil, nil)

	_, err := d.Compare(context.Background(), Request{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, p.Calls())
}

func TestAsk_EndToEndOpenAI(t *testing.T) {
	var system, user string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		system, user = body.Messages[0].Content, body.Messages[1].Content
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Yes, 7 is prime."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	openai := provider.NewOpenAIProvider(config.ProviderConfig{
		Enabled:     true,
		APIKey:      "test-key",
		BaseURL:     server.URL,
		Model:       "gpt-4o",
		DefaultRole: "math tutor",
	}, nil)
	d := New([]provider.Provider{openai}, nil, nil)

	env, err := d.Ask(context.Background(), provider.NameOpenAI, Request{Question: "Is 7 prime?"})
	require.NoError(t, err)
	assert.Equal(t, Envelope{Response: "Yes, 7 is prime."}, env)
	assert.Equal(t, "math tutor", system)
	assert.Equal(t, "Is 7 prime?", user)
}

func TestNew_ProvidersAndLookup(t *testing.T) {
	a, b := opiniontest.New("a"), opiniontest.New("b")
	d := New([]provider.Provider{a, b}, nil, nil)

	assert.Len(t, d.Providers(), 2)
	got, ok := d.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.Name())
	_, ok = d.Lookup("zzz")
	assert.False(t, ok)
}
