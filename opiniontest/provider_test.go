package opiniontest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

func TestProvider_Reply(t *testing.T) {
	p := New("openai", WithReply("  Yes.\n"))
	if !p.Ready() {
		t.Fatal("Ready() = false, want true by default")
	}

	got, err := p.Invoke(context.Background(), provider.Invocation{Prompt: "q", Role: "r"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "Yes." {
		t.Errorf("Invoke() = %q, want trimmed reply", got)
	}
	if p.LastInvocation().Role != "r" {
		t.Errorf("LastInvocation().Role = %q, want %q", p.LastInvocation().Role, "r")
	}
}

func TestProvider_EmptyReply(t *testing.T) {
	p := New("ollama", WithReply(" "))
	_, err := p.Invoke(context.Background(), provider.Invocation{})
	if provider.KindOf(err) != provider.KindEmpty {
		t.Errorf("error kind = %q, want %q", provider.KindOf(err), provider.KindEmpty)
	}
}

func TestFailing(t *testing.T) {
	p := Failing("gemini", provider.KindBackend, "Gemini CLI exited with code 1")
	_, err := p.Invoke(context.Background(), provider.Invocation{})
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *provider.Error", err)
	}
	if pe.Kind != provider.KindBackend || pe.Message != "Gemini CLI exited with code 1" {
		t.Errorf("error = %+v", pe)
	}
}

func TestProvider_DelayHonorsDeadline(t *testing.T) {
	p := New("slow", WithDelay(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Invoke(ctx, provider.Invocation{})
	if provider.KindOf(err) != provider.KindTimeout {
		t.Fatalf("error kind = %q, want %q", provider.KindOf(err), provider.KindTimeout)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Invoke() did not stop at the deadline")
	}
}

func TestProvider_DelayCanceled(t *testing.T) {
	p := New("slow", WithDelay(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Invoke(ctx, provider.Invocation{})
	if provider.KindOf(err) != provider.KindCanceled {
		t.Errorf("error kind = %q, want %q", provider.KindOf(err), provider.KindCanceled)
	}
}

func TestProvider_ConcurrentCalls(t *testing.T) {
	p := New("openai")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Invoke(context.Background(), provider.Invocation{Prompt: "q"})
		}()
	}
	wg.Wait()

	if p.Calls() != 50 {
		t.Errorf("Calls() = %d, want 50", p.Calls())
	}
	if len(p.Invocations()) != 50 {
		t.Errorf("len(Invocations()) = %d, want 50", len(p.Invocations()))
	}
}

func TestNotReady(t *testing.T) {
	p := New("claude", NotReady(), WithDisplayName("Claude CLI"))
	if p.Ready() {
		t.Error("Ready() = true, want false")
	}
	if p.DisplayName() != "Claude CLI" {
		t.Errorf("DisplayName() = %q", p.DisplayName())
	}
	if p.LastInvocation() != (provider.Invocation{}) {
		t.Error("LastInvocation() should be zero before any call")
	}
}
