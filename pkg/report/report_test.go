package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jdgilhuly/go_second_opinion/opiniontest"
	"github.com/jdgilhuly/go_second_opinion/pkg/dispatch"
	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

func sampleComparison() dispatch.Comparison {
	return dispatch.Comparison{
		"openai": {Provider: "openai", Text: "Yes, 7 is prime.", Duration: 1200 * time.Millisecond},
		"gemini": {Provider: "gemini", Kind: provider.KindTimeout, Message: "Gemini CLI timeout - request took too long", Duration: 60 * time.Second},
		"ollama": {Provider: "ollama", Kind: provider.KindUnavailable, Message: "Ollama unavailable: connection refused", Duration: 3 * time.Millisecond},
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		name   string
		r      dispatch.OpinionResult
		expect string
		color  string
	}{
		{"ok", dispatch.OpinionResult{Text: "yes"}, "OK", colorGreen},
		{"timeout", dispatch.OpinionResult{Kind: provider.KindTimeout}, "TIMEOUT", colorYellow},
		{"not configured", dispatch.OpinionResult{Kind: dispatch.KindNotConfigured}, "SKIPPED", colorDim},
		{"backend error", dispatch.OpinionResult{Kind: provider.KindBackend}, "ERROR", colorRed},
		{"empty", dispatch.OpinionResult{Kind: provider.KindEmpty}, "ERROR", colorRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := StatusLabelPlain(tt.r)
			if label != tt.expect {
				t.Errorf("StatusLabelPlain() = %q, want %q", label, tt.expect)
			}

			colored := StatusLabel(tt.r)
			if !strings.Contains(colored, tt.expect) || !strings.HasPrefix(colored, tt.color) {
				t.Errorf("StatusLabel() = %q, want %q in the right color", colored, tt.expect)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500us"},
		{150 * time.Millisecond, "150ms"},
		{2500 * time.Millisecond, "2.5s"},
		{0, "0us"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatDuration(tt.d)
			if got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestPrintOpinion(t *testing.T) {
	var buf bytes.Buffer
	PrintOpinion(&buf, dispatch.OpinionResult{Provider: "openai", Text: "line one\nline two", Duration: 150 * time.Millisecond}, false)
	want := "openai [OK] 150ms\n  line one\n  line two\n"
	if buf.String() != want {
		t.Errorf("PrintOpinion() = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	PrintOpinion(&buf, dispatch.OpinionResult{Provider: "claude", Kind: dispatch.KindNotConfigured, Message: "Claude provider not configured"}, false)
	if !strings.Contains(buf.String(), "Error: Claude provider not configured") {
		t.Errorf("PrintOpinion() = %q, want error line", buf.String())
	}
}

func TestPrintComparisonTable_Plain(t *testing.T) {
	var buf bytes.Buffer
	PrintComparisonTable(&buf, sampleComparison(), 60*time.Second, false)
	output := buf.String()

	for _, want := range []string{
		"PROVIDER", "STATUS", "LATENCY",
		"openai", "OK", "1.2s",
		"gemini", "TIMEOUT",
		"ollama", "ERROR", "3ms",
		"1 answered", "2 failed", "60.0s total",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// Rows are sorted by provider name.
	if strings.Index(output, "gemini") > strings.Index(output, "ollama") {
		t.Error("rows are not sorted by provider name")
	}
}

func TestPrintComparisonTable_Colored(t *testing.T) {
	var buf bytes.Buffer
	PrintComparisonTable(&buf, sampleComparison(), time.Second, true)
	output := buf.String()

	if !strings.Contains(output, colorGreen) {
		t.Error("colored output missing green ANSI code")
	}
	if !strings.Contains(output, colorRed) {
		t.Error("colored output missing red ANSI code")
	}
}

func TestPrintComparisonTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintComparisonTable(&buf, dispatch.Comparison{}, 0, false)
	if !strings.Contains(buf.String(), "no providers are ready") {
		t.Errorf("output = %q, want a hint about enabling providers", buf.String())
	}
}

func TestPrintComparison(t *testing.T) {
	var buf bytes.Buffer
	PrintComparison(&buf, sampleComparison(), time.Second, false)
	output := buf.String()

	for _, want := range []string{
		"--- Opinions ---",
		"openai [OK]",
		"  Yes, 7 is prime.",
		"gemini [TIMEOUT]",
		"  Error: Gemini CLI timeout - request took too long",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestPrintProviders(t *testing.T) {
	providers := []provider.Provider{
		opiniontest.New("openai", opiniontest.WithDisplayName("OpenAI")),
		opiniontest.New("claude", opiniontest.WithDisplayName("Claude CLI"), opiniontest.NotReady()),
	}

	var buf bytes.Buffer
	PrintProviders(&buf, providers, false)
	lines := strings.Split(buf.String(), "\n")

	var openaiLine, claudeLine string
	for _, l := range lines {
		switch {
		case strings.Contains(l, "openai"):
			openaiLine = l
		case strings.Contains(l, "claude"):
			claudeLine = l
		}
	}
	if !strings.Contains(openaiLine, "OpenAI") || !strings.Contains(openaiLine, "yes") {
		t.Errorf("openai row = %q, want display name and ready", openaiLine)
	}
	if !strings.Contains(claudeLine, "Claude CLI") || !strings.Contains(claudeLine, "no") {
		t.Errorf("claude row = %q, want display name and not ready", claudeLine)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"a-very-long-provider-name", 20, "a-very-long-provi..."},
		{"exact", 5, "exact"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := truncate(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
