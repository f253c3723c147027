package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jdgilhuly/go_second_opinion/pkg/dispatch"
	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// StatusLabel returns a colored status string for terminal display.
func StatusLabel(r dispatch.OpinionResult) string {
	label := StatusLabelPlain(r)
	switch r.Kind {
	case "":
		return colorGreen + label + colorReset
	case provider.KindTimeout:
		return colorYellow + label + colorReset
	case dispatch.KindNotConfigured:
		return colorDim + label + colorReset
	default:
		return colorRed + label + colorReset
	}
}

// StatusLabelPlain returns an uncolored status string.
func StatusLabelPlain(r dispatch.OpinionResult) string {
	switch r.Kind {
	case "":
		return "OK"
	case provider.KindTimeout:
		return "TIMEOUT"
	case dispatch.KindNotConfigured:
		return "SKIPPED"
	default:
		return "ERROR"
	}
}

// FormatDuration formats a duration for table display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// PrintOpinion writes a single provider's answer, or its error, under a
// one-line header.
func PrintOpinion(w io.Writer, r dispatch.OpinionResult, color bool) {
	status := StatusLabelPlain(r)
	if color {
		status = StatusLabel(r)
	}
	name := r.Provider
	if color {
		name = colorBold + name + colorReset
	}
	fmt.Fprintf(w, "%s [%s] %s\n", name, status, FormatDuration(r.Duration))

	body := r.Text
	if !r.OK() {
		body = "Error: " + r.Message
	}
	for _, line := range strings.Split(body, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

// PrintComparisonTable writes a summary table of a comparison.
func PrintComparisonTable(w io.Writer, cmp dispatch.Comparison, wall time.Duration, color bool) {
	sep := strings.Repeat("-", 60)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %-20s  %-8s  %8s\n", "PROVIDER", "STATUS", "LATENCY")
	fmt.Fprintf(w, "%s\n", sep)

	var answered, failed int
	for _, name := range cmp.Names() {
		r := cmp[name]
		status := StatusLabelPlain(r)
		if color {
			status = StatusLabel(r)
		}
		if r.OK() {
			answered++
		} else {
			failed++
		}
		fmt.Fprintf(w, "  %-20s  %-8s  %8s\n", truncate(name, 20), status, FormatDuration(r.Duration))
	}

	fmt.Fprintf(w, "%s\n", sep)
	if len(cmp) == 0 {
		fmt.Fprintf(w, "  no providers are ready; enable one in the config file\n")
	} else if color {
		fmt.Fprintf(w, "  %s%d answered%s  %s%d failed%s  | %s total\n",
			colorGreen, answered, colorReset,
			colorRed, failed, colorReset,
			FormatDuration(wall))
	} else {
		fmt.Fprintf(w, "  %d answered  %d failed  | %s total\n", answered, failed, FormatDuration(wall))
	}
	fmt.Fprintf(w, "%s\n", sep)
}

// PrintComparison writes the summary table followed by every provider's
// full answer.
func PrintComparison(w io.Writer, cmp dispatch.Comparison, wall time.Duration, color bool) {
	PrintComparisonTable(w, cmp, wall, color)
	if len(cmp) == 0 {
		return
	}
	fmt.Fprintf(w, "\n--- Opinions ---\n\n")
	for _, name := range cmp.Names() {
		PrintOpinion(w, cmp[name], color)
		fmt.Fprintln(w)
	}
}

// PrintProviders writes a readiness table for the configured providers.
func PrintProviders(w io.Writer, providers []provider.Provider, color bool) {
	sep := strings.Repeat("-", 48)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %-10s  %-20s  %-7s\n", "NAME", "BACKEND", "READY")
	fmt.Fprintf(w, "%s\n", sep)
	for _, p := range providers {
		ready := "no"
		if p.Ready() {
			ready = "yes"
		}
		if color {
			if p.Ready() {
				ready = colorGreen + ready + colorReset
			} else {
				ready = colorDim + ready + colorReset
			}
		}
		fmt.Fprintf(w, "  %-10s  %-20s  %-7s\n", p.Name(), truncate(p.DisplayName(), 20), ready)
	}
	fmt.Fprintf(w, "%s\n", sep)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
