package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Submitted is the number of snippets handed to the interpreter
	Submitted int

	// Duration is the total wall time
	Duration time.Duration

	// Timeout is the per-run watchdog duration
	Timeout time.Duration

	// MaxConcurrent is the scheduler limit
	MaxConcurrent int

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ErrorPatterns are Java failure patterns counted across all runs
	ErrorPatterns map[string]int
}

var outcomeOrder = []supervisor.Kind{
	supervisor.KindSuccess,
	supervisor.KindFailure,
	supervisor.KindTimedOut,
	supervisor.KindIOError,
	supervisor.KindRejected,
}

// FormatExitSummary formats a snapshot for display at program exit.
func FormatExitSummary(snap *Snapshot, cfg SummaryConfig) string {
	if snap == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                           snippet-exec Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Snippets Submitted:     %d\n", cfg.Submitted)
	fmt.Fprintf(&b, "Processes Started:      %d\n", snap.Started)
	fmt.Fprintf(&b, "Peak Concurrent Runs:   %d", snap.PeakActive)
	if cfg.MaxConcurrent > 0 {
		fmt.Fprintf(&b, " (limit %d)", cfg.MaxConcurrent)
	}
	b.WriteString("\n")
	if cfg.Timeout > 0 {
		fmt.Fprintf(&b, "Watchdog Timeout:       %s\n", FormatMs(cfg.Timeout))
	}
	b.WriteString("\n")

	// Outcomes
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                   Outcomes\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  %-20s %12s %12s\n", "Outcome", "Runs", "Share")
	b.WriteString("  " + strings.Repeat("─", 46) + "\n")
	for _, kind := range outcomeOrder {
		n := snap.Outcomes[kind]
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-20s %12s %11.1f%%\n", kind.String(), FormatNumber(n), percent(n, snap.Finished))
	}
	if snap.Cancelled > 0 || snap.TimedOut > 0 {
		fmt.Fprintf(&b, "\n  Watchdog kills:       %d\n", snap.TimedOut)
		fmt.Fprintf(&b, "  Cancelled by caller:  %d\n", snap.Cancelled)
	}
	b.WriteString("\n")

	// Latency
	if snap.DurationMax > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Run Duration\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
		fmt.Fprintf(&b, "  P50: %-10s P95: %-10s P99: %-10s Max: %s\n",
			FormatMs(snap.DurationP50),
			FormatMs(snap.DurationP95),
			FormatMs(snap.DurationP99),
			FormatMs(snap.DurationMax),
		)
		if cfg.Duration > 0 {
			fmt.Fprintf(&b, "  Throughput: %s   Output captured: %s\n",
				FormatRate(float64(snap.Finished)/cfg.Duration.Seconds()),
				FormatBytes(snap.OutputSize),
			)
		}
		b.WriteString("\n")
	}

	// Exit codes
	if len(snap.ExitCodes) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                 Exit Codes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		codes := make([]int, 0, len(snap.ExitCodes))
		for code := range snap.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %4d %-12s %d\n", code, exitCodeLabel(code), snap.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	b.WriteString(renderFootnotes(cfg))

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                           snippet-exec Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Snippets Submitted:     %d\n\n", cfg.Submitted)

	b.WriteString("(No runs finished)\n\n")

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// renderFootnotes lists Java failure patterns seen in run output.
func renderFootnotes(cfg SummaryConfig) string {
	if len(cfg.ErrorPatterns) == 0 {
		return ""
	}

	patterns := make([]string, 0, len(cfg.ErrorPatterns))
	for p, n := range cfg.ErrorPatterns {
		if n > 0 {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return ""
	}
	sort.Strings(patterns)

	var b strings.Builder
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                              Output Patterns\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
	for _, p := range patterns {
		fmt.Fprintf(&b, "  %-36q %d\n", p, cfg.ErrorPatterns[p])
	}
	b.WriteString("\n")
	return b.String()
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// ExitCodeLabel is exitCodeLabel for other packages.
func ExitCodeLabel(code int) string {
	return exitCodeLabel(code)
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
