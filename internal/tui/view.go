package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-snippet-exec/internal/stats"
	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main summary dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())

	// Stats sections (only if we have stats)
	if m.snap != nil {
		sections = append(sections, m.renderOutcomes())
		if latency := m.renderLatencyStats(); latency != "" {
			sections = append(sections, latency)
		}
		sections = append(sections, m.renderActiveRuns())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the recent results table.
func (m Model) renderDetailedView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderRecentTable())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	state := statusInfo.Render("● Running")
	if m.done {
		state = statusOK.Render("● Done")
	}

	header := fmt.Sprintf(
		" snippet-exec │ %s │ Active: %d/%d │ Elapsed: %s ",
		state,
		m.ActiveRuns(),
		m.maxConcurrent,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.Progress()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(progress, barWidth)

	var status string
	if m.done || (m.submitted > 0 && m.Finished() >= int64(m.submitted)) {
		status = statusOK.Render(fmt.Sprintf("✓ All %d snippets finished", m.submitted))
	} else {
		status = statusInfo.Render(fmt.Sprintf("Running... %d/%d finished", m.Finished(), m.submitted))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Progress"),
		progressBar,
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Outcomes
// =============================================================================

func (m Model) renderOutcomes() string {
	s := m.snap

	rows := []string{
		renderCountRow("Succeeded", s.Outcomes[supervisor.KindSuccess], s.Finished, valueGoodStyle),
		renderCountRow("Failed", s.Outcomes[supervisor.KindFailure], s.Finished, valueBadStyle),
		renderCountRow("Timed out", s.TimedOut, s.Finished, valueWarnStyle),
		renderCountRow("Cancelled", s.Cancelled, s.Finished, valueWarnStyle),
	}
	if n := s.Outcomes[supervisor.KindIOError] + s.Outcomes[supervisor.KindRejected]; n > 0 {
		rows = append(rows, renderCountRow("Not run", n, s.Finished, valueBadStyle))
	}

	failRate := m.FailureRate()
	rows = append(rows,
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Failure rate:"),
			GetFailureRateStyle(failRate).Render(formatPercent(failRate)),
		),
		RenderKeyValueWide("Output captured", formatBytes(s.OutputSize)),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Outcomes")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderCountRow(label string, n, total int64, style lipgloss.Style) string {
	if n == 0 {
		style = valueStyle
	}
	pct := 0.0
	if total > 0 {
		pct = float64(n) / float64(total)
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		style.Width(8).Render(formatNumber(n)),
		mutedStyle.Render(" ("+formatPercent(pct)+")"),
	)
}

// =============================================================================
// Latency Statistics
// =============================================================================

func (m Model) renderLatencyStats() string {
	if m.snap == nil || m.snap.DurationMax == 0 {
		return ""
	}

	rows := []string{
		renderLatencyRow("P50 (median)", m.snap.DurationP50),
		renderLatencyRow("P95", m.snap.DurationP95),
		renderLatencyRow("P99", m.snap.DurationP99),
		renderLatencyRow("Max", m.snap.DurationMax),
	}
	if m.timeout > 0 {
		rows = append(rows, dimStyle.Render("watchdog "+formatMs(m.timeout)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Run Duration")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderLatencyRow(label string, d time.Duration) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(formatMs(d)),
	)
}

// =============================================================================
// Active Runs
// =============================================================================

func (m Model) renderActiveRuns() string {
	title := sectionHeaderStyle.Render(fmt.Sprintf("Active Runs (%d)", m.ActiveRuns()))

	if m.ActiveRuns() == 0 {
		return boxStyle.Width(m.width - 2).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("No runs executing.")),
		)
	}

	header := tableHeaderStyle.Render(fmt.Sprintf("%-32s %-8s %-10s", "Paragraph", "PID", "Age"))

	maxRows := m.height - 20
	if maxRows < 3 {
		maxRows = 3
	}

	now := time.Now()
	var rows []string
	for i, run := range m.snap.Active {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more runs", len(m.snap.Active)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		pid := "-"
		if run.PID > 0 {
			pid = fmt.Sprintf("%d", run.PID)
		}
		age := run.Age(now)

		row := fmt.Sprintf("%-32s %-8s %s",
			truncate(run.ID, 32),
			pid,
			GetRunAgeStyle(age, m.timeout).Render(formatMs(age)),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{title, header}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Recent Results
// =============================================================================

func (m Model) renderRecentTable() string {
	if m.snap == nil || len(m.snap.Recent) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No finished runs yet. Press 'd' to toggle."),
		)
	}

	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-32s %-12s %-11s %-6s %-10s",
			"Paragraph", "Outcome", "Code", "Exit", "Duration"),
	)

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, r := range m.snap.Recent {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more results", len(m.snap.Recent)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		row := fmt.Sprintf("%-32s %-12s %-11s %-6d %-10s",
			truncate(r.ID, 32),
			GetOutcomeLabel(r.Kind, r.Cancelled),
			string(r.Code),
			r.ExitCode,
			formatMs(r.Duration),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render(fmt.Sprintf("Recent Results (last %d)", stats.MaxRecentResults)),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"c: cancel oldest",
		"d: toggle results",
		"r: refresh",
	}

	right := m.status
	if right == "" {
		right = "Code: " + m.codeFolder
		if m.metricsAddr != "" {
			right += " │ Metrics: " + m.metricsAddr
		}
	}
	if maxLen := m.width - 60; len(right) > maxLen && maxLen > 10 {
		right = right[:maxLen-3] + "..."
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := dimStyle.Render(right)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
