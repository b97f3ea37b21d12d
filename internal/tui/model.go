package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-snippet-exec/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries updated statistics.
type SnapshotMsg struct {
	Snapshot *stats.Snapshot
}

// DoneMsg signals that every submitted snippet has finished. The dashboard
// stays up until the user quits.
type DoneMsg struct{}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// cancelResultMsg reports the outcome of a cancel key press.
type cancelResultMsg struct {
	id  string
	err error
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	submitted     int
	timeout       time.Duration
	maxConcurrent int
	codeFolder    string
	metricsAddr   string

	// Current state
	snap         *stats.Snapshot
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool
	done         bool
	status       string

	// Display options
	width  int
	height int

	// Stats source (for fetching updates)
	statsSource StatsSource

	// Canceller stops runs on request (optional)
	canceller Canceller

	// Quit flag
	quitting bool
}

// StatsSource provides run statistics.
type StatsSource interface {
	Snapshot() *stats.Snapshot
}

// Canceller stops an active run by ID.
type Canceller interface {
	Cancel(runID string) error
}

// Config holds TUI configuration.
type Config struct {
	Submitted     int
	Timeout       time.Duration
	MaxConcurrent int
	CodeFolder    string
	MetricsAddr   string
	StatsSource   StatsSource
	Canceller     Canceller
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		submitted:     cfg.Submitted,
		timeout:       cfg.Timeout,
		maxConcurrent: cfg.MaxConcurrent,
		codeFolder:    cfg.CodeFolder,
		metricsAddr:   cfg.MetricsAddr,
		statsSource:   cfg.StatsSource,
		canceller:     cfg.Canceller,
		startTime:     time.Now(),
		lastUpdate:    time.Now(),
		width:         80,
		height:        24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "c":
			return m.cancelOldest()
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.statsSource != nil {
			m.snap = m.statsSource.Snapshot()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.lastUpdate = time.Now()
		return m, nil

	case cancelResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("cancel %s: %v", msg.id, msg.err)
		} else {
			m.status = fmt.Sprintf("cancel requested for %s", msg.id)
		}
		return m, nil

	case DoneMsg:
		m.done = true
		if m.statsSource != nil {
			m.snap = m.statsSource.Snapshot()
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// cancelOldest asks the canceller to stop the longest-running active run.
// Active runs are ordered oldest first in the snapshot.
func (m Model) cancelOldest() (tea.Model, tea.Cmd) {
	if m.canceller == nil {
		m.status = "cancel unavailable"
		return m, nil
	}
	if m.snap == nil || len(m.snap.Active) == 0 {
		m.status = "no active run to cancel"
		return m, nil
	}

	id := m.snap.Active[0].ID
	canceller := m.canceller
	m.status = fmt.Sprintf("cancelling %s...", id)
	return m, func() tea.Msg {
		return cancelResultMsg{id: id, err: canceller.Cancel(id)}
	}
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	if m.snap != nil && m.snap.Elapsed > 0 {
		return m.snap.Elapsed
	}
	return time.Since(m.startTime)
}

// ActiveRuns returns the number of runs currently executing.
func (m Model) ActiveRuns() int {
	if m.snap == nil {
		return 0
	}
	return len(m.snap.Active)
}

// Finished returns the number of submissions with a terminal result.
func (m Model) Finished() int64 {
	if m.snap == nil {
		return 0
	}
	return m.snap.Finished
}

// Progress returns the fraction of submissions finished (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.submitted == 0 {
		return 0
	}
	p := float64(m.Finished()) / float64(m.submitted)
	if p > 1 {
		p = 1
	}
	return p
}

// FailureRate returns the fraction of finished runs that did not succeed.
func (m Model) FailureRate() float64 {
	if m.snap == nil || m.snap.Finished == 0 {
		return 0
	}
	return float64(m.snap.Unsuccessful()) / float64(m.snap.Finished)
}

// Done reports whether every submission has finished.
func (m Model) Done() bool {
	return m.done
}

// Status returns the last action message shown in the footer.
func (m Model) Status() string {
	return m.status
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendSnapshot sends a stats update to the TUI.
func SendSnapshot(p *tea.Program, snap *stats.Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{Snapshot: snap})
	}
}

// SendDone tells the TUI every run has finished.
func SendDone(p *tea.Program) {
	if p != nil {
		p.Send(DoneMsg{})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
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

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// formatPercent formats a fraction as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
