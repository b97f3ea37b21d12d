package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-snippet-exec/internal/stats"
	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

func busySnapshot() *stats.Snapshot {
	snap := snapshotWithActive("hello-1a2b3c4d", "loop-5e6f7a8b")
	snap.Finished = 4
	snap.Outcomes = map[supervisor.Kind]int64{
		supervisor.KindSuccess:  2,
		supervisor.KindFailure:  1,
		supervisor.KindTimedOut: 1,
	}
	snap.Codes = map[supervisor.Code]int64{
		supervisor.CodeSuccess:    2,
		supervisor.CodeError:      1,
		supervisor.CodeIncomplete: 1,
	}
	snap.TimedOut = 1
	snap.DurationP50 = 800 * time.Millisecond
	snap.DurationP95 = 4 * time.Second
	snap.DurationP99 = 5 * time.Second
	snap.DurationMax = 5 * time.Second
	snap.Recent = []stats.FinishedRun{
		{ID: "slow-1", Kind: supervisor.KindTimedOut, Code: supervisor.CodeIncomplete, ExitCode: 143, Duration: 5 * time.Second},
		{ID: "fails-1", Kind: supervisor.KindFailure, Code: supervisor.CodeError, ExitCode: 1, Duration: time.Second},
	}
	return snap
}

func TestView_Summary(t *testing.T) {
	m := New(Config{Submitted: 6, Timeout: 5 * time.Second, MaxConcurrent: 10, CodeFolder: "/tmp/code"})
	m.width = 120
	m.height = 50
	m.snap = busySnapshot()

	out := m.View()
	for _, want := range []string{
		"snippet-exec",
		"Active: 2/10",
		"Running... 4/6 finished",
		"Outcomes",
		"Succeeded:",
		"Run Duration",
		"P95:",
		"Active Runs (2)",
		"hello-1a2b3c4d",
		"c: cancel oldest",
		"Code: /tmp/code",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary view missing %q", want)
		}
	}
}

func TestView_SummaryWithoutStats(t *testing.T) {
	m := New(Config{Submitted: 1})
	out := m.View()

	if !strings.Contains(out, "Progress") {
		t.Error("progress should render before the first snapshot")
	}
	if strings.Contains(out, "Outcomes") {
		t.Error("outcomes need a snapshot")
	}
}

func TestView_Done(t *testing.T) {
	m := New(Config{Submitted: 4})
	m.snap = busySnapshot()
	m.snap.Active = nil
	m.done = true

	out := m.View()
	if !strings.Contains(out, "All 4 snippets finished") {
		t.Error("done view should report completion")
	}
	if !strings.Contains(out, "No runs executing.") {
		t.Error("done view should have no active runs")
	}
}

func TestView_Detailed(t *testing.T) {
	m := New(Config{})
	m.width = 120
	m.height = 40
	m.detailedView = true

	if !strings.Contains(m.View(), "No finished runs yet") {
		t.Error("empty results table should say so")
	}

	m.snap = busySnapshot()
	out := m.View()
	for _, want := range []string{"Recent Results", "slow-1", "INCOMPLETE", "143", "fails-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("detailed view missing %q", want)
		}
	}
}

func TestView_StatusReplacesFolder(t *testing.T) {
	m := New(Config{CodeFolder: "/tmp/code"})
	m.width = 120
	m.status = "cancel requested for x"

	out := m.renderFooter()
	if !strings.Contains(out, "cancel requested for x") || strings.Contains(out, "/tmp/code") {
		t.Errorf("footer = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated-id", 8, "trunc..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}
