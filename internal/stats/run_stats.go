// Package stats aggregates per-run statistics for the dashboard and the
// exit summary.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

// MaxRecentResults is how many finished runs are kept for display.
const MaxRecentResults = 20

// RunInfo describes one run that has not reached a terminal state.
type RunInfo struct {
	ID      string
	PID     int
	State   supervisor.State
	Started time.Time // zero until the process is spawned
}

// Age returns how long the run has been executing.
func (r RunInfo) Age(now time.Time) time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return now.Sub(r.Started)
}

// FinishedRun is the display form of a terminal Result.
type FinishedRun struct {
	ID        string
	Kind      supervisor.Kind
	Code      supervisor.Code
	ExitCode  int
	Cancelled bool
	Duration  time.Duration
	Finished  time.Time
}

// Snapshot is a point-in-time copy of RunStats, safe to read without locks.
type Snapshot struct {
	Elapsed time.Duration

	Active     []RunInfo // oldest first
	PeakActive int

	Started    int64
	Finished   int64
	Outcomes   map[supervisor.Kind]int64
	Codes      map[supervisor.Code]int64
	ExitCodes  map[int]int64
	Cancelled  int64
	TimedOut   int64 // watchdog only, excludes Cancelled
	OutputSize int64 // bytes captured across finished runs

	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration
	DurationMax time.Duration

	Recent []FinishedRun // newest first
}

// Succeeded returns the number of runs with code SUCCESS.
func (s *Snapshot) Succeeded() int64 {
	return s.Codes[supervisor.CodeSuccess]
}

// Unsuccessful returns the number of finished runs that did not succeed.
func (s *Snapshot) Unsuccessful() int64 {
	return s.Finished - s.Succeeded()
}

// RunStats collects run lifecycle events. Its On* methods match
// supervisor.Callbacks so it can be wired in directly.
type RunStats struct {
	mu        sync.Mutex
	startTime time.Time

	active     map[string]*RunInfo
	seq        map[string]uint64
	nextSeq    uint64
	peakActive int

	started    int64
	finished   int64
	outcomes   map[supervisor.Kind]int64
	codes      map[supervisor.Code]int64
	exitCodes  map[int]int64
	cancelled  int64
	timedOut   int64
	outputSize int64

	durations   *tdigest.TDigest // not thread-safe, guarded by mu
	durationN   int64
	durationMax time.Duration

	// Ring of recent results
	recent    []FinishedRun
	recentIdx int
}

// NewRunStats creates an empty RunStats.
func NewRunStats() *RunStats {
	return &RunStats{
		startTime: time.Now(),
		active:    make(map[string]*RunInfo),
		seq:       make(map[string]uint64),
		outcomes:  make(map[supervisor.Kind]int64),
		codes:     make(map[supervisor.Code]int64),
		exitCodes: make(map[int]int64),
		durations: tdigest.NewWithCompression(100),
		recent:    make([]FinishedRun, 0, MaxRecentResults),
	}
}

// OnStateChange tracks runs entering and leaving the active set.
func (s *RunStats) OnStateChange(runID string, oldState, newState supervisor.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newState.IsActive() {
		info, ok := s.active[runID]
		if !ok {
			info = &RunInfo{ID: runID}
			s.active[runID] = info
			s.nextSeq++
			s.seq[runID] = s.nextSeq
		}
		info.State = newState
		if len(s.active) > s.peakActive {
			s.peakActive = len(s.active)
		}
		return
	}

	if newState.IsTerminal() {
		delete(s.active, runID)
		delete(s.seq, runID)
	}
}

// OnStart records the spawn of a run's process.
func (s *RunStats) OnStart(runID string, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started++
	if info, ok := s.active[runID]; ok {
		info.PID = pid
		info.Started = time.Now()
	}
}

// OnExit records a terminal result. Results of submissions that never
// reached the supervisor are counted too.
func (s *RunStats) OnExit(runID string, res supervisor.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished++
	s.outcomes[res.Kind]++
	s.codes[res.Code()]++
	s.outputSize += int64(len(res.Output))

	switch res.Kind {
	case supervisor.KindSuccess, supervisor.KindFailure, supervisor.KindTimedOut:
		s.exitCodes[res.ExitCode]++
		s.durations.Add(float64(res.Duration.Nanoseconds()), 1)
		s.durationN++
		if res.Duration > s.durationMax {
			s.durationMax = res.Duration
		}
	}
	if res.Kind == supervisor.KindTimedOut {
		if res.Cancelled {
			s.cancelled++
		} else {
			s.timedOut++
		}
	}

	s.pushRecent(FinishedRun{
		ID:        runID,
		Kind:      res.Kind,
		Code:      res.Code(),
		ExitCode:  res.ExitCode,
		Cancelled: res.Cancelled,
		Duration:  res.Duration,
		Finished:  time.Now(),
	})
}

// pushRecent stores r in the ring. Caller holds mu.
func (s *RunStats) pushRecent(r FinishedRun) {
	if len(s.recent) < MaxRecentResults {
		s.recent = append(s.recent, r)
		s.recentIdx = len(s.recent) % MaxRecentResults
		return
	}
	s.recent[s.recentIdx] = r
	s.recentIdx = (s.recentIdx + 1) % MaxRecentResults
}

// ActiveCount returns the number of runs not yet terminal.
func (s *RunStats) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Snapshot returns a consistent copy of the current statistics.
func (s *RunStats) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Elapsed:    time.Since(s.startTime),
		PeakActive: s.peakActive,
		Started:    s.started,
		Finished:   s.finished,
		Outcomes:   make(map[supervisor.Kind]int64, len(s.outcomes)),
		Codes:      make(map[supervisor.Code]int64, len(s.codes)),
		ExitCodes:  make(map[int]int64, len(s.exitCodes)),
		Cancelled:  s.cancelled,
		TimedOut:   s.timedOut,
		OutputSize: s.outputSize,
	}
	for k, v := range s.outcomes {
		snap.Outcomes[k] = v
	}
	for k, v := range s.codes {
		snap.Codes[k] = v
	}
	for k, v := range s.exitCodes {
		snap.ExitCodes[k] = v
	}

	snap.Active = make([]RunInfo, 0, len(s.active))
	for _, info := range s.active {
		snap.Active = append(snap.Active, *info)
	}
	sort.Slice(snap.Active, func(i, j int) bool {
		return s.seq[snap.Active[i].ID] < s.seq[snap.Active[j].ID]
	})

	if s.durationN > 0 {
		snap.DurationP50 = time.Duration(s.durations.Quantile(0.50))
		snap.DurationP95 = time.Duration(s.durations.Quantile(0.95))
		snap.DurationP99 = time.Duration(s.durations.Quantile(0.99))
		snap.DurationMax = s.durationMax
	}

	// Newest first
	n := len(s.recent)
	snap.Recent = make([]FinishedRun, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.recentIdx - 1 - i + n) % n
		snap.Recent = append(snap.Recent, s.recent[idx])
	}

	return snap
}
