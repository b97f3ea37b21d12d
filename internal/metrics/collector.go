// Package metrics provides Prometheus metrics for snippet-exec.
//
// Every collector owns its metric vectors so several can coexist on
// separate registries (one per interpreter, or one per test).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

// Namespace prefixes every metric name.
const Namespace = "snippet_exec"

// DurationBuckets are the run duration histogram buckets in seconds. The
// default watchdog is 5s, so resolution is concentrated below that.
var DurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version       string
	CodeFolder    string
	Timeout       time.Duration
	MaxConcurrent int
}

// Collector manages all Prometheus metrics for the interpreter. Its On*
// methods match supervisor.Callbacks.
type Collector struct {
	// --- Overview ---
	info          *prometheus.GaugeVec
	timeout       prometheus.Gauge
	maxConcurrent prometheus.Gauge
	activeRuns    prometheus.Gauge
	waitingRuns   prometheus.Gauge

	// --- Lifecycle ---
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runExits      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	cancelRequest prometheus.Counter
	watchdogKills prometheus.Counter
	callerCancels prometheus.Counter

	// --- Latency & Output ---
	runDuration prometheus.Histogram
	outputBytes prometheus.Counter

	// For summary generation
	mu          sync.Mutex
	startTime   time.Time
	peakActive  int
	active      int
	totalStarts int64
	exitCodes   map[int]int64
}

// NewCollector creates a new metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "info",
				Help:      "Information about the interpreter (value always 1)",
			},
			[]string{"version", "code_folder"},
		),
		timeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "timeout_seconds",
			Help:      "Configured watchdog duration per run",
		}),
		maxConcurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "max_concurrent_runs",
			Help:      "Scheduler concurrency limit",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_runs",
			Help:      "Runs currently executing",
		}),
		waitingRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "waiting_runs",
			Help:      "Submissions waiting for a scheduler slot",
		}),

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_started_total",
			Help:      "Processes spawned",
		}),
		runsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "runs_finished_total",
				Help:      "Terminal results by outcome and host code",
			},
			[]string{"outcome", "code"},
		),
		runExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "run_exits_total",
				Help:      "Process exits by category (success, error, signal)",
			},
			[]string{"category"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "state_transitions_total",
				Help:      "Run state transitions",
			},
			[]string{"from", "to"},
		),
		cancelRequest: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cancel_requests_total",
			Help:      "Cancel calls that found a run to signal",
		}),
		watchdogKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watchdog_kills_total",
			Help:      "Runs terminated by the watchdog",
		}),
		callerCancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "caller_cancellations_total",
			Help:      "Runs terminated by a caller",
		}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of runs that executed a process",
			Buckets:   DurationBuckets,
		}),
		outputBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes of run output captured",
		}),

		startTime: time.Now(),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		// Overview
		c.info,
		c.timeout,
		c.maxConcurrent,
		c.activeRuns,
		c.waitingRuns,

		// Lifecycle
		c.runsStarted,
		c.runsFinished,
		c.runExits,
		c.transitions,
		c.cancelRequest,
		c.watchdogKills,
		c.callerCancels,

		// Latency & Output
		c.runDuration,
		c.outputBytes,
	)

	// Set initial values
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.CodeFolder).Set(1)
	c.timeout.Set(cfg.Timeout.Seconds())
	c.maxConcurrent.Set(float64(cfg.MaxConcurrent))

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// OnStateChange records a transition and keeps the active gauge current.
func (c *Collector) OnStateChange(runID string, oldState, newState supervisor.State) {
	c.transitions.WithLabelValues(oldState.String(), newState.String()).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case newState.IsActive() && !oldState.IsActive():
		c.active++
	case oldState.IsActive() && !newState.IsActive():
		c.active--
	default:
		return
	}
	c.activeRuns.Set(float64(c.active))
	if c.active > c.peakActive {
		c.peakActive = c.active
	}
}

// OnStart records a process spawn.
func (c *Collector) OnStart(runID string, pid int) {
	c.runsStarted.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// OnExit records a terminal result.
func (c *Collector) OnExit(runID string, res supervisor.Result) {
	c.runsFinished.WithLabelValues(res.Kind.String(), string(res.Code())).Inc()
	c.outputBytes.Add(float64(len(res.Output)))

	switch res.Kind {
	case supervisor.KindIOError, supervisor.KindRejected:
		// No process exit to record.
		return
	case supervisor.KindTimedOut:
		if res.Cancelled {
			c.callerCancels.Inc()
		} else {
			c.watchdogKills.Inc()
		}
	}

	c.runExits.WithLabelValues(exitCategory(res.ExitCode)).Inc()
	c.runDuration.Observe(res.Duration.Seconds())

	c.mu.Lock()
	c.exitCodes[res.ExitCode]++
	c.mu.Unlock()
}

// CancelRequested records a Cancel call that reached a run.
func (c *Collector) CancelRequested() {
	c.cancelRequest.Inc()
}

// SetWaiting updates the number of submissions queued for a slot.
func (c *Collector) SetWaiting(n int) {
	c.waitingRuns.Set(float64(n))
}

// exitCategory buckets an exit code the way shells report it.
func exitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration    time.Duration
	PeakActive  int
	TotalStarts int64
	ExitCodes   map[int]int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:    time.Since(c.startTime),
		PeakActive:  c.peakActive,
		TotalStarts: c.totalStarts,
		ExitCodes:   make(map[int]int64, len(c.exitCodes)),
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	return s
}

// PeakActive returns the peak number of concurrently active runs.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// TotalStarts returns the total number of processes spawned.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}
