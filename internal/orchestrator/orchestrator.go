// Package orchestrator wires the interpreter, metrics, statistics and
// dashboard together to run a batch of snippets from the command line.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-snippet-exec/internal/config"
	"github.com/randomizedcoder/go-snippet-exec/internal/interpreter"
	"github.com/randomizedcoder/go-snippet-exec/internal/metrics"
	"github.com/randomizedcoder/go-snippet-exec/internal/preflight"
	"github.com/randomizedcoder/go-snippet-exec/internal/process"
	"github.com/randomizedcoder/go-snippet-exec/internal/stats"
	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
	"github.com/randomizedcoder/go-snippet-exec/internal/tui"
)

var (
	// ErrPreflight is returned when a required preflight check fails.
	ErrPreflight = errors.New("preflight checks failed (use -skip-preflight to override)")

	// ErrUnsuccessful is returned when at least one snippet did not succeed.
	ErrUnsuccessful = errors.New("one or more snippets did not succeed")
)

// Orchestrator coordinates all components for a batch of snippet runs.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string

	stdin  io.Reader
	stdout io.Writer

	interp        *interpreter.Interpreter
	manager       *ParagraphManager
	runStats      *stats.RunStats
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server // nil when disabled

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *Orchestrator {
	runner := process.NewRunner()
	runner.KillGrace = cfg.KillGrace
	runner.Env = cfg.Env

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:       version,
		CodeFolder:    cfg.CodeFolder,
		Timeout:       cfg.Timeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}, registry)

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		version:  version,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		runStats: stats.NewRunStats(),
		registry: registry,
		metrics:  collector,
	}

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}

	o.interp = interpreter.New(interpreter.Config{
		CodeFolder:      cfg.CodeFolder,
		LibrariesFolder: cfg.LibrariesFolder,
		Timeout:         cfg.Timeout,
		MaxConcurrent:   cfg.MaxConcurrent,
		MaxCapture:      cfg.MaxCapture,
		Runner:          runner,
		Logger:          logger,
		Callbacks: supervisor.Callbacks{
			OnStateChange: o.onStateChange,
			OnStart:       o.onStart,
			OnExit:        o.onExit,
		},
	})

	return o
}

// SetIO replaces standard input and output.
func (o *Orchestrator) SetIO(stdin io.Reader, stdout io.Writer) {
	o.stdin = stdin
	o.stdout = stdout
}

// Run executes every configured snippet. It blocks until all have finished
// or a signal cancels them. Returns ErrUnsuccessful if any did not succeed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			MaxConcurrent:   o.config.MaxConcurrent,
			CodeFolder:      o.config.CodeFolder,
			LibrariesFolder: o.config.LibrariesFolder,
		})
		preflight.WriteResults(o.stdout, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	snippets, err := LoadSnippets(o.config.Sources, o.stdin)
	if err != nil {
		return err
	}

	if err := o.interp.Open(); err != nil {
		return fmt.Errorf("opening interpreter: %w", err)
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			o.closeInterpreter()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		o.metricsServer.SetReady(true)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			o.cancelAll()
			cancel()
		case <-ctx.Done():
		}
	}()

	o.logger.Info("batch_starting",
		"snippets", len(snippets),
		"max_concurrent", o.interp.MaxConcurrent(),
		"timeout", o.interp.Timeout().String(),
	)

	o.manager = NewParagraphManager(ManagerConfig{
		Interpreter: o.interp,
		Logger:      o.logger,
		Verbose:     o.config.Verbose,
		OutputDir:   o.config.OutputDir,
		Stdout:      o.stdout,
	})
	for _, s := range snippets {
		o.manager.Start(ctx, s)
	}

	if o.config.TUIEnabled {
		o.runDashboard(len(snippets))
	} else {
		o.manager.Wait()
	}

	// Anything still running was abandoned by the user
	if o.manager.ActiveCount() > 0 {
		o.cancelAll()
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), o.config.ShutdownTimeout)
	defer shutdownCancel()

	if err := o.manager.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}
	if err := o.interp.Close(shutdownCtx); err != nil {
		o.logger.Warn("interpreter_close_incomplete", "error", err)
	}
	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	o.printResults()
	o.printExitSummary(len(snippets))

	if err := o.dumpMetrics(); err != nil {
		o.logger.Warn("metrics_dump_failed", "error", err)
	}
	o.logTotals()

	if !o.manager.AllSucceeded() {
		return ErrUnsuccessful
	}
	return nil
}

// runDashboard shows the TUI until the user quits. The dashboard stays up
// after the last run so the final numbers can be read.
func (o *Orchestrator) runDashboard(submitted int) {
	model := tui.New(tui.Config{
		Submitted:     submitted,
		Timeout:       o.interp.Timeout(),
		MaxConcurrent: o.interp.MaxConcurrent(),
		CodeFolder:    o.config.CodeFolder,
		MetricsAddr:   o.config.MetricsAddr,
		StatsSource:   o.runStats,
		Canceller:     o,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		o.manager.Wait()
		tui.SendDone(program)
	}()

	if _, err := program.Run(); err != nil {
		o.logger.Error("tui_failed", "error", err)
	}
}

// Cancel stops one paragraph. It implements tui.Canceller.
func (o *Orchestrator) Cancel(paragraphID string) error {
	if err := o.interp.Cancel(paragraphID); err != nil {
		return err
	}
	o.metrics.CancelRequested()
	return nil
}

func (o *Orchestrator) cancelAll() {
	n := o.interp.CancelAll()
	for i := 0; i < n; i++ {
		o.metrics.CancelRequested()
	}
	o.logger.Info("runs_cancelled", "count", n)
}

func (o *Orchestrator) closeInterpreter() {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.ShutdownTimeout)
	defer cancel()
	_ = o.interp.Close(ctx)
}

// Callback handlers

func (o *Orchestrator) onStateChange(runID string, oldState, newState supervisor.State) {
	o.metrics.OnStateChange(runID, oldState, newState)
	o.runStats.OnStateChange(runID, oldState, newState)
	o.metrics.SetWaiting(o.interp.WaitingCount())
}

func (o *Orchestrator) onStart(runID string, pid int) {
	o.metrics.OnStart(runID, pid)
	o.runStats.OnStart(runID, pid)
}

func (o *Orchestrator) onExit(runID string, res supervisor.Result) {
	o.metrics.OnExit(runID, res)
	o.runStats.OnExit(runID, res)
}

// printResults prints one line per paragraph in submission order.
func (o *Orchestrator) printResults() {
	results := o.manager.Results()
	if len(results) == 0 {
		return
	}

	fmt.Fprintln(o.stdout)
	fmt.Fprintln(o.stdout, "Results:")
	for _, pr := range results {
		if !pr.Done {
			fmt.Fprintf(o.stdout, "  %s still running at exit\n", pr.Snippet.ParagraphID)
			continue
		}
		res := pr.Result
		fmt.Fprintf(o.stdout, "  %-40s %s\n", res.String(), stats.FormatMs(res.Duration))

		if pr.Sink != "" && pr.Sink != "stdout" {
			fmt.Fprintf(o.stdout, "      output: %s\n", pr.Sink)
		}
		if res.Truncated {
			fmt.Fprintln(o.stdout, "      (captured output truncated)")
		}
		if res.Kind == supervisor.KindSuccess || res.Message == "" {
			continue
		}
		// The run's output is already on stdout or in its sink; show the tail.
		for _, line := range messageTail(res.Message, 3) {
			fmt.Fprintf(o.stdout, "      | %s\n", line)
		}
	}
}

// messageTail returns the last n lines of a result message.
func messageTail(msg string, n int) []string {
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// printExitSummary prints a summary of the batch.
func (o *Orchestrator) printExitSummary(submitted int) {
	fmt.Fprint(o.stdout, stats.FormatExitSummary(o.runStats.Snapshot(), stats.SummaryConfig{
		Submitted:     submitted,
		Duration:      time.Since(o.startTime),
		Timeout:       o.interp.Timeout(),
		MaxConcurrent: o.interp.MaxConcurrent(),
		MetricsAddr:   o.config.MetricsAddr,
		ErrorPatterns: o.manager.ErrorPatterns(),
	}))
}

// dumpMetrics writes the final metric values when -metrics-dump is set.
func (o *Orchestrator) dumpMetrics() error {
	switch o.config.MetricsDump {
	case "":
		return nil
	case "-":
		return metrics.WriteSnapshot(o.stdout, o.registry, metrics.Namespace)
	}

	f, err := os.Create(o.config.MetricsDump)
	if err != nil {
		return fmt.Errorf("creating metrics dump: %w", err)
	}
	if err := metrics.WriteSnapshot(f, o.registry, metrics.Namespace); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// logTotals logs the final counter values in one structured line.
func (o *Orchestrator) logTotals() {
	totals, err := metrics.Totals(o.registry, metrics.Namespace)
	if err != nil {
		o.logger.Warn("metrics_totals_failed", "error", err)
		return
	}

	attrs := make([]any, 0, len(totals)*2)
	for name, v := range totals {
		attrs = append(attrs, strings.TrimPrefix(name, metrics.Namespace+"_"), v)
	}
	o.logger.Info("batch_finished", attrs...)
}

// Interpreter returns the interpreter for external access.
func (o *Orchestrator) Interpreter() *interpreter.Interpreter {
	return o.interp
}

// Stats returns the run statistics for external access.
func (o *Orchestrator) Stats() *stats.RunStats {
	return o.runStats
}

// Registry returns the Prometheus registry holding this batch's metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
