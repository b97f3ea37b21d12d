// Package interpreter is the host-facing entry point: it turns a submitted
// Java snippet into a supervised compile-and-run of a single class.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/randomizedcoder/go-snippet-exec/internal/java"
	"github.com/randomizedcoder/go-snippet-exec/internal/process"
	"github.com/randomizedcoder/go-snippet-exec/internal/registry"
	"github.com/randomizedcoder/go-snippet-exec/internal/scheduler"
	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

// FormTypeSimple is the only form type this interpreter supports.
const FormTypeSimple = "simple"

var (
	// ErrNotOpen is returned for submissions before Open or after Close.
	ErrNotOpen = errors.New("interpreter not open")

	// ErrNoCodeFolder is returned by Open when no code folder is configured.
	ErrNoCodeFolder = errors.New("code folder not configured")
)

// Config holds configuration for creating a new Interpreter.
type Config struct {
	CodeFolder      string
	LibrariesFolder string

	Timeout       time.Duration
	KillGrace     time.Duration
	MaxConcurrent int
	MaxCapture    int // bytes

	// GOOS selects the script dialect; empty means runtime.GOOS.
	GOOS string

	// Runner overrides the process runner (tests use it to adjust PATH).
	Runner *process.Runner

	Logger    *slog.Logger
	Callbacks supervisor.Callbacks
}

// Interpreter materializes snippets, schedules them and hands them to the
// supervisor. Use New, then Open before the first Interpret.
type Interpreter struct {
	cfg    Config
	logger *slog.Logger
	goos   string

	sup   *supervisor.Supervisor
	sched *scheduler.Scheduler

	// closing is cancelled by Close to release submissions still waiting
	// for a slot.
	closing     context.Context
	closeCancel context.CancelFunc

	mu     sync.RWMutex
	paths  java.Paths
	mat    *java.Materializer
	opened bool
	closed bool
}

// New creates an Interpreter. It does not touch the filesystem.
func New(cfg Config) *Interpreter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	goos := cfg.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	runner := cfg.Runner
	if runner == nil {
		runner = process.NewRunner()
		if cfg.KillGrace > 0 {
			runner.KillGrace = cfg.KillGrace
		}
	}

	sup := supervisor.New(supervisor.Config{
		Runner:     runner,
		Registry:   registry.New(),
		Timeout:    cfg.Timeout,
		MaxCapture: cfg.MaxCapture,
		Logger:     logger,
		Callbacks:  cfg.Callbacks,
	})

	closing, closeCancel := context.WithCancel(context.Background())

	return &Interpreter{
		cfg:         cfg,
		logger:      logger,
		goos:        goos,
		sup:         sup,
		sched:       scheduler.New("java", cfg.MaxConcurrent, logger),
		closing:     closing,
		closeCancel: closeCancel,
	}
}

// Open resolves and creates the code folder. A missing libraries folder is
// logged but not fatal; javac simply finds nothing there.
func (i *Interpreter) Open() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrNotOpen
	}
	if i.cfg.CodeFolder == "" {
		return ErrNoCodeFolder
	}

	codeDir, err := filepath.Abs(i.cfg.CodeFolder)
	if err != nil {
		return fmt.Errorf("resolving code folder: %w", err)
	}
	if err := os.MkdirAll(codeDir, 0o755); err != nil {
		return fmt.Errorf("creating code folder: %w", err)
	}

	libDir := i.cfg.LibrariesFolder
	if libDir != "" {
		if abs, err := filepath.Abs(libDir); err == nil {
			libDir = abs
		}
		if _, err := os.Stat(libDir); err != nil {
			i.logger.Warn("libraries_folder_unavailable",
				"libraries_folder", libDir,
				"error", err,
			)
		}
	}

	i.paths = java.Paths{CodeDir: codeDir, LibDir: libDir}
	i.mat = &java.Materializer{CodeDir: codeDir}
	i.opened = true

	i.logger.Info("interpreter_opened",
		"code_folder", codeDir,
		"libraries_folder", libDir,
		"timeout", i.sup.Timeout().String(),
		"max_concurrent", i.sched.Limit(),
	)
	return nil
}

// Close stops accepting submissions, terminates every in-flight run and
// waits for them to finish or ctx to expire. An Interpreter cannot be
// reopened after Close.
func (i *Interpreter) Close(ctx context.Context) error {
	i.mu.Lock()
	i.opened = false
	i.closed = true
	i.mu.Unlock()
	i.closeCancel()

	cancelled := i.CancelAll()
	i.logger.Info("interpreter_closing", "cancelled_runs", cancelled)

	return i.sched.Shutdown(ctx)
}

// Interpret compiles and runs source as paragraphID, streaming combined
// output to out. It blocks until the run is finished, waiting first for a
// scheduler slot if the concurrency limit is reached.
func (i *Interpreter) Interpret(ctx context.Context, paragraphID, source string, out io.Writer) supervisor.Result {
	start := time.Now()

	i.mu.RLock()
	opened := i.opened
	paths := i.paths
	mat := i.mat
	i.mu.RUnlock()

	if !opened {
		return i.reject(paragraphID, supervisor.KindRejected, ErrNotOpen, start)
	}

	className := java.ClassName(source)
	i.logger.Debug("interpret_requested",
		"paragraph_id", paragraphID,
		"class_name", className,
		"source_bytes", len(source),
	)

	if _, err := mat.Write(className, source); err != nil {
		return i.reject(paragraphID, supervisor.KindIOError, err, start)
	}

	script := java.BuildScript(paths, className, i.goos)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(i.closing, cancel)
	defer stop()

	var res supervisor.Result
	var executed bool
	err := i.sched.Submit(ctx, paragraphID, func() {
		if i.isClosed() {
			return
		}
		executed = true
		res = i.sup.Execute(paragraphID, script, out)
	})
	if err == nil && !executed {
		err = ErrNotOpen
	}
	if err != nil {
		return i.reject(paragraphID, supervisor.KindRejected, err, start)
	}
	return res
}

func (i *Interpreter) isClosed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.closed
}

// reject builds the Result for a submission that never reached the
// supervisor and reports it through OnExit like any other run.
func (i *Interpreter) reject(paragraphID string, kind supervisor.Kind, err error, start time.Time) supervisor.Result {
	res := supervisor.Result{
		RunID:    paragraphID,
		Kind:     kind,
		ExitCode: -1,
		Message:  err.Error(),
		Err:      err,
		Duration: time.Since(start),
	}

	i.logger.Warn("interpret_failed",
		"paragraph_id", paragraphID,
		"outcome", kind.String(),
		"error", err,
	)
	if i.cfg.Callbacks.OnExit != nil {
		i.cfg.Callbacks.OnExit(paragraphID, res)
	}
	return res
}

// Cancel terminates the run of paragraphID. Returns registry.ErrNotFound if
// it is not executing.
func (i *Interpreter) Cancel(paragraphID string) error {
	return i.sup.Cancel(paragraphID)
}

// CancelAll terminates every executing run and returns how many were signalled.
func (i *Interpreter) CancelAll() int {
	n := 0
	for _, id := range i.sup.Active() {
		if err := i.sup.Cancel(id); err == nil {
			n++
		}
	}
	return n
}

// Script returns the shell script that would run className with the
// current folders. Open must have been called.
func (i *Interpreter) Script(className string) string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return java.BuildScript(i.paths, className, i.goos)
}

// Running returns paragraphs holding a scheduler slot, oldest first.
func (i *Interpreter) Running() []scheduler.Job {
	return i.sched.Running()
}

// ActiveCount returns the number of processes currently executing.
func (i *Interpreter) ActiveCount() int {
	return i.sup.ActiveCount()
}

// WaitingCount returns the number of submissions queued for a slot.
func (i *Interpreter) WaitingCount() int {
	return i.sched.WaitingCount()
}

// MaxConcurrent returns the scheduler's concurrency limit.
func (i *Interpreter) MaxConcurrent() int {
	return i.sched.Limit()
}

// Timeout returns the per-run watchdog duration.
func (i *Interpreter) Timeout() time.Duration {
	return i.sup.Timeout()
}

// FormType reports the form type for the host.
func (i *Interpreter) FormType() string {
	return FormTypeSimple
}

// Progress always reports 0; runs have no measurable progress.
func (i *Interpreter) Progress(paragraphID string) int {
	return 0
}

// Completion offers no completions.
func (i *Interpreter) Completion(buf string, cursor int) []string {
	return nil
}
