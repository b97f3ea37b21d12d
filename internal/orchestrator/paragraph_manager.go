package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randomizedcoder/go-snippet-exec/internal/logging"
	"github.com/randomizedcoder/go-snippet-exec/internal/supervisor"
)

// TailLines is how many trailing output lines are kept per paragraph.
const TailLines = 10

// Interpreter runs one snippet to completion.
type Interpreter interface {
	Interpret(ctx context.Context, paragraphID, source string, out io.Writer) supervisor.Result
}

// ParagraphResult is the outcome of one submitted snippet.
type ParagraphResult struct {
	Snippet Snippet
	Result  supervisor.Result
	Done    bool

	// Sink is the output file path, or "stdout".
	Sink string

	// Tail holds the last lines of output, oldest first.
	Tail []string

	// ErrorCounts counts Java failure patterns seen in the output.
	ErrorCounts map[string]int
}

// ManagerConfig holds configuration for the ParagraphManager.
type ManagerConfig struct {
	Interpreter Interpreter
	Logger      *slog.Logger
	Verbose     bool

	// OutputDir receives one <paragraph>.out file per run. Empty writes
	// prefixed lines to Stdout.
	OutputDir string
	Stdout    io.Writer
}

// ParagraphManager submits snippets concurrently and collects their results.
type ParagraphManager struct {
	interp    Interpreter
	logger    *slog.Logger
	verbose   bool
	outputDir string
	stdout    *lockedWriter

	mu      sync.Mutex
	order   []string
	results map[string]*ParagraphResult

	// WaitGroup for all paragraph goroutines
	wg sync.WaitGroup

	startedCount  atomic.Int64
	finishedCount atomic.Int64
}

// NewParagraphManager creates a new ParagraphManager.
func NewParagraphManager(cfg ManagerConfig) *ParagraphManager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	return &ParagraphManager{
		interp:    cfg.Interpreter,
		logger:    logger,
		verbose:   cfg.Verbose,
		outputDir: cfg.OutputDir,
		stdout:    &lockedWriter{w: stdout},
		results:   make(map[string]*ParagraphResult),
	}
}

// Start submits s in its own goroutine. The interpreter decides when it
// actually runs.
func (m *ParagraphManager) Start(ctx context.Context, s Snippet) {
	m.mu.Lock()
	m.order = append(m.order, s.ParagraphID)
	m.results[s.ParagraphID] = &ParagraphResult{Snippet: s}
	m.mu.Unlock()

	m.startedCount.Add(1)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, s)
	}()
}

func (m *ParagraphManager) run(ctx context.Context, s Snippet) {
	id := s.ParagraphID
	handler := logging.NewOutputHandler(id, m.logger, m.verbose)

	var res supervisor.Result
	var sinkName string

	out, err := openSink(m.outputDir, id, m.stdout)
	if err != nil {
		m.logger.Error("sink_open_failed", "paragraph_id", id, "error", err)
		res = supervisor.Result{
			RunID:    id,
			Kind:     supervisor.KindIOError,
			ExitCode: -1,
			Message:  err.Error(),
			Err:      err,
		}
	} else {
		sinkName = out.name
		res = m.interp.Interpret(ctx, id, s.Source, io.MultiWriter(out, handler))
		if err := out.close(); err != nil {
			m.logger.Warn("sink_close_failed", "paragraph_id", id, "error", err)
		}
	}
	handler.Flush()

	m.mu.Lock()
	pr := m.results[id]
	pr.Result = res
	pr.Done = true
	pr.Sink = sinkName
	pr.Tail = handler.RecentLines(TailLines)
	pr.ErrorCounts = handler.CountErrors()
	m.mu.Unlock()

	m.finishedCount.Add(1)

	m.logger.Debug("paragraph_finished",
		"paragraph_id", id,
		"path", s.Path,
		"code", string(res.Code()),
		"lines", handler.LineCount(),
	)
}

// Wait blocks until every started paragraph has finished.
func (m *ParagraphManager) Wait() {
	m.wg.Wait()
}

// Shutdown waits for all paragraphs to finish, with a timeout. Runs must
// already have been cancelled for this to return promptly.
func (m *ParagraphManager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutdown_initiated", "active_paragraphs", m.ActiveCount())

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all_paragraphs_stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown_timeout", "active_paragraphs", m.ActiveCount())
		return ctx.Err()
	}
}

// Results returns a copy of every result in submission order. Paragraphs
// still running have Done == false.
func (m *ParagraphManager) Results() []ParagraphResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ParagraphResult, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.results[id])
	}
	return out
}

// ErrorPatterns sums the Java failure patterns of every finished paragraph.
func (m *ParagraphManager) ErrorPatterns() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := make(map[string]int)
	for _, pr := range m.results {
		for pattern, n := range pr.ErrorCounts {
			total[pattern] += n
		}
	}
	return total
}

// AllSucceeded reports whether every paragraph finished with SUCCESS.
func (m *ParagraphManager) AllSucceeded() bool {
	for _, pr := range m.Results() {
		if !pr.Done || pr.Result.Code() != supervisor.CodeSuccess {
			return false
		}
	}
	return true
}

// ActiveCount returns the number of paragraphs not yet finished.
func (m *ParagraphManager) ActiveCount() int {
	return int(m.startedCount.Load() - m.finishedCount.Load())
}

// StartedCount returns the number of paragraphs submitted.
func (m *ParagraphManager) StartedCount() int {
	return int(m.startedCount.Load())
}

// FinishedCount returns the number of paragraphs with a result.
func (m *ParagraphManager) FinishedCount() int {
	return int(m.finishedCount.Load())
}
