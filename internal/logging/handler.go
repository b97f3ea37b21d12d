package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines kept per run.
	MaxBufferedLines = 100
)

// OutputHandler is an io.Writer that receives a run's combined output,
// splits it into lines, logs them and keeps the most recent ones for the
// exit summary. Put it behind an io.MultiWriter next to the real sink.
type OutputHandler struct {
	paragraphID string
	logger      *slog.Logger
	verbose     bool

	mu      sync.Mutex
	partial []byte

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	total  int
}

// NewOutputHandler creates a new output handler for a paragraph.
func NewOutputHandler(paragraphID string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		paragraphID: paragraphID,
		logger:      logger,
		verbose:     verbose,
		buffer:      make([]string, MaxBufferedLines),
	}
}

// Write implements io.Writer. A line split across writes is held back until
// its newline arrives. It never returns an error so it cannot fail the run.
func (h *OutputHandler) Write(p []byte) (int, error) {
	var lines []string

	h.mu.Lock()
	h.partial = append(h.partial, p...)
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(h.partial[:i]), "\r"))
		h.partial = h.partial[i+1:]
	}
	// Keep memory bounded for output that never emits a newline.
	if len(h.partial) > MaxLineLength {
		lines = append(lines, string(h.partial))
		h.partial = h.partial[:0]
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any trailing output without a final newline.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := string(h.partial)
	h.partial = nil
	h.mu.Unlock()

	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine processes a single line of output.
func (h *OutputHandler) HandleLine(line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	// Store in circular buffer
	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	h.logLine(line)
}

// logLine logs the line at appropriate level based on content.
func (h *OutputHandler) logLine(line string) {
	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "run_output",
		"paragraph_id", h.paragraphID,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	// javac diagnostics: "Hello.java:3: error: ..."
	if strings.Contains(line, ": error:") ||
		strings.HasPrefix(line, "Error:") ||
		strings.Contains(line, "Exception") ||
		strings.HasPrefix(line, "Caused by:") ||
		strings.Contains(line, "Error: Could not") {
		return slog.LevelWarn
	}

	if strings.Contains(line, ": warning:") ||
		strings.HasPrefix(line, "Note:") {
		return slog.LevelInfo
	}

	// Program output and stack frames
	return slog.LevelDebug
}

// RecentLines returns the most recent lines from the buffer.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.total {
		n = h.total
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}

	return lines
}

// LineCount returns the number of lines seen, including evicted ones.
func (h *OutputHandler) LineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// ErrorPatterns are common Java failure patterns to extract for the exit summary.
var ErrorPatterns = []string{
	": error:",
	"cannot find symbol",
	"Could not find or load main class",
	"Exception in thread",
	"Caused by:",
	"OutOfMemoryError",
	"StackOverflowError",
	"NullPointerException",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)

	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
