package orchestrator

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// lockedWriter serializes writes from concurrent runs to one destination.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// prefixWriter tags every complete line with a prefix before handing it to
// a shared writer, so lines of concurrent runs never interleave mid-line.
type prefixWriter struct {
	prefix  []byte
	out     *lockedWriter
	partial []byte
}

func newPrefixWriter(out *lockedWriter, prefix string) *prefixWriter {
	return &prefixWriter{prefix: []byte(prefix), out: out}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.partial = append(p.partial, b...)
	for {
		i := bytes.IndexByte(p.partial, '\n')
		if i < 0 {
			break
		}
		if err := p.emit(p.partial[:i+1]); err != nil {
			return 0, err
		}
		p.partial = p.partial[i+1:]
	}
	return len(b), nil
}

// Flush writes any unterminated trailing output as a final line.
func (p *prefixWriter) Flush() error {
	if len(p.partial) == 0 {
		return nil
	}
	line := append(p.partial, '\n')
	p.partial = nil
	return p.emit(line)
}

func (p *prefixWriter) emit(line []byte) error {
	buf := make([]byte, 0, len(p.prefix)+len(line))
	buf = append(buf, p.prefix...)
	buf = append(buf, line...)
	_, err := p.out.Write(buf)
	return err
}

// sink is where one paragraph's output goes.
type sink struct {
	io.Writer
	name  string
	close func() error
}

// openSink returns a prefixed stdout sink when outputDir is empty, or a
// <outputDir>/<paragraphID>.out file.
func openSink(outputDir, paragraphID string, stdout *lockedWriter) (*sink, error) {
	if outputDir == "" {
		pw := newPrefixWriter(stdout, "["+paragraphID+"] ")
		return &sink{Writer: pw, name: "stdout", close: pw.Flush}, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(outputDir, paragraphID+".out")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating sink: %w", err)
	}
	return &sink{Writer: f, name: path, close: f.Close}, nil
}
