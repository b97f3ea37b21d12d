package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StdinSource is the source name that reads a snippet from standard input.
const StdinSource = "-"

// Snippet is one submission: a Java source and the paragraph it runs as.
type Snippet struct {
	ParagraphID string
	Path        string // StdinSource for standard input
	Source      string
}

// LoadSnippets reads every source in order. Each gets a fresh paragraph ID
// so the same file may be submitted more than once.
func LoadSnippets(paths []string, stdin io.Reader) ([]Snippet, error) {
	snippets := make([]Snippet, 0, len(paths))
	for _, path := range paths {
		var (
			data []byte
			err  error
		)
		if path == StdinSource {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading snippet %s: %w", path, err)
		}

		snippets = append(snippets, Snippet{
			ParagraphID: NewParagraphID(path),
			Path:        path,
			Source:      string(data),
		})
	}
	return snippets, nil
}

// NewParagraphID derives a readable, unique paragraph ID from a source path,
// e.g. "Hello-1b9d6bcd".
func NewParagraphID(path string) string {
	base := "stdin"
	if path != StdinSource {
		base = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return base + "-" + uuid.NewString()[:8]
}
