package java

import (
	"fmt"
	"os"
	"path/filepath"
)

// Materializer writes snippets as .java files under a code directory.
type Materializer struct {
	CodeDir string
}

// SourcePath returns where the source for className is written.
func (m *Materializer) SourcePath(className string) string {
	return filepath.Join(m.CodeDir, className+".java")
}

// Write stores source as <CodeDir>/<className>.java, creating the directory
// if needed, and returns the file path.
func (m *Materializer) Write(className, source string) (string, error) {
	if err := os.MkdirAll(m.CodeDir, 0o755); err != nil {
		return "", fmt.Errorf("creating code folder: %w", err)
	}

	path := m.SourcePath(className)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
