package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var paragraphIDPattern = regexp.MustCompile(`^(.+)-[0-9a-f]{8}$`)

func TestNewParagraphID(t *testing.T) {
	tests := []struct {
		path string
		base string
	}{
		{"Hello.java", "Hello"},
		{"/src/snippets/Loop.java", "Loop"},
		{"noext", "noext"},
		{StdinSource, "stdin"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			id := NewParagraphID(tt.path)
			m := paragraphIDPattern.FindStringSubmatch(id)
			if m == nil {
				t.Fatalf("NewParagraphID(%q) = %q, want <base>-<8 hex>", tt.path, id)
			}
			if m[1] != tt.base {
				t.Errorf("base = %q, want %q", m[1], tt.base)
			}
		})
	}

	if NewParagraphID("A.java") == NewParagraphID("A.java") {
		t.Error("paragraph IDs must be unique per submission")
	}
}

func TestLoadSnippets(t *testing.T) {
	dir := t.TempDir()
	hello := filepath.Join(dir, "Hello.java")
	if err := os.WriteFile(hello, []byte("public class Hello {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	snippets, err := LoadSnippets([]string{hello, StdinSource, hello}, strings.NewReader("public class Piped {}"))
	if err != nil {
		t.Fatalf("LoadSnippets: %v", err)
	}
	if len(snippets) != 3 {
		t.Fatalf("got %d snippets, want 3", len(snippets))
	}

	if snippets[0].Source != "public class Hello {}" || snippets[0].Path != hello {
		t.Errorf("snippets[0] = %+v", snippets[0])
	}
	if snippets[1].Source != "public class Piped {}" || !strings.HasPrefix(snippets[1].ParagraphID, "stdin-") {
		t.Errorf("snippets[1] = %+v", snippets[1])
	}
	if snippets[0].ParagraphID == snippets[2].ParagraphID {
		t.Error("the same file submitted twice must get distinct paragraph IDs")
	}
}

func TestLoadSnippets_Missing(t *testing.T) {
	_, err := LoadSnippets([]string{filepath.Join(t.TempDir(), "Nope.java")}, nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist: %v", err)
	}
	if !strings.Contains(err.Error(), "Nope.java") {
		t.Errorf("error should name the file: %v", err)
	}
}
