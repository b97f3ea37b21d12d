package preflight

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeTool creates an executable script printing banner to stderr, the
// way the JDK tools report -version.
func writeTool(t *testing.T, dir, name, banner string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho '" + banner + "' >&2\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
}

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		if !strings.Contains(c.String(), "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

func TestRunAll_WithFakeJDK(t *testing.T) {
	skipIfNoShell(t)
	bin := t.TempDir()
	javac := writeTool(t, bin, "javac", "javac 17.0.2")
	java := writeTool(t, bin, "java", `openjdk version "17.0.2" 2022-01-18`)

	result := RunAll(Options{
		MaxConcurrent: 1,
		CodeFolder:    filepath.Join(t.TempDir(), "code"),
		Shell:         "sh",
		Javac:         javac,
		Java:          java,
	})

	want := []string{"file_descriptors", "process_limit", "shell", "javac", "java", "code_folder", "libraries_folder"}
	if len(result.Checks) != len(want) {
		t.Fatalf("got %d checks, want %d", len(result.Checks), len(want))
	}
	for i, name := range want {
		if result.Checks[i].Name != name {
			t.Errorf("Checks[%d].Name = %q, want %q", i, result.Checks[i].Name, name)
		}
	}

	for _, check := range result.Checks {
		switch check.Name {
		case "javac":
			if !check.Passed || !strings.Contains(check.Message, "version 17.0.2") {
				t.Errorf("javac check = %+v", check)
			}
		case "java":
			if !check.Passed || !strings.Contains(check.Message, "version 17.0.2") {
				t.Errorf("java check = %+v", check)
			}
		case "code_folder", "shell":
			if !check.Passed {
				t.Errorf("%s check failed: %s", check.Name, check.Message)
			}
		}
	}
}

func TestRunAll_MissingTools(t *testing.T) {
	result := RunAll(Options{
		MaxConcurrent: 1,
		CodeFolder:    t.TempDir(),
		Shell:         "definitely-not-a-shell",
		Javac:         "/nonexistent/javac",
		Java:          "/nonexistent/java",
	})

	if result.Passed {
		t.Error("Result should fail when the JDK is not found")
	}

	failed := map[string]bool{}
	for _, check := range result.Checks {
		if !check.Passed {
			failed[check.Name] = true
			if !strings.Contains(check.Message, "not found") {
				t.Errorf("%s message should mention 'not found': %s", check.Name, check.Message)
			}
		}
	}
	for _, name := range []string{"shell", "javac", "java"} {
		if !failed[name] {
			t.Errorf("expected %s check to fail", name)
		}
	}
}

func TestCheckTool_EdgeCases(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		if checkJavac("").Passed {
			t.Error("Empty javac path should fail")
		}
	})

	t.Run("directory_as_path", func(t *testing.T) {
		if checkJava(t.TempDir()).Passed {
			t.Error("Directory as java path should fail")
		}
	})

	t.Run("unexpected_banner", func(t *testing.T) {
		skipIfNoShell(t)
		path := writeTool(t, t.TempDir(), "java", "java")
		check := checkJava(path)
		if !check.Passed || !strings.Contains(check.Message, "version unknown") {
			t.Errorf("checkJava = %+v, want passed with unknown version", check)
		}
	})
}

func TestCheckCodeFolder(t *testing.T) {
	t.Run("creates_missing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		if c := checkCodeFolder(dir); !c.Passed {
			t.Fatalf("checkCodeFolder failed: %s", c.Message)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("folder not created: %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("probe file left behind: %v", entries)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if checkCodeFolder("").Passed {
			t.Error("empty code folder should fail")
		}
	})

	t.Run("file_in_the_way", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		os.WriteFile(file, nil, 0o644)
		if checkCodeFolder(filepath.Join(file, "code")).Passed {
			t.Error("code folder under a regular file should fail")
		}
	})
}

func TestCheckLibrariesFolder(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name        string
		dir         string
		setup       func()
		wantWarning bool
		wantMsg     string
	}{
		{"unset", "", nil, false, "not configured"},
		{"missing", filepath.Join(dir, "missing"), nil, true, "not readable"},
		{"empty", dir, nil, true, "(0 jars)"},
		{"jars", dir, func() {
			os.WriteFile(filepath.Join(dir, "a.jar"), nil, 0o644)
			os.WriteFile(filepath.Join(dir, "b.jar"), nil, 0o644)
		}, false, "(2 jars)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			c := checkLibrariesFolder(tt.dir)
			if !c.Passed {
				t.Error("libraries check must never fail")
			}
			if c.Warning != tt.wantWarning {
				t.Errorf("Warning = %v, want %v", c.Warning, tt.wantWarning)
			}
			if !strings.Contains(c.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", c.Message, tt.wantMsg)
			}
		})
	}
}

func TestParseMaxProcesses(t *testing.T) {
	header := "Limit                     Soft Limit           Hard Limit           Units     \n"
	tests := []struct {
		name   string
		limits string
		want   int
	}{
		{"numeric", header + "Max processes             4096                 63304                processes \n", 4096},
		{"unlimited", header + "Max processes             unlimited            unlimited            processes \n", 1000000},
		{"missing", header + "Max open files            1024                 1048576              files     \n", 0},
		{"truncated", "Max processes\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMaxProcesses(tt.limits); got != tt.want {
				t.Errorf("parseMaxProcesses() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	check1 := checkFileDescriptors(1)
	check100 := checkFileDescriptors(100)

	if check1.Actual <= 0 {
		t.Errorf("Actual should be positive: %d", check1.Actual)
	}
	if check100.Required <= check1.Required {
		t.Error("Required FDs should increase with more concurrent runs")
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"process_limit", "ulimit -u"},
		{"shell", "install bash"},
		{"javac", "install a JDK"},
		{"java", "install a JDK"},
		{"code_folder", "-code-folder"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestWriteResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "shell", Passed: true, Message: "found at /bin/bash"},
			{Name: "javac", Passed: false, Message: "not found at javac"},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	WriteResults(&buf, result)
	out := buf.String()

	if !strings.HasPrefix(out, "Preflight checks:\n") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "Fix: install a JDK") {
		t.Errorf("missing fix for failed check:\n%s", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Errorf("fix printed for passing check:\n%s", out)
	}
}
