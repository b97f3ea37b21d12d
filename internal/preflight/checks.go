// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks. Empty tool paths fall back to the
// names looked up on PATH.
type Options struct {
	MaxConcurrent   int
	CodeFolder      string
	LibrariesFolder string
	Shell           string
	Javac           string
	Java            string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// add appends a check, failing the result unless the check passed.
func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	if opts.Shell == "" {
		opts.Shell = "bash"
	}
	if opts.Javac == "" {
		opts.Javac = "javac"
	}
	if opts.Java == "" {
		opts.Java = "java"
	}

	result := &Result{
		Checks: make([]Check, 0, 7),
		Passed: true,
	}

	result.add(checkFileDescriptors(opts.MaxConcurrent))
	result.add(checkProcessLimit(opts.MaxConcurrent))
	result.add(checkShell(opts.Shell))
	result.add(checkJavac(opts.Javac))
	result.add(checkJava(opts.Java))
	result.add(checkCodeFolder(opts.CodeFolder))

	// Missing libraries only narrow what snippets can import
	result.add(checkLibrariesFolder(opts.LibrariesFolder))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(runs int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each run holds a pipe pair, its sink file and whatever the JVM opens
	required := runs*16 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d concurrent runs)", actual, required, runs),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
// JVM threads count against the same limit as processes.
func checkProcessLimit(runs int) Check {
	required := runs*32 + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from the
// contents of /proc/self/limits. Returns 0 if it cannot be found.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		actual := 0
		fmt.Sscanf(fields[2], "%d", &actual)
		return actual
	}
	return 0
}

// checkShell verifies the shell that runs the generated script exists.
func checkShell(name string) Check {
	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", name, err),
		}
	}
	return Check{
		Name:    "shell",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkJavac verifies the compiler is available and working.
func checkJavac(path string) Check {
	output, err := toolVersion(path)
	if err != nil {
		return Check{
			Name:    "javac",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	// "javac 17.0.2"
	version := "unknown"
	if parts := strings.Fields(firstLine(output)); len(parts) >= 2 {
		version = parts[1]
	}

	return Check{
		Name:    "javac",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkJava verifies the runtime is available and working.
func checkJava(path string) Check {
	output, err := toolVersion(path)
	if err != nil {
		return Check{
			Name:    "java",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	// `openjdk version "17.0.2" 2022-01-18`
	version := "unknown"
	if parts := strings.Fields(firstLine(output)); len(parts) >= 3 {
		version = strings.Trim(parts[2], `"`)
	}

	return Check{
		Name:    "java",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// toolVersion runs `<path> -version`. The JDK tools print the version to
// stderr, so both streams are collected.
func toolVersion(path string) (string, error) {
	if path == "" {
		return "", exec.ErrNotFound
	}
	output, err := exec.Command(path, "-version").CombinedOutput()
	return string(output), err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// checkCodeFolder verifies snippets can be materialized.
func checkCodeFolder(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "code_folder",
			Passed:  false,
			Message: "not configured",
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "code_folder",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "code_folder",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{
		Name:    "code_folder",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

// checkLibrariesFolder reports how many jars are on the compile classpath.
// It never fails.
func checkLibrariesFolder(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "libraries_folder",
			Passed:  true,
			Message: "not configured",
		}
	}

	jars, err := filepath.Glob(filepath.Join(dir, "*.jar"))
	if _, statErr := os.Stat(dir); statErr != nil || err != nil {
		return Check{
			Name:    "libraries_folder",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s is not readable", dir),
		}
	}

	return Check{
		Name:    "libraries_folder",
		Passed:  true,
		Warning: len(jars) == 0,
		Message: fmt.Sprintf("%s (%d jars)", dir, len(jars)),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	WriteResults(os.Stdout, result)
}

// WriteResults prints the preflight check results to w.
func WriteResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf), or lower -max-concurrent"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf), or lower -max-concurrent"
	case "shell":
		return "install bash (apt install bash / brew install bash)"
	case "javac", "java":
		return "install a JDK (apt install openjdk-17-jdk-headless / brew install openjdk)"
	case "code_folder":
		return "pass a writable directory with -code-folder"
	default:
		return "see documentation"
	}
}
