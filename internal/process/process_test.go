package process

import (
	"bytes"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test Helpers
// =============================================================================

// syncBuffer is a bytes.Buffer safe for the copy goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests require a POSIX shell")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	return &Runner{
		Shell:     []string{"bash", "-c"},
		KillGrace: 500 * time.Millisecond,
		WaitDelay: 500 * time.Millisecond,
	}
}

// =============================================================================
// Tests: Run
// =============================================================================

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		wantCode int
		wantOut  string
	}{
		{"success", "echo hello", 0, "hello\n"},
		{"exit 2", "echo failing; exit 2", 2, "failing\n"},
		{"exit 1 from false", "false", 1, ""},
		{"multi-line script", "echo one\necho two", 0, "one\ntwo\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t)
			var out syncBuffer

			code, timedOut, err := r.Run(tt.command, &out, 5*time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if timedOut {
				t.Error("timedOut = true, want false")
			}
			if code != tt.wantCode {
				t.Errorf("exitCode = %d, want %d", code, tt.wantCode)
			}
			if out.String() != tt.wantOut {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestRun_CombinedOutputOrder(t *testing.T) {
	r := newTestRunner(t)
	var out syncBuffer

	_, _, err := r.Run("echo out1; echo err1 >&2; echo out2; echo err2 >&2", &out, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "out1\nerr1\nout2\nerr2\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	var out syncBuffer

	start := time.Now()
	code, timedOut, err := r.Run("echo started; sleep 10; echo never", &out, 200*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Error("timedOut = false, want true")
	}
	if code != ExitSIGTERM {
		t.Errorf("exitCode = %d, want %d", code, ExitSIGTERM)
	}
	if out.String() != "started\n" {
		t.Errorf("output = %q, want %q", out.String(), "started\n")
	}
	if elapsed > 3*time.Second {
		t.Errorf("Run took %v, want well under the sleep duration", elapsed)
	}
}

func TestRun_EscalatesToSIGKILL(t *testing.T) {
	r := newTestRunner(t)
	r.KillGrace = 100 * time.Millisecond

	start := time.Now()
	p := r.Prepare("trap '' TERM; sleep 10", nil)
	code, timedOut, err := p.Run(100 * time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Error("timedOut = false, want true")
	}
	if code != ExitSIGKILL {
		t.Errorf("exitCode = %d, want %d", code, ExitSIGKILL)
	}
	if p.ForcedBy() != ForceTimeout {
		t.Errorf("ForcedBy = %v, want timeout", p.ForcedBy())
	}
	if elapsed > 3*time.Second {
		t.Errorf("Run took %v, escalation did not happen", elapsed)
	}
}

func TestRun_NoTimeout(t *testing.T) {
	r := newTestRunner(t)
	code, timedOut, err := r.Run("sleep 0.1", nil, 0)
	if err != nil || timedOut || code != 0 {
		t.Errorf("Run = (%d, %v, %v), want (0, false, nil)", code, timedOut, err)
	}
}

func TestRun_ShellNotFound(t *testing.T) {
	r := &Runner{Shell: []string{"nonexistent-shell-xyz-123", "-c"}}

	_, timedOut, err := r.Run("echo hi", nil, time.Second)
	if err == nil {
		t.Fatal("expected error for missing shell")
	}
	if timedOut {
		t.Error("timedOut = true, want false")
	}
	if !strings.Contains(err.Error(), "nonexistent-shell-xyz-123") {
		t.Errorf("error = %q, want to mention the shell", err)
	}
}

func TestRun_Twice(t *testing.T) {
	r := newTestRunner(t)
	p := r.Prepare("true", nil)

	if _, _, err := p.Run(time.Second); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, _, err := p.Run(time.Second); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run error = %v, want ErrAlreadyStarted", err)
	}
}

// =============================================================================
// Tests: Terminate
// =============================================================================

func TestTerminate_MidFlight(t *testing.T) {
	r := newTestRunner(t)
	var out syncBuffer

	p := r.Prepare("echo ready; sleep 10", &out)
	started := make(chan int, 1)
	p.OnStart(func(pid int) { started <- pid })

	type runResult struct {
		code     int
		timedOut bool
		err      error
	}
	resCh := make(chan runResult, 1)
	go func() {
		code, timedOut, err := p.Run(10 * time.Second)
		resCh <- runResult{code, timedOut, err}
	}()

	pid := <-started
	if pid <= 0 {
		t.Fatalf("OnStart pid = %d, want > 0", pid)
	}
	if p.Pid() != pid {
		t.Errorf("Pid() = %d, want %d", p.Pid(), pid)
	}

	// Wait for the first line so the kill lands after it.
	deadline := time.Now().Add(2 * time.Second)
	for out.String() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	p.Terminate()
	p.Terminate() // idempotent

	select {
	case res := <-resCh:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if !res.timedOut {
			t.Error("timedOut = false, want true")
		}
		if res.code != ExitSIGTERM {
			t.Errorf("exitCode = %d, want %d", res.code, ExitSIGTERM)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Terminate")
	}

	if p.ForcedBy() != ForceCancel {
		t.Errorf("ForcedBy = %v, want cancel", p.ForcedBy())
	}
	if out.String() != "ready\n" {
		t.Errorf("output = %q, want %q", out.String(), "ready\n")
	}
}

func TestTerminate_BeforeStart(t *testing.T) {
	r := newTestRunner(t)
	var out syncBuffer

	p := r.Prepare("echo should-not-run", &out)
	p.Terminate()

	code, timedOut, err := p.Run(time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut || code != ExitSIGTERM {
		t.Errorf("Run = (%d, %v), want (%d, true)", code, timedOut, ExitSIGTERM)
	}
	if out.String() != "" {
		t.Errorf("output = %q, want empty (never spawned)", out.String())
	}
	if p.Pid() != 0 {
		t.Errorf("Pid() = %d, want 0", p.Pid())
	}
}

func TestTerminate_AfterExit(t *testing.T) {
	r := newTestRunner(t)
	p := r.Prepare("exit 0", nil)

	if _, _, err := p.Run(time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.Terminate()
	if p.ForcedBy() != ForceNone {
		t.Errorf("ForcedBy = %v, want none after natural exit", p.ForcedBy())
	}

	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}
}

// =============================================================================
// Tests: Sink errors
// =============================================================================

var errSinkFull = errors.New("sink full")

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errSinkFull
}

func TestRun_SinkErrorReported(t *testing.T) {
	r := newTestRunner(t)

	// Enough output to fill the pipe several times over.
	code, timedOut, err := r.Run("for i in $(seq 1 2000); do echo line $i; done; exit 0", failingWriter{}, 10*time.Second)

	if !errors.Is(err, errSinkFull) {
		t.Fatalf("err = %v, want errSinkFull", err)
	}
	if timedOut {
		t.Error("timedOut = true, want false")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0 (the child must not die of SIGPIPE)", code)
	}
}

func TestRun_SinkErrorIgnoredWhenForced(t *testing.T) {
	r := newTestRunner(t)

	_, timedOut, err := r.Run("echo start; sleep 10", failingWriter{}, 200*time.Millisecond)

	if err != nil {
		t.Errorf("err = %v, want nil for a forced run", err)
	}
	if !timedOut {
		t.Error("timedOut = false, want true")
	}
}

func TestStateExitCode(t *testing.T) {
	r := newTestRunner(t)
	cmd := r.buildCommand("exit 7")
	_ = cmd.Run()

	if got := stateExitCode(cmd.ProcessState); got != 7 {
		t.Errorf("stateExitCode = %d, want 7", got)
	}
}

// =============================================================================
// Tests: Helpers
// =============================================================================

func TestExtractExitCode(t *testing.T) {
	if got := ExtractExitCode(nil); got != 0 {
		t.Errorf("ExtractExitCode(nil) = %d, want 0", got)
	}
	if got := ExtractExitCode(errors.New("boom")); got != 1 {
		t.Errorf("ExtractExitCode(other) = %d, want 1", got)
	}
}

func TestDefaultShell(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "bash -c"},
		{"darwin", "bash -c"},
		{"windows", "cmd /c"},
	}
	for _, tt := range tests {
		if got := strings.Join(DefaultShell(tt.goos), " "); got != tt.want {
			t.Errorf("DefaultShell(%q) = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestForceReason_String(t *testing.T) {
	tests := map[ForceReason]string{
		ForceNone:       "none",
		ForceTimeout:    "timeout",
		ForceCancel:     "cancel",
		ForceReason(99): "unknown",
	}
	for reason, want := range tests {
		if got := reason.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", reason, got, want)
		}
	}
}
