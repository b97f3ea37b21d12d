package config

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 5000*time.Millisecond {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", cfg.MaxConcurrent)
	}
	if cfg.CodeFolder == "" {
		t.Error("CodeFolder should have a default")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestEnvList(t *testing.T) {
	var e envList
	for _, v := range []string{"A=1", "B=2"} {
		if err := e.Set(v); err != nil {
			t.Fatalf("Set(%q): %v", v, err)
		}
	}
	if got := e.String(); got != "A=1, B=2" {
		t.Errorf("String() = %q, want %q", got, "A=1, B=2")
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "42", "int"},
		{"string", "hello", "string"},
		{"duration seconds", "5s", "duration"},
		{"duration minutes", "5m", "duration"},
		{"empty", "", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{DefValue: tc.defValue}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.expected)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	var out bytes.Buffer
	cfg, err := ParseArgs([]string{
		"-timeout", "2s",
		"-max-concurrent", "3",
		"-env", "A=1",
		"-env", "B=2",
		"-v",
		"Hello.java", "World.java",
	}, &out)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.MaxConcurrent)
	}
	if strings.Join(cfg.Env, ",") != "A=1,B=2" {
		t.Errorf("Env = %v, want [A=1 B=2]", cfg.Env)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
	if strings.Join(cfg.Sources, ",") != "Hello.java,World.java" {
		t.Errorf("Sources = %v", cfg.Sources)
	}
}

func TestParseArgs_Stdin(t *testing.T) {
	cfg, err := ParseArgs([]string{"-"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0] != "-" {
		t.Errorf("Sources = %v, want [-]", cfg.Sources)
	}
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if _, err := ParseArgs([]string{"-nope"}, &out); err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(out.String(), "Execution:") {
		t.Errorf("usage output missing categories:\n%s", out.String())
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snippet-exec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseArgs_ConfigFile(t *testing.T) {
	path := writeFile(t, `
java.code.folder: /srv/code
java.libraries.folder: /srv/lib
timeout: 7000
max.concurrent: 4
env:
  - JAVA_TOOL_OPTIONS=-Xmx64m
`)

	cfg, err := ParseArgs([]string{"-config", path, "-max-concurrent", "2", "A.java"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	if cfg.CodeFolder != "/srv/code" {
		t.Errorf("CodeFolder = %q, want /srv/code", cfg.CodeFolder)
	}
	if cfg.LibrariesFolder != "/srv/lib" {
		t.Errorf("LibrariesFolder = %q, want /srv/lib", cfg.LibrariesFolder)
	}
	if cfg.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want 7s from the file", cfg.Timeout)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2 (flag overrides file)", cfg.MaxConcurrent)
	}
	if len(cfg.Env) != 1 {
		t.Errorf("Env = %v, want one entry", cfg.Env)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(*testing.T, *Config)
		wantErr bool
	}{
		{
			name:    "duration string",
			content: "timeout: 1500ms\nkill.grace: 3s\n",
			check: func(t *testing.T, c *Config) {
				if c.Timeout != 1500*time.Millisecond {
					t.Errorf("Timeout = %v, want 1.5s", c.Timeout)
				}
				if c.KillGrace != 3*time.Second {
					t.Errorf("KillGrace = %v, want 3s", c.KillGrace)
				}
			},
		},
		{
			name:    "empty file keeps defaults",
			content: "",
			check: func(t *testing.T, c *Config) {
				if c.MaxConcurrent != 10 {
					t.Errorf("MaxConcurrent = %d, want default 10", c.MaxConcurrent)
				}
			},
		},
		{
			name:    "unknown key",
			content: "java.code.foldr: /x\n",
			wantErr: true,
		},
		{
			name:    "bad duration",
			content: "timeout: soon\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := LoadFile(writeFile(t, tt.content), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), DefaultConfig())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile() = %v, want os.ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"print script without sources", func(c *Config) { c.Sources = nil; c.PrintScript = true }, ""},
		{"no sources", func(c *Config) { c.Sources = nil }, "sources"},
		{"stdin twice", func(c *Config) { c.Sources = []string{"-", "-"} }, "sources"},
		{"empty code folder", func(c *Config) { c.CodeFolder = " " }, "code_folder"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative grace", func(c *Config) { c.KillGrace = -time.Second }, "kill_grace"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "max_concurrent"},
		{"zero capture", func(c *Config) { c.MaxCapture = 0 }, "max_capture"},
		{"short shutdown", func(c *Config) { c.ShutdownTimeout = time.Millisecond }, "shutdown_timeout"},
		{"bad env", func(c *Config) { c.Env = []string{"NOEQUALS"} }, "env"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"tui without output dir", func(c *Config) { c.TUIEnabled = true }, "tui"},
		{"tui with output dir", func(c *Config) { c.TUIEnabled = true; c.OutputDir = "out" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sources = []string{"Hello.java"}
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error on %s", tt.wantField)
			}

			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error %v is not a ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 0
	cfg.MaxConcurrent = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"sources", "timeout", "max_concurrent"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q missing %s", err, field)
		}
	}
}
