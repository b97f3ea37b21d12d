// Package config provides configuration management for snippet-exec.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration options for a snippet-exec invocation.
type Config struct {
	// Java
	CodeFolder      string   `json:"code_folder"`
	LibrariesFolder string   `json:"libraries_folder"`
	Env             []string `json:"env"`

	// Execution
	Timeout         time.Duration `json:"timeout"`
	KillGrace       time.Duration `json:"kill_grace"`
	MaxConcurrent   int           `json:"max_concurrent"`
	MaxCapture      int           `json:"max_capture"` // bytes
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Inputs and outputs
	Sources   []string `json:"sources"` // file paths, "-" = stdin
	OutputDir string   `json:"output_dir"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	MetricsDump string `json:"metrics_dump"` // path, "-" = stdout
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	TUIEnabled  bool   `json:"tui_enabled"`

	// Diagnostic modes
	PrintScript   bool `json:"print_script"`
	SkipPreflight bool `json:"skip_preflight"`

	// Property file the values above were loaded from, if any.
	ConfigFile string `json:"config_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Java
		CodeFolder: filepath.Join(os.TempDir(), "snippet-exec", "code"),

		// Execution
		Timeout:         5000 * time.Millisecond,
		KillGrace:       2 * time.Second,
		MaxConcurrent:   10,
		MaxCapture:      1 << 20,
		ShutdownTimeout: 10 * time.Second,

		// Observability
		LogFormat: "json",
	}
}
