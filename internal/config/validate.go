package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// At least one snippet unless only printing the script
	if len(cfg.Sources) == 0 && !cfg.PrintScript {
		errs = append(errs, ValidationError{
			Field:   "sources",
			Message: "at least one snippet file (or - for stdin) is required",
		})
	}

	// stdin can only be read once
	stdin := 0
	for _, src := range cfg.Sources {
		if src == "-" {
			stdin++
		}
	}
	if stdin > 1 {
		errs = append(errs, ValidationError{
			Field:   "sources",
			Message: "- (stdin) may be given at most once",
		})
	}

	if strings.TrimSpace(cfg.CodeFolder) == "" {
		errs = append(errs, ValidationError{
			Field:   "code_folder",
			Message: "must not be empty",
		})
	}

	// Timeout must be positive
	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}

	if cfg.KillGrace < 0 {
		errs = append(errs, ValidationError{
			Field:   "kill_grace",
			Message: "must not be negative",
		})
	}

	if cfg.MaxConcurrent < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_concurrent",
			Message: "must be at least 1",
		})
	}

	if cfg.MaxCapture < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_capture",
			Message: "must be at least 1",
		})
	}

	if cfg.ShutdownTimeout < time.Second {
		errs = append(errs, ValidationError{
			Field:   "shutdown_timeout",
			Message: fmt.Sprintf("must be at least 1s (got %v)", cfg.ShutdownTimeout),
		})
	}

	for _, kv := range cfg.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("must be KEY=VALUE (got %q)", kv),
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// The dashboard owns the terminal
	if cfg.TUIEnabled && cfg.OutputDir == "" && len(cfg.Sources) > 0 {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui requires -output-dir so run output does not corrupt the dashboard",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
