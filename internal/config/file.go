package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk property file layout. Keys keep the dotted
// property names hosts already use for the Java interpreter.
type fileConfig struct {
	CodeFolder      string   `yaml:"java.code.folder"`
	LibrariesFolder string   `yaml:"java.libraries.folder"`
	Timeout         string   `yaml:"timeout"`
	KillGrace       string   `yaml:"kill.grace"`
	MaxConcurrent   *int     `yaml:"max.concurrent"`
	MaxCapture      *int     `yaml:"max.capture"`
	OutputDir       string   `yaml:"output.dir"`
	Env             []string `yaml:"env"`
	MetricsAddr     string   `yaml:"metrics.addr"`
	LogFormat       string   `yaml:"log.format"`
}

// LoadFile reads the YAML property file at path and applies every key it
// sets onto cfg. Unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.CodeFolder != "" {
		cfg.CodeFolder = fc.CodeFolder
	}
	if fc.LibrariesFolder != "" {
		cfg.LibrariesFolder = fc.LibrariesFolder
	}
	if fc.Timeout != "" {
		d, err := parseMillisOrDuration(fc.Timeout)
		if err != nil {
			return ValidationError{Field: "timeout", Message: err.Error()}
		}
		cfg.Timeout = d
	}
	if fc.KillGrace != "" {
		d, err := parseMillisOrDuration(fc.KillGrace)
		if err != nil {
			return ValidationError{Field: "kill_grace", Message: err.Error()}
		}
		cfg.KillGrace = d
	}
	if fc.MaxConcurrent != nil {
		cfg.MaxConcurrent = *fc.MaxConcurrent
	}
	if fc.MaxCapture != nil {
		cfg.MaxCapture = *fc.MaxCapture
	}
	if fc.OutputDir != "" {
		cfg.OutputDir = fc.OutputDir
	}
	if len(fc.Env) > 0 {
		cfg.Env = append(cfg.Env, fc.Env...)
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	return nil
}

// parseMillisOrDuration accepts a bare integer as milliseconds ("5000") or a
// Go duration string ("5s").
func parseMillisOrDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
