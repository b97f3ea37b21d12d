// Package main provides the snippet-exec CLI entry point.
//
// snippet-exec compiles and runs Java snippets as supervised external
// processes: every snippet gets a watchdog, can be cancelled mid-flight,
// and ends in a classified SUCCESS / ERROR / INCOMPLETE result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/randomizedcoder/go-snippet-exec/internal/config"
	"github.com/randomizedcoder/go-snippet-exec/internal/java"
	"github.com/randomizedcoder/go-snippet-exec/internal/logging"
	"github.com/randomizedcoder/go-snippet-exec/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/snippet-exec
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("snippet-exec %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	// Initialize logger
	// When TUI is enabled, logs go to a file in the output dir so they do
	// not interfere with TUI rendering
	logger, closeLog := newLogger(cfg)
	defer closeLog()
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 2
	}

	orch := orchestrator.New(cfg, logger, version)

	// Handle -print-script mode
	if cfg.PrintScript {
		return printScript(cfg, orch)
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"snippets", len(cfg.Sources),
		"code_folder", cfg.CodeFolder,
		"libraries_folder", cfg.LibrariesFolder,
		"timeout", cfg.Timeout.String(),
		"max_concurrent", cfg.MaxConcurrent,
		"metrics_addr", cfg.MetricsAddr,
		"config_file", cfg.ConfigFile,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	if err := orch.Run(context.Background()); err != nil {
		if errors.Is(err, orchestrator.ErrUnsuccessful) {
			return 1
		}
		logger.Error("run_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// newLogger builds the process logger. The returned func closes any log
// file that was opened.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	if !cfg.TUIEnabled {
		return logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose), func() {}
	}

	if cfg.OutputDir == "" {
		return logging.NewLoggerWithWriter(io.Discard, "json", "info"), func() {}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return logging.NewLoggerWithWriter(io.Discard, "json", "info"), func() {}
	}
	f, err := os.Create(filepath.Join(cfg.OutputDir, "snippet-exec.log"))
	if err != nil {
		return logging.NewLoggerWithWriter(io.Discard, "json", "info"), func() {}
	}
	return logging.NewLoggerTo(f, cfg.LogFormat, "info", cfg.Verbose), func() { f.Close() }
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                           snippet-exec                            ║")
	fmt.Println("║        Supervised compile-and-run of Java snippets               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Snippets:    %d (at most %d at once)\n", len(cfg.Sources), cfg.MaxConcurrent)
	fmt.Printf("  Code:        %s\n", cfg.CodeFolder)
	if cfg.LibrariesFolder != "" {
		fmt.Printf("  Libraries:   %s\n", cfg.LibrariesFolder)
	}
	fmt.Printf("  Timeout:     %s per run\n", cfg.Timeout)
	if cfg.OutputDir != "" {
		fmt.Printf("  Output:      %s\n", cfg.OutputDir)
	}
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to cancel every run.")
	fmt.Println()
}

// printScript prints the script that would run each source, or a
// placeholder class when none is given.
func printScript(cfg *config.Config, orch *orchestrator.Orchestrator) int {
	interp := orch.Interpreter()
	if err := interp.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if len(cfg.Sources) == 0 {
		fmt.Println("# Script that would be run for a snippet declaring `public class Main`:")
		fmt.Println()
		fmt.Println(interp.Script("Main"))
		return 0
	}

	snippets, err := orchestrator.LoadSnippets(cfg.Sources, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, s := range snippets {
		fmt.Printf("# %s\n", s.Path)
		fmt.Println(interp.Script(java.ClassName(s.Source)))
		fmt.Println()
	}
	return 0
}
