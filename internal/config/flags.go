package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// envList is a custom flag type for repeatable -env flags.
type envList []string

func (e *envList) String() string {
	return strings.Join(*e, ", ")
}

func (e *envList) Set(value string) error {
	*e = append(*e, value)
	return nil
}

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. When -config names a property file,
// its values replace the defaults and flags given on the command line
// override them.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if path := cfg.ConfigFile; path != "" {
		cfg = DefaultConfig()
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
		// Second pass so explicit flags win over the file.
		fs = newFlagSet(cfg, output)
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	// Positional arguments: snippet files
	cfg.Sources = fs.Args()

	return cfg, nil
}

// newFlagSet binds every flag to cfg.
func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("snippet-exec", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, `snippet-exec - compile and run Java snippets under a supervised watchdog

Usage:
  snippet-exec [flags] <File.java>...
  snippet-exec [flags] -            (read one snippet from stdin)

Java Flags:
`)
		printFlagCategory(fs, []string{"code-folder", "lib-folder", "env", "config"})

		fmt.Fprintf(w, "\nExecution:\n")
		printFlagCategory(fs, []string{"timeout", "kill-grace", "max-concurrent", "max-capture", "shutdown-timeout"})

		fmt.Fprintf(w, "\nOutput:\n")
		printFlagCategory(fs, []string{"output-dir", "tui"})

		fmt.Fprintf(w, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, []string{"print-script", "skip-preflight"})

		fmt.Fprintf(w, "\nObservability:\n")
		printFlagCategory(fs, []string{"metrics", "metrics-dump", "v", "log-format"})

		fmt.Fprintf(w, `
Property File:
  -config reads YAML with the keys java.code.folder, java.libraries.folder,
  timeout, kill.grace, max.concurrent, max.capture, output.dir, env.
  Flags given on the command line override file values.

Examples:
  # Run one snippet
  snippet-exec Hello.java

  # Run several snippets, at most 4 at once, with a 10s watchdog
  snippet-exec -max-concurrent 4 -timeout 10s A.java B.java C.java

  # Show the generated compile-and-run script
  snippet-exec -print-script Hello.java

`)
	}

	// Java
	fs.StringVar(&cfg.CodeFolder, "code-folder", cfg.CodeFolder, "Folder the snippet .java files are written to")
	fs.StringVar(&cfg.LibrariesFolder, "lib-folder", cfg.LibrariesFolder, "Folder of jars added to the javac classpath")
	fs.Var((*envList)(&cfg.Env), "env", "Extra KEY=VALUE environment for runs (can repeat)")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML property file")

	// Execution
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Watchdog duration per run")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "Delay between SIGTERM and SIGKILL on forced termination")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "Maximum runs executing at once")
	fs.IntVar(&cfg.MaxCapture, "max-capture", cfg.MaxCapture, "Bytes of output kept per run for result messages")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "How long to wait for runs after an interrupt")

	// Output
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Write each run's output to <dir>/<paragraph>.out instead of stdout")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show a live terminal dashboard")

	// Safety & Diagnostics
	fs.BoolVar(&cfg.PrintScript, "print-script", cfg.PrintScript, "Print the compile-and-run script and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, `Write final metrics in text format to this file ("-" = stdout)`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	w := fs.Output()
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
