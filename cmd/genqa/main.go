// Package main provides the genqa command, which turns documents into
// grounded question/answer records using a local llama.cpp engine.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// Version is set at build time.
	Version = "0.1.0"
	// BuildTime is set at build time.
	BuildTime = "unknown"

	appName = "genqa"
)

// errCancelled is returned when a run stops on SIGINT/SIGTERM.
var errCancelled = errors.New("run cancelled")

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", buf[:n])
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		if errors.Is(err, errCancelled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Generate question/answer pairs from documents",
		Long: `genqa converts PDF, DOCX, HTML, CSV, Markdown and text files to Markdown,
splits them into token-bounded chunks and asks a local llama.cpp engine for
question/answer pairs grounded in each chunk. Results are written as one
JSON record per document and can be collected into a single CSV.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "json", "Log format (json, text)")

	cmd.SetGlobalNormalizationFunc(underscoreToDash)

	cmd.AddCommand(extractCmd(&g))
	cmd.AddCommand(collectCmd(&g))
	cmd.AddCommand(versionCmd())

	return cmd
}

// underscoreToDash lets option names like --n_ctx and --max_questions work
// alongside their dashed forms.
func underscoreToDash(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// newLogger builds the process logger. Logs always go to stderr so stdout
// stays free for the run summary.
func newLogger(g *globalFlags) (*slog.Logger, error) {
	level, err := parseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(g.logFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", g.logFormat)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log, nil
}
