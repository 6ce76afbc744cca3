package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dgallion1/genqa/internal/api"
	"github.com/dgallion1/genqa/internal/chunker"
	"github.com/dgallion1/genqa/internal/config"
	"github.com/dgallion1/genqa/internal/convert"
	"github.com/dgallion1/genqa/internal/engine"
	"github.com/dgallion1/genqa/internal/metrics"
	"github.com/dgallion1/genqa/internal/pipeline"
	"github.com/dgallion1/genqa/internal/record"
)

// extractFlags mirrors the config fields that can be set on the command line.
// Only flags the user actually set override the loaded config.
type extractFlags struct {
	engineURL       string
	model           string
	temperature     float64
	nctx            int
	chunkSize       int
	maxQuestions    int
	maxOutputTokens int
	outputDir       string
	overwrite       bool
	estimateTokens  bool
	noPdftotext     bool
	statusAddr      string
	statusToken     string
	noMetrics       bool
}

func extractCmd(g *globalFlags) *cobra.Command {
	var f extractFlags
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "extract [files, directories or globs...]",
		Short: "Generate a QA record for each input document",
		Example: `  genqa extract report.pdf notes.md
  genqa extract 'docs/**/*.pdf' --output-dir qa_result --max-questions 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(g)
			if err != nil {
				return err
			}
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd.Flags(), &cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			paths, err := expandInputs(args)
			if err != nil {
				return err
			}
			return runExtract(cmd, cfg, paths, log)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.engineURL, "engine-url", def.EngineURL, "Base URL of the llama.cpp server")
	fs.StringVar(&f.model, "model", def.EngineModel, "Model name sent to the engine")
	fs.Float64Var(&f.temperature, "temperature", def.Temperature, "Initial sampling temperature")
	fs.IntVar(&f.nctx, "n-ctx", def.NCtx, "Engine context window in tokens")
	fs.IntVar(&f.chunkSize, "chunk-size", def.ChunkSize, "Maximum chunk size in tokens")
	fs.IntVar(&f.maxQuestions, "max-questions", def.MaxQuestions, "Maximum QA pairs per chunk")
	fs.IntVar(&f.maxOutputTokens, "max-output-tokens", def.MaxOutputTokens, "Output token budget per generation")
	fs.StringVarP(&f.outputDir, "output-dir", "o", def.OutputDir, "Directory for *_qa.json records")
	fs.BoolVar(&f.overwrite, "overwrite", def.Overwrite, "Replace existing records and ignore checkpoints")
	fs.BoolVar(&f.estimateTokens, "estimate-tokens", def.EstimateTokens, "Estimate token counts locally instead of asking the engine")
	fs.BoolVar(&f.noPdftotext, "no-pdftotext", false, "Do not fall back to pdftotext for PDFs")
	fs.StringVar(&f.statusAddr, "status-addr", def.StatusAddr, "Serve progress and metrics on this address (e.g. :9090)")
	fs.StringVar(&f.statusToken, "status-token", def.StatusToken, "Bearer token required by the status API")
	fs.BoolVar(&f.noMetrics, "no-metrics", false, "Disable Prometheus metrics")

	return cmd
}

func (f *extractFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("engine-url") {
		cfg.EngineURL = f.engineURL
	}
	if fs.Changed("model") {
		cfg.EngineModel = f.model
	}
	if fs.Changed("temperature") {
		cfg.Temperature = f.temperature
	}
	if fs.Changed("n-ctx") {
		cfg.NCtx = f.nctx
	}
	if fs.Changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if fs.Changed("max-questions") {
		cfg.MaxQuestions = f.maxQuestions
	}
	if fs.Changed("max-output-tokens") {
		cfg.MaxOutputTokens = f.maxOutputTokens
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if fs.Changed("overwrite") {
		cfg.Overwrite = f.overwrite
	}
	if fs.Changed("estimate-tokens") {
		cfg.EstimateTokens = f.estimateTokens
	}
	if fs.Changed("no-pdftotext") {
		cfg.PDFFallbackPdftotext = !f.noPdftotext
	}
	if fs.Changed("status-addr") {
		cfg.StatusAddr = f.statusAddr
	}
	if fs.Changed("status-token") {
		cfg.StatusToken = f.statusToken
	}
	if fs.Changed("no-metrics") {
		cfg.Metrics = !f.noMetrics
	}
}

// tokenCounter measures chunks with the engine's tokenizer unless local
// estimation was requested.
func tokenCounter(cfg config.Config, tok engine.Tokenizer) chunker.Counter {
	if cfg.EstimateTokens || tok == nil {
		return chunker.EstimateCounter{}
	}
	return tok
}

func runExtract(cmd *cobra.Command, cfg config.Config, paths []string, log *slog.Logger) error {
	runID := uuid.NewString()
	log = log.With("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer, err := record.NewWriter(cfg.OutputDir)
	if err != nil {
		return err
	}

	llm := engine.NewLlamaClient(cfg.EngineURL, cfg.EngineModel, cfg.EngineAPIKey, cfg.EngineTimeout)
	defer llm.Close()

	counter := tokenCounter(cfg, llm)

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	conv := convert.NewFileConverter(convert.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	orch := pipeline.NewOrchestrator(conv, chunker.New(counter), llm, log, m)
	progress := pipeline.NewProgress(runID, len(paths))
	runner := pipeline.NewRunner(orch, writer, progress, pipeline.Options{
		MaxQuestions:    cfg.MaxQuestions,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Budget:          cfg.TokenBudget(),
	}, cfg.Overwrite, log, m)

	var httpServer *http.Server
	if cfg.StatusAddr != "" {
		httpServer = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      api.NewServer(progress, llm, m, cfg.StatusToken, log),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info("status server listening", "addr", cfg.StatusAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server error", "error", err)
			}
		}()
	}

	log.Info("starting genqa",
		"documents", len(paths),
		"engine", cfg.EngineURL,
		"model", cfg.EngineModel,
		"token_budget", cfg.TokenBudget(),
		"output_dir", writer.Dir())

	summary := runner.Run(ctx, paths)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown", "error", err)
		}
	}

	if err := summary.WriteText(cmd.OutOrStdout()); err != nil {
		fmt.Fprintf(os.Stderr, "write summary: %v\n", err)
	}
	if summary.Cancelled {
		return errCancelled
	}
	return nil
}
