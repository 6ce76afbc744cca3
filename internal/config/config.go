package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Generation engine (OpenAI-compatible llama.cpp server)
	EngineURL     string        `yaml:"engine_url"`
	EngineModel   string        `yaml:"engine_model"`
	EngineAPIKey  string        `yaml:"engine_api_key"`
	EngineTimeout time.Duration `yaml:"engine_timeout"`

	// Generation
	Temperature     float64 `yaml:"temperature"`
	MaxQuestions    int     `yaml:"max_questions"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`

	// Chunking
	NCtx                     int  `yaml:"n_ctx"`
	ChunkSize                int  `yaml:"chunk_size"`
	ReserveInstructionTokens int  `yaml:"reserve_instruction_tokens"`
	EstimateTokens           bool `yaml:"estimate_tokens"`

	// Output
	OutputDir string `yaml:"output_dir"`
	Overwrite bool   `yaml:"overwrite"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`

	// Status server
	StatusAddr  string `yaml:"status_addr"`
	StatusToken string `yaml:"status_token"`
	Metrics     bool   `yaml:"metrics"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		EngineURL:     "http://localhost:8080",
		EngineModel:   "phi-3.1-mini-128k-instruct",
		EngineTimeout: 10 * time.Minute,

		Temperature:     0.0,
		MaxQuestions:    3,
		MaxOutputTokens: 2048,

		NCtx:                     16384,
		ChunkSize:                4096,
		ReserveInstructionTokens: 512,

		OutputDir: "qa_result",

		PDFFallbackPdftotext: true,

		Metrics: true,
	}
}

// Load builds a Config from defaults, an optional YAML file, then GENQA_*
// environment variables. CLI flags are applied by the caller afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.EngineURL = envOr("GENQA_ENGINE_URL", c.EngineURL)
	c.EngineModel = envOr("GENQA_ENGINE_MODEL", c.EngineModel)
	c.EngineAPIKey = envOr("GENQA_ENGINE_API_KEY", c.EngineAPIKey)
	c.EngineTimeout = envDuration("GENQA_ENGINE_TIMEOUT", c.EngineTimeout)

	c.Temperature = envFloat("GENQA_TEMPERATURE", c.Temperature)
	c.MaxQuestions = envInt("GENQA_MAX_QUESTIONS", c.MaxQuestions)
	c.MaxOutputTokens = envInt("GENQA_MAX_OUTPUT_TOKENS", c.MaxOutputTokens)

	c.NCtx = envInt("GENQA_N_CTX", c.NCtx)
	c.ChunkSize = envInt("GENQA_CHUNK_SIZE", c.ChunkSize)
	c.ReserveInstructionTokens = envInt("GENQA_RESERVE_INSTRUCTION_TOKENS", c.ReserveInstructionTokens)
	c.EstimateTokens = envBool("GENQA_ESTIMATE_TOKENS", c.EstimateTokens)

	c.OutputDir = envOr("GENQA_OUTPUT_DIR", c.OutputDir)
	c.Overwrite = envBool("GENQA_OVERWRITE", c.Overwrite)

	c.PDFFallbackPdftotext = envBool("GENQA_PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)

	c.StatusAddr = envOr("GENQA_STATUS_ADDR", c.StatusAddr)
	c.StatusToken = envOr("GENQA_STATUS_TOKEN", c.StatusToken)
	c.Metrics = envBool("GENQA_METRICS", c.Metrics)
}

// TokenBudget is the largest chunk, in engine tokens, that still leaves room
// for the instructions and the expected output inside the context window.
func (c Config) TokenBudget() int {
	budget := c.NCtx - c.ReserveInstructionTokens - c.MaxOutputTokens
	if c.ChunkSize < budget {
		budget = c.ChunkSize
	}
	return budget
}

func (c Config) Validate() error {
	if c.EngineURL == "" {
		return fmt.Errorf("engine_url is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	if c.MaxQuestions <= 0 {
		return fmt.Errorf("max_questions must be positive, got %d", c.MaxQuestions)
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.MaxOutputTokens)
	}
	if c.NCtx <= 0 {
		return fmt.Errorf("n_ctx must be positive, got %d", c.NCtx)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ReserveInstructionTokens < 0 {
		return fmt.Errorf("reserve_instruction_tokens must not be negative, got %d", c.ReserveInstructionTokens)
	}
	if c.TokenBudget() <= 0 {
		return fmt.Errorf("n_ctx %d leaves no room for chunks after %d instruction and %d output tokens",
			c.NCtx, c.ReserveInstructionTokens, c.MaxOutputTokens)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
