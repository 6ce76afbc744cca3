package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesCLIDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.0, cfg.Temperature)
	assert.Equal(t, 16384, cfg.NCtx)
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 3, cfg.MaxQuestions)
	assert.False(t, cfg.Overwrite)
	require.NoError(t, cfg.Validate())
}

func TestTokenBudget(t *testing.T) {
	tests := []struct {
		name      string
		nctx      int
		chunkSize int
		reserve   int
		output    int
		want      int
	}{
		{"chunk size is smaller", 16384, 4096, 512, 2048, 4096},
		{"context is the limit", 4096, 4096, 512, 2048, 1536},
		{"no room", 2048, 4096, 512, 2048, -512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.NCtx = tt.nctx
			cfg.ChunkSize = tt.chunkSize
			cfg.ReserveInstructionTokens = tt.reserve
			cfg.MaxOutputTokens = tt.output
			assert.Equal(t, tt.want, cfg.TokenBudget())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }},
		{"zero max questions", func(c *Config) { c.MaxQuestions = 0 }},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"zero n_ctx", func(c *Config) { c.NCtx = 0 }},
		{"budget exhausted", func(c *Config) { c.NCtx = 1024 }},
		{"missing engine", func(c *Config) { c.EngineURL = "" }},
		{"missing output dir", func(c *Config) { c.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genqa.yaml")
	err := os.WriteFile(path, []byte(`
engine_url: http://gpu-box:8080
n_ctx: 8192
max_questions: 5
engine_timeout: 90s
`), 0o644)
	require.NoError(t, err)

	t.Setenv("GENQA_MAX_QUESTIONS", "2")
	t.Setenv("GENQA_TEMPERATURE", "0.3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:8080", cfg.EngineURL)
	assert.Equal(t, 8192, cfg.NCtx)
	assert.Equal(t, 2, cfg.MaxQuestions, "env overrides file")
	assert.Equal(t, 0.3, cfg.Temperature)
	assert.Equal(t, 90*time.Second, cfg.EngineTimeout)
	assert.Equal(t, 4096, cfg.ChunkSize, "unset keys keep defaults")
}

func TestLoad_BadEnvIgnored(t *testing.T) {
	t.Setenv("GENQA_N_CTX", "lots")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16384, cfg.NCtx)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
