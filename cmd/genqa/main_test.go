package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/genqa/internal/chunker"
	"github.com/dgallion1/genqa/internal/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.pdf", "sub/c.pdf", "notes.md", "image.png", "tree/x.txt", "tree/deep/y.html"} {
		touch(t, filepath.Join(dir, name))
	}

	got, err := expandInputs([]string{
		filepath.Join(dir, "notes.md"),
		filepath.Join(dir, "**", "*.pdf"),
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "tree"),
		filepath.Join(dir, "missing.docx"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "notes.md"),
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "sub", "c.pdf"),
		filepath.Join(dir, "tree", "deep", "y.html"),
		filepath.Join(dir, "tree", "x.txt"),
		filepath.Join(dir, "missing.docx"),
	}, got)
}

func TestExpandInputs_SkipsUnsupportedGlobMatches(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "b.txt"))

	got, err := expandInputs([]string{filepath.Join(dir, "*")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.txt")}, got)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestExtractFlags_OnlyChangedFlagsOverride(t *testing.T) {
	var g globalFlags
	cmd := extractCmd(&g)
	require.NoError(t, cmd.Flags().Parse([]string{"--max-questions", "5", "--no-pdftotext", "-o", "out"}))

	cfg := config.Default()
	cfg.Temperature = 0.3
	var f extractFlags
	f.maxQuestions = 5
	f.noPdftotext = true
	f.outputDir = "out"
	f.apply(cmd.Flags(), &cfg)

	assert.Equal(t, 5, cfg.MaxQuestions)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.False(t, cfg.PDFFallbackPdftotext)
	assert.Equal(t, 0.3, cfg.Temperature, "unset flag keeps the loaded value")
	assert.True(t, cfg.Metrics)
}

type fixedTokenizer int

func (f fixedTokenizer) CountTokens(context.Context, string) (int, error) { return int(f), nil }

func TestTokenCounter(t *testing.T) {
	cfg := config.Default()

	c := tokenCounter(cfg, fixedTokenizer(42))
	n, err := c.CountTokens(context.Background(), "two words")
	require.NoError(t, err)
	assert.Equal(t, 42, n, "engine tokenizer is used by default")

	cfg.EstimateTokens = true
	c = tokenCounter(cfg, fixedTokenizer(42))
	assert.IsType(t, chunker.EstimateCounter{}, c)

	cfg.EstimateTokens = false
	assert.IsType(t, chunker.EstimateCounter{}, tokenCounter(cfg, nil))
}

func TestExtract_UnderscoreFlagNames(t *testing.T) {
	var g globalFlags
	cmd := extractCmd(&g)
	cmd.SetGlobalNormalizationFunc(underscoreToDash)
	require.NoError(t, cmd.ParseFlags([]string{"--n_ctx", "8192", "--max_questions", "4", "--output_dir", "out", "--chunk_size", "1000"}))

	cfg := config.Default()
	var f extractFlags
	f.nctx, f.maxQuestions, f.outputDir, f.chunkSize = 8192, 4, "out", 1000
	f.apply(cmd.Flags(), &cfg)

	assert.Equal(t, 8192, cfg.NCtx)
	assert.Equal(t, 4, cfg.MaxQuestions)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 1000, cfg.ChunkSize)
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "genqa version "+Version)
}

func TestExtract_InvalidConfigFails(t *testing.T) {
	for _, nctx := range []string{"--n-ctx", "--n_ctx"} {
		cmd := rootCmd()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"extract", nctx, "100", "--log_level", "error", "whatever.md"})
		err := cmd.Execute()
		require.Error(t, err, nctx)
		assert.Contains(t, err.Error(), "invalid configuration", nctx)
	}
}

func TestCollectCommand(t *testing.T) {
	in := t.TempDir()
	record := `{"source_filepath":"a.pdf","markdown_text":"m","chunks":[{"chunk_text":"c","qa_pairs":[{"question":"Q","answer":"A","supporting_quotes":["s"]}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(in, "a_qa.json"), []byte(record), 0o644))
	outPath := filepath.Join(t.TempDir(), "all.csv")

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"collect", "--log-level", "error", in, outPath})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Wrote 1 rows from 1 records")
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a.pdf")
}

func TestCollectCommand_MissingDir(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	outPath := filepath.Join(t.TempDir(), "all.csv")
	cmd.SetArgs([]string{"collect", "--log-level", "error", filepath.Join(t.TempDir(), "nope"), outPath})
	assert.Error(t, cmd.Execute())
	assert.NoFileExists(t, outPath)
}
