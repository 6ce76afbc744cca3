package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/genqa/internal/engine"
	"github.com/dgallion1/genqa/internal/metrics"
	"github.com/dgallion1/genqa/internal/pipeline"
)

func testServer(t *testing.T, token string) (*Server, *pipeline.Progress, *engine.LlamaClient) {
	t.Helper()
	progress := pipeline.NewProgress("run-7", 2)
	llm := engine.NewLlamaClient("http://127.0.0.1:1", "test-model", "", 0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(progress, llm, metrics.New(), token, log), progress, llm
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := testServer(t, "secret")
	rec := get(t, srv, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Progress(t *testing.T) {
	srv, progress, _ := testServer(t, "")
	progress.StartDocument("docs/a.pdf")
	progress.ChunkDone(pipeline.ChunkResult{State: pipeline.StateSkipped, Reason: pipeline.ReasonEngineFailure}, 4)

	rec := get(t, srv, "/api/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, 2, got.DocumentsTotal)
	assert.Equal(t, "docs/a.pdf", got.CurrentDocument)
	assert.Equal(t, 1, got.CurrentChunk)
	assert.Equal(t, 4, got.CurrentChunks)
	assert.Equal(t, 1, got.ChunksSkipped[pipeline.ReasonEngineFailure])
}

func TestServer_LLMStats(t *testing.T) {
	srv, _, llm := testServer(t, "")
	llm.Stats.Record(120, false, false)
	llm.Stats.Record(80, true, false)

	rec := get(t, srv, "/api/stats/llm", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Model string               `json:"model"`
		Stats engine.StatsSnapshot `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 2, got.Stats.Calls)
	assert.Equal(t, 1, got.Stats.Truncated)
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _ := testServer(t, "")
	srv.metrics.Document("written")

	rec := get(t, srv, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `genqa_documents_total{outcome="written"} 1`)
}

func TestServer_TokenRequired(t *testing.T) {
	srv, _, _ := testServer(t, "secret")

	for _, path := range []string{"/api/progress", "/api/stats/llm", "/metrics"} {
		assert.Equal(t, http.StatusUnauthorized, get(t, srv, path, "").Code, path)
		assert.Equal(t, http.StatusUnauthorized, get(t, srv, path, "wrong").Code, path)
		assert.Equal(t, http.StatusOK, get(t, srv, path, "secret").Code, path)
	}
}
