package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/genqa/internal/engine"
	"github.com/dgallion1/genqa/internal/metrics"
	"github.com/dgallion1/genqa/internal/pipeline"
)

// Server is the read-only status API for a running batch.
type Server struct {
	router   chi.Router
	progress *pipeline.Progress
	llm      *engine.LlamaClient
	metrics  *metrics.Metrics
	token    string
	log      *slog.Logger
}

// NewServer creates and configures the HTTP server. An empty token leaves
// the API endpoints open.
func NewServer(progress *pipeline.Progress, llm *engine.LlamaClient, m *metrics.Metrics, token string, log *slog.Logger) *Server {
	s := &Server{
		progress: progress,
		llm:      llm,
		metrics:  m,
		token:    token,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.token != "" {
			r.Use(AuthMiddleware(s.token, s.log))
		}

		r.Get("/api/progress", s.handleProgress)
		r.Get("/api/stats/llm", s.handleLLMStats)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
