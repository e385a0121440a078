// Package api serves the HTTP interface: document upload, job status,
// stored structure and chunks, and similarity search.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docchunk/internal/config"
	"github.com/dgallion1/docchunk/internal/embed"
	"github.com/dgallion1/docchunk/internal/metrics"
	"github.com/dgallion1/docchunk/internal/pipeline"
	"github.com/dgallion1/docchunk/internal/store"
)

// Deps are the collaborators of the server. Embedder and EmbedStats are nil
// when embeddings are disabled.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Store        *store.Store
	Embedder     embed.Embedder
	EmbedStats   *embed.Stats
	Metrics      *metrics.Metrics
	Log          *slog.Logger
	Config       config.Config
}

// Server is the HTTP API server for docchunk.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *store.Store
	embedder     embed.Embedder
	stats        *embed.Stats
	metrics      *metrics.Metrics
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(d Deps) *Server {
	s := &Server{
		orchestrator: d.Orchestrator,
		store:        d.Store,
		embedder:     d.Embedder,
		stats:        d.EmbedStats,
		metrics:      d.Metrics,
		log:          d.Log,
		cfg:          d.Config,
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
	r.Handle("/metrics", s.metrics.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleUpload)
		r.Post("/api/documents/batch", s.handleBatchUpload)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{docID}", s.handleGetDocument)
		r.Get("/api/documents/{docID}/structure", s.handleGetStructure)
		r.Get("/api/documents/{docID}/chunks", s.handleListChunks)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)

		r.Post("/api/search", s.handleSearch)
		r.Get("/api/stats/embedding", s.handleEmbeddingStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		jsonError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"embeddings":  s.embedder != nil,
	})
}
