package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

const maxTopK = 100

type searchRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
	Filename string `json:"filename,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		jsonError(w, "embeddings are disabled", http.StatusServiceUnavailable)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	req.TopK = min(req.TopK, maxTopK)

	vecs, err := s.embedder.Embed(r.Context(), []string{req.Query})
	if err != nil || len(vecs) != 1 {
		s.log.Error("embed query", "error", err)
		jsonError(w, "failed to embed query", http.StatusBadGateway)
		return
	}

	results, err := s.store.Search(r.Context(), vecs[0], req.TopK, req.Filename)
	if err != nil {
		s.log.Error("search", "error", err)
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
	})
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil || s.stats == nil {
		jsonError(w, "embedding stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.embedder.Model(),
		"stats": s.stats.Snapshot(),
	})
}
