package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docchunk/internal/doctree"
	"github.com/dgallion1/docchunk/internal/store"
)

// outlineNode is the nested form of a section used by the structure endpoint.
type outlineNode struct {
	Title      string        `json:"title"`
	Level      int           `json:"level"`
	StartPage  int           `json:"start_page"`
	EndPage    int           `json:"end_page"`
	Confidence float64       `json:"confidence"`
	Children   []outlineNode `json:"children"`
}

func buildOutline(st *doctree.Structure, secs []doctree.Section) []outlineNode {
	out := make([]outlineNode, 0, len(secs))
	for _, sec := range secs {
		out = append(out, outlineNode{
			Title:      sec.Title,
			Level:      sec.Level,
			StartPage:  sec.StartPage,
			EndPage:    sec.EndPage,
			Confidence: sec.Confidence,
			Children:   buildOutline(st, st.ChildSections(sec.ID)),
		})
	}
	return out
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	docs, err := s.store.ListDocuments(r.Context(), limit, offset)
	if err != nil {
		s.log.Error("list documents", "error", err)
		jsonError(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookupDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetStructure(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookupDocument(w, r)
	if !ok {
		return
	}
	st := doc.Structure
	if st == nil {
		st = &doctree.Structure{
			Sections:        []doctree.Section{},
			Roots:           []doctree.SectionID{},
			HeadingPatterns: []string{},
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"title":       doc.Title,
		"structure":   st,
		"outline":     buildOutline(st, st.RootSections()),
	})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookupDocument(w, r)
	if !ok {
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("list chunks", "doc_id", doc.ID, "error", err)
		jsonError(w, "failed to list chunks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"chunks":      chunks,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	err := s.store.DeleteDocument(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("delete document", "doc_id", docID, "error", err)
		jsonError(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	s.log.Info("document deleted", "doc_id", docID)
	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "deleted": true})
}

func (s *Server) lookupDocument(w http.ResponseWriter, r *http.Request) (store.DocumentRecord, bool) {
	docID := chi.URLParam(r, "docID")
	doc, err := s.store.GetDocument(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return store.DocumentRecord{}, false
	}
	if err != nil {
		s.log.Error("get document", "doc_id", docID, "error", err)
		jsonError(w, "failed to load document", http.StatusInternalServerError)
		return store.DocumentRecord{}, false
	}
	return doc, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
