package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/orneryd/papergraph/pkg/papergraph"
	"github.com/orneryd/papergraph/pkg/papers"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine sentinel errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, papergraph.ErrInvalidParameter):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, papergraph.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPapers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	all := s.papers.All()
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"papers": all[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleSearchPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	results := s.papers.Search(q, limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.papers.Get(id)
	if err != nil {
		if errors.Is(err, papers.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "paper not found")
			return
		}
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSimilarPapers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := queryInt(r, "limit", s.defaults.DefaultTopK)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	minScore, err := queryFloat(r, "min_score", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "min_score must be a number")
		return
	}

	similar, err := s.engine.SimilarPapers(r.Context(), id, limit, minScore)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"paper_id":       id,
		"similar_papers": similar,
		"total":          len(similar),
	})
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	topK, err := queryInt(r, "top_k", s.defaults.DefaultTopK)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "top_k must be an integer")
		return
	}

	net, err := s.engine.Network(r.Context(), id, topK)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, net)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryFloat(r, "threshold", s.defaults.DefaultThreshold)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "threshold must be a number")
		return
	}
	maxEdges, err := queryInt(r, "max_edges", s.defaults.DefaultMaxEdges)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "max_edges must be an integer")
		return
	}
	sampleSize, err := queryInt(r, "sample_size", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "sample_size must be an integer")
		return
	}

	g, err := s.engine.BuildGraph(r.Context(), papergraph.GraphParams{
		Threshold:    threshold,
		MaxEdges:     maxEdges,
		SampleSize:   sampleSize,
		SubjectAreas: r.URL.Query()["subject_area"],
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	k, err := queryInt(r, "k", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "k must be an integer")
		return
	}
	if k == 0 {
		s.writeError(w, http.StatusBadRequest, "k is required")
		return
	}

	part, err := s.engine.Partition(r.Context(), k)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"k":        k,
		"clusters": part,
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	sampleSize, err := queryInt(r, "sample_size", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "sample_size must be an integer")
		return
	}

	m, err := s.engine.SimilarityMap(r.Context(), papergraph.MapParams{
		SampleSize:   sampleSize,
		SubjectAreas: r.URL.Query()["subject_area"],
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Project(r.Context(), nil)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ClearCache()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cleared": n,
	})
}
