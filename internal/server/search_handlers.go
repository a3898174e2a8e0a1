package server

import (
	"net/http"
	"strconv"

	"veille/internal/search"
)

// handleSearch handles GET /api/v1/search, proxying full-text queries to
// the search index. The index result is returned as-is so clients see
// hit counts and processing time.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	query := search.Query{
		Text:   q,
		Limit:  int64(clampLimit(queryInt(r, "limit", 20))),
		Offset: int64(queryInt(r, "offset", 0)),
		Lang:   r.URL.Query().Get("lang"),
	}
	if v := r.URL.Query().Get("source_id"); v != "" {
		sourceID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid source_id")
			return
		}
		query.SourceID = sourceID
	}

	result, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.log.Error("Search request failed", "query", q, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}
