package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// apiVersion is reported by the status endpoint.
const apiVersion = "v0.1.0"

var serverStartTime = time.Now()

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse reports per-component health for the status endpoint.
type StatusResponse struct {
	Status  string            `json:"status"` // ok or degraded
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleStatus handles GET /api/status. Unlike the liveness probe it
// always answers 200; consumers read the per-component checks.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string)
	status := "ok"

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = "error"
		status = "degraded"
	} else {
		checks["database"] = "ok"
	}

	if err := s.bus.Ping(ctx); err != nil {
		checks["redis"] = "error"
		status = "degraded"
	} else {
		checks["redis"] = "ok"
	}

	if s.search.Healthy(ctx) {
		checks["search"] = "ok"
	} else {
		checks["search"] = "error"
		status = "degraded"
	}

	s.respondJSON(w, http.StatusOK, StatusResponse{
		Status:  status,
		Version: apiVersion,
		Uptime:  time.Since(serverStartTime).String(),
		Checks:  checks,
	})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"status":  status,
			"message": message,
		},
	})
}

// queryInt reads one non-negative integer query parameter, falling back
// to def on absence or garbage.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// clampLimit bounds a page size to 1..100.
func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}
