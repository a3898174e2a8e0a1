package server

import (
	"net/http"
	"time"

	"veille/internal/bus"
	"veille/internal/core"
	"veille/internal/stream"
)

// eventsLookback bounds the recent events listing.
const eventsLookback = 24 * time.Hour

// EventsListResponse is the recent events payload, newest first.
type EventsListResponse struct {
	Events []core.Event `json:"events"`
	Total  int          `json:"total"`
}

// handleListEvents handles GET /api/v1/events
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(queryInt(r, "limit", 50))
	since := time.Now().UTC().Add(-eventsLookback)

	events, err := s.db.Events().ListRecent(r.Context(), since, limit)
	if err != nil {
		s.log.Error("Failed to list events", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}
	if events == nil {
		events = []core.Event{}
	}

	s.respondJSON(w, http.StatusOK, EventsListResponse{
		Events: events,
		Total:  len(events),
	})
}

// handleEventStream handles GET /api/v1/events/stream, holding the
// connection open and forwarding bus messages as server-sent events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.bus.Subscribe(r.Context(), bus.EventsChannel)
	if err != nil {
		s.log.Error("Failed to subscribe to event channel", "error", err)
		s.respondError(w, http.StatusServiceUnavailable, "Event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := stream.NewSession(sub).Serve(r.Context(), w); err != nil {
		s.log.Warn("Event stream session ended", "error", err)
	}
}
