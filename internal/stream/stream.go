// Package stream serves bus messages to HTTP clients as server-sent
// events. Each session owns one bus subscription; there is no replay and
// no delivery guarantee beyond the lifetime of the connection.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"veille/internal/bus"
	"veille/internal/logger"
)

// pollInterval keeps the session loop turning between messages so a dead
// connection never lingers for more than a second past cancellation.
const pollInterval = time.Second

// writeEvent frames one SSE event.
func writeEvent(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// Session forwards one subscription to one client.
type Session struct {
	messages    <-chan string
	unsubscribe func() error
	interval    time.Duration
	log         *slog.Logger
}

// NewSession wraps a live subscription. The session takes ownership and
// closes it when Serve returns.
func NewSession(sub *bus.Subscription) *Session {
	return &Session{
		messages:    sub.Messages(),
		unsubscribe: sub.Close,
		interval:    pollInterval,
		log:         logger.With("stream"),
	}
}

// Serve writes the connected handshake, then forwards every published
// message verbatim as a new_event until ctx is cancelled or the
// subscription dies. The writer is flushed after each event when it
// supports flushing.
func (s *Session) Serve(ctx context.Context, w io.Writer) error {
	defer s.unsubscribe()

	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	handshake, err := json.Marshal(map[string]string{
		"message":   "Connected to event stream",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal handshake: %w", err)
	}
	if err := writeEvent(w, "connected", string(handshake)); err != nil {
		return err
	}
	flush()
	s.log.Info("Client connected to event stream")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Client disconnected from event stream")
			return nil
		case payload, ok := <-s.messages:
			if !ok {
				writeEvent(w, "error", `{"error": "subscription closed"}`)
				flush()
				return fmt.Errorf("subscription closed")
			}
			if err := writeEvent(w, "new_event", payload); err != nil {
				return err
			}
			flush()
		case <-ticker.C:
			// Nothing to forward; loop to re-check the context.
		}
	}
}
