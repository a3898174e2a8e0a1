package watch

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"veille/internal/core"
)

func TestModelInit(t *testing.T) {
	messages := make(chan string)
	m := NewModel(messages, func() tea.Msg { return recentLoaded{} })

	if cmd := m.Init(); cmd == nil {
		t.Fatal("Init should return a command")
	}
}

func TestModelInitWithoutInputs(t *testing.T) {
	m := NewModel(nil, nil)
	if cmd := m.Init(); cmd != nil {
		t.Error("Init should return nil without a channel or loader")
	}
}

func TestListenForEvents(t *testing.T) {
	messages := make(chan string, 3)
	messages <- "not json"
	messages <- `{"event_id":71,"cluster_id":7,"severity":"high","label":"Trending: 12 articles/h","score":18.5,"detected_at":"2026-03-14T12:00:00Z"}`

	cmd := listenForEvents(messages)
	msg := cmd()

	event, ok := msg.(busEvent)
	if !ok {
		t.Fatalf("Expected a busEvent, got %T", msg)
	}
	if event.message.EventID != 71 {
		t.Errorf("Expected event 71, got %d", event.message.EventID)
	}
	if event.message.Severity != "high" {
		t.Errorf("Expected severity high, got %q", event.message.Severity)
	}
}

func TestListenForEvents_ChannelClosed(t *testing.T) {
	messages := make(chan string)
	close(messages)

	msg := listenForEvents(messages)()
	if _, ok := msg.(streamClosed); !ok {
		t.Fatalf("Expected streamClosed, got %T", msg)
	}
}

func TestModelSeedsFromRecent(t *testing.T) {
	detected := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	m := NewModel(nil, nil)

	model, _ := m.Update(recentLoaded{events: []core.Event{
		{ID: 71, ClusterID: 7, Severity: core.SeverityMedium, Label: "Trending: 10 articles/h", Score: 16, DetectedAt: detected},
		{ID: 70, ClusterID: 4, Severity: core.SeverityLow, Label: "Trending: 4 articles/h", Score: 5, DetectedAt: detected.Add(-time.Hour)},
	}})
	updated := model.(Model)

	if len(updated.rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(updated.rows))
	}
	first := updated.rows[0]
	if first.EventID != 71 || first.ClusterID != 7 {
		t.Errorf("Unexpected first row: %+v", first)
	}
	if first.Live {
		t.Error("Seeded rows should not be marked live")
	}
	if !first.DetectedAt.Equal(detected) {
		t.Errorf("Expected detected_at %s, got %s", detected, first.DetectedAt)
	}
}

func TestModelSeedError(t *testing.T) {
	m := NewModel(nil, nil)

	model, _ := m.Update(recentLoaded{err: errors.New("connection refused")})
	updated := model.(Model)

	if updated.err == nil {
		t.Fatal("Expected the load error to be kept")
	}
	if !strings.Contains(updated.View(), "Failed to load recent events") {
		t.Error("Expected the view to surface the load error")
	}
}

func TestModelLiveEventPrepends(t *testing.T) {
	messages := make(chan string, 1)
	m := NewModel(messages, nil)
	m.rows = []row{{EventID: 70, Label: "older"}}

	model, cmd := m.Update(busEvent{message: core.EventMessage{
		EventID:    71,
		ClusterID:  7,
		Severity:   "critical",
		Label:      "Trending: 31 articles/h",
		Score:      33,
		DetectedAt: "2026-03-14T12:00:00Z",
	}})
	updated := model.(Model)

	if len(updated.rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(updated.rows))
	}
	first := updated.rows[0]
	if first.EventID != 71 || !first.Live {
		t.Errorf("Expected the live event first, got %+v", first)
	}
	if first.Severity != core.SeverityCritical {
		t.Errorf("Expected severity critical, got %q", first.Severity)
	}
	want := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if !first.DetectedAt.Equal(want) {
		t.Errorf("Expected detected_at %s, got %s", want, first.DetectedAt)
	}
	if cmd == nil {
		t.Error("Expected the model to keep listening after a live event")
	}
}

func TestModelCapsScrollback(t *testing.T) {
	m := NewModel(nil, nil)
	m.rows = make([]row, maxEvents)
	for i := range m.rows {
		m.rows[i] = row{EventID: int64(i)}
	}

	model, _ := m.Update(busEvent{message: core.EventMessage{EventID: 9999, DetectedAt: "2026-03-14T12:00:00Z"}})
	updated := model.(Model)

	if len(updated.rows) != maxEvents {
		t.Fatalf("Expected scrollback capped at %d, got %d", maxEvents, len(updated.rows))
	}
	if updated.rows[0].EventID != 9999 {
		t.Errorf("Expected the newest event first, got %d", updated.rows[0].EventID)
	}
}

func TestModelNavigation(t *testing.T) {
	m := NewModel(nil, nil)
	m.rows = []row{{EventID: 1}, {EventID: 2}, {EventID: 3}}

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	updated := model.(Model)
	if updated.cursor != 1 {
		t.Errorf("j should move cursor to 1, got %d", updated.cursor)
	}

	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	updated = model.(Model)
	if updated.cursor != 0 {
		t.Errorf("k should move cursor back to 0, got %d", updated.cursor)
	}

	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	updated = model.(Model)
	if updated.cursor != 0 {
		t.Errorf("k at the top should keep cursor at 0, got %d", updated.cursor)
	}

	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyDown})
	updated = model.(Model)
	if updated.cursor != 1 {
		t.Errorf("down arrow should move cursor to 1, got %d", updated.cursor)
	}
}

func TestModelQuit(t *testing.T) {
	m := NewModel(nil, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q should quit, got %T", cmd())
	}
}

func TestModelStreamClosed(t *testing.T) {
	m := NewModel(nil, nil)

	model, _ := m.Update(streamClosed{})
	updated := model.(Model)

	if !updated.closed {
		t.Fatal("Expected the closed flag to be set")
	}
	if !strings.Contains(updated.View(), "stream closed") {
		t.Error("Expected the view to show the closed stream")
	}
}

func TestViewShowsEvents(t *testing.T) {
	m := NewModel(nil, nil)

	if view := m.View(); !strings.Contains(view, "Waiting for events") {
		t.Error("Expected the empty state in the view")
	}

	m.rows = []row{{
		EventID:    71,
		ClusterID:  7,
		Severity:   core.SeverityHigh,
		Label:      "Trending: 18 articles/h",
		Score:      21.5,
		DetectedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}}

	view := m.View()
	if !strings.Contains(view, "Trending: 18 articles/h") {
		t.Error("Expected the event label in the view")
	}
	if !strings.Contains(view, "cluster 7") {
		t.Error("Expected the cluster reference in the view")
	}
	if !strings.Contains(view, "1 events · stream live") {
		t.Error("Expected the status bar in the view")
	}
}
