// Package watch is the live event viewer: a terminal UI that seeds
// itself from recently detected events and then follows the bus.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"veille/internal/bus"
	"veille/internal/core"
	"veille/internal/persistence"
)

const (
	// maxEvents bounds the scrollback.
	maxEvents = 100

	// recentLookback seeds the view with events from the last day.
	recentLookback = 24 * time.Hour
)

// recentLoaded carries the seed listing from the database.
type recentLoaded struct {
	events []core.Event
	err    error
}

// busEvent carries one live message from the events channel.
type busEvent struct {
	message core.EventMessage
}

// streamClosed is sent when the subscription dies.
type streamClosed struct{}

// row is one rendered event line.
type row struct {
	EventID    int64
	ClusterID  int64
	Severity   core.Severity
	Label      string
	Score      float64
	DetectedAt time.Time
	Live       bool // arrived over the bus during this session
}

// Model is the Bubble Tea model for the event viewer. It never touches
// the database or the bus directly; rows arrive via messages.
type Model struct {
	messages   <-chan string
	loadRecent func() tea.Msg

	rows   []row
	cursor int
	err    error
	closed bool
	width  int
	height int
}

// NewModel builds the model over a live message channel and a seed
// loader. Either may be nil in tests.
func NewModel(messages <-chan string, loadRecent func() tea.Msg) Model {
	return Model{
		messages:   messages,
		loadRecent: loadRecent,
	}
}

// listenForEvents waits for the next decodable payload. Garbage on the
// channel is skipped rather than surfaced.
func listenForEvents(messages <-chan string) tea.Cmd {
	if messages == nil {
		return nil
	}
	return func() tea.Msg {
		for payload := range messages {
			var message core.EventMessage
			if err := json.Unmarshal([]byte(payload), &message); err != nil {
				continue
			}
			return busEvent{message: message}
		}
		return streamClosed{}
	}
}

// Init seeds the view and starts following the bus.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.loadRecent != nil {
		cmds = append(cmds, m.loadRecent)
	}
	if cmd := listenForEvents(m.messages); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		}
		return m, nil

	case recentLoaded:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		rows := make([]row, 0, len(msg.events))
		for _, event := range msg.events {
			rows = append(rows, row{
				EventID:    event.ID,
				ClusterID:  event.ClusterID,
				Severity:   event.Severity,
				Label:      event.Label,
				Score:      event.Score,
				DetectedAt: event.DetectedAt,
			})
		}
		m.rows = rows
		if m.cursor >= len(m.rows) && len(m.rows) > 0 {
			m.cursor = len(m.rows) - 1
		}
		return m, nil

	case busEvent:
		m.rows = append([]row{liveRow(msg.message)}, m.rows...)
		if len(m.rows) > maxEvents {
			m.rows = m.rows[:maxEvents]
		}
		return m, listenForEvents(m.messages)

	case streamClosed:
		m.closed = true
		return m, nil
	}

	return m, nil
}

// liveRow converts a wire message into a view row.
func liveRow(message core.EventMessage) row {
	detected, err := time.Parse(time.RFC3339, message.DetectedAt)
	if err != nil {
		detected = time.Now().UTC()
	}
	return row{
		EventID:    message.EventID,
		ClusterID:  message.ClusterID,
		Severity:   core.Severity(message.Severity),
		Label:      message.Label,
		Score:      message.Score,
		DetectedAt: detected,
		Live:       true,
	}
}

// Run subscribes to the events channel and drives the viewer until the
// user quits or the context is cancelled.
func Run(ctx context.Context, db persistence.Database, eventBus *bus.Bus) error {
	sub, err := eventBus.Subscribe(ctx, bus.EventsChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event channel: %w", err)
	}
	defer sub.Close()

	loadRecent := func() tea.Msg {
		since := time.Now().UTC().Add(-recentLookback)
		events, err := db.Events().ListRecent(ctx, since, maxEvents)
		return recentLoaded{events: events, err: err}
	}

	p := tea.NewProgram(NewModel(sub.Messages(), loadRecent), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("event viewer failed: %w", err)
	}
	return nil
}
