package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"veille/internal/queue"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.New(client, "test:jobs")
}

// drainJobs pops exactly the jobs currently queued, in FIFO order.
func drainJobs(t *testing.T, q *queue.Queue) []*queue.Job {
	t.Helper()
	ctx := context.Background()
	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	jobs := make([]*queue.Job, 0, n)
	for i := int64(0); i < n; i++ {
		job, err := q.Dequeue(ctx, time.Second)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if job == nil {
			t.Fatalf("Expected %d jobs, queue dried up after %d", n, i)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func makeJob(t *testing.T, kind string, payload any) *queue.Job {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return &queue.Job{
		ID:         "test-job",
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestEmbeddingInput(t *testing.T) {
	tests := []struct {
		name  string
		title string
		text  string
		want  string
	}{
		{"title and text", "Un titre", "Le corps du texte.", "Un titre\n\nLe corps du texte."},
		{"no title", "", "Le corps du texte.", "Le corps du texte."},
		{"no text", "Un titre", "", "Un titre"},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := embeddingInput(tt.title, tt.text); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEmbeddingInput_TruncatesByRunes(t *testing.T) {
	text := strings.Repeat("é", embedInputRunes+500)
	got := embeddingInput("", text)
	if n := len([]rune(got)); n != embedInputRunes {
		t.Errorf("Expected %d runes after truncation, got %d", embedInputRunes, n)
	}
	if strings.Contains(got, "�") {
		t.Error("Truncation split a multi-byte character")
	}
}
