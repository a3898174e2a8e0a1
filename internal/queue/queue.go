// Package queue implements the Redis list backed job queue shared by the
// beat scheduler and the workers. Jobs are JSON envelopes pushed with LPUSH
// and consumed with BRPOP, so delivery is FIFO across any number of workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is the envelope stored on the queue. Payload stays raw so each
// handler can decode its own shape.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the job's TTL has lapsed at the given instant.
func (j *Job) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return errors.New("queue: job has no payload")
	}
	return json.Unmarshal(j.Payload, v)
}

// Connect opens a Redis client from a redis:// URL and verifies the
// connection.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Queue produces and consumes jobs on a single Redis list.
type Queue struct {
	client *redis.Client
	key    string
}

// New creates a queue over an existing client.
func New(client *redis.Client, key string) *Queue {
	return &Queue{client: client, key: key}
}

// Enqueue marshals the payload and pushes a new job. A positive ttl stamps
// an expiry; workers drop expired jobs on receipt instead of running them.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, ttl time.Duration) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	job := Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	if ttl > 0 {
		expires := job.EnqueuedAt.Add(ttl)
		job.ExpiresAt = &expires
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}
	return job.ID, nil
}

// Dequeue blocks up to timeout for the next job. A nil job means the
// timeout elapsed with the queue empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPOP returns [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("malformed job on queue %s: %w", q.key, err)
	}
	return &job, nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
