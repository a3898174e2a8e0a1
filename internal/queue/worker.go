package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veille/internal/logger"
)

// HandlerFunc processes one job. A non-nil error marks the job failed;
// handlers decide themselves whether a condition is a skip or a failure.
type HandlerFunc func(ctx context.Context, job *Job) error

// Worker runs a pool of goroutines consuming the queue and dispatching jobs
// to registered handlers by kind.
type Worker struct {
	queue       *Queue
	handlers    map[string]HandlerFunc
	concurrency int
	jobTimeout  time.Duration
	log         *slog.Logger
}

// NewWorker creates a worker pool. Zero or negative settings fall back to
// 4 goroutines and a 30 minute job deadline.
func NewWorker(q *Queue, concurrency int, jobTimeout time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &Worker{
		queue:       q,
		handlers:    make(map[string]HandlerFunc),
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		log:         logger.With("worker"),
	}
}

// Register binds a handler to a job kind. Not safe to call once Run started.
func (w *Worker) Register(kind string, fn HandlerFunc) {
	w.handlers[kind] = fn
}

// Run consumes jobs until the context is cancelled, then waits for in-flight
// handlers to return.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting worker pool", "concurrency", w.concurrency, "kinds", len(w.handlers))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	w.log.Info("Worker pool stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := w.log.With("goroutine", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Failed to dequeue job", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.dispatch(ctx, log, job)
	}
}

func (w *Worker) dispatch(ctx context.Context, log *slog.Logger, job *Job) {
	if job.Expired(time.Now().UTC()) {
		log.Warn("Dropping expired job", "kind", job.Kind, "job_id", job.ID,
			"enqueued_at", job.EnqueuedAt)
		return
	}

	handler, ok := w.handlers[job.Kind]
	if !ok {
		log.Warn("No handler for job kind", "kind", job.Kind, "job_id", job.ID)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := handler(jobCtx, job); err != nil {
		log.Error("Job failed", "kind", job.Kind, "job_id", job.ID,
			"duration", time.Since(start), "error", err)
		return
	}
	log.Debug("Job completed", "kind", job.Kind, "job_id", job.ID,
		"duration", time.Since(start))
}
