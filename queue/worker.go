package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency       = 4
	defaultPollTimeout       = time.Second
	defaultHeartbeatInterval = 10 * time.Second
	retryDelay               = time.Second
)

// Handler answers one job.
type Handler interface {
	Handle(ctx context.Context, job Job) Reply
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) Reply

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job Job) Reply {
	return f(ctx, job)
}

// Worker consumes jobs from the queue with a fixed number of goroutines and
// publishes each reply on the job's answer channel.
type Worker struct {
	id                string
	client            Client
	handler           Handler
	concurrency       int
	pollTimeout       time.Duration
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets the number of jobs processed in parallel.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollTimeout sets how long each BRPOP waits. Redis rounds it to whole
// seconds.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithHeartbeatInterval sets how often the worker refreshes its health key.
func WithHeartbeatInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.heartbeatInterval = d
		}
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a Worker with a random ID.
func NewWorker(client Client, handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		id:                "worker-" + uuid.NewString(),
		client:            client,
		handler:           handler,
		concurrency:       defaultConcurrency,
		pollTimeout:       defaultPollTimeout,
		heartbeatInterval: defaultHeartbeatInterval,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker_id", w.id)
	return w
}

// ID returns the worker ID.
func (w *Worker) ID() string {
	return w.id
}

// Run processes jobs until ctx is done. It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.client.IncrementWorkerCount(ctx); err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.client.DecrementWorkerCount(dctx); err != nil {
			w.logger.Warn("failed to decrement worker count", "error", err)
		}
	}()

	w.logger.Info("worker started", "concurrency", w.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.heartbeat(gctx)
		return nil
	})
	for range w.concurrency {
		g.Go(func() error {
			w.loop(gctx)
			return nil
		})
	}
	err := g.Wait()

	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	for {
		if err := w.client.Heartbeat(ctx, w.id); err != nil && ctx.Err() == nil {
			w.logger.Warn("heartbeat failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.client.Pop(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to pop job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, *job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	started := time.Now()
	logger := w.logger.With("job_id", job.ID)

	var reply Reply
	if err := job.IsValid(); err != nil {
		logger.Warn("rejecting invalid job", "error", err)
		reply = Reply{Status: "failed", Error: fmt.Sprintf("invalid job: %v", err), ErrorKind: "configuration"}
	} else {
		logger.Debug("processing job", "queue_wait", job.Age())
		reply = w.handler.Handle(job.ParentContext(ctx), job)
	}

	reply.ID = job.ID
	reply.WorkerID = w.id
	reply.StartedAt = started.UnixMilli()
	reply.CompletedAt = time.Now().UnixMilli()

	// A reply is still owed when the worker is shutting down.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.client.Publish(pctx, reply); err != nil {
		logger.Error("failed to publish reply", "error", err)
		return
	}
	logger.Debug("job completed", "status", reply.Status, "duration", reply.Duration())
}

// Ask submits question and waits for its reply.
func Ask(ctx context.Context, client Client, question string) (*Reply, error) {
	job := Job{
		ID:          uuid.NewString(),
		Question:    question,
		SubmittedAt: time.Now().UnixMilli(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		job.TraceID = sc.TraceID().String()
		job.SpanID = sc.SpanID().String()
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before pushing so the reply cannot be missed.
	replies, err := client.Subscribe(sctx, job.ID)
	if err != nil {
		return nil, err
	}
	if err := client.Push(ctx, job); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-replies:
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("waiting for job %s: %w", job.ID, err)
			}
			return nil, fmt.Errorf("reply channel for job %s closed", job.ID)
		}
		return &reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for job %s: %w", job.ID, ctx.Err())
	}
}
