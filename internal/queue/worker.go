package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = 2 * time.Second
	maintainInterval    = time.Hour
)

// JobStore is the claim/settle surface the worker drives. *PGQueue
// implements it; tests substitute fakes.
type JobStore interface {
	Claim(ctx context.Context, t JobType) (*Job, error)
	Complete(ctx context.Context, id uuid.UUID, output any) error
	Fail(ctx context.Context, job Job, cause error) error
	Depth(ctx context.Context) (map[JobType]int, error)
	Maintain(ctx context.Context) error
}

// Health is what the worker's health endpoint reports.
type Health struct {
	IsRunning     bool            `json:"isRunning"`
	StartTime     time.Time       `json:"startTime"`
	JobsProcessed int64           `json:"jobsProcessed"`
	Uptime        string          `json:"uptime"`
	QueueDepth    map[JobType]int `json:"queueDepth"`
}

// Worker polls the queue and dispatches claimed jobs to their handlers.
// Each registered type gets exactly its concurrency cap in goroutines, so
// the per-type limit also holds inside one process.
type Worker struct {
	store    JobStore
	poll     time.Duration
	handlers map[JobType]Handler

	running       atomic.Bool
	startTime     time.Time
	jobsProcessed atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(store JobStore) *Worker {
	return &Worker{
		store:    store,
		poll:     defaultPollInterval,
		handlers: make(map[JobType]Handler),
	}
}

// Register binds a job type to its handler. Exactly one handler per type.
func (w *Worker) Register(t JobType, h Handler) error {
	if _, ok := Concurrency[t]; !ok {
		return fmt.Errorf("unknown job type %q", t)
	}
	if _, ok := w.handlers[t]; ok {
		return fmt.Errorf("handler for %q already registered", t)
	}
	w.handlers[t] = h
	return nil
}

// Retryable wraps a handler whose failures should propagate into the
// queue's retry mechanism.
func Retryable(h Handler) Handler {
	return h
}

// BestEffort wraps a handler whose failures should not burn the type's
// retry budget: the attempt completes with a structured failure result
// instead of an error, so one bad item cannot exhaust retries.
func BestEffort(h Handler) Handler {
	return func(ctx context.Context, job Job) (any, error) {
		out, err := h(ctx, job)
		if err != nil {
			slog.Warn("best-effort job failed", "id", job.ID, "type", job.Type, "error", err)
			return FailureResult{Failed: true, Error: err.Error()}, nil
		}
		return out, nil
	}
}

// Start launches the dispatch loops. Non-blocking; Stop drains them.
func (w *Worker) Start(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.startTime = time.Now()

	for t := range w.handlers {
		for i := 0; i < Concurrency[t]; i++ {
			w.wg.Add(1)
			go w.dispatchLoop(ctx, t)
		}
	}

	w.wg.Add(1)
	go w.maintainLoop(ctx)

	slog.Info("worker started", "types", len(w.handlers))
	return nil
}

// Stop cancels the loops and waits for in-flight jobs to settle.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.cancel()
	w.wg.Wait()
	slog.Info("worker stopped", "jobsProcessed", w.jobsProcessed.Load())
}

func (w *Worker) Health(ctx context.Context) Health {
	depth, err := w.store.Depth(ctx)
	if err != nil {
		slog.Warn("queue depth unavailable", "error", err)
	}

	h := Health{
		IsRunning:     w.running.Load(),
		StartTime:     w.startTime,
		JobsProcessed: w.jobsProcessed.Load(),
		QueueDepth:    depth,
	}
	if h.IsRunning {
		h.Uptime = time.Since(w.startTime).Round(time.Second).String()
	}
	return h
}

func (w *Worker) dispatchLoop(ctx context.Context, t JobType) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain everything claimable before going back to sleep.
		for {
			job, err := w.store.Claim(ctx, t)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("claim failed", "type", t, "error", err)
				}
				break
			}
			if job == nil {
				break
			}
			w.execute(ctx, *job)
		}
	}
}

func (w *Worker) execute(ctx context.Context, job Job) {
	out, err := w.invoke(ctx, job)
	if err != nil {
		if failErr := w.store.Fail(ctx, job, err); failErr != nil {
			slog.Error("could not settle failed job", "id", job.ID, "error", failErr)
		}
		return
	}

	if err := w.store.Complete(ctx, job.ID, out); err != nil {
		slog.Error("could not complete job", "id", job.ID, "error", err)
		return
	}
	w.jobsProcessed.Add(1)
	slog.Debug("job completed", "id", job.ID, "type", job.Type)
}

// invoke runs the handler with panics converted to failed attempts, so a
// panicking handler cannot take the dispatch loop down.
func (w *Worker) invoke(ctx context.Context, job Job) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handlers[job.Type](ctx, job)
}

func (w *Worker) maintainLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(maintainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Maintain(ctx); err != nil {
				slog.Error("queue maintenance failed", "error", err)
			}
		}
	}
}
