package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dkovacevic/toolpulse/internal/collect"
	"github.com/dkovacevic/toolpulse/internal/domain"
)

// hourlySpec fires at the top of every hour.
const hourlySpec = "0 * * * *"

// WarmupDelay is the one-shot trigger shortly after process start, so a
// fresh deploy does not wait up to an hour for its first collection.
const WarmupDelay = 30 * time.Second

// Runner is the orchestrator slice the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (domain.CollectionResult, error)
	RunAsync(ctx context.Context) bool
	Status() collect.Status
}

// TriggerResult tells a manual caller whether a cycle was started. Callers
// needing the outcome poll Status; collection is too slow to block on.
type TriggerResult struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// Status extends the orchestrator status with the next scheduled run.
type Status struct {
	collect.Status
	NextRun time.Time `json:"nextRun"`
}

// Scheduler owns wall-clock triggering of collection cycles inside the
// server process.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron

	mu      sync.Mutex
	entryID cron.EntryID
	warmup  *time.Timer
	started bool
}

func NewScheduler(runner Runner) *Scheduler {
	return &Scheduler{
		runner: runner,
		cron:   cron.New(),
	}
}

// Start registers the hourly trigger and the one-shot warmup run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	id, err := s.cron.AddFunc(hourlySpec, func() { s.run(ctx, "schedule") })
	if err != nil {
		return err
	}
	s.entryID = id

	s.warmup = time.AfterFunc(WarmupDelay, func() { s.run(ctx, "warmup") })
	s.cron.Start()
	s.started = true

	slog.Info("collection scheduler started", "cadence", "hourly", "warmup", WarmupDelay)
	return nil
}

// Stop cancels the recurring trigger. A cycle already in flight finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.warmup != nil {
		s.warmup.Stop()
	}
	s.cron.Stop()
	s.started = false
	slog.Info("collection scheduler stopped")
}

// Trigger starts a cycle on a fresh goroutine so the triggering request is
// not blocked by collection latency. The started/busy answer comes from
// the orchestrator's own guard, so concurrent triggers get consistent
// results: exactly one is told it started the cycle.
func (s *Scheduler) Trigger(ctx context.Context) TriggerResult {
	if !s.runner.RunAsync(ctx) {
		return TriggerResult{Started: false, Message: "collection already in progress"}
	}
	return TriggerResult{Started: true, Message: "collection started"}
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	result, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, collect.ErrAlreadyRunning):
		// Logged by the orchestrator; nothing to do.
	case err != nil:
		slog.Error("scheduled collection failed", "trigger", trigger, "error", err)
	default:
		slog.Info("scheduled collection done", "trigger", trigger, "collected", result.Collected, "saved", result.Saved)
	}
}

// Status reports the orchestrator status plus the next scheduled run.
func (s *Scheduler) Status() Status {
	return Status{
		Status:  s.runner.Status(),
		NextRun: s.nextRun(),
	}
}

func (s *Scheduler) nextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		if entry := s.cron.Entry(s.entryID); !entry.Next.IsZero() {
			return entry.Next
		}
	}
	return time.Now().Truncate(time.Hour).Add(time.Hour)
}
