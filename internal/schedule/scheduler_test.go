package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacevic/toolpulse/internal/collect"
	"github.com/dkovacevic/toolpulse/internal/domain"
)

// fakeRunner records Run calls and reports a settable busy flag.
type fakeRunner struct {
	mu      sync.Mutex
	busy    bool
	runs    int
	started chan struct{}
}

func (f *fakeRunner) Run(context.Context) (domain.CollectionResult, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	return domain.CollectionResult{Collected: 1, Saved: 1}, nil
}

func (f *fakeRunner) RunAsync(ctx context.Context) bool {
	f.mu.Lock()
	busy := f.busy
	f.mu.Unlock()
	if busy {
		return false
	}
	go func() { _, _ = f.Run(ctx) }()
	return true
}

func (f *fakeRunner) Status() collect.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return collect.Status{IsCollecting: f.busy}
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func TestTrigger_StartsCycle(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 1)}
	s := NewScheduler(runner)

	result := s.Trigger(context.Background())
	assert.True(t, result.Started)
	assert.Equal(t, "collection started", result.Message)

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("trigger did not start a collection cycle")
	}
	assert.Equal(t, 1, runner.runCount())
}

func TestTrigger_WhileBusy(t *testing.T) {
	runner := &fakeRunner{busy: true}
	s := NewScheduler(runner)

	result := s.Trigger(context.Background())
	assert.False(t, result.Started)
	assert.Equal(t, "collection already in progress", result.Message)
	assert.Equal(t, 0, runner.runCount())
}

func TestStart_Twice(t *testing.T) {
	s := NewScheduler(&fakeRunner{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestStop_BeforeStart(t *testing.T) {
	s := NewScheduler(&fakeRunner{})
	assert.NotPanics(t, s.Stop)
}

func TestStatus_NextRunIsTopOfHour(t *testing.T) {
	s := NewScheduler(&fakeRunner{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	status := s.Status()
	next := status.NextRun

	assert.Zero(t, next.Minute())
	assert.Zero(t, next.Second())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Sub(time.Now()) <= time.Hour)
}

func TestStatus_NextRunFallbackWhenStopped(t *testing.T) {
	s := NewScheduler(&fakeRunner{})

	next := s.Status().NextRun
	assert.WithinDuration(t, time.Now().Truncate(time.Hour).Add(time.Hour), next, time.Second)
}
