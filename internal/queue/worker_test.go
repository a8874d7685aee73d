package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJobStore applies the same settle rules as the postgres queue, in
// memory: a failed attempt goes back to retry until the limit is spent,
// then the job lands in the terminal failed state.
type memJobStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*Job
	attempts map[uuid.UUID]int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		jobs:     make(map[uuid.UUID]*Job),
		attempts: make(map[uuid.UUID]int),
	}
}

func (s *memJobStore) add(t JobType) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.jobs[id] = &Job{
		ID:         id,
		Type:       t,
		State:      StateCreated,
		RetryLimit: RetryLimit,
		CreatedAt:  time.Now(),
	}
	return id
}

func (s *memJobStore) Claim(_ context.Context, t JobType) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Type != t {
			continue
		}
		if job.State != StateCreated && job.State != StateRetry {
			continue
		}
		job.State = StateActive
		s.attempts[job.ID]++
		claimed := *job
		return &claimed, nil
	}
	return nil, nil
}

func (s *memJobStore) Complete(_ context.Context, id uuid.UUID, output any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.State = StateCompleted
	if output != nil {
		raw, err := json.Marshal(output)
		if err != nil {
			return err
		}
		job.Output = raw
	}
	return nil
}

func (s *memJobStore) Fail(_ context.Context, claimed Job, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[claimed.ID]
	if !ok {
		return ErrJobNotFound
	}
	if job.RetryCount < job.RetryLimit {
		job.RetryCount++
		job.State = StateRetry
		return nil
	}
	job.State = StateFailed
	job.Output, _ = json.Marshal(FailureResult{Failed: true, Error: cause.Error()})
	return nil
}

func (s *memJobStore) Depth(_ context.Context) (map[JobType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := make(map[JobType]int)
	for _, job := range s.jobs {
		if job.State == StateCreated || job.State == StateRetry {
			depth[job.Type]++
		}
	}
	return depth, nil
}

func (s *memJobStore) Maintain(context.Context) error { return nil }

func (s *memJobStore) get(id uuid.UUID) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memJobStore) attemptCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

func newTestWorker(store JobStore) *Worker {
	w := NewWorker(store)
	w.poll = time.Millisecond
	return w
}

func TestRegister_UnknownType(t *testing.T) {
	w := NewWorker(newMemJobStore())
	err := w.Register(JobType("mystery"), func(context.Context, Job) (any, error) { return nil, nil })
	assert.Error(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	w := NewWorker(newMemJobStore())
	h := func(context.Context, Job) (any, error) { return nil, nil }
	require.NoError(t, w.Register(JobNewsCollection, h))
	assert.Error(t, w.Register(JobNewsCollection, h))
}

func TestStart_NoHandlers(t *testing.T) {
	w := NewWorker(newMemJobStore())
	assert.Error(t, w.Start(context.Background()))
}

func TestWorker_CompletesJob(t *testing.T) {
	store := newMemJobStore()
	w := newTestWorker(store)
	require.NoError(t, w.Register(JobNewsCollection, func(context.Context, Job) (any, error) {
		return map[string]int{"saved": 3}, nil
	}))

	id := store.add(JobNewsCollection)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return store.get(id).State == StateCompleted
	}, 5*time.Second, time.Millisecond)

	job := store.get(id)
	assert.JSONEq(t, `{"saved": 3}`, string(job.Output))
	assert.Equal(t, int64(1), w.jobsProcessed.Load())
}

func TestWorker_RetryBound(t *testing.T) {
	store := newMemJobStore()
	w := newTestWorker(store)
	require.NoError(t, w.Register(JobNewsCollection, func(context.Context, Job) (any, error) {
		return nil, errors.New("always fails")
	}))

	id := store.add(JobNewsCollection)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return store.get(id).State == StateFailed
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, RetryLimit+1, store.attemptCount(id), "one initial attempt plus the retry budget")
	assert.Equal(t, RetryLimit, store.get(id).RetryCount)
}

func TestWorker_BestEffortCompletesOnError(t *testing.T) {
	store := newMemJobStore()
	w := newTestWorker(store)
	require.NoError(t, w.Register(JobArticleGeneration, BestEffort(func(context.Context, Job) (any, error) {
		return nil, errors.New("article was paywalled")
	})))

	id := store.add(JobArticleGeneration)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return store.get(id).State == StateCompleted
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, 1, store.attemptCount(id), "best-effort failures must not retry")

	var result FailureResult
	require.NoError(t, json.Unmarshal(store.get(id).Output, &result))
	assert.True(t, result.Failed)
	assert.Contains(t, result.Error, "paywalled")
}

func TestWorker_PanicIsFailedAttempt(t *testing.T) {
	store := newMemJobStore()
	w := newTestWorker(store)
	require.NoError(t, w.Register(JobFetchFromX, func(context.Context, Job) (any, error) {
		panic("nil pointer somewhere deep")
	}))

	id := store.add(JobFetchFromX)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return store.get(id).State == StateFailed
	}, 5*time.Second, time.Millisecond)

	var result FailureResult
	require.NoError(t, json.Unmarshal(store.get(id).Output, &result))
	assert.Contains(t, result.Error, "handler panicked")
	assert.True(t, w.running.Load(), "a panicking handler must not kill the worker")
}

func TestWorker_Health(t *testing.T) {
	store := newMemJobStore()
	store.add(JobArticleGeneration)
	store.add(JobArticleGeneration)

	w := newTestWorker(store)
	require.NoError(t, w.Register(JobNewsCollection, func(context.Context, Job) (any, error) {
		return nil, nil
	}))

	h := w.Health(context.Background())
	assert.False(t, h.IsRunning)
	assert.Empty(t, h.Uptime)
	assert.Equal(t, 2, h.QueueDepth[JobArticleGeneration])

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	h = w.Health(context.Background())
	assert.True(t, h.IsRunning)
	assert.False(t, h.StartTime.IsZero())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := newTestWorker(newMemJobStore())
	require.NoError(t, w.Register(JobNewsCollection, func(context.Context, Job) (any, error) {
		return nil, nil
	}))
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
	assert.False(t, w.running.Load())
}
