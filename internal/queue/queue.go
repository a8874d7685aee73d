package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType enumerates the deferred work the worker process executes.
type JobType string

const (
	JobNewsCollection         JobType = "news-collection"
	JobArticleGeneration      JobType = "article-generation"
	JobArticleGenerationBatch JobType = "article-generation-batch"
	JobFetchFromX             JobType = "fetch-from-x"
)

// Concurrency caps how many jobs of a type may be active at once, across
// all worker instances. news-collection stays at 1: the durable equivalent
// of the in-process collection guard.
var Concurrency = map[JobType]int{
	JobNewsCollection:         1,
	JobArticleGeneration:      2,
	JobArticleGenerationBatch: 1,
	JobFetchFromX:             1,
}

const (
	// RetryLimit bounds retries, so a job is attempted at most
	// RetryLimit+1 times before settling into the failed state.
	RetryLimit = 3

	// AdHocRetryDelay spaces retries of directly enqueued jobs;
	// ScheduleRetryDelay spaces retries of cron-originated ones.
	AdHocRetryDelay    = 60 * time.Second
	ScheduleRetryDelay = 300 * time.Second

	// Completed jobs stay queryable for a week, archived rows for another.
	ArchiveAfter = 7 * 24 * time.Hour
	PurgeAfter   = 14 * 24 * time.Hour
)

// JobState is the lifecycle of one job row. completed and failed are
// terminal.
type JobState string

const (
	StateCreated   JobState = "created"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateRetry     JobState = "retry"
)

// Job is one durable unit of deferred work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	State       JobState        `json:"state"`
	RetryCount  int             `json:"retryCount"`
	RetryLimit  int             `json:"retryLimit"`
	Output      json.RawMessage `json:"output,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Handler executes one claimed job and returns an optional output recorded
// on the row. A returned error means the attempt failed and the queue
// applies its retry policy.
type Handler func(ctx context.Context, job Job) (any, error)

// Queue is the typed task-queue abstraction. Call sites depend on this
// interface, never on the backing implementation, so the queue stays
// swappable and mockable.
type Queue interface {
	// Enqueue stores a job for later execution and returns its id.
	// It never blocks on the job running.
	Enqueue(ctx context.Context, t JobType, payload any) (uuid.UUID, error)
	// FetchStatus returns the current (or archived) state of a job.
	FetchStatus(ctx context.Context, id uuid.UUID) (Job, error)
	// Schedule registers a named cron trigger. Re-registering the same
	// name replaces the prior registration.
	Schedule(ctx context.Context, name, spec string, t JobType, payload any) error
	// Unschedule removes a named cron trigger.
	Unschedule(ctx context.Context, name string) error
}

// Typed payloads, one per job type.

type NewsCollectionPayload struct{}

type ArticleGenerationPayload struct {
	NewsID uuid.UUID `json:"newsId"`
}

type ArticleGenerationBatchPayload struct {
	Limit int `json:"limit"`
}

type FetchFromXPayload struct {
	FeedURL string `json:"feedUrl"`
}

// FailureResult is what a best-effort handler records instead of
// propagating: the job completes, the failure stays queryable.
type FailureResult struct {
	Failed bool   `json:"failed"`
	Error  string `json:"error"`
}
