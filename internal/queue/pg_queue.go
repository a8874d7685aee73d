package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/dkovacevic/toolpulse/internal/storage/pg"
)

var ErrJobNotFound = errors.New("job not found")

// PGQueue is the postgres-backed Queue. Any number of worker instances can
// poll the same tables: a claim takes a per-type advisory lock inside its
// transaction, so the active-count check and the promotion to active are
// atomic across processes and the per-type concurrency cap holds globally.
type PGQueue struct {
	db   *pgxpool.Pool
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewPGQueue(pool *pg.ConnectionPool) *PGQueue {
	return &PGQueue{
		db:      pool.GetConn(),
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

var _ Queue = (*PGQueue)(nil)

const jobColumns = `id, type, payload, state, retry_count, retry_limit, output,
	created_at, started_at, completed_at`

// Enqueue stores an ad hoc job. It returns as soon as the row is durable.
func (q *PGQueue) Enqueue(ctx context.Context, t JobType, payload any) (uuid.UUID, error) {
	return q.enqueue(ctx, t, payload, AdHocRetryDelay)
}

func (q *PGQueue) enqueue(ctx context.Context, t JobType, payload any, retryDelay time.Duration) (uuid.UUID, error) {
	if _, ok := Concurrency[t]; !ok {
		return uuid.Nil, fmt.Errorf("unknown job type %q", t)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload for %s: %w", t, err)
	}

	id := uuid.New()
	_, err = q.db.Exec(ctx, `
		INSERT INTO jobs (id, type, payload, state, retry_limit, retry_delay_seconds)
		VALUES ($1, $2, $3, 'created', $4, $5)`,
		id, string(t), data, RetryLimit, int(retryDelay.Seconds()))
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s: %w", t, err)
	}

	slog.Debug("job enqueued", "id", id, "type", t)
	return id, nil
}

// FetchStatus looks a job up in the live table, then in the archive.
func (q *PGQueue) FetchStatus(ctx context.Context, id uuid.UUID) (Job, error) {
	for _, table := range []string{"jobs", "jobs_archive"} {
		row := q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM `+table+` WHERE id = $1`, id)
		job, err := scanJob(row)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Job{}, fmt.Errorf("fetch job %s: %w", id, err)
		}
	}
	return Job{}, ErrJobNotFound
}

// claimLockKey derives the advisory-lock key that serializes claimers of
// one job type. Every claimer of a type must take the same lock; distinct
// types must not contend.
func claimLockKey(t JobType) int64 {
	h := fnv.New64a()
	h.Write([]byte("jobs/claim/" + string(t)))
	return int64(h.Sum64())
}

// Claim atomically moves one due job of the given type to active,
// respecting the type's concurrency cap. The count-and-promote runs under
// a transaction-scoped advisory lock: without it, two claimers could both
// read the active count below the cap and each promote a different row,
// overshooting the cap. A nil job means nothing is claimable right now.
func (q *PGQueue) Claim(ctx context.Context, t JobType) (*Job, error) {
	limit, ok := Concurrency[t]
	if !ok {
		return nil, fmt.Errorf("unknown job type %q", t)
	}

	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin %s claim: %w", t, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, claimLockKey(t)); err != nil {
		return nil, fmt.Errorf("serialize %s claim: %w", t, err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE jobs SET state = 'active', started_at = now()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE type = $1 AND state IN ('created', 'retry') AND start_after <= now()
			ORDER BY created_at
			LIMIT CASE
				WHEN (SELECT count(*) FROM jobs WHERE type = $1 AND state = 'active') < $2 THEN 1
				ELSE 0
			END
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, string(t), limit)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", t, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim of %s: %w", job.ID, err)
	}
	return &job, nil
}

// Complete transitions a job to its terminal completed state.
func (q *PGQueue) Complete(ctx context.Context, id uuid.UUID, output any) error {
	var data []byte
	if output != nil {
		var err error
		if data, err = json.Marshal(output); err != nil {
			return fmt.Errorf("marshal output for %s: %w", id, err)
		}
	}

	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET state = 'completed', completed_at = now(), output = $2
		WHERE id = $1 AND state = 'active'`, id, data)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail applies the retry policy: schedule another attempt after the job's
// retry delay, or, once the limit is exhausted, park it in the terminal
// failed state where it stays queryable.
func (q *PGQueue) Fail(ctx context.Context, job Job, cause error) error {
	output, _ := json.Marshal(FailureResult{Failed: true, Error: cause.Error()})

	if job.RetryCount < job.RetryLimit {
		_, err := q.db.Exec(ctx, `
			UPDATE jobs SET state = 'retry', retry_count = retry_count + 1,
				start_after = now() + make_interval(secs => retry_delay_seconds),
				output = $2
			WHERE id = $1 AND state = 'active'`, job.ID, output)
		if err != nil {
			return fmt.Errorf("retry job %s: %w", job.ID, err)
		}
		slog.Warn("job attempt failed, scheduled retry",
			"id", job.ID, "type", job.Type, "attempt", job.RetryCount+1, "error", cause)
		return nil
	}

	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET state = 'failed', completed_at = now(), output = $2
		WHERE id = $1 AND state = 'active'`, job.ID, output)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	slog.Error("job failed permanently", "id", job.ID, "type", job.Type, "error", cause)
	return nil
}

// Depth counts jobs waiting per type.
func (q *PGQueue) Depth(ctx context.Context) (map[JobType]int, error) {
	depth := make(map[JobType]int, len(Concurrency))
	for t := range Concurrency {
		depth[t] = 0
	}

	rows, err := q.db.Query(ctx, `
		SELECT type, count(*) FROM jobs
		WHERE state IN ('created', 'retry')
		GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		depth[JobType(t)] = n
	}
	return depth, rows.Err()
}

// Schedule persists a named cron trigger and (re)registers it with the
// in-process cron. The name is the dedup key: scheduling under an existing
// name replaces the prior registration instead of adding a second stream.
func (q *PGQueue) Schedule(ctx context.Context, name, spec string, t JobType, payload any) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal schedule payload for %s: %w", name, err)
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO job_schedules (name, spec, type, payload, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET spec = EXCLUDED.spec, type = EXCLUDED.type,
			payload = EXCLUDED.payload, updated_at = now()`,
		name, spec, string(t), data)
	if err != nil {
		return fmt.Errorf("store schedule %s: %w", name, err)
	}

	return q.register(name, spec, t, data)
}

// Unschedule removes a named trigger, both the stored row and the cron
// entry.
func (q *PGQueue) Unschedule(ctx context.Context, name string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM job_schedules WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete schedule %s: %w", name, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if id, ok := q.entries[name]; ok {
		q.cron.Remove(id)
		delete(q.entries, name)
	}
	return nil
}

func (q *PGQueue) register(name, spec string, t JobType, payload json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.entries[name]; ok {
		q.cron.Remove(id)
	}

	id, err := q.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := q.enqueue(ctx, t, payload, ScheduleRetryDelay); err != nil {
			slog.Error("scheduled enqueue failed", "schedule", name, "type", t, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register schedule %s: %w", name, err)
	}

	q.entries[name] = id
	slog.Info("schedule registered", "name", name, "spec", spec, "type", t)
	return nil
}

// StartSchedules loads stored schedules and starts the cron loop.
func (q *PGQueue) StartSchedules(ctx context.Context) error {
	rows, err := q.db.Query(ctx, `SELECT name, spec, type, payload FROM job_schedules`)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, spec, t string
		var payload json.RawMessage
		if err := rows.Scan(&name, &spec, &t, &payload); err != nil {
			return fmt.Errorf("scan schedule: %w", err)
		}
		if err := q.register(name, spec, JobType(t), payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	q.cron.Start()
	return nil
}

// StopSchedules halts the cron loop.
func (q *PGQueue) StopSchedules() {
	q.cron.Stop()
}

// Maintain archives finished jobs older than ArchiveAfter and purges
// archive rows older than PurgeAfter, bounding storage growth without
// losing recent audit history.
func (q *PGQueue) Maintain(ctx context.Context) error {
	tag, err := q.db.Exec(ctx, `
		WITH moved AS (
			DELETE FROM jobs
			WHERE state IN ('completed', 'failed')
				AND completed_at < now() - make_interval(secs => $1)
			RETURNING `+jobColumns+`
		)
		INSERT INTO jobs_archive (`+jobColumns+`, archived_at)
		SELECT `+jobColumns+`, now() FROM moved`,
		ArchiveAfter.Seconds())
	if err != nil {
		return fmt.Errorf("archive jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("archived finished jobs", "count", n)
	}

	tag, err = q.db.Exec(ctx, `
		DELETE FROM jobs_archive
		WHERE archived_at < now() - make_interval(secs => $1)`,
		(PurgeAfter - ArchiveAfter).Seconds())
	if err != nil {
		return fmt.Errorf("purge job archive: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("purged archived jobs", "count", n)
	}
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		job     Job
		jobType string
		state   string
	)
	err := row.Scan(&job.ID, &jobType, &job.Payload, &state, &job.RetryCount,
		&job.RetryLimit, &job.Output, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return Job{}, err
	}
	job.Type = JobType(jobType)
	job.State = JobState(state)
	return job, nil
}
