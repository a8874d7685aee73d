package pg

import (
	"context"
	"fmt"
)

// migrations are idempotent and run at process start. Both the api and the
// worker call Migrate; CREATE IF NOT EXISTS keeps a concurrent start safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tools (
		id uuid PRIMARY KEY,
		slug text NOT NULL UNIQUE,
		name text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS news_items (
		id uuid PRIMARY KEY,
		title text NOT NULL,
		description text NOT NULL DEFAULT '',
		content text,
		url text,
		published_on timestamptz NOT NULL DEFAULT now(),
		created_at timestamptz NOT NULL DEFAULT now(),
		category text,
		image_url text,
		source_type text NOT NULL DEFAULT 'rss',
		ai_generated boolean NOT NULL DEFAULT false,
		tool_id uuid REFERENCES tools (id),
		tags text[],
		engagement_score integer NOT NULL DEFAULT 0,
		featured boolean NOT NULL DEFAULT false,
		slug text,
		translations jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS news_items_title_idx ON news_items (title)`,
	`CREATE INDEX IF NOT EXISTS news_items_url_idx ON news_items (url)`,
	`CREATE INDEX IF NOT EXISTS news_items_published_idx ON news_items (published_on DESC)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id uuid PRIMARY KEY,
		type text NOT NULL,
		payload jsonb,
		state text NOT NULL DEFAULT 'created',
		retry_count integer NOT NULL DEFAULT 0,
		retry_limit integer NOT NULL DEFAULT 3,
		retry_delay_seconds integer NOT NULL DEFAULT 60,
		output jsonb,
		start_after timestamptz NOT NULL DEFAULT now(),
		created_at timestamptz NOT NULL DEFAULT now(),
		started_at timestamptz,
		completed_at timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_claim_idx ON jobs (type, state, start_after)`,
	`CREATE TABLE IF NOT EXISTS jobs_archive (
		id uuid PRIMARY KEY,
		type text NOT NULL,
		payload jsonb,
		state text NOT NULL,
		retry_count integer NOT NULL,
		retry_limit integer NOT NULL,
		output jsonb,
		created_at timestamptz NOT NULL,
		started_at timestamptz,
		completed_at timestamptz,
		archived_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS job_schedules (
		name text PRIMARY KEY,
		spec text NOT NULL,
		type text NOT NULL,
		payload jsonb,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema the pipeline and queue need.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	for _, stmt := range migrations {
		if _, err := pool.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
