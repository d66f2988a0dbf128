package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is idempotent; EnsureSchema runs it on every startup.
// Embeddings use pgvector with 384 dimensions (all-MiniLM class models).
var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS jobs (
		hash             TEXT PRIMARY KEY,
		source           TEXT NOT NULL,
		title            TEXT NOT NULL,
		company          TEXT NOT NULL,
		location         TEXT NOT NULL DEFAULT '',
		region           TEXT NOT NULL DEFAULT '',
		city             TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL,
		salary_min_chf   INTEGER,
		salary_max_chf   INTEGER,
		salary_original  TEXT NOT NULL DEFAULT '',
		salary_currency  TEXT NOT NULL DEFAULT '',
		salary_period    TEXT NOT NULL DEFAULT '',
		language         TEXT NOT NULL DEFAULT '',
		seniority        TEXT NOT NULL DEFAULT '',
		contract_type    TEXT NOT NULL DEFAULT '',
		remote           BOOLEAN NOT NULL DEFAULT FALSE,
		tags             TEXT[] NOT NULL DEFAULT '{}',
		embedding        vector(384),
		first_seen_at    TIMESTAMPTZ NOT NULL,
		last_seen_at     TIMESTAMPTZ NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		url_last_check   TIMESTAMPTZ,
		fuzzy_hash       TEXT NOT NULL DEFAULT '',
		duplicate_of     TEXT REFERENCES jobs(hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_fuzzy_hash ON jobs (fuzzy_hash) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_last_seen ON jobs (last_seen_at) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id      TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		skills       TEXT[] NOT NULL DEFAULT '{}',
		locations    TEXT[] NOT NULL DEFAULT '{}',
		salary_min   INTEGER,
		salary_max   INTEGER,
		remote_pref  TEXT NOT NULL DEFAULT 'any',
		cv_text      TEXT NOT NULL DEFAULT '',
		cv_embedding vector(384),
		weights      JSONB,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS matches (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES user_profiles(user_id),
		job_hash        TEXT NOT NULL REFERENCES jobs(hash),
		score_embedding DOUBLE PRECISION NOT NULL,
		score_salary    DOUBLE PRECISION NOT NULL,
		score_location  DOUBLE PRECISION NOT NULL,
		score_recency   DOUBLE PRECISION NOT NULL,
		score_llm       DOUBLE PRECISION NOT NULL,
		score_final     DOUBLE PRECISION NOT NULL,
		explanation     TEXT NOT NULL DEFAULT '',
		matching_skills TEXT[] NOT NULL DEFAULT '{}',
		missing_skills  TEXT[] NOT NULL DEFAULT '{}',
		feedback        TEXT,
		notified        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_user_created ON matches (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_user_job ON matches (user_id, job_hash, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS feedback_signals (
		id          BIGSERIAL PRIMARY KEY,
		user_id     TEXT NOT NULL,
		job_hash    TEXT NOT NULL,
		action      TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_user_recorded ON feedback_signals (user_id, recorded_at)`,

	`CREATE TABLE IF NOT EXISTS source_compliance (
		source_key            TEXT PRIMARY KEY,
		method                TEXT NOT NULL,
		allowed               BOOLEAN NOT NULL DEFAULT FALSE,
		robots_ok             BOOLEAN NOT NULL DEFAULT FALSE,
		rate_limit_seconds    DOUBLE PRECISION NOT NULL DEFAULT 1,
		max_requests_per_hour INTEGER NOT NULL DEFAULT 0,
		tos_reviewed_at       TIMESTAMPTZ,
		consecutive_blocks    INTEGER NOT NULL DEFAULT 0,
		last_blocked_at       TIMESTAMPTZ,
		auto_disable_on_block BOOLEAN NOT NULL DEFAULT TRUE
	)`,
}

// EnsureSchema creates missing tables and indexes. Statements are
// idempotent, so concurrent replicas racing at startup are harmless.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
