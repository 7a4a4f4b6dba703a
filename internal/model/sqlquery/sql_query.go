package sqlquery

import "time"

const jobColumns = "id, kind, owner, target, next_fire_at, repeat_interval, last_run_at, last_finished_at, fail_reason, fail_count"

const (
	CreateSchema = `CREATE TABLE IF NOT EXISTS jobs (
	id BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	owner TEXT NOT NULL,
	target TEXT NOT NULL,
	next_fire_at TIMESTAMPTZ NOT NULL,
	repeat_interval BIGINT NOT NULL,
	claimed_at TIMESTAMPTZ,
	last_run_at TIMESTAMPTZ,
	last_finished_at TIMESTAMPTZ,
	fail_reason TEXT NOT NULL DEFAULT '',
	fail_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS jobs_owner_target_idx ON jobs (kind, owner, target);
CREATE INDEX IF NOT EXISTS jobs_due_idx ON jobs (next_fire_at) WHERE claimed_at IS NULL;
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	token JSONB,
	timezone TEXT NOT NULL DEFAULT 'Europe/Moscow'
)`
	ResetClaims    = "UPDATE jobs SET claimed_at = NULL WHERE claimed_at IS NOT NULL"
	NewJob         = "INSERT INTO jobs (kind, owner, target, next_fire_at, repeat_interval) VALUES ($1, $2, $3, $4, $5) RETURNING id"
	FindJobs       = "SELECT " + jobColumns + " FROM jobs WHERE kind = $1 AND owner = $2 AND target = $3 ORDER BY next_fire_at"
	FindTargetJobs = "SELECT " + jobColumns + " FROM jobs WHERE kind = $1 AND target = $2 ORDER BY next_fire_at"
	DeleteJobs     = "DELETE FROM jobs WHERE id = ANY($1)"
	ClaimDueJobs   = "UPDATE jobs SET claimed_at = $1 WHERE id IN (" +
		"SELECT id FROM jobs WHERE next_fire_at <= $1 AND claimed_at IS NULL ORDER BY next_fire_at LIMIT $2 FOR UPDATE SKIP LOCKED" +
		") RETURNING " + jobColumns
	ReleaseJob = "UPDATE jobs SET next_fire_at = $1, claimed_at = NULL, last_run_at = $2, last_finished_at = $3, fail_reason = $4, fail_count = $5 WHERE id = $6"

	GetUser     = "SELECT id, token, timezone FROM users WHERE id = $1"
	SaveToken   = "INSERT INTO users (id, token) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET token = EXCLUDED.token"
	SetTimezone = "INSERT INTO users (id, timezone) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET timezone = EXCLUDED.timezone"

	DatabaseOperationTimeout = time.Second * 5
)
