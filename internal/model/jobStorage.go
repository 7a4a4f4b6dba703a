package model

import (
	"context"
	"errors"
	"time"
)

var ErrorNotFound = errors.New("not found")

type JobId int64

// Kind selects the action a job performs when it fires.
type Kind string

const KindUpdateResume Kind = "update resume"

const DefaultInterval = 24 * time.Hour

type Job struct {
	Id             JobId         `json:"id"`
	Kind           Kind          `json:"kind"`
	Owner          string        `json:"owner"`
	Target         string        `json:"target"`
	NextFireAt     time.Time     `json:"nextFireAt"`
	Interval       time.Duration `json:"interval"`
	LastRunAt      *time.Time    `json:"lastRunAt,omitempty"`
	LastFinishedAt *time.Time    `json:"lastFinishedAt,omitempty"`
	FailReason     string        `json:"failReason,omitempty"`
	FailCount      int           `json:"failCount"`
}

// NextFireAfter moves NextFireAt forward by whole intervals until it is
// later than now. A job that is due now moves by exactly one interval.
func (job Job) NextFireAfter(now time.Time) time.Time {
	next := job.NextFireAt.Add(job.Interval)
	if job.Interval <= 0 || next.After(now) {
		return next
	}
	missed := now.Sub(next)/job.Interval + 1
	return next.Add(missed * job.Interval)
}

// RunResult describes one firing of a claimed job.
type RunResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type JobStorage interface {
	// CreateJobs persists all jobs or none of them.
	CreateJobs(ctx context.Context, jobs []Job) ([]JobId, error)
	FindJobs(ctx context.Context, kind Kind, owner, target string) ([]Job, error)
	// FindTargetJobs returns jobs of a target ordered by NextFireAt.
	FindTargetJobs(ctx context.Context, kind Kind, target string) ([]Job, error)
	DeleteJobs(ctx context.Context, ids []JobId) (int64, error)
	// ClaimDueJobs atomically marks up to limit unclaimed jobs with
	// NextFireAt <= now as running and returns them.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// ReleaseJob advances a claimed job to its next occurrence and records
	// the outcome of the run. Releasing a deleted job is not an error.
	ReleaseJob(ctx context.Context, job Job, result RunResult) error
}

func releasedFields(job Job, result RunResult) (next time.Time, failReason string, failCount int) {
	next = job.NextFireAfter(result.FinishedAt)
	failCount = job.FailCount
	if result.Err != nil {
		failReason = result.Err.Error()
		failCount++
	}
	return next, failReason, failCount
}
