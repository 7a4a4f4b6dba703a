package model

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryJob struct {
	job     Job
	claimed bool
}

// memoryJobStorage keeps jobs in process memory. Jobs do not survive a
// restart; it backs tests and --storage=memory.
type memoryJobStorage struct {
	rwLock *sync.RWMutex
	jobs   map[JobId]*memoryJob
	lastId JobId
}

func NewMemoryJobStorage() *memoryJobStorage {
	return &memoryJobStorage{rwLock: &sync.RWMutex{}, jobs: make(map[JobId]*memoryJob)}
}

func (st *memoryJobStorage) CreateJobs(ctx context.Context, jobs []Job) ([]JobId, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	ids := make([]JobId, 0, len(jobs))
	for _, job := range jobs {
		st.lastId++
		job.Id = st.lastId
		st.jobs[job.Id] = &memoryJob{job: job}
		ids = append(ids, job.Id)
	}
	return ids, nil
}

func (st *memoryJobStorage) FindJobs(ctx context.Context, kind Kind, owner, target string) ([]Job, error) {
	return st.filter(ctx, func(job Job) bool {
		return job.Kind == kind && job.Owner == owner && job.Target == target
	})
}

func (st *memoryJobStorage) FindTargetJobs(ctx context.Context, kind Kind, target string) ([]Job, error) {
	return st.filter(ctx, func(job Job) bool {
		return job.Kind == kind && job.Target == target
	})
}

func (st *memoryJobStorage) DeleteJobs(ctx context.Context, ids []JobId) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	var deleted int64
	for _, id := range ids {
		if _, ok := st.jobs[id]; ok {
			delete(st.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (st *memoryJobStorage) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	due := make([]*memoryJob, 0)
	for _, stored := range st.jobs {
		if !stored.claimed && !stored.job.NextFireAt.After(now) {
			due = append(due, stored)
		}
	}
	slices.SortFunc(due, func(a, b *memoryJob) int {
		return a.job.NextFireAt.Compare(b.job.NextFireAt)
	})
	if len(due) > limit {
		due = due[:max(limit, 0)]
	}

	jobs := make([]Job, 0, len(due))
	for _, stored := range due {
		stored.claimed = true
		jobs = append(jobs, stored.job)
	}
	return jobs, nil
}

func (st *memoryJobStorage) ReleaseJob(ctx context.Context, job Job, result RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	stored, ok := st.jobs[job.Id]
	if !ok {
		return nil
	}
	next, failReason, failCount := releasedFields(job, result)
	startedAt, finishedAt := result.StartedAt, result.FinishedAt
	stored.job.NextFireAt = next
	stored.job.LastRunAt = &startedAt
	stored.job.LastFinishedAt = &finishedAt
	stored.job.FailReason = failReason
	stored.job.FailCount = failCount
	stored.claimed = false
	return nil
}

func (st *memoryJobStorage) filter(ctx context.Context, match func(Job) bool) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	jobs := make([]Job, 0)
	for _, stored := range st.jobs {
		if match(stored.job) {
			jobs = append(jobs, stored.job)
		}
	}
	slices.SortFunc(jobs, func(a, b Job) int {
		if c := a.NextFireAt.Compare(b.NextFireAt); c != 0 {
			return c
		}
		return int(a.Id - b.Id)
	})
	return jobs, nil
}
