// Package schedule turns validated daily times into persisted recurring jobs
// and replaces a previous schedule without ever leaving the pair empty.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"iter"
	"resume-scheduler/internal/clock"
	"resume-scheduler/internal/model"
	"sync"
	"time"
)

var ErrEmptyTimeSet = errors.New("empty time set")

var secondsParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type pair struct {
	owner  string
	target string
}

type pairLock struct {
	lock sync.Mutex
	refs int
}

type Manager struct {
	storage model.JobStorage
	kind    model.Kind
	server  *time.Location
	now     func() time.Time

	locksMutex sync.Mutex
	locks      map[pair]*pairLock
}

// NewManager creates a manager for jobs of kind model.KindUpdateResume.
// A nil server location means the process local timezone.
func NewManager(storage model.JobStorage, server *time.Location) *Manager {
	if server == nil {
		server = time.Local
	}
	return &Manager{
		storage: storage,
		kind:    model.KindUpdateResume,
		server:  server,
		now:     time.Now,
		locks:   make(map[pair]*pairLock),
	}
}

// lockPair serializes changes to the schedule of (owner, target). Without it
// two overlapping reschedules read the same superseded set and both survive.
func (m *Manager) lockPair(owner, target string) func() {
	key := pair{owner, target}
	m.locksMutex.Lock()
	pl, ok := m.locks[key]
	if !ok {
		pl = &pairLock{}
		m.locks[key] = pl
	}
	pl.refs++
	m.locksMutex.Unlock()

	pl.lock.Lock()
	return func() {
		pl.lock.Unlock()
		m.locksMutex.Lock()
		defer m.locksMutex.Unlock()
		pl.refs--
		if pl.refs == 0 {
			delete(m.locks, key)
		}
	}
}

// ScheduleUpdates replaces the jobs of (owner, target) with one daily job per
// time. times are wall-clock times in timezone. New jobs are persisted before
// the old ones are deleted, so a failed call leaves the old schedule intact.
// Reschedules of one pair are serialized within the process.
func (m *Manager) ScheduleUpdates(ctx context.Context, owner, target string, times []clock.Time, timezone string) (int, error) {
	if len(times) == 0 {
		return 0, ErrEmptyTimeSet
	}
	unlock := m.lockPair(owner, target)
	defer unlock()

	superseded, err := m.storage.FindJobs(ctx, m.kind, owner, target)
	if err != nil {
		return 0, fmt.Errorf("failed finding current schedule: %w", err)
	}

	now := m.now()
	offset, err := clock.OffsetMinutes(timezone, m.server, now)
	if err != nil {
		return 0, err
	}

	jobs := make([]model.Job, 0, len(times))
	for _, t := range times {
		fireAt, err := m.nextFireAt(t.Shift(offset), now)
		if err != nil {
			return 0, err
		}
		jobs = append(jobs, model.Job{
			Kind:       m.kind,
			Owner:      owner,
			Target:     target,
			NextFireAt: fireAt,
			Interval:   model.DefaultInterval,
		})
	}

	if _, err = m.storage.CreateJobs(ctx, jobs); err != nil {
		return 0, fmt.Errorf("failed saving new schedule: %w", err)
	}

	fields := log.Fields{"owner": owner, "target": target, "times": clock.JoinTimes(times), "timezone": timezone}
	if len(superseded) > 0 {
		deleted, err := m.storage.DeleteJobs(ctx, jobIds(superseded))
		if err != nil {
			log.WithFields(fields).WithField("error", err).Error("Failed deleting superseded jobs")
		} else {
			fields["deleted"] = deleted
		}
	}
	log.WithFields(fields).Info("Scheduled updates")
	return len(jobs), nil
}

// DisableUpdates deletes every job of (owner, target). Nothing is written
// when there is nothing scheduled.
func (m *Manager) DisableUpdates(ctx context.Context, owner, target string) (int64, error) {
	unlock := m.lockPair(owner, target)
	defer unlock()
	jobs, err := m.storage.FindJobs(ctx, m.kind, owner, target)
	if err != nil {
		return 0, fmt.Errorf("failed finding schedule: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	deleted, err := m.storage.DeleteJobs(ctx, jobIds(jobs))
	if err != nil {
		return 0, fmt.Errorf("failed deleting schedule: %w", err)
	}
	log.WithFields(log.Fields{"owner": owner, "target": target, "deleted": deleted}).Info("Disabled updates")
	return deleted, nil
}

// ScheduleTimes yields the upcoming fire instants of target in ascending
// order. Every range over the sequence queries the store again.
func (m *Manager) ScheduleTimes(ctx context.Context, target string) iter.Seq2[time.Time, error] {
	return func(yield func(time.Time, error) bool) {
		jobs, err := m.storage.FindTargetJobs(ctx, m.kind, target)
		if err != nil {
			yield(time.Time{}, fmt.Errorf("failed reading schedule: %w", err))
			return
		}
		for _, job := range jobs {
			if !yield(job.NextFireAt, nil) {
				return
			}
		}
	}
}

// nextFireAt returns the first instant after now at which the server clock
// shows t. The second within the minute grows with the minute of the day so
// jobs of neighbouring minutes do not all start at second zero.
func (m *Manager) nextFireAt(t clock.Time, now time.Time) (time.Time, error) {
	second := t.MinuteOfDay() * 60 / clock.MinutesPerDay
	spec := fmt.Sprintf("CRON_TZ=%s %d %d %d * * *", m.server, second, t.Minute(), t.Hour())
	schedule, err := secondsParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed parsing schedule %q: %w", spec, err)
	}
	return schedule.Next(now), nil
}

func jobIds(jobs []model.Job) []model.JobId {
	ids := make([]model.JobId, len(jobs))
	for i, job := range jobs {
		ids[i] = job.Id
	}
	return ids
}
