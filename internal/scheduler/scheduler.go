// Package scheduler fires due jobs from the job storage on a bounded pool of
// goroutines.
package scheduler

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"resume-scheduler/internal/action"
	"resume-scheduler/internal/model"
	"resume-scheduler/internal/notify"
	"sync"
	"time"
)

const (
	DefaultPingInterval  = 5 * time.Second
	DefaultMaxConcurrent = 100
	DefaultJobTimeout    = 30 * time.Second

	storageOperationTimeout = 5 * time.Second
	notifyTimeout           = 10 * time.Second
)

type Config struct {
	PingInterval  time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
}

type Scheduler struct {
	storage       model.JobStorage
	notifier      notify.Notifier
	handlers      map[model.Kind]action.Handler
	pingInterval  time.Duration
	maxConcurrent int64
	jobTimeout    time.Duration
	slots         *semaphore.Weighted
	runningWg     *sync.WaitGroup
	now           func() time.Time
}

func New(storage model.JobStorage, notifier notify.Notifier, cfg Config) *Scheduler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Scheduler{
		storage:       storage,
		notifier:      notifier,
		handlers:      make(map[model.Kind]action.Handler),
		pingInterval:  cfg.PingInterval,
		maxConcurrent: int64(cfg.MaxConcurrent),
		jobTimeout:    cfg.JobTimeout,
		slots:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		runningWg:     &sync.WaitGroup{},
		now:           time.Now,
	}
}

// Register sets the handler for jobs of kind. It must be called before Start.
func (skd *Scheduler) Register(kind model.Kind, handler action.Handler) {
	skd.handlers[kind] = handler
}

// Start polls for due jobs until ctx is cancelled, then waits for jobs that
// are still running.
func (skd *Scheduler) Start(ctx context.Context) {
	log.WithFields(log.Fields{
		"pingInterval":  skd.pingInterval,
		"maxConcurrent": skd.maxConcurrent,
	}).Info("Scheduler started")
	defer skd.runningWg.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler stopping")
			return
		case <-time.After(skd.pingInterval):
			skd.startDueJobs(ctx)
		}
	}
}

// startDueJobs claims at most as many due jobs as there are free slots and
// runs each of them on its own goroutine.
func (skd *Scheduler) startDueJobs(ctx context.Context) {
	var free int64
	for free < skd.maxConcurrent && skd.slots.TryAcquire(1) {
		free++
	}
	if free == 0 {
		return
	}

	claimCtx, cancel := context.WithTimeout(ctx, storageOperationTimeout)
	jobs, err := skd.storage.ClaimDueJobs(claimCtx, skd.now(), int(free))
	cancel()
	if err != nil {
		skd.slots.Release(free)
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Error claiming due jobs")
		return
	}
	skd.slots.Release(free - int64(len(jobs)))

	for _, job := range jobs {
		skd.runningWg.Add(1)
		go func(job model.Job) {
			defer skd.runningWg.Done()
			defer skd.slots.Release(1)
			skd.execute(ctx, job)
		}(job)
	}
}

func (skd *Scheduler) execute(ctx context.Context, job model.Job) {
	fields := log.Fields{"job": job.Id, "kind": job.Kind, "owner": job.Owner, "target": job.Target}
	log.WithFields(fields).Info("Executing job")

	result := model.RunResult{StartedAt: skd.now()}
	result.Err = skd.run(ctx, job)
	result.FinishedAt = skd.now()

	if result.Err != nil {
		category := action.Classify(result.Err)
		log.WithFields(fields).WithFields(log.Fields{
			"error":    result.Err,
			"category": category,
		}).Error("Error executing job")
		skd.report(ctx, job, category)
	} else {
		log.WithFields(fields).Info("Job succeeded")
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storageOperationTimeout)
	defer cancel()
	if err := skd.storage.ReleaseJob(releaseCtx, job, result); err != nil {
		log.WithFields(fields).WithField("error", err).Error("Error releasing job")
	}
}

func (skd *Scheduler) run(ctx context.Context, job model.Job) (err error) {
	handler, ok := skd.handlers[job.Kind]
	if !ok {
		return fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	// Stopping the loop lets running jobs finish within their timeout.
	timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), skd.jobTimeout)
	defer cancel()
	return handler.Execute(timeoutCtx, job.Owner, job.Target)
}

func (skd *Scheduler) report(ctx context.Context, job model.Job, category action.Category) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := skd.notifier.Notify(notifyCtx, job.Owner, action.Message(category)); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"owner": job.Owner,
			"job":   job.Id,
		}).Warn("Error notifying job owner")
	}
}
