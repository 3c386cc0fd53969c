// Package cron implements a job scheduler for recurring tasks
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds cron runner configuration
type Config struct {
	Timeout time.Duration // Per-run deadline handed to jobs
}

// JobFunc is the work done on each tick
type JobFunc func(ctx context.Context)

// Job describes a registered job
type Job struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	RunCount  int        `json:"run_count"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// Runner manages scheduled job execution
type Runner struct {
	config  Config
	cron    *cron.Cron
	jobs    map[cron.EntryID]*Job
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a new cron runner
func NewRunner(config Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	adapter := cronLogger{logger.Sugar()}

	return &Runner{
		config: config,
		cron: cron.New(cron.WithChain(
			cron.Recover(adapter),
			cron.SkipIfStillRunning(adapter),
		)),
		jobs:   make(map[cron.EntryID]*Job),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.running = true
	r.cron.Start()
	r.logger.Info("Cron runner started", zap.Int("jobs", len(r.jobs)))

	return nil
}

// Stop stops the cron runner and waits for running jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// AddJob schedules fn under a standard cron expression or descriptor
// such as "@every 5m" or "0 9 * * *"
func (r *Runner) AddJob(name, spec string, fn JobFunc) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &Job{Name: name, Spec: spec}

	id, err := r.cron.AddFunc(spec, func() {
		r.executeJob(job, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	job.ID = int(id)
	r.jobs[id] = job

	r.logger.Info("Scheduled job added",
		zap.Int("job_id", job.ID),
		zap.String("name", name),
		zap.String("spec", spec),
	)

	return job, nil
}

// RemoveJob removes a scheduled job
func (r *Runner) RemoveJob(jobID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cron.Remove(cron.EntryID(jobID))
	delete(r.jobs, cron.EntryID(jobID))
}

// ListJobs returns all scheduled jobs ordered by id
func (r *Runner) ListJobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, 0, len(r.jobs))
	for id, job := range r.jobs {
		j := *job
		if next := r.cron.Entry(id).Next; !next.IsZero() {
			j.NextRunAt = &next
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// executeJob runs a single scheduled job
func (r *Runner) executeJob(job *Job, fn JobFunc) {
	now := time.Now()

	r.mu.Lock()
	job.LastRunAt = &now
	job.RunCount++
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()

	fn(ctx)

	r.logger.Debug("Job completed",
		zap.Int("job_id", job.ID),
		zap.String("name", job.Name),
		zap.Duration("took", time.Since(now)),
	)
}

// cronLogger routes scheduler events to zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
