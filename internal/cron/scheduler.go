package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by RunNow for names that were never registered.
var ErrUnknownJob = errors.New("cron: unknown job")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is accepted by the scheduler.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Scheduler manages periodic job execution using cron expressions.
// A job never runs in parallel with itself: a tick that finds the previous
// run still going is skipped.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	jobs     []Job
	locks    map[string]*sync.Mutex
	records  map[string]*RunRecord
	entries  map[string]cron.EntryID
	observer Observer
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]*RunRecord),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetObserver registers o to be told about finished runs.
func (s *Scheduler) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.locks[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.locks[name] = &sync.Mutex{}
	s.records[name] = &RunRecord{Job: name, Schedule: j.Schedule()}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins executing registered jobs. Returns an error if any job has
// an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(cron.WithParser(parser))
	for _, job := range s.jobs {
		name := job.Name()
		id, err := c.AddFunc(s.records[name].Schedule, func() { s.tick(job) })
		if err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
		s.entries[name] = id
	}

	s.cron = c
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) tick(job Job) {
	if _, err := s.run(s.ctx, job); errors.Is(err, errBusy) {
		s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
	}
}

var errBusy = errors.New("cron: job already running")

// run executes job unless it is already running and records the outcome.
func (s *Scheduler) run(ctx context.Context, job Job) (RunRecord, error) {
	name := job.Name()
	s.mu.Lock()
	lock := s.locks[name]
	rec := s.records[name]
	observer := s.observer
	s.mu.Unlock()

	if !lock.TryLock() {
		s.mu.Lock()
		rec.Skipped++
		snapshot := *rec
		s.mu.Unlock()
		return snapshot, errBusy
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	started := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(started)

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", name, "elapsed", elapsed)
	}
	if observer != nil {
		observer.ObserveJob(name, elapsed, err)
	}

	s.mu.Lock()
	rec.Started = started
	rec.Duration = elapsed
	rec.Error = ""
	if err != nil {
		rec.Error = err.Error()
	}
	rec.Runs++
	snapshot := *rec
	s.mu.Unlock()
	return snapshot, err
}

// Reschedule changes the schedule of a registered job. On a running
// scheduler the next tick follows the new expression.
func (s *Scheduler) Reschedule(name, expr string) error {
	if err := ValidateSchedule(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.jobs, func(j Job) bool { return j.Name() == name })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	rec := s.records[name]
	if rec.Schedule == expr {
		return nil
	}
	if s.cron != nil {
		job := s.jobs[i]
		id, err := s.cron.AddFunc(expr, func() { s.tick(job) })
		if err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
		s.cron.Remove(s.entries[name])
		s.entries[name] = id
	}
	s.logger.Info("cron: job rescheduled", "job", name, "from", rec.Schedule, "to", expr)
	rec.Schedule = expr
	return nil
}

// RunNow runs the named job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) (RunRecord, error) {
	s.mu.Lock()
	i := slices.IndexFunc(s.jobs, func(j Job) bool { return j.Name() == name })
	s.mu.Unlock()
	if i < 0 {
		return RunRecord{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.run(ctx, s.jobs[i])
}

// Records returns the last run of every job, in registration order.
func (s *Scheduler) Records() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunRecord, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *s.records[j.Name()])
	}
	return out
}

// Stop shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cancel()

	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
