// Package cron runs the periodic sync jobs: refreshing stored contacts
// from the live client and collecting unread messages.
package cron

import (
	"context"
	"time"
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job.
	Name() string

	// Schedule returns a 5-field cron expression or a descriptor such as
	// "@every 30s".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// RunRecord describes the last completed run of a job.
type RunRecord struct {
	Job      string        `json:"job"`
	Schedule string        `json:"schedule"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Runs     int           `json:"runs"`
	Skipped  int           `json:"skipped"`
}

// Observer is told about every finished run.
type Observer interface {
	ObserveJob(name string, elapsed time.Duration, err error)
}
