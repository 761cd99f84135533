package cron

import (
	"context"
	"log/slog"

	"github.com/flemzord/tgbridge/internal/store"
)

// ContactRefresher is the manager operation behind ContactRefreshJob.
type ContactRefresher interface {
	RefreshContacts(ctx context.Context) (added, updated int, err error)
}

// MessageReader is the manager operation behind MessageReadJob.
type MessageReader interface {
	ReadNewMessages(ctx context.Context) ([]store.Message, error)
}

// ContactRefreshJob merges the live contact list into the store.
type ContactRefreshJob struct {
	Manager      ContactRefresher
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/15 * * * *"
}

var _ Job = (*ContactRefreshJob)(nil)

// Name implements Job.
func (j *ContactRefreshJob) Name() string { return "contacts.refresh" }

// Schedule implements Job.
func (j *ContactRefreshJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run implements Job.
func (j *ContactRefreshJob) Run(ctx context.Context) error {
	added, updated, err := j.Manager.RefreshContacts(ctx)
	if err != nil {
		return err
	}
	if added > 0 && j.Logger != nil {
		j.Logger.Info("cron: new contacts", "count", added, "updated", updated)
	}
	return nil
}

// MessageReadJob stores incoming messages of unread dialogs.
type MessageReadJob struct {
	Manager      MessageReader
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "* * * * *"
}

var _ Job = (*MessageReadJob)(nil)

// Name implements Job.
func (j *MessageReadJob) Name() string { return "messages.read" }

// Schedule implements Job.
func (j *MessageReadJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run implements Job.
func (j *MessageReadJob) Run(ctx context.Context) error {
	msgs, err := j.Manager.ReadNewMessages(ctx)
	if err != nil {
		return err
	}
	if len(msgs) > 0 && j.Logger != nil {
		j.Logger.Debug("cron: messages collected", "count", len(msgs))
	}
	return nil
}
