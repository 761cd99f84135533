// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/store"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockManager implements cron.ContactRefresher and cron.MessageReader.
type MockManager struct {
	RefreshFunc func(ctx context.Context) (int, int, error)
	ReadFunc    func(ctx context.Context) ([]store.Message, error)

	RefreshCalls atomic.Int32
	ReadCalls    atomic.Int32
}

var (
	_ cron.ContactRefresher = (*MockManager)(nil)
	_ cron.MessageReader    = (*MockManager)(nil)
)

// RefreshContacts implements cron.ContactRefresher.
func (m *MockManager) RefreshContacts(ctx context.Context) (int, int, error) {
	m.RefreshCalls.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return 0, 0, nil
}

// ReadNewMessages implements cron.MessageReader.
func (m *MockManager) ReadNewMessages(ctx context.Context) ([]store.Message, error) {
	m.ReadCalls.Add(1)
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx)
	}
	return nil, nil
}
