// Package remote holds implementations of the remote task service the sync
// engine pushes to.
package remote

import (
	"context"
	"sync"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"
)

// Call is one request observed by Memory.
type Call struct {
	Op     string
	TaskID int64
}

const (
	OpFetch  = "fetch"
	OpPush   = "push"
	OpDelete = "delete"
)

// FaultFunc may return an error to fail a call before it is applied.
type FaultFunc func(op string, taskID int64) error

// Memory is an in-process remote with its own clock. It is the default when
// nothing else is configured and doubles as a test fake.
type Memory struct {
	mu      sync.Mutex
	tasks   map[int64]models.RemoteVersion
	calls   []Call
	fault   FaultFunc
	latency time.Duration
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[int64]models.RemoteVersion),
		now:   time.Now,
	}
}

// SetClock replaces the server clock used to stamp writes.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetFault installs a fault hook; nil clears it.
func (m *Memory) SetFault(f FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

// SetLatency delays every call by d, or until the context is done.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Seed stores a version as if another client had written it.
func (m *Memory) Seed(task models.Task, modifiedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = models.RemoteVersion{Task: task, ServerModifiedAt: modifiedAt}
}

// Get returns the stored version without recording a call.
func (m *Memory) Get(taskID int64) (models.RemoteVersion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tasks[taskID]
	return v, ok
}

// Calls returns a copy of the observed calls in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Memory) begin(ctx context.Context, op string, taskID int64) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: op, TaskID: taskID})
	latency := m.latency
	fault := m.fault
	m.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fault != nil {
		return fault(op, taskID)
	}
	return nil
}

func (m *Memory) FetchVersion(ctx context.Context, taskID int64) (*models.RemoteVersion, error) {
	if err := m.begin(ctx, OpFetch, taskID); err != nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) Push(ctx context.Context, task *models.Task) (time.Time, error) {
	if task == nil {
		return time.Time{}, domain.NewRemoteError(OpPush, 0, domain.ErrRemoteRejected)
	}
	if err := m.begin(ctx, OpPush, task.ID); err != nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now().UTC()
	m.tasks[task.ID] = models.RemoteVersion{Task: *task, ServerModifiedAt: at}
	return at, nil
}

// PushDelete removes the remote copy. Deleting a missing task succeeds.
func (m *Memory) PushDelete(ctx context.Context, taskID int64) error {
	if err := m.begin(ctx, OpDelete, taskID); err != nil {
		return domain.NewRemoteError(OpDelete, taskID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}
