package domain

import (
	"context"
	"time"

	"tasksync/internal/models"
)

// TaskRepository is the Record Store. Every mutating call writes the task row
// and its outbox entry in one transaction.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) (*models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) (int64, error)
	DeleteTask(ctx context.Context, id int64) (int64, error)
}

// SyncQueue is the outbox as seen by the sync engine.
type SyncQueue interface {
	DrainSyncQueue(ctx context.Context) ([]models.SyncEntry, error)
	AcknowledgeSyncEntry(ctx context.Context, id int64) error
	PendingSyncCount(ctx context.Context) (int, error)
}

// SyncStore is everything the sync engine needs from local storage.
type SyncStore interface {
	SyncQueue
	ConfirmSyncEntry(ctx context.Context, entry models.SyncEntry, pushedAt time.Time) error
	PushedVersion(ctx context.Context, taskID int64) (time.Time, error)
	RecordConflict(ctx context.Context, conflict *models.ConflictRecord) error
}

// RemoteTaskService is the remote source of truth. FetchVersion returns
// nil, nil when the remote side has no copy of the task. Push reports the
// server modification time it gave the stored version.
type RemoteTaskService interface {
	FetchVersion(ctx context.Context, taskID int64) (*models.RemoteVersion, error)
	Push(ctx context.Context, task *models.Task) (time.Time, error)
	PushDelete(ctx context.Context, taskID int64) error
}

// ConnectivityMonitor exposes a deduplicated reachable/unreachable signal.
type ConnectivityMonitor interface {
	CurrentState() bool
	Subscribe() (<-chan bool, func())
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncStatus is implemented by the sync engine for status reporting.
type SyncStatus interface {
	IsSyncing() bool
}
