package models

const (
	EventTaskCreated   = "task_created"
	EventTaskUpdated   = "task_updated"
	EventTaskDeleted   = "task_deleted"
	EventSyncStarted   = "sync_started"
	EventSyncCompleted = "sync_completed"
	EventSyncFailed    = "sync_failed"
	EventSyncConflict  = "sync_conflict"
)

const (
	// DefaultRemoteTimeout ограничивает один вызов удалённого сервиса, в секундах
	DefaultRemoteTimeout = 15

	// DefaultProbeInterval период опроса доступности сети, в секундах
	DefaultProbeInterval = 10

	// DefaultProbeTimeout таймаут одной проверки доступности, в секундах
	DefaultProbeTimeout = 3

	// SubscriberBufferSize размер буфера канала подписчика на смену сети
	SubscriberBufferSize = 8
)
