package models

import "time"

type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

func (o Operation) Valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// SyncEntry is one pending mutation in the outbox. Payload holds the task
// snapshot taken at mutation time and is nil for deletes.
type SyncEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	Operation Operation `json:"operation"`
	Payload   *string   `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
