// Package payload encodes task snapshots stored in the outbox.
package payload

import (
	"encoding/json"
	"errors"

	"tasksync/internal/domain"
	"tasksync/internal/models"
)

// Encode serializes a full task snapshot.
func Encode(task *models.Task) (string, error) {
	if task == nil {
		return "", &domain.SerializationError{Err: errors.New("task is nil")}
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return "", &domain.SerializationError{Err: err}
	}
	return string(raw), nil
}

// Decode turns an outbox entry payload back into a task.
func Decode(entry models.SyncEntry) (*models.Task, error) {
	if entry.Payload == nil || *entry.Payload == "" {
		return nil, &domain.SerializationError{EntryID: entry.ID, Err: errors.New("payload missing")}
	}
	var task models.Task
	if err := json.Unmarshal([]byte(*entry.Payload), &task); err != nil {
		return nil, &domain.SerializationError{EntryID: entry.ID, Err: err}
	}
	if task.ID == 0 {
		task.ID = entry.TaskID
	}
	if task.ID != entry.TaskID {
		return nil, &domain.SerializationError{EntryID: entry.ID, Err: errors.New("payload task id does not match entry")}
	}
	return &task, nil
}
