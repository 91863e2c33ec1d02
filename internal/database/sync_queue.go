package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"
	"tasksync/internal/payload"
)

const syncEntryColumns = `id, task_id, operation, payload, timestamp`

// enqueueTx appends an outbox entry inside the caller's transaction. A nil
// task produces an entry without payload.
func enqueueTx(ctx context.Context, tx *sql.Tx, taskID int64, op models.Operation, task *models.Task, at time.Time) error {
	var body *string
	if task != nil {
		encoded, err := payload.Encode(task)
		if err != nil {
			return err
		}
		body = &encoded
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO sync_queue (task_id, operation, payload, timestamp) VALUES (?, ?, ?, ?)`,
		taskID, string(op), body, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync entry: %w", err)
	}
	return nil
}

// EnqueueSyncEntry appends an entry on its own. Task mutations enqueue
// through their own transaction instead.
func (db *DB) EnqueueSyncEntry(ctx context.Context, entry *models.SyncEntry) error {
	if entry == nil || !entry.Operation.Valid() {
		return domain.NewStorageError("enqueue sync entry", fmt.Errorf("%w: invalid operation", domain.ErrConstraint))
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = db.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	result, err := db.ExecContext(ctx,
		`INSERT INTO sync_queue (task_id, operation, payload, timestamp) VALUES (?, ?, ?, ?)`,
		entry.TaskID, string(entry.Operation), entry.Payload, entry.Timestamp,
	)
	if err != nil {
		return domain.NewStorageError("enqueue sync entry", classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.NewStorageError("enqueue sync entry", err)
	}
	entry.ID = id
	return nil
}

// DrainSyncQueue returns a snapshot of all pending entries, oldest first. It
// does not remove anything.
func (db *DB) DrainSyncQueue(ctx context.Context) ([]models.SyncEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+syncEntryColumns+` FROM sync_queue ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, domain.NewStorageError("drain sync queue", err)
	}
	return collectEntries(rows)
}

// PendingForTask lists the entries still waiting for one task.
func (db *DB) PendingForTask(ctx context.Context, taskID int64) ([]models.SyncEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+syncEntryColumns+` FROM sync_queue WHERE task_id = ? ORDER BY timestamp ASC, id ASC`, taskID)
	if err != nil {
		return nil, domain.NewStorageError("pending for task", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]models.SyncEntry, error) {
	defer rows.Close()

	var entries []models.SyncEntry
	for rows.Next() {
		var (
			e    models.SyncEntry
			op   string
			body sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &op, &body, &e.Timestamp); err != nil {
			return nil, domain.NewStorageError("scan sync entry", err)
		}
		e.Operation = models.Operation(op)
		if body.Valid {
			e.Payload = &body.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("scan sync entry", err)
	}
	return entries, nil
}

// AcknowledgeSyncEntry removes a single entry. Removing an entry that is
// already gone is not an error.
func (db *DB) AcknowledgeSyncEntry(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return domain.NewStorageError("acknowledge sync entry", err)
	}
	return nil
}

func (db *DB) PendingSyncCount(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, domain.NewStorageError("pending sync count", err)
	}
	return count, nil
}
