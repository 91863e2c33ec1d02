package database

import (
	"context"
	"fmt"

	"tasksync/internal/domain"
	"tasksync/internal/models"
)

func (db *DB) RecordConflict(ctx context.Context, conflict *models.ConflictRecord) error {
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = db.now()
	}
	query := `INSERT INTO conflict_log (
				task_id, entry_id, operation, local_timestamp, remote_timestamp, resolution, detected_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		conflict.TaskID,
		conflict.EntryID,
		string(conflict.Operation),
		conflict.LocalTimestamp.UTC(),
		conflict.RemoteTimestamp.UTC(),
		conflict.Resolution,
		conflict.DetectedAt.UTC(),
	)
	if err != nil {
		return domain.NewStorageError("record conflict", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.NewStorageError("record conflict", fmt.Errorf("failed to get last insert id: %w", err))
	}
	conflict.ID = id
	return nil
}

// ListConflicts returns logged conflicts, most recent first.
func (db *DB) ListConflicts(ctx context.Context, limit int) ([]models.ConflictRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, task_id, entry_id, operation, local_timestamp, remote_timestamp, resolution, detected_at
              FROM conflict_log ORDER BY detected_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, domain.NewStorageError("list conflicts", err)
	}
	defer rows.Close()

	var conflicts []models.ConflictRecord
	for rows.Next() {
		var c models.ConflictRecord
		var op string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.EntryID, &op, &c.LocalTimestamp, &c.RemoteTimestamp, &c.Resolution, &c.DetectedAt); err != nil {
			return nil, domain.NewStorageError("list conflicts", fmt.Errorf("failed to scan conflict: %w", err))
		}
		c.Operation = models.Operation(op)
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list conflicts", err)
	}
	return conflicts, nil
}
