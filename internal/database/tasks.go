package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"
)

const taskColumns = `id, title, description, priority, completed, created_at,
	photo_path, completed_at, completed_by, latitude, longitude, location_name,
	is_synced, last_modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t            models.Task
		priority     string
		photoPath    sql.NullString
		completedAt  sql.NullTime
		completedBy  sql.NullString
		latitude     sql.NullFloat64
		longitude    sql.NullFloat64
		locationName sql.NullString
		lastModified sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &priority, &t.Completed, &t.CreatedAt,
		&photoPath, &completedAt, &completedBy, &latitude, &longitude, &locationName,
		&t.IsSynced, &lastModified,
	)
	if err != nil {
		return nil, err
	}

	t.Priority = models.Priority(priority)
	if photoPath.Valid {
		t.PhotoPath = &photoPath.String
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	if completedBy.Valid {
		t.CompletedBy = &completedBy.String
	}
	if latitude.Valid {
		t.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		t.Longitude = &longitude.Float64
	}
	if locationName.Valid {
		t.LocationName = &locationName.String
	}
	if lastModified.Valid {
		t.LastModified = lastModified.Time
	}
	return &t, nil
}

func nullTime(t *models.Task) any {
	if t.CompletedAt == nil {
		return nil
	}
	return t.CompletedAt.UTC()
}

// CreateTask stores a new task and its CREATE outbox entry atomically. The
// returned copy carries the assigned id; it is never marked synced.
func (db *DB) CreateTask(ctx context.Context, task *models.Task) (*models.Task, error) {
	if err := validateTask(task); err != nil {
		return nil, domain.NewStorageError("create task", err)
	}

	now := db.now().UTC()
	created := *task
	created.ID = 0
	created.IsSynced = false
	created.LastModified = now
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.CreatedAt = created.CreatedAt.UTC()
	if created.Priority == "" {
		created.Priority = models.PriorityMedium
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO tasks (
				title, description, priority, completed, created_at,
				photo_path, completed_at, completed_by, latitude, longitude, location_name,
				is_synced, last_modified
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
		result, err := tx.ExecContext(ctx, query,
			created.Title,
			created.Description,
			string(created.Priority),
			created.Completed,
			created.CreatedAt,
			created.PhotoPath,
			nullTime(&created),
			created.CompletedBy,
			created.Latitude,
			created.Longitude,
			created.LocationName,
			created.LastModified,
		)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		created.ID = id

		return enqueueTx(ctx, tx, created.ID, models.OpCreate, &created, now)
	})
	if err != nil {
		return nil, domain.NewStorageError("create task", classify(err))
	}

	db.logger.Debug().Int64("task_id", created.ID).Msg("Task created")
	return &created, nil
}

// GetTask returns nil, nil when no task has the id.
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	task, err := getTask(ctx, db, id)
	if err != nil {
		return nil, domain.NewStorageError("get task", err)
	}
	return task, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryRower, id int64) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns every task, newest first.
func (db *DB) ListTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, domain.NewStorageError("list tasks", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, domain.NewStorageError("list tasks", fmt.Errorf("failed to scan task: %w", err))
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list tasks", err)
	}
	return tasks, nil
}

// UpdateTask overwrites the task's content, marks it unsynced and appends an
// UPDATE entry holding the stored row. It returns the number of rows changed;
// zero means no such task and nothing is queued.
func (db *DB) UpdateTask(ctx context.Context, task *models.Task) (int64, error) {
	if err := validateTask(task); err != nil {
		return 0, domain.NewStorageError("update task", err)
	}
	if task.ID == 0 {
		return 0, nil
	}

	priority := task.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := db.now().UTC()

	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE tasks SET
				title = ?, description = ?, priority = ?, completed = ?,
				photo_path = ?, completed_at = ?, completed_by = ?,
				latitude = ?, longitude = ?, location_name = ?,
				is_synced = 0, last_modified = ?
			WHERE id = ?`
		result, err := tx.ExecContext(ctx, query,
			task.Title,
			task.Description,
			string(priority),
			task.Completed,
			task.PhotoPath,
			nullTime(task),
			task.CompletedBy,
			task.Latitude,
			task.Longitude,
			task.LocationName,
			now,
			task.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		stored, err := getTask(ctx, tx, task.ID)
		if err != nil {
			return err
		}
		return enqueueTx(ctx, tx, task.ID, models.OpUpdate, stored, now)
	})
	if err != nil {
		return 0, domain.NewStorageError("update task", classify(err))
	}

	if affected > 0 {
		task.Priority = priority
		task.IsSynced = false
		task.LastModified = now
	}
	return affected, nil
}

// DeleteTask removes the row and queues a DELETE entry without payload.
func (db *DB) DeleteTask(ctx context.Context, id int64) (int64, error) {
	now := db.now().UTC()

	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		return enqueueTx(ctx, tx, id, models.OpDelete, nil, now)
	})
	if err != nil {
		return 0, domain.NewStorageError("delete task", classify(err))
	}
	return affected, nil
}

// ConfirmSyncEntry is called after an entry was handled. It removes the entry
// and, for creates and updates, marks the task synced unless newer entries for
// it are still waiting. last_modified is untouched. A non-zero pushedAt is the
// server stamp of the version just written and is remembered for the task; a
// delete forgets it.
func (db *DB) ConfirmSyncEntry(ctx context.Context, entry models.SyncEntry, pushedAt time.Time) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, entry.ID); err != nil {
			return fmt.Errorf("failed to acknowledge sync entry: %w", err)
		}
		if entry.Operation == models.OpDelete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM remote_versions WHERE task_id = ?`, entry.TaskID); err != nil {
				return fmt.Errorf("failed to forget remote version: %w", err)
			}
			return nil
		}
		if !pushedAt.IsZero() {
			query := `INSERT INTO remote_versions (task_id, server_modified_at) VALUES (?, ?)
              ON CONFLICT(task_id) DO UPDATE SET server_modified_at = excluded.server_modified_at`
			if _, err := tx.ExecContext(ctx, query, entry.TaskID, pushedAt.UnixNano()); err != nil {
				return fmt.Errorf("failed to remember remote version: %w", err)
			}
		}
		query := `UPDATE tasks SET is_synced = 1
              WHERE id = ? AND NOT EXISTS (SELECT 1 FROM sync_queue WHERE task_id = ?)`
		if _, err := tx.ExecContext(ctx, query, entry.TaskID, entry.TaskID); err != nil {
			return fmt.Errorf("failed to mark task synced: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.NewStorageError("confirm sync entry", err)
	}
	return nil
}

// PushedVersion returns the server stamp of the last version this client
// wrote for the task, or the zero time when there is none.
func (db *DB) PushedVersion(ctx context.Context, taskID int64) (time.Time, error) {
	var nanos int64
	err := db.QueryRowContext(ctx, `SELECT server_modified_at FROM remote_versions WHERE task_id = ?`, taskID).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, domain.NewStorageError("pushed version", err)
	}
	return time.Unix(0, nanos).UTC(), nil
}
