package database

import (
	"errors"
	"fmt"
	"strings"

	"tasksync/internal/domain"
	"tasksync/internal/models"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// classify marks SQLite constraint failures so callers can tell bad input
// apart from I/O trouble.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", domain.ErrConstraint, err)
	}
	return err
}

func validateTask(task *models.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", domain.ErrConstraint)
	}
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrConstraint)
	}
	if task.Priority != "" && !task.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", domain.ErrConstraint, task.Priority)
	}
	if (task.Latitude == nil) != (task.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", domain.ErrConstraint)
	}
	return nil
}
