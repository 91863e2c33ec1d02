package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tasksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeClock hands out strictly increasing times one second apart.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func TestNewDB_FileAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	logger := zerolog.Nop()

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	created, err := db.CreateTask(context.Background(), &models.Task{Title: "persist me"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "persist me", got.Title)
	assert.False(t, got.IsSynced)

	count, err := reopened.PendingSyncCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMigrate_LegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT 'medium',
		completed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO tasks (title, priority, created_at) VALUES (?, ?, ?)`,
		"old task", "high", time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	logger := zerolog.Nop()
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	tasks, err := db.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "old task", task.Title)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.True(t, task.IsSynced)
	assert.False(t, task.LastModified.IsZero())
	assert.Nil(t, task.PhotoPath)
	assert.Nil(t, task.Latitude)
	assert.False(t, task.HasLocation())

	count, err := db.PendingSyncCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	// Running migrations again is a no-op.
	require.NoError(t, db.migrate())
}

func TestCreateTask_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.CreateTask(ctx, &models.Task{Title: "concurrent"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	tasks, err := db.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, workers)

	count, err := db.PendingSyncCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers, count)
}
