package database

import (
	"context"
	"testing"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueue_OneEntryPerMutationInOrder(t *testing.T) {
	db := setupTestDB(t)
	clock := newFakeClock()
	db.now = clock.Now
	ctx := context.Background()

	a, err := db.CreateTask(ctx, &models.Task{Title: "a"})
	require.NoError(t, err)
	b, err := db.CreateTask(ctx, &models.Task{Title: "b"})
	require.NoError(t, err)
	a.Title = "a2"
	_, err = db.UpdateTask(ctx, a)
	require.NoError(t, err)
	_, err = db.DeleteTask(ctx, b.ID)
	require.NoError(t, err)

	entries, err := db.DrainSyncQueue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	want := []struct {
		taskID int64
		op     models.Operation
	}{
		{a.ID, models.OpCreate},
		{b.ID, models.OpCreate},
		{a.ID, models.OpUpdate},
		{b.ID, models.OpDelete},
	}
	for i, w := range want {
		assert.Equal(t, w.taskID, entries[i].TaskID, "entry %d", i)
		assert.Equal(t, w.op, entries[i].Operation, "entry %d", i)
		if i > 0 {
			assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
		}
	}

	// Draining does not remove anything.
	again, err := db.DrainSyncQueue(ctx)
	require.NoError(t, err)
	require.Len(t, again, len(entries))
	for i := range entries {
		assert.Equal(t, entries[i].ID, again[i].ID)
	}
}

func TestSyncQueue_Acknowledge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.CreateTask(ctx, &models.Task{Title: "a"})
	require.NoError(t, err)
	_, err = db.CreateTask(ctx, &models.Task{Title: "b"})
	require.NoError(t, err)

	entries, err := db.DrainSyncQueue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, db.AcknowledgeSyncEntry(ctx, entries[0].ID))
	require.NoError(t, db.AcknowledgeSyncEntry(ctx, entries[0].ID))

	rest, err := db.DrainSyncQueue(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, entries[1].ID, rest[0].ID)

	count, err := db.PendingSyncCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncQueue_EnqueueAndPendingForTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := &models.SyncEntry{TaskID: 7, Operation: models.OpDelete}
	require.NoError(t, db.EnqueueSyncEntry(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	err := db.EnqueueSyncEntry(ctx, &models.SyncEntry{TaskID: 7, Operation: "PATCH"})
	assert.True(t, domain.IsConstraint(err))

	pending, err := db.PendingForTask(ctx, 7)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.ID, pending[0].ID)

	none, err := db.PendingForTask(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSyncQueue_EmptyDrain(t *testing.T) {
	db := setupTestDB(t)
	entries, err := db.DrainSyncQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSyncQueue_DrainOrdersByTimestampThenID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Stored timestamps have fraction parts of different lengths, and two of
	// them are equal.
	offsets := []time.Duration{
		500 * time.Millisecond,
		0,
		450 * time.Millisecond,
		500 * time.Millisecond,
		time.Nanosecond,
		time.Second,
	}
	ids := make([]int64, len(offsets))
	for i, off := range offsets {
		entry := &models.SyncEntry{TaskID: int64(i + 1), Operation: models.OpDelete, Timestamp: base.Add(off)}
		require.NoError(t, db.EnqueueSyncEntry(ctx, entry))
		ids[i] = entry.ID
	}

	entries, err := db.DrainSyncQueue(ctx)
	require.NoError(t, err)

	got := make([]int64, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.ID)
	}
	assert.Equal(t, []int64{ids[1], ids[4], ids[2], ids[0], ids[3], ids[5]}, got)

	for _, e := range entries {
		assert.True(t, e.Timestamp.Equal(base.Add(offsets[e.TaskID-1])), "entry %d", e.ID)
	}

	pending, err := db.PendingForTask(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[0], pending[0].ID)
}
