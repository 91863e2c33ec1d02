package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/domain"
	"tasksync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRemote(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	r := NewRedis(client, "test:task:")
	defer r.Close()

	serverTime := time.Date(2024, 2, 3, 4, 5, 6, 7, time.UTC)
	r.now = func() time.Time { return serverTime }
	ctx := context.Background()

	require.NoError(t, r.Ping(ctx))

	t.Run("FetchMissing", func(t *testing.T) {
		v, err := r.FetchVersion(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("PushAndFetch", func(t *testing.T) {
		task := &models.Task{ID: 7, Title: "remote", Priority: models.PriorityLow}
		at, err := r.Push(ctx, task)
		require.NoError(t, err)
		assert.True(t, at.Equal(serverTime))

		assert.True(t, s.Exists("test:task:7"))
		assert.NotEmpty(t, s.HGet("test:task:7", fieldPayload))

		v, err := r.FetchVersion(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "remote", v.Task.Title)
		assert.Equal(t, models.PriorityLow, v.Task.Priority)
		assert.True(t, v.ServerModifiedAt.Equal(serverTime))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, r.PushDelete(ctx, 7))
		assert.False(t, s.Exists("test:task:7"))
		require.NoError(t, r.PushDelete(ctx, 7))
	})

	t.Run("CorruptPayload", func(t *testing.T) {
		s.HSet("test:task:9", fieldPayload, "{", fieldModifiedAt, "1")
		_, err := r.FetchVersion(ctx, 9)
		var remoteErr *domain.RemoteError
		assert.True(t, errors.As(err, &remoteErr))
	})

	t.Run("Unavailable", func(t *testing.T) {
		s.SetError("ERR server down")
		defer s.SetError("")

		_, err := r.Push(ctx, &models.Task{ID: 1, Title: "x"})
		assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	})
}
