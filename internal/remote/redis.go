package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/domain"
	"tasksync/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	fieldPayload    = "payload"
	fieldModifiedAt = "modified_at"
)

// Redis keeps one hash per task: the JSON payload and the server
// modification time in unix nanoseconds.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "tasksync:task:"
	}
	return &Redis{client: client, prefix: keyPrefix, now: time.Now}
}

func (r *Redis) key(taskID int64) string {
	return r.prefix + strconv.FormatInt(taskID, 10)
}

func (r *Redis) FetchVersion(ctx context.Context, taskID int64) (*models.RemoteVersion, error) {
	if r.client == nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, fmt.Errorf("redis client is nil"))
	}
	fields, err := r.client.HGetAll(ctx, r.key(taskID)).Result()
	if err != nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err))
	}
	if len(fields) == 0 {
		return nil, nil
	}

	var version models.RemoteVersion
	if err := json.Unmarshal([]byte(fields[fieldPayload]), &version.Task); err != nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, fmt.Errorf("failed to unmarshal task: %w", err))
	}
	nanos, err := strconv.ParseInt(fields[fieldModifiedAt], 10, 64)
	if err != nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, fmt.Errorf("bad modified_at: %w", err))
	}
	version.ServerModifiedAt = time.Unix(0, nanos).UTC()
	return &version, nil
}

func (r *Redis) Push(ctx context.Context, task *models.Task) (time.Time, error) {
	if task == nil {
		return time.Time{}, domain.NewRemoteError(OpPush, 0, domain.ErrRemoteRejected)
	}
	if r.client == nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, fmt.Errorf("redis client is nil"))
	}
	data, err := json.Marshal(task)
	if err != nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, fmt.Errorf("failed to marshal task: %w", err))
	}

	nanos := r.now().UnixNano()
	err = r.client.HSet(ctx, r.key(task.ID),
		fieldPayload, data,
		fieldModifiedAt, strconv.FormatInt(nanos, 10),
	).Err()
	if err != nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err))
	}
	return time.Unix(0, nanos).UTC(), nil
}

func (r *Redis) PushDelete(ctx context.Context, taskID int64) error {
	if r.client == nil {
		return domain.NewRemoteError(OpDelete, taskID, fmt.Errorf("redis client is nil"))
	}
	if err := r.client.Del(ctx, r.key(taskID)).Err(); err != nil {
		return domain.NewRemoteError(OpDelete, taskID, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err))
	}
	return nil
}

// Ping проверяет соединение с Redis
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
