package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding one field per partition.
const DefaultRedisKey = "jira-scraper:checkpoint"

// RedisBackend stores the checkpoint in a Redis hash, one field per
// partition, so several hosts can share progress.
type RedisBackend struct {
	redis *redis.Client
	key   string
}

// NewRedisBackend creates a Redis-backed checkpoint. An empty key selects
// DefaultRedisKey.
func NewRedisBackend(redisClient *redis.Client, key string) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{
		redis: redisClient,
		key:   key,
	}
}

// Key returns the Redis hash key.
func (r *RedisBackend) Key() string {
	return r.key
}

// Load reads every partition field of the hash. A field that does not
// decode makes the whole checkpoint corrupt.
func (r *RedisBackend) Load(ctx context.Context) (Checkpoint, error) {
	fields, err := r.redis.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	cp := make(Checkpoint, len(fields))
	for partition, value := range fields {
		var p Progress
		if err := json.Unmarshal([]byte(value), &p); err != nil {
			return nil, fmt.Errorf("decode checkpoint field %q: %w", partition, wrapCorrupt(err))
		}
		cp[partition] = p
	}

	return cp, nil
}

// Put sets the partition's field. Other fields are left untouched.
func (r *RedisBackend) Put(ctx context.Context, partition string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress %q: %w", partition, err)
	}

	if err := r.redis.HSet(ctx, r.key, partition, data).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", partition, err)
	}
	return nil
}

// Delete removes partition fields, or the whole hash when none are given.
func (r *RedisBackend) Delete(ctx context.Context, partitions ...string) error {
	var err error
	if len(partitions) == 0 {
		err = r.redis.Del(ctx, r.key).Err()
	} else {
		err = r.redis.HDel(ctx, r.key, partitions...).Err()
	}
	if err != nil {
		return fmt.Errorf("delete checkpoint in redis: %w", err)
	}
	return nil
}
