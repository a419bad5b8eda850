package credentials

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskboard/taskboard/frontend/go-services/internal/tokens"
)

// RedisStore keeps the token under a single key. When the token is a JWT the
// key expires together with it, so a restart never restores a dead token.
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store. Key may be empty.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "taskboard:auth_token"
	}
	return &RedisStore{client: client, key: key, now: time.Now}
}

func (r *RedisStore) Get(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, token string) error {
	var ttl time.Duration
	if exp, ok := tokens.ExpiresAt(token); ok {
		ttl = exp.Sub(r.now())
		if ttl <= 0 {
			// already expired: nothing worth persisting
			return r.client.Del(ctx, r.key).Err()
		}
	}
	return r.client.Set(ctx, r.key, token, ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
