package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aimd54/ranked-matchmaking/internal/config"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

const keyPrefix = "ranked-matchmaking:lock:"

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisLocker is a Locker shared by every replica talking to the same Redis.
type RedisLocker struct {
	client redis.Cmdable
	log    *logger.Logger
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client redis.Cmdable, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		log:    log,
	}
}

// TryLock implements Locker with SET NX PX and a random token.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		l.log.Debug().Str("key", key).Msg("Lock already held")
		return nil, false, nil
	}

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		if deleted == 0 {
			l.log.Warn().Str("key", key).Msg("Lock expired before release")
		}
		return nil
	}, true, nil
}
