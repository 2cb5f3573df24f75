// Package cache holds the per-product import lock: a Redis lock for
// deployments running several importers and an in-process twin.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "lock:"

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is returned by Unlock when the lock expired or was taken over
var ErrLockLost = shared.NewDomainError("LOCK_LOST", "Lock is no longer held by this token")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisImportLock implements the import lock with SET NX PX. Several
// importer processes sharing one Redis never write the same product at once.
type RedisImportLock struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisImportLock connects to Redis and verifies the connection
func NewRedisImportLock(cfg RedisConfig) (*RedisImportLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisImportLockWithClient(client, defaultKeyPrefix), nil
}

// NewRedisImportLockWithClient creates a lock on an existing client
func NewRedisImportLockWithClient(client *redis.Client, keyPrefix string) *RedisImportLock {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisImportLock{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// TryLock takes the lock for ttl and returns the token needed to release
// it. A held lock yields shared.ErrLocked.
func (l *RedisImportLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", shared.ErrLocked
	}
	return token, nil
}

// Unlock releases the lock if token still owns it
func (l *RedisImportLock) Unlock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + key}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Close closes the Redis client
func (l *RedisImportLock) Close() error {
	return l.client.Close()
}
