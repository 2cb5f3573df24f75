package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/priceimport/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ImportLock is a lock that can be released at shutdown
type ImportLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
	Close() error
}

// LockFactory creates import locks based on configuration
type LockFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockFactoryOption is a functional option for configuring the factory
type LockFactoryOption func(*LockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockFactoryOption {
	return func(f *LockFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-process lock. Default is true.
func WithInMemoryFallback(allow bool) LockFactoryOption {
	return func(f *LockFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockFactory creates a new factory
func NewLockFactory(cfg config.RedisConfig, opts ...LockFactoryOption) *LockFactory {
	f := &LockFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLock returns a Redis lock when Redis is configured and reachable,
// otherwise the in-process lock if fallback is allowed.
func (f *LockFactory) CreateLock() (ImportLock, error) {
	if !f.redisConfig.Enabled() {
		f.logger.Info("Redis not configured, using in-memory import lock")
		return NewInMemoryImportLock(), nil
	}

	lock, err := NewRedisImportLock(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis import lock", zap.String("addr", f.redisConfig.Addr()))
		return lock, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for the import lock but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory import lock. "+
		"Concurrent importers on other hosts are not excluded.",
		zap.Error(err),
	)
	return NewInMemoryImportLock(), nil
}
