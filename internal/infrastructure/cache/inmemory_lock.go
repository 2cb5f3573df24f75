package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/google/uuid"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryImportLock implements the import lock with a map. It only
// protects runs inside one process.
type InMemoryImportLock struct {
	mu      sync.Mutex
	entries map[string]lockEntry
	now     func() time.Time
}

// NewInMemoryImportLock creates an in-process lock
func NewInMemoryImportLock() *InMemoryImportLock {
	return &InMemoryImportLock{
		entries: make(map[string]lockEntry),
		now:     time.Now,
	}
}

// TryLock takes the lock for ttl. An expired holder is replaced.
func (l *InMemoryImportLock) TryLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.entries[key]; held && now.Before(e.expiresAt) {
		return "", shared.ErrLocked
	}
	token := uuid.NewString()
	l.entries[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

// Unlock releases the lock if token still owns it
func (l *InMemoryImportLock) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, held := l.entries[key]
	if !held || e.token != token || !l.now().Before(e.expiresAt) {
		return ErrLockLost
	}
	delete(l.entries, key)
	return nil
}

// Close releases nothing; it mirrors RedisImportLock
func (l *InMemoryImportLock) Close() error {
	return nil
}

// Size returns the number of held or expired entries
func (l *InMemoryImportLock) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
