package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/aimd54/ranked-matchmaking/internal/cache"
)

// MockLocker is an in-memory Locker that records every key it was asked for.
type MockLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	Requests []string
	Err      error
}

// NewMockLocker creates a new mock locker instance.
func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

// Hold marks key as held by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

// TryLock implements cache.Locker. The ttl is ignored.
func (m *MockLocker) TryLock(_ context.Context, key string, _ time.Duration) (cache.Unlock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, key)
	if m.Err != nil {
		return nil, false, m.Err
	}
	if m.held[key] {
		return nil, false, nil
	}
	m.held[key] = true

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, true, nil
}

// IsHeld reports whether key is currently locked.
func (m *MockLocker) IsHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}
