// Package cache provides the Redis client and the short-lived locks used to
// keep matchmaking passes for one format from overlapping.
package cache

import (
	"context"
	"sync"
	"time"
)

// Unlock releases a lock obtained from a Locker. Releasing a lock that has
// already expired or been taken over by another holder is a no-op.
type Unlock func(ctx context.Context) error

// Locker grants exclusive, expiring leases on a key.
type Locker interface {
	// TryLock attempts to take key for ttl without blocking. ok is false when
	// someone else holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock Unlock, ok bool, err error)
}

// LocalLocker is an in-process Locker used when Redis is disabled. It only
// protects against overlap within a single replica.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localLease
	seq  uint64
	now  func() time.Time
}

type localLease struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localLease),
		now:  time.Now,
	}
}

// WithClock overrides the locker clock.
func (l *LocalLocker) WithClock(now func() time.Time) *LocalLocker {
	l.now = now
	return l
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, false, nil
	}

	l.seq++
	token := l.seq
	l.held[key] = localLease{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}
