// Package lock provides short-lived named mutual exclusion across requests,
// in-process or backed by Redis when several replicas share a database.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotHeld is returned by Unlock when the token does not own the key.
var ErrNotHeld = errors.New("lock not held by this owner")

// Locker hands out expiring locks identified by key. The returned token must
// be presented to Unlock so a caller whose lock already expired cannot
// release someone else's.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Acquire polls TryLock until it succeeds, ctx ends, or wait elapses. The
// returned release function is safe to defer.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (release func(), ok bool, err error) {
	deadline := time.Now().Add(wait)
	delay := 10 * time.Millisecond
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return func() {
				// Use a fresh context so a cancelled request still releases.
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = l.Unlock(ctx, key, token)
			}, true, nil
		}
		if !time.Now().Before(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 200*time.Millisecond {
			delay *= 2
		}
	}
}

type entry struct {
	token   string
	expires time.Time
}

// Local is a Locker for a single process.
type Local struct {
	mu    sync.Mutex
	held  map[string]entry
	clock func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]entry), clock: time.Now}
}

func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	for k, e := range l.held {
		if !now.Before(e.expires) {
			delete(l.held, k)
		}
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = entry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *Local) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.held[key]
	if !ok {
		return nil
	}
	if e.token != token {
		return ErrNotHeld
	}
	delete(l.held, key)
	return nil
}
