package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocal_ExclusiveUntilUnlock(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	token, ok, err := l.TryLock(ctx, "materialize:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, "materialize:1", time.Minute); ok {
		t.Fatal("expected second lock on same key to fail")
	}
	if _, ok, _ := l.TryLock(ctx, "materialize:2", time.Minute); !ok {
		t.Fatal("expected other key to be independent")
	}

	if err := l.Unlock(ctx, "materialize:1", "someone-else"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld for foreign token, got %v", err)
	}
	if err := l.Unlock(ctx, "materialize:1", token); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, "materialize:1", time.Minute); !ok {
		t.Fatal("expected lock to be available after unlock")
	}
}

func TestLocal_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.clock = func() time.Time { return now }

	if _, ok, _ := l.TryLock(ctx, "k", time.Second); !ok {
		t.Fatal("expected lock")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := l.TryLock(ctx, "k", time.Second); !ok {
		t.Fatal("expected expired lock to be taken over")
	}
}

func TestLocal_EvictsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.clock = func() time.Time { return now }

	for _, key := range []string{"materialize:1", "materialize:2"} {
		if _, ok, _ := l.TryLock(ctx, key, time.Second); !ok {
			t.Fatalf("expected lock on %s", key)
		}
	}
	if _, ok, _ := l.TryLock(ctx, "materialize:3", time.Minute); !ok {
		t.Fatal("expected lock on materialize:3")
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := l.TryLock(ctx, "materialize:4", time.Minute); !ok {
		t.Fatal("expected lock on materialize:4")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.held) != 2 {
		t.Errorf("expected only the two live keys to remain, got %d: %v", len(l.held), l.held)
	}
	if _, ok := l.held["materialize:1"]; ok {
		t.Error("expired key still held")
	}
}

func TestAcquire_SerializesHolders(t *testing.T) {
	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok, err := Acquire(context.Background(), l, "hospital:3", time.Minute, 5*time.Second)
			if err != nil || !ok {
				t.Errorf("acquire: ok=%v err=%v", ok, err)
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("expected at most one holder, saw %d", maxInside)
	}
}

func TestAcquire_GivesUpAfterWait(t *testing.T) {
	l := NewLocal()
	if _, ok, _ := l.TryLock(context.Background(), "busy", time.Minute); !ok {
		t.Fatal("expected lock")
	}
	_, ok, err := Acquire(context.Background(), l, "busy", time.Minute, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected acquire to give up while key is held")
	}
}

func TestRedis_LockUnlock(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	l := NewRedis(client, "agenda-test:")
	key := "lock-" + time.Now().Format("150405.000000")
	token, ok, err := l.TryLock(ctx, key, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected lock, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, key, 5*time.Second); ok {
		t.Fatal("expected contention")
	}
	if err := l.Unlock(ctx, key, "wrong"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}
	if err := l.Unlock(ctx, key, token); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}
