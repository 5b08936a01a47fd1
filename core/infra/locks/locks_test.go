package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, wait), mr
}

func TestTryAcquireRelease(t *testing.T) {
	l, _ := newTestLocker(t, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	first, ok, err := l.TryAcquire(ctx, "wfcfg:app:wf-1")
	if err != nil || !ok {
		t.Fatalf("expected first acquire, ok=%v err=%v", ok, err)
	}
	if _, ok, err := l.TryAcquire(ctx, "wfcfg:app:wf-1"); err != nil || ok {
		t.Fatalf("expected second acquire to fail, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryAcquire(ctx, "wfcfg:app:wf-2"); !ok {
		t.Fatalf("expected other resource to be free")
	}
	if released, err := l.Release(ctx, first); err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	if _, ok, _ := l.TryAcquire(ctx, "wfcfg:app:wf-1"); !ok {
		t.Fatalf("expected acquire after release")
	}
	if _, _, err := l.TryAcquire(ctx, " "); err == nil {
		t.Fatalf("expected resource required error")
	}
}

func TestReleaseIgnoresForeignOwner(t *testing.T) {
	l, mr := newTestLocker(t, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	stale, ok, _ := l.TryAcquire(ctx, "res")
	if !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Second)
	if _, ok, _ := l.TryAcquire(ctx, "res"); !ok {
		t.Fatalf("expected expired lock to be taken over")
	}
	if released, err := l.Release(ctx, stale); err != nil || released {
		t.Fatalf("stale owner must not release, released=%v err=%v", released, err)
	}
	if !mr.Exists("lock:res") {
		t.Fatalf("expected new owner's lock to remain")
	}
}

func TestAcquireTimesOut(t *testing.T) {
	l, _ := newTestLocker(t, time.Second, 60*time.Millisecond)
	ctx := context.Background()
	if _, ok, _ := l.TryAcquire(ctx, "busy"); !ok {
		t.Fatalf("expected acquire")
	}
	if _, err := l.Acquire(ctx, "busy"); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
}

func TestWithSerializesCallers(t *testing.T) {
	l, mr := newTestLocker(t, time.Second, time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.With(ctx, "shared", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("with: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive execution, saw %d concurrent", maxSeen)
	}
	if mr.Exists("lock:shared") {
		t.Fatalf("expected lock released after With")
	}
}
