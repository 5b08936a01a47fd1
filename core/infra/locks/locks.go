package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 10 * time.Second
	defaultWait  = 2 * time.Second
	retryBackoff = 25 * time.Millisecond
)

// ErrHeld reports that another owner holds the lock past the wait budget.
var ErrHeld = errors.New("lock held")

// Lock is a held exclusive lock. Release it exactly once.
type Lock struct {
	Resource  string
	Owner     string
	ExpiresAt time.Time
}

// RedisLocker grants exclusive, expiring locks keyed by resource name.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a locker. Zero ttl or wait use package defaults.
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if wait <= 0 {
		wait = defaultWait
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

// TryAcquire makes one attempt. ok is false when the lock is held elsewhere.
func (l *RedisLocker) TryAcquire(ctx context.Context, resource string) (*Lock, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, false, fmt.Errorf("resource required")
	}
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(resource), owner, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{Resource: resource, Owner: owner, ExpiresAt: time.Now().UTC().Add(l.ttl)}, true, nil
}

// Acquire retries TryAcquire until the wait budget or ctx runs out.
func (l *RedisLocker) Acquire(ctx context.Context, resource string) (*Lock, error) {
	deadline := time.Now().Add(l.wait)
	for {
		lock, ok, err := l.TryAcquire(ctx, resource)
		if err != nil {
			return nil, err
		}
		if ok {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, resource)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
}

// Release drops lock if it is still owned by the caller. An expired lock
// taken over by someone else is left alone.
func (l *RedisLocker) Release(ctx context.Context, lock *Lock) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("lock store unavailable")
	}
	if lock == nil {
		return false, nil
	}
	n, err := l.client.Eval(ctx, releaseScript, []string{lockKey(lock.Resource)}, lock.Owner).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// With runs fn while holding the lock on resource.
func (l *RedisLocker) With(ctx context.Context, resource string, fn func(context.Context) error) error {
	lock, err := l.Acquire(ctx, resource)
	if err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the key.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_, _ = l.Release(rctx, lock)
	}()
	return fn(ctx)
}

func lockKey(resource string) string {
	return "lock:" + resource
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
