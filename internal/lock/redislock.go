// Package lock keeps the shop's background jobs single-flight across
// worker replicas with short lived Redis leases.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every job lease in Redis.
const KeyPrefix = "shop:lock:"

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 250 * time.Millisecond
)

// releaseScript deletes the lease only when it still carries our token, so
// a worker whose lease expired mid-run cannot drop a successor's lease.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Key builds the lease key for a named background job, e.g. Key("outbox").
func Key(job string) string { return KeyPrefix + job }

// Locker hands out leases for named jobs. The zero RetryBackoff means the
// default; worker jobs run on minute-scale tickers, so contention is rare
// and a coarse backoff is enough.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// WithLock runs fn while holding the lease for key, waiting for the current
// holder when the lease is taken. The lease is released when fn returns,
// error or not; acquisition gives up when ctx is cancelled.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.release(context.Background(), key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		// Redis builds without scripting: fall back to a plain delete.
		_ = l.R.Del(ctx, key).Err()
	}
}
