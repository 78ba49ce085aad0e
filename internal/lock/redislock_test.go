package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/lock"
)

func testLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestKeyPrefixesJobName(t *testing.T) {
	require.Equal(t, "shop:lock:outbox", lock.Key("outbox"))
}

func TestWithLockSerializesHolders(t *testing.T) {
	locker, _ := testLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, lock.Key("outbox"), 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstDone

	go func() {
		err := locker.WithLock(ctx, lock.Key("outbox"), 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	close(releaseFirst)
	time.Sleep(20 * time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockDoesNotDropSuccessorLease(t *testing.T) {
	locker, mr := testLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := lock.Key("orphan-sweep")
	err := locker.WithLock(ctx, key, 50*time.Millisecond, func(context.Context) error {
		// simulate the lease expiring and another worker taking it over
		mr.FastForward(100 * time.Millisecond)
		require.NoError(t, mr.Set(key, "other-worker"))
		return nil
	})
	require.NoError(t, err)

	// the stale holder's release must leave the new holder's lease in place
	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "other-worker", got)
}

func TestWithLockGivesUpOnCancel(t *testing.T) {
	locker, mr := testLocker(t)
	require.NoError(t, mr.Set(lock.Key("outbox"), "held-elsewhere"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := locker.WithLock(ctx, lock.Key("outbox"), time.Second, func(context.Context) error {
		t.Fatal("must not run while the lease is held elsewhere")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
