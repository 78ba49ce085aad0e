package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testQueue(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestEnqueueAndProcess(t *testing.T) {
	client, _ := testQueue(t)
	ctx := context.Background()
	enq := Enqueuer{R: client}

	require.NoError(t, enq.Enqueue(ctx, MailKind, Job{
		Topic:   "order.paid",
		Payload: json.RawMessage(`{"orderId":"1"}`),
	}))

	var got Job
	worker := Worker{R: client, Kind: MailKind, Handle: func(_ context.Context, j Job) error {
		got = j
		return nil
	}}

	idle, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, idle)
	require.Equal(t, "order.paid", got.Topic)
	require.Equal(t, 1, got.Attempt)

	idle, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, idle)
}

func TestEnqueueDeduplicates(t *testing.T) {
	client, _ := testQueue(t)
	ctx := context.Background()
	enq := Enqueuer{R: client}

	job := Job{Topic: "order.paid", Payload: json.RawMessage(`{}`), Key: "order-1"}
	require.NoError(t, enq.Enqueue(ctx, MailKind, job))
	require.NoError(t, enq.Enqueue(ctx, MailKind, job))

	count, err := client.ZCard(ctx, "shop:queue:mail").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestFailedJobRetriesThenParks(t *testing.T) {
	client, _ := testQueue(t)
	ctx := context.Background()
	enq := Enqueuer{R: client}

	require.NoError(t, enq.Enqueue(ctx, MailKind, Job{
		Topic:       "order.paid",
		Payload:     json.RawMessage(`{}`),
		MaxAttempts: 2,
	}))

	attempts := 0
	worker := Worker{R: client, Kind: MailKind, RetryBase: time.Nanosecond,
		Handle: func(context.Context, Job) error {
			attempts++
			return errors.New("smtp down")
		}}

	// First attempt fails and reschedules.
	idle, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, idle)
	require.Equal(t, 1, attempts)

	// Wait out the backoff, then the second failure parks the job.
	require.Eventually(t, func() bool {
		idle, err := worker.RunOnce(ctx)
		require.NoError(t, err)
		return !idle && attempts == 2
	}, time.Second, 5*time.Millisecond)

	dead, err := worker.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, 2, dead[0].Attempt)

	// Nothing left on the live queue.
	count, err := client.ZCard(ctx, "shop:queue:mail").Result()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestDelayedJobNotDueYet(t *testing.T) {
	client, _ := testQueue(t)
	ctx := context.Background()

	require.NoError(t, Enqueuer{R: client}.Enqueue(ctx, MailKind, Job{
		Topic:       "order.paid",
		Payload:     json.RawMessage(`{}`),
		AvailableAt: time.Now().Add(time.Hour).UnixNano(),
	}))

	worker := Worker{R: client, Kind: MailKind, Handle: func(context.Context, Job) error {
		t.Fatal("job ran before its due time")
		return nil
	}}
	idle, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, idle)

	count, err := client.ZCard(ctx, "shop:queue:mail").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestEventNotifierEnqueuesWithDedup(t *testing.T) {
	client, _ := testQueue(t)
	ctx := context.Background()

	n := EventNotifier{Enq: Enqueuer{R: client}}
	payload := json.RawMessage(`{"orderId":"abc","email":"kunde@example.de"}`)
	require.NoError(t, n.Notify(ctx, "order.paid", payload))
	require.NoError(t, n.Notify(ctx, "order.paid", payload))

	count, err := client.ZCard(ctx, "shop:queue:mail").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
