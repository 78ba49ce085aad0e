package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoubles(t *testing.T) {
	require.Equal(t, 200*time.Millisecond, Backoff(200*time.Millisecond, 1, 0))
	require.Equal(t, 400*time.Millisecond, Backoff(200*time.Millisecond, 2, 0))
	require.Equal(t, 1600*time.Millisecond, Backoff(200*time.Millisecond, 4, 0))
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := Backoff(base, 3, 0.2)
		require.GreaterOrEqual(t, d, 320*time.Millisecond)
		require.LessOrEqual(t, d, 480*time.Millisecond)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Now()
	b := &Breaker{Threshold: 3, OpenFor: time.Minute, Now: func() time.Time { return now }}
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	}
	require.ErrorIs(t, b.Do(func() error { return nil }), ErrOpenCircuit)

	// After the cool-off one probe passes; success closes the breaker.
	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Do(func() error { return nil }))
	require.NoError(t, b.Do(func() error { return nil }))
}

func TestBreakerProbeFailureReArms(t *testing.T) {
	now := time.Now()
	b := &Breaker{Threshold: 1, OpenFor: time.Minute, Now: func() time.Time { return now }}
	boom := errors.New("boom")

	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	require.ErrorIs(t, b.Do(func() error { return nil }), ErrOpenCircuit)

	now = now.Add(61 * time.Second)
	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	require.ErrorIs(t, b.Do(func() error { return nil }), ErrOpenCircuit)
}

func TestNilBreakerAlwaysAllows(t *testing.T) {
	var b *Breaker
	require.True(t, b.Allow())
	b.Report(false)
}
