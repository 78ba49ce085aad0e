package resilience

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("circuit breaker open")

// Backoff computes the exponential retry delay for the given attempt,
// optionally spread by a jitter fraction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

// Breaker is a consecutive-failure circuit breaker guarding an external
// dependency such as the payment provider or the mail relay.
type Breaker struct {
	Threshold int
	OpenFor   time.Duration
	Now       func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
}

func (b *Breaker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Breaker) threshold() int {
	if b.Threshold <= 0 {
		return 5
	}
	return b.Threshold
}

func (b *Breaker) openFor() time.Duration {
	if b.OpenFor <= 0 {
		return 30 * time.Second
	}
	return b.OpenFor
}

// Allow reports whether a call may proceed. While open, one probe per
// cool-off period is let through.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold() {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.openFor() {
		// Half-open probe; a failure re-arms the full cool-off.
		b.openedAt = b.now()
		return true
	}
	return false
}

// Report records the call outcome.
func (b *Breaker) Report(success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures == b.threshold() {
		b.openedAt = b.now()
	}
}

// Do runs fn under the breaker.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpenCircuit
	}
	err := fn()
	b.Report(err == nil)
	return err
}
