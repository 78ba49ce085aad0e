package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/resilience"
)

const defaultPrefix = "shop"

// Job is one unit of asynchronous work, typically a transactional mail.
type Job struct {
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	Key         string          `json:"key,omitempty"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	AvailableAt int64           `json:"available_at"`
}

// Enqueuer publishes jobs onto a Redis sorted set keyed by due time. Jobs
// with an idempotency key are deduplicated within the dedup window.
type Enqueuer struct {
	R        *redis.Client
	Prefix   string
	DedupTTL time.Duration
}

func prefix(p string) string {
	if p == "" {
		return defaultPrefix
	}
	return p
}

func queueKey(p, kind string) string  { return fmt.Sprintf("%s:queue:%s", prefix(p), kind) }
func dlqKey(p, kind string) string    { return fmt.Sprintf("%s:queue:%s:dead", prefix(p), kind) }
func dedupKey(p, kind, key string) string {
	return fmt.Sprintf("%s:queue:%s:dedup:%s", prefix(p), kind, key)
}

// Enqueue schedules the job under the given kind.
func (e Enqueuer) Enqueue(ctx context.Context, kind string, job Job) error {
	if e.R == nil {
		return errors.New("queue redis client not configured")
	}
	if kind == "" {
		return errors.New("queue kind is required")
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 8
	}
	if job.AvailableAt == 0 {
		job.AvailableAt = time.Now().UnixNano()
	}

	if job.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, dedupKey(e.Prefix, kind, job.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, queueKey(e.Prefix, kind), redis.Z{
		Score:  float64(job.AvailableAt),
		Member: raw,
	}).Err()
}

// Worker drains one kind of job. Failed jobs are rescheduled with
// exponential backoff until their attempt budget is spent, then parked on
// the dead letter list.
type Worker struct {
	R         *redis.Client
	Prefix    string
	Kind      string
	Handle    func(context.Context, Job) error
	RetryBase time.Duration
	Logger    zerolog.Logger
}

// Run processes jobs until the context is cancelled.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue redis client not configured")
	}
	if w.Handle == nil {
		return errors.New("queue handler not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		idle, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if idle {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

// RunOnce pops and processes at most one due job. It reports whether the
// queue was idle.
func (w Worker) RunOnce(ctx context.Context) (idle bool, err error) {
	key := queueKey(w.Prefix, w.Kind)
	res, err := w.R.ZPopMin(ctx, key, 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, err
	}
	if len(res) == 0 {
		return true, nil
	}
	raw, ok := res[0].Member.(string)
	if !ok {
		return false, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.Logger.Error().Err(err).Msg("drop undecodable job")
		return false, nil
	}

	if job.AvailableAt > time.Now().UnixNano() {
		// Not due yet; put it back and report idle so the caller waits.
		_ = w.R.ZAdd(ctx, key, redis.Z{Score: float64(job.AvailableAt), Member: raw}).Err()
		return true, nil
	}

	job.Attempt++
	if err := w.Handle(ctx, job); err != nil {
		w.fail(ctx, job, err)
		return false, nil
	}
	w.clearDedup(ctx, job)
	return false, nil
}

func (w Worker) fail(ctx context.Context, job Job, cause error) {
	if job.Attempt >= job.MaxAttempts {
		w.Logger.Error().Err(cause).Str("topic", job.Topic).Int("attempt", job.Attempt).
			Msg("job exhausted retries, moving to dead letter queue")
		if raw, err := json.Marshal(job); err == nil {
			_ = w.R.LPush(ctx, dlqKey(w.Prefix, w.Kind), raw).Err()
		}
		w.clearDedup(ctx, job)
		return
	}

	base := w.RetryBase
	if base <= 0 {
		base = time.Second
	}
	job.AvailableAt = time.Now().Add(resilience.Backoff(base, job.Attempt, 0.2)).UnixNano()
	w.Logger.Warn().Err(cause).Str("topic", job.Topic).Int("attempt", job.Attempt).
		Msg("job failed, retrying")
	if raw, err := json.Marshal(job); err == nil {
		_ = w.R.ZAdd(ctx, queueKey(w.Prefix, w.Kind), redis.Z{
			Score:  float64(job.AvailableAt),
			Member: raw,
		}).Err()
	}
}

func (w Worker) clearDedup(ctx context.Context, job Job) {
	if job.Key != "" {
		_ = w.R.Del(ctx, dedupKey(w.Prefix, w.Kind, job.Key)).Err()
	}
}

// DeadLetters returns up to limit parked jobs for inspection.
func (w Worker) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	raws, err := w.R.LRange(ctx, dlqKey(w.Prefix, w.Kind), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
