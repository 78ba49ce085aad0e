package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/config"
	"github.com/folienwerk/backend-shop/internal/events"
	"github.com/folienwerk/backend-shop/internal/lock"
	"github.com/folienwerk/backend-shop/internal/notify"
	"github.com/folienwerk/backend-shop/internal/obs"
	"github.com/folienwerk/backend-shop/internal/queue"
	"github.com/folienwerk/backend-shop/internal/resilience"
	"github.com/folienwerk/backend-shop/internal/store"
	"github.com/folienwerk/backend-shop/internal/upload"
)

const (
	outboxBatch    = 100
	outboxInterval = 5 * time.Second
	expireInterval = time.Minute
	orphanInterval = time.Hour
	orphanAge      = 72 * time.Hour
)

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := obs.NewLogger(envOrDefault("LOG_FORMAT", "json"), envOrDefault("LOG_LEVEL", "info")).
		With().Str("component", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics("shop", nil)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	eventRepo := store.NewEventRepo(pool, logger)
	sessionRepo := store.NewSessionRepo(pool, logger)
	uploadRepo := store.NewUploadRepo(pool, logger)

	var sender common.EmailSender
	if cfg.SMTPHost != "" {
		sender = notify.SMTPSender{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.MailFrom,
		}
	} else {
		logger.Warn().Msg("smtp not configured, outbound mail disabled")
		sender = common.NopEmailSender{}
	}
	mailer := notify.EmailNotifier{
		Mail:      sender,
		Enabled:   cfg.SMTPHost != "",
		AdminMail: cfg.AdminMail,
	}

	// Notifier fan-out for relayed outbox rows. Mail goes through the Redis
	// queue so delivery failures retry without re-reading the outbox.
	bus := &events.Bus{
		Store: eventRepo,
		Notifiers: []events.Notifier{
			queue.EventNotifier{Enq: queue.Enqueuer{R: redisClient}},
		},
	}

	// A tripped breaker fails jobs fast; the queue reschedules them with
	// backoff, so an SMTP outage drains without hammering the server.
	mailBreaker := &resilience.Breaker{}
	mailWorker := queue.Worker{
		R:    redisClient,
		Kind: queue.MailKind,
		Handle: func(ctx context.Context, job queue.Job) error {
			return mailBreaker.Do(func() error { return mailer.Notify(ctx, job.Topic, job.Payload) })
		},
		Logger: logger,
	}
	go func() {
		if err := mailWorker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("mail worker stopped")
		}
	}()

	locker := lock.Locker{R: redisClient}
	storage := &upload.DiskStorage{Root: cfg.UploadDir}

	go runTicker(ctx, outboxInterval, func() {
		err := locker.WithLock(ctx, lock.Key("outbox"), 30*time.Second, func(ctx context.Context) error {
			return drainOutbox(ctx, eventRepo, bus, logger)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("drain outbox")
		}
	})

	go runTicker(ctx, expireInterval, func() {
		expired, err := sessionRepo.ExpireStale(ctx, time.Now())
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("expire sessions")
			}
			return
		}
		if expired > 0 {
			logger.Info().Int64("count", expired).Msg("checkout sessions expired")
			if err := bus.NotifyOnly(ctx, events.TopicPaymentExpired, map[string]any{"expired": expired}); err != nil {
				logger.Warn().Err(err).Msg("notify expired sessions")
			}
		}
	})

	go runTicker(ctx, orphanInterval, func() {
		reapOrphans(ctx, uploadRepo, storage, bus, logger)
	})

	logger.Info().Msg("worker running")
	<-ctx.Done()
	logger.Info().Msg("worker stopped")
}

// runTicker invokes fn immediately and then on every tick until ctx ends.
func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// drainOutbox relays unpublished domain events to the notifiers and marks
// the delivered batch published. Notifier errors are logged but do not block
// the batch: the mail queue deduplicates, so a partial redelivery is safe.
func drainOutbox(ctx context.Context, repo *store.EventRepo, bus *events.Bus, logger zerolog.Logger) error {
	batch, err := repo.NextUnpublished(ctx, outboxBatch)
	if err != nil {
		return err
	}
	if obs.OutboxLag != nil {
		obs.OutboxLag.Set(float64(len(batch)))
	}
	if len(batch) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(batch))
	for _, ev := range batch {
		if err := bus.NotifyOnly(ctx, ev.Topic, ev.Payload); err != nil {
			logger.Warn().Err(err).Str("topic", ev.Topic).Stringer("event_id", ev.ID).Msg("notify event")
		}
		ids = append(ids, ev.ID)
	}
	return repo.MarkPublished(ctx, ids, time.Now())
}

// reapOrphans deletes upload rows never attached to a cart or order and
// removes the blobs behind them.
func reapOrphans(ctx context.Context, repo *store.UploadRepo, storage *upload.DiskStorage, bus *events.Bus, logger zerolog.Logger) {
	keys, err := repo.DeleteOrphans(ctx, time.Now().Add(-orphanAge))
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("delete orphan uploads")
		}
		return
	}
	for _, key := range keys {
		if err := storage.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("delete orphan blob")
		}
	}
	if len(keys) > 0 {
		logger.Info().Int("count", len(keys)).Msg("orphan uploads removed")
		if err := bus.NotifyOnly(ctx, events.TopicUploadOrphaned, map[string]any{"removed": len(keys)}); err != nil {
			logger.Warn().Err(err).Msg("notify orphan uploads")
		}
	}
}
