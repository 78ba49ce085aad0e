package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

const redisKey = "shop:settings"

// Settings are the operator-tunable shop parameters. Checkout reads them
// on every session; the admin back office writes them rarely.
type Settings struct {
	TaxRateBps           int32          `json:"taxRateBps" validate:"gte=0,lte=10000"`
	DefaultShippingCents pricing.Money  `json:"defaultShippingCents" validate:"gte=0"`
	FreeShippingAbove    *pricing.Money `json:"freeShippingAboveCents" validate:"omitempty,gte=0"`
}

// Service reads and writes settings in Redis, keeping a short-lived
// in-process snapshot so checkout does not hit Redis on every request.
// Without Redis the configured defaults apply.
type Service struct {
	Client   *redis.Client
	Defaults Settings
	TTL      time.Duration
	Logger   zerolog.Logger

	mu        sync.Mutex
	snapshot  Settings
	fetchedAt time.Time
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return time.Minute
	}
	return s.TTL
}

// Get returns the current settings.
func (s *Service) Get(ctx context.Context) Settings {
	if s.Client == nil {
		return s.Defaults
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl() {
		return s.snapshot
	}

	current := s.Defaults
	data, err := s.Client.Get(ctx, redisKey).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &current); err != nil {
			s.Logger.Warn().Err(err).Msg("decode stored settings")
			current = s.Defaults
		}
	case errors.Is(err, redis.Nil):
		// No override stored, defaults apply.
	default:
		s.Logger.Warn().Err(err).Msg("read settings")
		return s.Defaults
	}

	s.snapshot = current
	s.fetchedAt = time.Now()
	return current
}

// Update persists new settings and refreshes the snapshot.
func (s *Service) Update(ctx context.Context, next Settings) error {
	if s.Client == nil {
		return errors.New("settings storage unavailable")
	}
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := s.Client.Set(ctx, redisKey, data, 0).Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = next
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}
