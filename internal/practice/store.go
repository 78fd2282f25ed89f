package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
)

// Store persists practice configs in redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new practice config store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("practice: redis client required")
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(practiceID uuid.UUID) string {
	return fmt.Sprintf("practice:config:%s", practiceID)
}

// Get retrieves the practice config; ErrNotFound when none is stored.
func (s *Store) Get(ctx context.Context, practiceID uuid.UUID) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(practiceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("practice: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("practice: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Set validates and saves the practice config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("practice: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.PracticeID), data, 0).Err(); err != nil {
		return fmt.Errorf("practice: set config: %w", err)
	}
	return nil
}

// EffectiveHours satisfies scheduling.HoursSource.
func (s *Store) EffectiveHours(ctx context.Context, practiceID uuid.UUID, localDate civil.Date) (*scheduling.OperatingHours, error) {
	cfg, err := s.Get(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	return cfg.HoursOn(localDate)
}

// Timezone returns the practice's configured IANA zone, empty when unset.
func (s *Store) Timezone(ctx context.Context, practiceID uuid.UUID) (string, error) {
	cfg, err := s.Get(ctx, practiceID)
	if err != nil {
		return "", err
	}
	return cfg.Timezone, nil
}
