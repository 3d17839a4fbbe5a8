// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pmengine/internal/config"
	"pmengine/internal/store"
)

// modeKeySuffix is appended to the configured prefix to form the mode key.
const modeKeySuffix = "mode"

// ModeStore implements store.ModeStore using Redis.
type ModeStore struct {
	client *redis.Client
	key    string
}

// NewModeStore creates a new Redis-backed mode store.
func NewModeStore(cfg *config.RedisConfig) (*ModeStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ModeStore{client: client, key: cfg.KeyPrefix + modeKeySuffix}, nil
}

// GetMode retrieves the persisted mode.
// Returns nil, nil if no mode has been stored.
func (s *ModeStore) GetMode(ctx context.Context) (*store.ModeState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mode: %w", err)
	}

	var state store.ModeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mode state: %w", err)
	}

	return &state, nil
}

// SetMode stores the mode. The key has no TTL.
func (s *ModeStore) SetMode(ctx context.Context, state *store.ModeState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal mode state: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}

	return nil
}

// Close closes the Redis client connection.
func (s *ModeStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
