package captions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridiron-live/broadcast/internal/models"
)

const keyPrefix = "caption:"

// Store keeps only the latest caption per session in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a caption store. A non-positive ttl keeps captions forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Set overwrites the latest caption.
func (s *Store) Set(ctx context.Context, code string, c models.Caption) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal caption: %w", err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, keyPrefix+code, body, ttl).Err(); err != nil {
		return fmt.Errorf("set caption: %w", err)
	}
	return nil
}

// Latest returns the latest caption or nil when none was published.
func (s *Store) Latest(ctx context.Context, code string) (*models.Caption, error) {
	raw, err := s.client.Get(ctx, keyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get caption: %w", err)
	}
	var c models.Caption
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode caption: %w", err)
	}
	return &c, nil
}
