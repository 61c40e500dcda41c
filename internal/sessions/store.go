// Package sessions keeps per-shopper gift card state in Redis.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/giftcard-checkout/internal/giftcards"
)

const keyPrefix = "giftcards:session:"

// RedisStore stores session state as JSON with a sliding TTL
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ giftcards.SessionStore = (*RedisStore)(nil)

// NewRedisStore creates a session store
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// Load returns the session state, empty when the session has none
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*giftcards.SessionState, error) {
	raw, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &giftcards.SessionState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	state := &giftcards.SessionState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return state, nil
}

// Save writes the session state and refreshes its TTL
func (s *RedisStore) Save(ctx context.Context, sessionID string, state *giftcards.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the session state
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
