package session

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/drevniko/eshop-backend/internal/domain/cart"
)

// RedisStore keeps carts in redis as JSON blobs with a sliding TTL.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	val, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading cart %q: %w", sessionID, err)
	}

	var c cart.Cart
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("decoding cart %q: %w", sessionID, err)
	}
	return &c, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, c *cart.Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding cart %q: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, cartKey(sessionID), payload, TTL).Err(); err != nil {
		return fmt.Errorf("storing cart %q: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting cart %q: %w", sessionID, err)
	}
	return nil
}
