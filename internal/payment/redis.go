package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache is the multi-instance challenge cache. A challenge issued by one
// instance must be redeemable by whichever instance receives the paid retry,
// so the nonce lives in a shared store with the same 5-minute TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func challengeKey(nonce string) string {
	return "x402:challenge:" + nonce
}

func (c *RedisCache) Put(ctx context.Context, ch *domain.PaymentChallenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	return c.client.Set(ctx, challengeKey(ch.Nonce), data, domain.ChallengeTTL).Err()
}

func (c *RedisCache) Take(ctx context.Context, nonce string) (*domain.PaymentChallenge, error) {
	data, err := c.client.GetDel(ctx, challengeKey(nonce)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	ch := &domain.PaymentChallenge{}
	if err := json.Unmarshal(data, ch); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	if ch.Expired(time.Now()) {
		return nil, ErrChallengeExpired
	}
	return ch, nil
}
