package payment

import (
	"context"
	"sync"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"go.uber.org/zap"
)

// ChallengeCache holds outstanding payment challenges keyed by nonce. Take is
// a destructive lookup: a nonce can be redeemed at most once. Entries are
// never mutated in place.
type ChallengeCache interface {
	Put(ctx context.Context, c *domain.PaymentChallenge) error
	Take(ctx context.Context, nonce string) (*domain.PaymentChallenge, error)
}

const sweepInterval = time.Minute

// MemoryCache is the single-process default: a locked map with TTL expiry.
// Challenges are lost on restart, which is fine — a retried request just
// receives a fresh challenge.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*domain.PaymentChallenge
	logger  *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*domain.PaymentChallenge),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

func (c *MemoryCache) Put(_ context.Context, ch *domain.PaymentChallenge) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ch.Nonce] = ch
	return nil
}

func (c *MemoryCache) Take(_ context.Context, nonce string) (*domain.PaymentChallenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.entries[nonce]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(c.entries, nonce)
	if ch.Expired(time.Now()) {
		return nil, ErrChallengeExpired
	}
	return ch, nil
}

// Start runs a periodic sweep that drops expired challenges.
func (c *MemoryCache) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweeper.
func (c *MemoryCache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *MemoryCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for nonce, ch := range c.entries {
		if ch.Expired(now) {
			delete(c.entries, nonce)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired payment challenges", zap.Int("count", removed))
	}
}
