package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	onDemandTTL  = 120 * time.Second
	scheduledTTL = 300 * time.Second
)

// Computer produces a fresh top-K list. Satisfied by *Engine.
type Computer interface {
	ComputeRanking(ctx context.Context) ([]EntityMetrics, error)
}

// Cache fronts the ranking engine with a TTL'd copy of the latest top-K.
// On-demand refreshes store a shorter TTL than scheduled ones. Concurrent
// misses may each recompute; the last writer wins. A failed recompute never
// touches the cached value.
type Cache struct {
	computer Computer
	clock    func() time.Time

	mu        sync.Mutex
	value     []EntityMetrics
	expiresAt time.Time
}

// NewCache constructs a ranking cache over the provided computer.
func NewCache(computer Computer, clock func() time.Time) (*Cache, error) {
	if computer == nil {
		return nil, fmt.Errorf("ranking: computer required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{computer: computer, clock: clock}, nil
}

// GetRanking returns the cached top-K when fresh, recomputing on miss.
func (c *Cache) GetRanking(ctx context.Context) ([]EntityMetrics, error) {
	c.mu.Lock()
	if c.value != nil && c.clock().Before(c.expiresAt) {
		cached := c.value
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	computed, err := c.computer.ComputeRanking(ctx)
	if err != nil {
		return nil, err
	}
	c.store(computed, onDemandTTL)
	return computed, nil
}

// ForceRecompute unconditionally recomputes and overwrites the cache.
func (c *Cache) ForceRecompute(ctx context.Context) error {
	computed, err := c.computer.ComputeRanking(ctx)
	if err != nil {
		return err
	}
	c.store(computed, scheduledTTL)
	return nil
}

// Peek returns the cached value regardless of freshness, nil when empty.
func (c *Cache) Peek() []EntityMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Cache) store(value []EntityMetrics, ttl time.Duration) {
	c.mu.Lock()
	c.value = value
	c.expiresAt = c.clock().Add(ttl)
	c.mu.Unlock()
}
