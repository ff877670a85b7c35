package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/reports"
)

const defaultOpeningTTL = 24 * time.Hour

// OpeningCache implements reports.OpeningCache on redis.
// Keys carry the unit version, so entries of a mutated unit are never read
// again and expire by TTL.
type OpeningCache struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewOpeningCache creates a cache. Zero ttl means one day.
func NewOpeningCache(client redis.Cmdable, keyPrefix string, ttl time.Duration) *OpeningCache {
	if keyPrefix == "" {
		keyPrefix = "kardex:opening:"
	}
	if ttl <= 0 {
		ttl = defaultOpeningTTL
	}
	return &OpeningCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *OpeningCache) key(k reports.OpeningKey) string {
	return fmt.Sprintf("%s%s:%s:v%d", c.keyPrefix, k.UnitID, k.From.Format(time.DateOnly), k.Version)
}

// Get implements reports.OpeningCache.
func (c *OpeningCache) Get(ctx context.Context, k reports.OpeningKey) (movement.Totals, bool, error) {
	val, err := c.client.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return movement.Totals{}, false, nil
	}
	if err != nil {
		return movement.Totals{}, false, fmt.Errorf("get opening balance: %w", err)
	}

	var totals movement.Totals
	if err := json.Unmarshal(val, &totals); err != nil {
		return movement.Totals{}, false, fmt.Errorf("decode opening balance: %w", err)
	}
	return totals, true, nil
}

// Set implements reports.OpeningCache.
func (c *OpeningCache) Set(ctx context.Context, k reports.OpeningKey, totals movement.Totals) error {
	payload, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("encode opening balance: %w", err)
	}
	if err := c.client.Set(ctx, c.key(k), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set opening balance: %w", err)
	}
	return nil
}

var _ reports.OpeningCache = (*OpeningCache)(nil)
