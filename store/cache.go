package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parolam/breach-checker/models"
	"github.com/redis/go-redis/v9"
)

const (
	rangeKeyPrefix = "range:"
	statsKey       = "stats"
	// delChunk bounds the keys sent in one DEL.
	delChunk = 1000
)

// Cache keeps already-aggregated read results in redis. It never stores raw
// rows, so a cached anonymity set is always summed per suffix. A nil *Cache
// is valid and always misses.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) GetRange(ctx context.Context, prefix string) ([]models.SuffixCount, bool, error) {
	var out []models.SuffixCount
	ok, err := c.get(ctx, rangeKeyPrefix+prefix, &out)
	return out, ok, err
}

func (c *Cache) SetRange(ctx context.Context, prefix string, rows []models.SuffixCount) error {
	return c.set(ctx, rangeKeyPrefix+prefix, rows)
}

// InvalidateRanges drops the cached anonymity sets of prefixes. Writers call
// it after every insert so readers never serve a sum that misses new rows.
func (c *Cache) InvalidateRanges(ctx context.Context, prefixes []string) error {
	if c == nil || len(prefixes) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for start := 0; start < len(prefixes); start += delChunk {
		end := start + delChunk
		if end > len(prefixes) {
			end = len(prefixes)
		}
		keys := make([]string, 0, end-start)
		for _, p := range prefixes[start:end] {
			keys = append(keys, rangeKeyPrefix+p)
		}
		pipe.Del(ctx, keys...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) GetStats(ctx context.Context) (models.Stats, bool, error) {
	var s models.Stats
	ok, err := c.get(ctx, statsKey, &s)
	return s, ok, err
}

func (c *Cache) SetStats(ctx context.Context, s models.Stats) error {
	return c.set(ctx, statsKey, s)
}

func (c *Cache) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, v interface{}) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}
