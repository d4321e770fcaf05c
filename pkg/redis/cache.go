package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

// Enabled reports whether values are actually cached
func (c *Cache) Enabled() bool {
	return c.client.Enabled()
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if err != nil {
		// Key not found is not an error
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

// setIfGeneration writes KEYS[1] only while the counter at KEYS[2] still
// equals ARGV[1]; a missing counter reads as 0
var setIfGeneration = redis.NewScript(`
	local current = redis.call('GET', KEYS[2]) or '0'
	if current ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
`)

// Generation reads a write counter (0 when unset or disabled)
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	gen, err := c.client.Redis().Get(ctx, c.fullKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// BumpGeneration increments a write counter so in-flight SetIfGeneration
// calls that read the old value are refused
func (c *Cache) BumpGeneration(ctx context.Context, key string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}
	return c.client.Redis().Incr(ctx, c.fullKey(key)).Result()
}

// SetIfGeneration stores value only if genKey still holds gen.
// Returns false when the counter moved (value not written).
func (c *Cache) SetIfGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, genKey string, gen int64) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache marshal failed: %w", err)
	}

	ok, err := setIfGeneration.Run(ctx, c.client.Redis(),
		[]string{c.fullKey(key), c.fullKey(genKey)},
		strconv.FormatInt(gen, 10),
		data,
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("conditional cache write failed: %w", err)
	}
	return ok == 1, nil
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute  // 최신 결정
	TTLMedium = 10 * time.Minute // 통계 / 타임라인
	TTLLong   = 1 * time.Hour    // 캘리브레이션
)

// Common cache key generators
func LatestDecisionKey(symbol string) string {
	return fmt.Sprintf("decision:latest:%s", symbol)
}

func StatisticsKey(symbol string) string {
	return fmt.Sprintf("decision:stats:%s", symbol)
}

// GenerationKey counts appends per symbol; it guards cache fills
func GenerationKey(symbol string) string {
	return fmt.Sprintf("decision:gen:%s", symbol)
}
