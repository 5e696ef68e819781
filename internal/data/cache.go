package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes
const (
	// CacheKeyProgram is the prefix for program caches: program:{program_id}
	CacheKeyProgram = "program"
	// CacheKeyBounty is the prefix for bounty caches: bounty:{program_id}:{bounty_id}
	CacheKeyBounty = "bounty"
	// CacheKeySigner is the prefix for signer secret caches: signer:{address}
	CacheKeySigner = "signer"
	// CacheKeyCooldown is the key for the circuit breaker cooldown fast path
	CacheKeyCooldown = "threshold:cooldown_until"
)

// Cache TTL durations. Program and bounty entries are invalidated on every
// mutation; the TTL only bounds staleness after missed invalidations.
const (
	TTLProgram = 1 * time.Minute
	TTLBounty  = 1 * time.Minute
	TTLSigner  = 5 * time.Minute
)

// localCacheSize bounds the in-process tier.
const localCacheSize = 4096

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient defines the interface for cache operations.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)
}

// twoTierCache layers a small in-process LRU in front of Redis. The local
// tier absorbs hot read paths (program info, signer secrets); Redis keeps
// instances loosely coherent. Both tiers are best effort.
type twoTierCache struct {
	local  *expirable.LRU[string, []byte]
	client *redis.Client
}

// NewCacheClient creates the two-tier cache client. A nil Redis client
// leaves only the in-process tier active.
func NewCacheClient(rdb *redis.Client) CacheClient {
	return &twoTierCache{
		local:  expirable.NewLRU[string, []byte](localCacheSize, nil, TTLProgram),
		client: rdb,
	}
}

// Get retrieves a value, checking the local tier before Redis. A Redis hit
// backfills the local tier.
func (c *twoTierCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := c.local.Get(key); ok {
		return json.Unmarshal(data, dest)
	}

	if c.client == nil {
		return ErrCacheNotFound
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	c.local.Add(key, []byte(val))
	return json.Unmarshal([]byte(val), dest)
}

// Set stores a value in both tiers with the specified TTL. The local tier
// uses its fixed TTL regardless; the Redis TTL is authoritative.
func (c *twoTierCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	c.local.Add(key, data)

	if c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from both tiers.
func (c *twoTierCache) Delete(ctx context.Context, key string) error {
	c.local.Remove(key)

	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in either tier.
func (c *twoTierCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.local.Contains(key) {
		return true, nil
	}
	if c.client == nil {
		return false, nil
	}
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}
	return count > 0, nil
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyProgram, "hackathon-q1") -> "program:hackathon-q1"
//   - BuildCacheKey(CacheKeyBounty, "hackathon-q1", "first-prize") -> "bounty:hackathon-q1:first-prize"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
