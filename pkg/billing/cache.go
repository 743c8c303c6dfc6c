// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheKey = "subsync:eligible"

// CacheConfig configures the redis-backed eligible-set cache.
type CacheConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DefaultCacheConfig returns sensible cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr: "localhost:6379",
		Key:  defaultCacheKey,
		TTL:  24 * time.Hour,
	}
}

// EligibleCache stores the last successfully read eligible set in redis.
// When the billing store is unreachable, reconciliation falls back to this
// set instead of aborting, bounded by the configured TTL. The cache is
// strictly an availability aid: it is written only after a successful
// billing read and never consulted otherwise.
type EligibleCache struct {
	client *redis.Client
	cfg    CacheConfig
}

// NewEligibleCache connects to redis and verifies the connection.
func NewEligibleCache(cfg CacheConfig) (*EligibleCache, error) {
	if cfg.Key == "" {
		cfg.Key = defaultCacheKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &EligibleCache{client: client, cfg: cfg}, nil
}

// NewEligibleCacheWithClient wraps an existing redis client. Used in tests.
func NewEligibleCacheWithClient(client *redis.Client, cfg CacheConfig) *EligibleCache {
	if cfg.Key == "" {
		cfg.Key = defaultCacheKey
	}
	return &EligibleCache{client: client, cfg: cfg}
}

// Close releases the redis client.
func (c *EligibleCache) Close() error {
	return c.client.Close()
}

// Save replaces the cached eligible set. The swap is pipelined so a reader
// never observes a partially written set.
func (c *EligibleCache) Save(ctx context.Context, eligible map[string]struct{}) error {
	members := make([]interface{}, 0, len(eligible))
	for id := range eligible {
		members = append(members, id)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.cfg.Key)
	if len(members) > 0 {
		pipe.SAdd(ctx, c.cfg.Key, members...)
	}
	if c.cfg.TTL > 0 {
		pipe.Expire(ctx, c.cfg.Key, c.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save eligible set: %w", err)
	}
	return nil
}

// Load returns the cached eligible set, reporting false when no cached set
// exists or redis is unreachable.
func (c *EligibleCache) Load(ctx context.Context) (map[string]struct{}, bool) {
	members, err := c.client.SMembers(ctx, c.cfg.Key).Result()
	if err != nil || len(members) == 0 {
		return nil, false
	}
	eligible := make(map[string]struct{}, len(members))
	for _, id := range members {
		eligible[id] = struct{}{}
	}
	return eligible, true
}
