/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps derived run views (summaries, validation reports) in
// Redis so repeated API reads skip reloading and recomputing rows.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/analytics"
	"github.com/friendsincode/telrun/internal/scheduling"
	"github.com/friendsincode/telrun/internal/telemetry"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 10 * time.Minute

const (
	keySummary    = "telrun:cache:summary:"    // + run_id
	keyValidation = "telrun:cache:validation:" // + run_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration

	// DisableOnError stops using Redis after the first failure.
	DisableOnError bool
}

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Cache is a Redis-backed run cache. A nil or disabled Cache misses every
// lookup and ignores writes.
type Cache struct {
	client kv
	logger zerolog.Logger
	ttl    time.Duration
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New connects to Redis. An unreachable server yields a disabled cache, not
// an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("cache: redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		c := newCache(nil, cfg, logger)
		c.disabled = true
		return c, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	return newCache(client, cfg, logger), nil
}

func newCache(client kv, cfg Config, logger zerolog.Logger) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		ttl:    ttl,
		config: cfg,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable reports whether lookups reach Redis.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

func (c *Cache) get(ctx context.Context, kind, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	if err != nil {
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "error").Inc()
		c.handleError(err, "get")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "error").Inc()
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	telemetry.CacheRequestsTotal.WithLabelValues(kind, "hit").Inc()
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any) error {
	if !c.IsAvailable() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// GetSummary returns the cached summary of a run.
func (c *Cache) GetSummary(ctx context.Context, runID string) (*analytics.Summary, bool) {
	var s analytics.Summary
	if !c.get(ctx, "summary", keySummary+runID, &s) {
		return nil, false
	}
	return &s, true
}

// SetSummary stores a run summary under its run ID.
func (c *Cache) SetSummary(ctx context.Context, s *analytics.Summary) error {
	return c.set(ctx, keySummary+s.RunID, s)
}

// GetValidation returns the cached validation report of a run.
func (c *Cache) GetValidation(ctx context.Context, runID string) (*scheduling.ValidationResult, bool) {
	var r scheduling.ValidationResult
	if !c.get(ctx, "validation", keyValidation+runID, &r) {
		return nil, false
	}
	return &r, true
}

// SetValidation stores a validation report.
func (c *Cache) SetValidation(ctx context.Context, runID string, r *scheduling.ValidationResult) error {
	return c.set(ctx, keyValidation+runID, r)
}

// InvalidateRun drops every cached view of a run. Run IDs are deterministic,
// so a re-planned night replaces rows under the same ID.
func (c *Cache) InvalidateRun(ctx context.Context, runID string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, keySummary+runID, keyValidation+runID).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}
