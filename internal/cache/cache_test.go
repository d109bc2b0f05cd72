/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/analytics"
	"github.com/friendsincode/telrun/internal/scheduling"
)

// fakeRedis is an in-memory kv.
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet {
		return redis.NewStringResult("", errors.New("connection reset"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := newCache(fake, Config{}, zerolog.Nop())

	if _, ok := c.GetSummary(ctx, "run-1"); ok {
		t.Fatal("hit on empty cache")
	}
	sum := &analytics.Summary{RunID: "run-1", Entries: 3, Utilization: 0.5, Observing: 2 * time.Hour}
	if err := c.SetSummary(ctx, sum); err != nil {
		t.Fatal(err)
	}
	if fake.ttls[keySummary+"run-1"] != DefaultTTL {
		t.Errorf("ttl = %s, want %s", fake.ttls[keySummary+"run-1"], DefaultTTL)
	}

	got, ok := c.GetSummary(ctx, "run-1")
	if !ok {
		t.Fatal("miss after set")
	}
	if got.Entries != 3 || got.Utilization != 0.5 || got.Observing != 2*time.Hour {
		t.Errorf("summary = %+v", got)
	}
}

func TestInvalidateRun(t *testing.T) {
	ctx := context.Background()
	c := newCache(newFakeRedis(), Config{TTL: time.Minute}, zerolog.Nop())

	_ = c.SetSummary(ctx, &analytics.Summary{RunID: "r"})
	_ = c.SetValidation(ctx, "r", &scheduling.ValidationResult{Valid: true})
	if err := c.InvalidateRun(ctx, "r"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetSummary(ctx, "r"); ok {
		t.Error("summary survived invalidation")
	}
	if _, ok := c.GetValidation(ctx, "r"); ok {
		t.Error("validation survived invalidation")
	}
}

func TestDisableOnError(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.failGet = true
	c := newCache(fake, Config{DisableOnError: true}, zerolog.Nop())

	if _, ok := c.GetValidation(ctx, "r"); ok {
		t.Fatal("hit despite error")
	}
	if c.IsAvailable() {
		t.Error("cache still available after redis error")
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if _, ok := c.GetSummary(ctx, "r"); ok {
		t.Error("nil cache hit")
	}
	if err := c.SetSummary(ctx, &analytics.Summary{RunID: "r"}); err != nil {
		t.Error(err)
	}
	if err := c.InvalidateRun(ctx, "r"); err != nil {
		t.Error(err)
	}
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}
