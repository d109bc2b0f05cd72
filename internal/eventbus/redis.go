/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/friendsincode/telrun/internal/events"
)

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

type redisSink struct {
	client  redisClient
	channel string
}

func dialRedis(addr, password string, db int, channel string) (*redisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &redisSink{client: client, channel: channel}, nil
}

func (s *redisSink) name() string { return "redis" }

// All event types share one channel; subscribers filter on event_type.
func (s *redisSink) send(ctx context.Context, _ events.EventType, data []byte) error {
	return s.client.Publish(ctx, s.channel, data).Err()
}

func (s *redisSink) close() error { return s.client.Close() }
