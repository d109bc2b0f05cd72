/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards scheduler events to NATS or Redis while keeping
// in-process delivery on an events.Bus.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/config"
	"github.com/friendsincode/telrun/internal/events"
	"github.com/friendsincode/telrun/internal/telemetry"
)

// sink delivers one encoded event to an external broker.
type sink interface {
	name() string
	send(ctx context.Context, eventType events.EventType, data []byte) error
	close() error
}

// Bus publishes locally first, then forwards to the external sink. After
// maxFails consecutive failures forwarding stops until Reset.
type Bus struct {
	*events.Bus

	remote  sink
	nodeID  string
	timeout time.Duration
	logger  zerolog.Logger

	mu        sync.Mutex
	failCount int
	maxFails  int
	tripped   bool
}

// New builds the bus selected by cfg.EventBus. Connection failures are
// returned; callers decide whether to continue with a local-only bus.
func New(cfg *config.Config, logger zerolog.Logger) (*Bus, error) {
	switch cfg.EventBus {
	case config.EventBusNATS:
		s, err := dialNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return nil, err
		}
		return newBus(s, logger), nil
	case config.EventBusRedis:
		s, err := dialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
		return newBus(s, logger), nil
	case config.EventBusNone, "":
		return newBus(nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.EventBus)
	}
}

// Local returns a bus without external forwarding.
func Local(logger zerolog.Logger) *Bus {
	return newBus(nil, logger)
}

func newBus(remote sink, logger zerolog.Logger) *Bus {
	b := &Bus{
		Bus:      events.NewBus(),
		remote:   remote,
		nodeID:   nodeID(),
		timeout:  2 * time.Second,
		maxFails: 5,
		logger:   logger.With().Str("component", "eventbus").Logger(),
	}
	if remote != nil {
		b.logger = b.logger.With().Str("bus", remote.name()).Logger()
		b.logger.Info().Str("node_id", b.nodeID).Msg("event forwarding enabled")
	}
	return b
}

// Publish delivers to local subscribers and forwards to the broker.
func (b *Bus) Publish(eventType events.EventType, payload events.Payload) {
	b.Bus.Publish(eventType, payload)
	if b.remote == nil {
		return
	}

	b.mu.Lock()
	tripped := b.tripped
	b.mu.Unlock()
	if tripped {
		return
	}

	data, err := marshalMessage(eventType, payload, b.nodeID)
	if err != nil {
		b.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to encode event")
		telemetry.EventPublishErrorsTotal.WithLabelValues(b.remote.name()).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.remote.send(ctx, eventType, data); err != nil {
		telemetry.EventPublishErrorsTotal.WithLabelValues(b.remote.name()).Inc()
		b.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to forward event")
		b.handleFailure()
		return
	}

	telemetry.EventsPublishedTotal.WithLabelValues(b.remote.name(), string(eventType)).Inc()
	b.mu.Lock()
	b.failCount = 0
	b.mu.Unlock()
}

// Forwarding reports whether events currently reach the broker.
func (b *Bus) Forwarding() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remote != nil && !b.tripped
}

// Reset re-enables forwarding after the breaker tripped.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCount = 0
	b.tripped = false
}

func (b *Bus) handleFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failCount++
	if b.failCount >= b.maxFails && !b.tripped {
		b.tripped = true
		b.logger.Warn().Int("fail_count", b.failCount).Msg("broker failure threshold reached, publishing locally only")
	}
}

// Close releases the broker connection.
func (b *Bus) Close() error {
	if b.remote == nil {
		return nil
	}
	if err := b.remote.close(); err != nil {
		return fmt.Errorf("close %s: %w", b.remote.name(), err)
	}
	return nil
}

// message is the wire envelope for forwarded events.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "telrun"
	}
	return host + "-" + uuid.NewString()[:8]
}
