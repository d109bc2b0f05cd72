/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/events"
)

// natsConn is the subset of *nats.Conn used here.
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

type natsSink struct {
	conn   natsConn
	prefix string
}

func dialNATS(url, prefix string, logger zerolog.Logger) (*natsSink, error) {
	log := logger.With().Str("component", "eventbus").Str("bus", "nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name("telrun"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &natsSink{conn: conn, prefix: prefix}, nil
}

func (s *natsSink) name() string { return "nats" }

// subject maps an event type onto the subject hierarchy, e.g.
// telrun.events.block.placed.
func (s *natsSink) subject(eventType events.EventType) string {
	return s.prefix + "." + string(eventType)
}

func (s *natsSink) send(ctx context.Context, eventType events.EventType, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.Publish(s.subject(eventType), data)
}

func (s *natsSink) close() error { return s.conn.Drain() }
