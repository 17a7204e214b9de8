/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string
	Token   string
	Subject string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "smartlists.events",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSTransport relays events over a core NATS subject.
type NATSTransport struct {
	conn    *nats.Conn
	subject string
}

// DialNATS connects to the NATS server.
func DialNATS(cfg NATSConfig, logger zerolog.Logger) (*NATSTransport, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultNATSConfig().Subject
	}
	logger = logger.With().Str("component", "event_relay").Logger()

	opts := []nats.Option{
		nats.Name("smartlists"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Str("subject", cfg.Subject).Msg("NATS event relay connected")
	return &NATSTransport{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one message to the subject.
func (t *NATSTransport) Publish(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.conn.Publish(t.subject, data)
}

// Receive subscribes to the subject and blocks until ctx ends.
func (t *NATSTransport) Receive(ctx context.Context, handle func([]byte)) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := t.conn.ChanSubscribe(t.subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", t.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	// Make sure the server has registered interest before returning control.
	if err := t.conn.Flush(); err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			handle(msg.Data)
		}
		if t.conn.IsClosed() {
			return errors.New("nats connection closed")
		}
	}
}

// Close closes the connection.
func (t *NATSTransport) Close() error {
	t.conn.Close()
	return nil
}
