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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Channel:      "smartlists:events",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisTransport relays events over a Redis pub/sub channel.
type RedisTransport struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisTransport wraps an existing client.
func NewRedisTransport(client redis.UniversalClient, channel string) *RedisTransport {
	if channel == "" {
		channel = DefaultRedisConfig().Channel
	}
	return &RedisTransport{client: client, channel: channel}
}

// DialRedis connects and verifies the server answers.
func DialRedis(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Str("channel", cfg.Channel).Msg("Redis event relay connected")
	return NewRedisTransport(client, cfg.Channel), nil
}

// Publish sends one message to the channel.
func (t *RedisTransport) Publish(ctx context.Context, data []byte) error {
	return t.client.Publish(ctx, t.channel, data).Err()
}

// Receive subscribes to the channel and blocks until ctx ends.
func (t *RedisTransport) Receive(ctx context.Context, handle func([]byte)) error {
	pubsub := t.client.Subscribe(ctx, t.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", t.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			handle([]byte(msg.Payload))
		}
	}
}

// Close closes the Redis client.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
