/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single scheduler instance through a Redis lease.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/telemetry"
)

const (
	defaultElectionKey     = "smartlists:leader:refresh"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// renewScript extends the lease only while we still own it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// releaseScript deletes the lease only while we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Config configures leader election.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the current leader id.
	ElectionKey string

	// LeaseDuration is how long a lease is valid without renewal.
	LeaseDuration time.Duration

	// RenewalInterval is how often the leader renews.
	RenewalInterval time.Duration

	// RetryInterval is how often followers try to take the lease.
	RetryInterval time.Duration

	InstanceID string
}

// DefaultConfig returns the default election configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.NewString(),
	}
}

func (c Config) withDefaults() Config {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RenewalInterval <= 0 {
		c.RenewalInterval = defaultRenewalInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	return c
}

// Election campaigns for the lease and reports leadership changes.
type Election struct {
	client   redis.UniversalClient
	config   Config
	logger   zerolog.Logger
	isLeader atomic.Bool
	leaderCh chan bool
}

// NewElection creates an election over an existing client.
func NewElection(client redis.UniversalClient, config Config, logger zerolog.Logger) *Election {
	config = config.withDefaults()
	return &Election{
		client:   client,
		config:   config,
		logger:   logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger(),
		leaderCh: make(chan bool, 1),
	}
}

// Dial connects to the configured Redis server and returns an election
// using that connection.
func Dial(ctx context.Context, config Config, logger zerolog.Logger) (*Election, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info().Str("redis_addr", config.RedisAddr).Msg("connected to Redis for leader election")
	return NewElection(client, config, logger), nil
}

// Close releases the Redis connection.
func (e *Election) Close() error {
	return e.client.Close()
}

// InstanceID returns this instance's identity in the election.
func (e *Election) InstanceID() string {
	return e.config.InstanceID
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh delivers leadership transitions. Only the latest pending value
// is kept if nobody is reading.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the id of the current leader, or "" when there is none.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

// Serve campaigns until ctx is done, then gives up the lease if held.
func (e *Election) Serve(ctx context.Context) error {
	e.logger.Info().Dur("lease_duration", e.config.LeaseDuration).Msg("starting leader election")

	e.attempt(ctx)
	for {
		interval := e.config.RetryInterval
		if e.IsLeader() {
			interval = e.config.RenewalInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.resign()
			return ctx.Err()
		case <-timer.C:
			e.attempt(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (e *Election) String() string {
	return "leader-election"
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error().Err(err).Msg("leader election attempt failed")
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

func (e *Election) acquire(ctx context.Context) (bool, error) {
	if e.IsLeader() {
		n, err := renewScript.Run(ctx, e.client, []string{e.config.ElectionKey},
			e.config.InstanceID, e.config.LeaseDuration.Milliseconds()).Int64()
		if err != nil {
			return false, fmt.Errorf("renew lease: %w", err)
		}
		if n == 1 {
			return true, nil
		}
	}

	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("take lease: %w", err)
	}
	return ok, nil
}

func (e *Election) resign() {
	if !e.IsLeader() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); err != nil {
		e.logger.Error().Err(err).Msg("failed to release leadership lease")
	} else {
		e.logger.Info().Msg("released leadership lease")
	}
	e.setLeader(false)
}

func (e *Election) setLeader(leader bool) {
	if e.isLeader.Swap(leader) == leader {
		return
	}

	change := "lost"
	gauge := 0.0
	if leader {
		change = "acquired"
		gauge = 1
		e.logger.Info().Msg("acquired leadership")
	} else {
		e.logger.Warn().Msg("lost leadership")
	}
	telemetry.LeaderElectionStatus.WithLabelValues(e.config.InstanceID).Set(gauge)
	telemetry.LeaderElectionChanges.WithLabelValues(e.config.InstanceID, change).Inc()

	// Replace a stale pending value so readers always see the latest state.
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- leader:
	default:
	}
}
