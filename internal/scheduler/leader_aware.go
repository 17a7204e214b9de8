/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Leadership reports whether this instance may run scheduled work.
type Leadership interface {
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAwareScheduler runs the scheduler only while this instance is the leader.
type LeaderAwareScheduler struct {
	scheduler *Service
	election  Leadership
	logger    zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler *Service, election Leadership, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Serve watches leadership changes and starts or stops the scheduler until
// ctx is done. The election itself is supervised separately.
func (las *LeaderAwareScheduler) Serve(ctx context.Context) error {
	las.logger.Info().Msg("starting leader-aware scheduler")
	defer las.stopScheduler()

	if las.election.IsLeader() {
		las.startScheduler(ctx)
	}

	leaderCh := las.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case isLeader := <-leaderCh:
			if isLeader {
				las.logger.Info().Msg("became leader, starting scheduler")
				las.startScheduler(ctx)
			} else {
				las.logger.Warn().Msg("lost leadership, stopping scheduler")
				las.stopScheduler()
			}
		}
	}
}

// String names the service in supervisor logs.
func (las *LeaderAwareScheduler) String() string {
	return "leader-aware-scheduler"
}

// Running reports whether the wrapped scheduler is active.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.running
}

// IsLeader returns whether this instance is the leader.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}

func (las *LeaderAwareScheduler) startScheduler(parent context.Context) {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.running {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	las.cancel = cancel
	las.done = done
	las.running = true

	go func() {
		defer close(done)
		if err := las.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("scheduler error")
		}
	}()
}

// stopScheduler cancels the scheduler and waits for any batch in flight.
func (las *LeaderAwareScheduler) stopScheduler() {
	las.mu.Lock()
	if !las.running {
		las.mu.Unlock()
		return
	}
	cancel, done := las.cancel, las.done
	las.running = false
	las.cancel = nil
	las.done = nil
	las.mu.Unlock()

	cancel()
	<-done
}
