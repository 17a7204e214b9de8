/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler fires batch refreshes on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/refresh"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// Runner performs a batch refresh.
type Runner interface {
	BatchRefresh(ctx context.Context, trigger models.Trigger) ([]models.RefreshResult, error)
}

// RunInfo describes the last scheduled batch.
type RunInfo struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Lists     int           `json:"lists"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped"`
	Error     string        `json:"error,omitempty"`
}

// Service runs BatchRefresh(Scheduled) whenever the cron expression fires.
type Service struct {
	runner   Runner
	expr     string
	schedule cron.Schedule
	logger   zerolog.Logger

	mu      sync.Mutex
	lastRun *RunInfo
}

// ValidateExpression checks a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 30m".
func ValidateExpression(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// New constructs the scheduler service.
func New(runner Runner, expr string, logger zerolog.Logger) (*Service, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &Service{
		runner:   runner,
		expr:     expr,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next returns the next firing time after t.
func (s *Service) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// LastRun returns the outcome of the most recent scheduled batch, if any.
func (s *Service) LastRun() (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return RunInfo{}, false
	}
	return *s.lastRun, true
}

// Run executes the cron loop until the context is cancelled. A batch in
// progress when ctx ends is cancelled with it.
func (s *Service) Run(ctx context.Context) error {
	adapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.tick(ctx) }))

	s.logger.Info().Str("cron", s.expr).Time("next_run", s.Next(time.Now())).Msg("scheduler loop started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("scheduler loop stopped")
	return ctx.Err()
}

// Serve adapts Run to the supervisor.
func (s *Service) Serve(ctx context.Context) error {
	return s.Run(ctx)
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "refresh-scheduler"
}

func (s *Service) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	info := RunInfo{StartedAt: started.UTC()}

	results, err := s.runner.BatchRefresh(ctx, models.TriggerScheduled)
	info.Duration = time.Since(started)
	info.Lists = len(results)
	for _, r := range results {
		if !r.Success {
			info.Failed++
		}
	}

	switch {
	case errors.Is(err, refresh.ErrBatchConflict):
		info.Skipped = true
		telemetry.ScheduledRunsTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn().Msg("batch refresh already running, skipping scheduled run")
	case err != nil:
		info.Error = err.Error()
		telemetry.ScheduledRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Int("lists", info.Lists).Msg("scheduled batch refresh failed")
	default:
		telemetry.ScheduledRunsTotal.WithLabelValues("success").Inc()
		s.logger.Info().
			Int("lists", info.Lists).
			Int("failed", info.Failed).
			Dur("duration", info.Duration).
			Msg("scheduled batch refresh completed")
	}

	s.mu.Lock()
	s.lastRun = &info
	s.mu.Unlock()
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
