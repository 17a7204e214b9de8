/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package supervisor runs the long-lived services under a suture tree so a
// crashed consumer or scheduler is restarted instead of taking the process down.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is how long to wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns the suture defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the process supervisor. Refresh work (queue consumer, scheduler,
// leader election) and the HTTP surface live in separate child supervisors
// so a failing layer backs off on its own.
type Tree struct {
	root    *suture.Supervisor
	refresh *suture.Supervisor
	api     *suture.Supervisor
	config  TreeConfig
}

// NewTree builds the supervisor hierarchy.
func NewTree(logger zerolog.Logger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	spec := suture.Spec{
		EventHook:        EventHook(logger.With().Str("component", "supervisor").Logger()),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := spec
	childSpec.EventHook = nil

	root := suture.New("smartlists", spec)
	refresh := suture.New("refresh-layer", childSpec)
	api := suture.New("api-layer", childSpec)
	root.Add(refresh)
	root.Add(api)

	return &Tree{root: root, refresh: refresh, api: api, config: config}
}

// AddRefreshService supervises a refresh pipeline service.
func (t *Tree) AddRefreshService(svc suture.Service) suture.ServiceToken {
	return t.refresh.Add(svc)
}

// AddAPIService supervises an HTTP-facing service.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// EventHook logs supervisor events through zerolog.
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		switch ev := e.(type) {
		case suture.EventServicePanic:
			logger.Error().
				Str("supervisor", ev.SupervisorName).
				Str("service", ev.ServiceName).
				Float64("failures", ev.CurrentFailures).
				Bool("restarting", ev.Restarting).
				Str("panic", ev.PanicMsg).
				Str("stacktrace", ev.Stacktrace).
				Msg("service panicked")
		case suture.EventServiceTerminate:
			logger.Warn().
				Str("supervisor", ev.SupervisorName).
				Str("service", ev.ServiceName).
				Float64("failures", ev.CurrentFailures).
				Bool("restarting", ev.Restarting).
				Interface("error", ev.Err).
				Msg("service terminated")
		case suture.EventBackoff:
			logger.Warn().Str("supervisor", ev.SupervisorName).Msg("supervisor entering backoff")
		case suture.EventResume:
			logger.Info().Str("supervisor", ev.SupervisorName).Msg("supervisor resuming")
		case suture.EventStopTimeout:
			logger.Error().
				Str("supervisor", ev.SupervisorName).
				Str("service", ev.ServiceName).
				Msg("service did not stop in time")
		default:
			logger.Debug().Msg(e.String())
		}
	}
}
