/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeLeadership struct {
	leader atomic.Bool
	ch     chan bool
}

func newFakeLeadership(leader bool) *fakeLeadership {
	f := &fakeLeadership{ch: make(chan bool, 1)}
	f.leader.Store(leader)
	return f
}

func (f *fakeLeadership) IsLeader() bool        { return f.leader.Load() }
func (f *fakeLeadership) LeaderCh() <-chan bool { return f.ch }

func (f *fakeLeadership) set(v bool) {
	f.leader.Store(v)
	f.ch <- v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLeaderAwareFollowsLeadership(t *testing.T) {
	svc, err := New(&fakeRunner{}, "@hourly", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	election := newFakeLeadership(false)
	las := NewLeaderAware(svc, election, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- las.Serve(ctx) }()

	if las.Running() {
		t.Fatal("follower must not run the scheduler")
	}

	election.set(true)
	waitFor(t, las.Running)

	election.set(false)
	waitFor(t, func() bool { return !las.Running() })

	election.set(true)
	waitFor(t, las.Running)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if las.Running() {
		t.Fatal("scheduler still running after shutdown")
	}
}

func TestLeaderAwareStartsWhenAlreadyLeader(t *testing.T) {
	svc, err := New(&fakeRunner{}, "@hourly", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	las := NewLeaderAware(svc, newFakeLeadership(true), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = las.Serve(ctx) }()

	waitFor(t, las.Running)
	if !las.IsLeader() {
		t.Fatal("IsLeader should follow the election")
	}
}
