/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/refresh"
)

type fakeRunner struct {
	calls    atomic.Int32
	mu       sync.Mutex
	triggers []models.Trigger
	err      error
	results  []models.RefreshResult
}

func (r *fakeRunner) BatchRefresh(ctx context.Context, trigger models.Trigger) ([]models.RefreshResult, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
	return r.results, r.err
}

func TestValidateExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/15 * * * *", false},
		{"0 3 * * *", false},
		{"@hourly", false},
		{"@every 30m", false},
		{"", true},
		{"61 * * * *", true},
		{"not a schedule", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if err := ValidateExpression(tt.expr); (err != nil) != tt.wantErr {
				t.Fatalf("ValidateExpression(%q) = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsBadExpression(t *testing.T) {
	if _, err := New(&fakeRunner{}, "bogus", zerolog.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNext(t *testing.T) {
	svc, err := New(&fakeRunner{}, "0 3 * * *", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	from := time.Date(2026, 1, 1, 4, 0, 0, 0, time.Local)
	want := time.Date(2026, 1, 2, 3, 0, 0, 0, time.Local)
	if got := svc.Next(from); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestRunFiresScheduledBatch(t *testing.T) {
	runner := &fakeRunner{results: []models.RefreshResult{{ListID: "a", Success: true}, {ListID: "b"}}}
	svc, err := New(runner, "@every 1s", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}

	if runner.calls.Load() < 1 {
		t.Fatal("expected at least one scheduled batch")
	}
	runner.mu.Lock()
	trigger := runner.triggers[0]
	runner.mu.Unlock()
	if trigger != models.TriggerScheduled {
		t.Fatalf("trigger = %s", trigger)
	}

	info, ok := svc.LastRun()
	if !ok || info.Lists != 2 || info.Failed != 1 || info.Skipped {
		t.Fatalf("unexpected last run %+v", info)
	}
}

func TestTickRecordsConflictAsSkipped(t *testing.T) {
	runner := &fakeRunner{err: refresh.ErrBatchConflict}
	svc, err := New(runner, "@hourly", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	svc.tick(context.Background())

	info, ok := svc.LastRun()
	if !ok || !info.Skipped || info.Error != "" {
		t.Fatalf("unexpected last run %+v", info)
	}
}

func TestTickSkipsAfterCancel(t *testing.T) {
	runner := &fakeRunner{}
	svc, err := New(runner, "@hourly", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.tick(ctx)
	if runner.calls.Load() != 0 {
		t.Fatal("tick must not run after cancellation")
	}
	if _, ok := svc.LastRun(); ok {
		t.Fatal("no run expected")
	}
}
