/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sink

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/reconcile"
)

func newTestSink(t *testing.T) *GormSink {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	s := New(db, zerolog.Nop())
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestGormSinkLifecycle(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	id, err := s.Create(ctx, reconcile.CreateRequest{
		Kind:      models.ListKindPlaylist,
		Name:      "Mix",
		OwnerID:   "u1",
		MediaKind: reconcile.MediaKindAudio,
		MemberIDs: []string{"c", "a", "b"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	art, found, err := s.Resolve(ctx, id)
	if err != nil || !found {
		t.Fatalf("resolve: found=%v err=%v", found, err)
	}
	if art.Name != "Mix" || art.OwnerID != "u1" || art.MediaKind != reconcile.MediaKindAudio {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if !slices.Equal(art.MemberIDs, []string{"c", "a", "b"}) {
		t.Fatalf("member order lost: %v", art.MemberIDs)
	}

	if err := s.Rename(ctx, id, "Mix 2"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := s.SetVisibility(ctx, id, true); err != nil {
		t.Fatalf("visibility: %v", err)
	}
	if err := s.SetMembers(ctx, id, []string{"b"}); err != nil {
		t.Fatalf("members: %v", err)
	}
	if err := s.SetCover(ctx, id, "b"); err != nil {
		t.Fatalf("cover: %v", err)
	}

	art, _, _ = s.Resolve(ctx, id)
	if art.Name != "Mix 2" || !art.Public || art.CoverItemID != "b" || !slices.Equal(art.MemberIDs, []string{"b"}) {
		t.Fatalf("updates not applied: %+v", art)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Resolve(ctx, id); found {
		t.Fatal("artifact still present after delete")
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestGormSinkUnknownArtifact(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	if _, found, err := s.Resolve(ctx, "nope"); err != nil || found {
		t.Fatalf("resolve unknown: found=%v err=%v", found, err)
	}
	if err := s.Rename(ctx, "nope", "x"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if err := s.SetMembers(ctx, "nope", []string{"a"}); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestReconcileAgainstGormSink(t *testing.T) {
	s := newTestSink(t)
	r := reconcile.NewPlaylistReconciler(s, reconcile.Options{}, zerolog.Nop())
	spec := &models.ListSpec{ID: "l1", Name: "Road Trip", Kind: models.ListKindPlaylist, MediaTypes: []string{"Audio"}}

	out, err := r.Reconcile(context.Background(), spec, "u1", nil, "")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	again, err := r.Reconcile(context.Background(), spec, "u1", nil, out.ArtifactID)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.Created || again.ArtifactID != out.ArtifactID {
		t.Fatalf("expected the recorded artifact to be reused, got %+v", again)
	}
}
