/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reconcile

import (
	"context"
	"errors"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

// ErrArtifactWrite marks a failed create/update/delete against the sink.
var ErrArtifactWrite = errors.New("artifact write failed")

// MediaKind tags a playlist artifact for players.
type MediaKind string

const (
	MediaKindAudio MediaKind = "Audio"
	MediaKindVideo MediaKind = "Video"
)

// MediaKindFor returns Audio when every media type is an audio type.
func MediaKindFor(mediaTypes []string) MediaKind {
	if len(mediaTypes) == 0 {
		return MediaKindVideo
	}
	for _, name := range mediaTypes {
		t, ok := catalog.ParseMediaType(name)
		if !ok || !t.IsAudio() {
			return MediaKindVideo
		}
	}
	return MediaKindAudio
}

// Artifact is the sink's view of a playlist or collection.
type Artifact struct {
	ID          string
	Kind        models.ListKind
	Name        string
	OwnerID     string
	Public      bool
	MediaKind   MediaKind
	MemberIDs   []string
	CoverItemID string
}

// CreateRequest carries everything needed for a new artifact.
type CreateRequest struct {
	Kind      models.ListKind
	Name      string
	OwnerID   string
	Public    bool
	MediaKind MediaKind
	MemberIDs []string
}

// ListSink is the host's playlist and collection store. Resolve reports
// absence with found=false; Delete of an absent artifact is not an error.
type ListSink interface {
	Resolve(ctx context.Context, id string) (Artifact, bool, error)
	Create(ctx context.Context, req CreateRequest) (string, error)
	Rename(ctx context.Context, id, name string) error
	SetVisibility(ctx context.Context, id string, public bool) error
	SetMembers(ctx context.Context, id string, itemIDs []string) error
	SetMediaKind(ctx context.Context, id string, kind MediaKind) error
	SetCover(ctx context.Context, id, itemID string) error
	Delete(ctx context.Context, id string) error
}
