/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// NameFormat decorates list names on the artifact.
type NameFormat struct {
	Prefix string
	Suffix string
}

// Apply returns the decorated name.
func (f NameFormat) Apply(name string) string {
	return f.Prefix + name + f.Suffix
}

// Outcome of a reconciliation. Stats describe exactly the written members.
type Outcome struct {
	ArtifactID     string
	ItemCount      int
	RuntimeMinutes float64
	Created        bool
}

// Strategy writes a filtered item list to the host.
type Strategy interface {
	Reconcile(ctx context.Context, spec *models.ListSpec, owner string, items []*catalog.Item, existingID string) (Outcome, error)
	Remove(ctx context.Context, artifactID string) error
}

// Options configure a reconciler.
type Options struct {
	Format   NameFormat
	CoverArt bool
}

type reconciler struct {
	kind   models.ListKind
	sink   ListSink
	opts   Options
	logger zerolog.Logger
}

// PlaylistReconciler keeps one playlist per owning user.
type PlaylistReconciler struct{ reconciler }

// NewPlaylistReconciler creates a playlist strategy.
func NewPlaylistReconciler(sink ListSink, opts Options, logger zerolog.Logger) *PlaylistReconciler {
	return &PlaylistReconciler{reconciler{
		kind:   models.ListKindPlaylist,
		sink:   sink,
		opts:   opts,
		logger: logger.With().Str("component", "reconcile").Str("kind", "playlist").Logger(),
	}}
}

// Reconcile creates or updates the owner's playlist.
func (r *PlaylistReconciler) Reconcile(ctx context.Context, spec *models.ListSpec, owner string, items []*catalog.Item, existingID string) (Outcome, error) {
	return r.reconcile(ctx, spec, owner, items, existingID, spec.Public)
}

// CollectionReconciler keeps a single server-wide collection.
type CollectionReconciler struct{ reconciler }

// NewCollectionReconciler creates a collection strategy.
func NewCollectionReconciler(sink ListSink, opts Options, logger zerolog.Logger) *CollectionReconciler {
	return &CollectionReconciler{reconciler{
		kind:   models.ListKindCollection,
		sink:   sink,
		opts:   opts,
		logger: logger.With().Str("component", "reconcile").Str("kind", "collection").Logger(),
	}}
}

// Reconcile creates or updates the collection. Collections are always
// visible server-wide; the owner is advisory.
func (r *CollectionReconciler) Reconcile(ctx context.Context, spec *models.ListSpec, owner string, items []*catalog.Item, existingID string) (Outcome, error) {
	return r.reconcile(ctx, spec, owner, items, existingID, true)
}

// Remove deletes an artifact. Absence is success.
func (r *reconciler) Remove(ctx context.Context, artifactID string) error {
	if artifactID == "" {
		return nil
	}
	if err := r.sink.Delete(ctx, artifactID); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrArtifactWrite, artifactID, err)
	}
	return nil
}

func (r *reconciler) reconcile(ctx context.Context, spec *models.ListSpec, owner string, items []*catalog.Item, existingID string, public bool) (Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "reconcile", "reconcile."+string(r.kind))
	defer span.End()

	ids := make([]string, len(items))
	out := Outcome{ItemCount: len(items)}
	for i, item := range items {
		ids[i] = item.ID
		out.RuntimeMinutes += item.RuntimeMinutes()
	}

	name := r.opts.Format.Apply(spec.Name)
	mediaKind := MediaKindFor(spec.MediaTypes)

	current, found, err := r.resolve(ctx, existingID, owner)
	if err != nil {
		telemetry.RecordError(span, err)
		return Outcome{}, err
	}

	if !found {
		req := CreateRequest{
			Kind:      r.kind,
			Name:      name,
			OwnerID:   owner,
			Public:    public,
			MemberIDs: ids,
		}
		if r.kind == models.ListKindPlaylist {
			req.MediaKind = mediaKind
		}
		id, err := r.sink.Create(ctx, req)
		if err != nil {
			err = fmt.Errorf("%w: create %q: %w", ErrArtifactWrite, name, err)
			telemetry.RecordError(span, err)
			return Outcome{}, err
		}
		r.logger.Info().Str("list_id", spec.ID).Str("user_id", owner).Str("artifact_id", id).Int("items", len(ids)).Msg("artifact created")
		current = Artifact{ID: id, Kind: r.kind, Name: name, OwnerID: owner, Public: public, MediaKind: req.MediaKind, MemberIDs: ids}
		out.Created = true
	} else {
		if err := r.update(ctx, current, name, public, mediaKind, ids); err != nil {
			telemetry.RecordError(span, err)
			return Outcome{}, err
		}
	}
	out.ArtifactID = current.ID

	if r.opts.CoverArt {
		r.applyCover(ctx, current, items)
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"list_id":     spec.ID,
		"artifact_id": out.ArtifactID,
		"items":       out.ItemCount,
		"created":     out.Created,
	})
	return out, nil
}

// resolve looks up the recorded artifact by id only. An artifact of another
// kind, or a playlist belonging to someone else, counts as absent.
func (r *reconciler) resolve(ctx context.Context, id, owner string) (Artifact, bool, error) {
	if id == "" {
		return Artifact{}, false, nil
	}
	art, found, err := r.sink.Resolve(ctx, id)
	if err != nil {
		return Artifact{}, false, fmt.Errorf("%w: resolve %s: %w", ErrArtifactWrite, id, err)
	}
	if !found || art.Kind != r.kind {
		return Artifact{}, false, nil
	}
	if r.kind == models.ListKindPlaylist && art.OwnerID != owner {
		return Artifact{}, false, nil
	}
	return art, true, nil
}

func (r *reconciler) update(ctx context.Context, art Artifact, name string, public bool, kind MediaKind, ids []string) error {
	if art.Name != name {
		if err := r.sink.Rename(ctx, art.ID, name); err != nil {
			return fmt.Errorf("%w: rename %s: %w", ErrArtifactWrite, art.ID, err)
		}
	}
	if art.Public != public {
		if err := r.sink.SetVisibility(ctx, art.ID, public); err != nil {
			return fmt.Errorf("%w: visibility %s: %w", ErrArtifactWrite, art.ID, err)
		}
	}
	if r.kind == models.ListKindPlaylist && art.MediaKind != kind {
		if err := r.sink.SetMediaKind(ctx, art.ID, kind); err != nil {
			return fmt.Errorf("%w: media kind %s: %w", ErrArtifactWrite, art.ID, err)
		}
	}
	if !slices.Equal(art.MemberIDs, ids) {
		if err := r.sink.SetMembers(ctx, art.ID, ids); err != nil {
			return fmt.Errorf("%w: members %s: %w", ErrArtifactWrite, art.ID, err)
		}
	}
	return nil
}

// applyCover picks the first member with artwork. Failures are logged only.
func (r *reconciler) applyCover(ctx context.Context, art Artifact, items []*catalog.Item) {
	cover := ""
	for _, item := range items {
		if item.HasImage {
			cover = item.ID
			break
		}
	}
	if cover == "" || cover == art.CoverItemID {
		return
	}
	if err := r.sink.SetCover(ctx, art.ID, cover); err != nil {
		r.logger.Warn().Err(err).Str("artifact_id", art.ID).Msg("cover art update failed")
	}
}
