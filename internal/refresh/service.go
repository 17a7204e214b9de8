/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/engine"
	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/models"
)

var (
	// ErrListNotFound is returned for operations on unknown list ids.
	ErrListNotFound = errors.New("list not found")

	// ErrListExists is returned when creating a list under a taken id.
	ErrListExists = errors.New("list already exists")
)

// Service is the list management surface: it validates, persists and
// enqueues work for the orchestrator.
type Service struct {
	engine   *engine.Engine
	store    Store
	provider catalog.Provider
	orch     *Orchestrator
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewService creates a service.
func NewService(eng *engine.Engine, store Store, provider catalog.Provider, orch *Orchestrator, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		engine:   eng,
		store:    store,
		provider: provider,
		orch:     orch,
		bus:      bus,
		logger:   logger.With().Str("component", "lists").Logger(),
	}
}

// Get returns a stored list.
func (s *Service) Get(ctx context.Context, id string) (*models.ListSpec, error) {
	spec, found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrListNotFound
	}
	return spec, nil
}

// List returns every stored list.
func (s *Service) List(ctx context.Context) ([]*models.ListSpec, error) {
	return s.store.List(ctx)
}

// Validate returns every problem with spec without storing it.
func (s *Service) Validate(spec *models.ListSpec) []error {
	s.engine.Invalidate()
	return s.engine.ValidateSpec(spec)
}

// Create stores a new list and enqueues one create per owner.
func (s *Service) Create(ctx context.Context, spec *models.ListSpec) (*models.ListSpec, error) {
	if spec == nil {
		return nil, s.engine.Validate(nil)
	}
	spec = spec.Clone()
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	spec.Artifacts = nil

	s.engine.Invalidate()
	if err := s.engine.Validate(spec); err != nil {
		return nil, err
	}
	if _, found, err := s.store.Get(ctx, spec.ID); err != nil {
		return nil, err
	} else if found {
		return nil, fmt.Errorf("%w: %s", ErrListExists, spec.ID)
	}
	if err := s.store.Save(ctx, spec); err != nil {
		return nil, err
	}
	s.published(events.EventListSaved, spec, models.OperationCreate)

	if err := s.enqueuePerOwner(spec, models.OperationCreate); err != nil {
		return spec, err
	}
	return spec, nil
}

// Update replaces a list. Owners no longer listed lose their artifact; a
// change of kind removes every old artifact before new ones are built.
func (s *Service) Update(ctx context.Context, spec *models.ListSpec) (*models.ListSpec, error) {
	if spec == nil {
		return nil, s.engine.Validate(nil)
	}
	spec = spec.Clone()
	spec.Artifacts = nil

	s.engine.Invalidate()
	if err := s.engine.Validate(spec); err != nil {
		return nil, err
	}
	previous, found, err := s.store.Get(ctx, spec.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrListNotFound
	}
	spec.CreatedAt = previous.CreatedAt

	if err := s.store.Save(ctx, spec); err != nil {
		return nil, err
	}
	s.published(events.EventListSaved, spec, models.OperationEdit)

	for _, owner := range previous.Owners {
		if previous.Kind == spec.Kind && spec.HasOwner(owner) {
			continue
		}
		if _, ok := previous.ArtifactFor(owner); !ok {
			continue
		}
		s.logger.Info().Str("list_id", spec.ID).Str("user_id", owner).Msg("owner dropped, removing artifact")
		if err := s.orch.Enqueue(models.RefreshQueueItem{
			ListID:    spec.ID,
			Kind:      previous.Kind,
			Operation: models.OperationDelete,
			Spec:      previous.Clone(),
			UserID:    owner,
			Trigger:   models.TriggerAuto,
		}); err != nil {
			return spec, err
		}
	}

	if err := s.enqueuePerOwner(spec, models.OperationEdit); err != nil {
		return spec, err
	}
	return spec, nil
}

// Delete removes a list. With removeArtifacts the host artifacts are
// deleted too. Unknown ids succeed.
func (s *Service) Delete(ctx context.Context, id string, removeArtifacts bool) error {
	previous, found, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.published(events.EventListDeleted, previous, models.OperationDelete)

	if !removeArtifacts {
		return nil
	}
	return s.orch.Enqueue(models.RefreshQueueItem{
		ListID:    id,
		Kind:      previous.Kind,
		Operation: models.OperationDelete,
		Spec:      previous,
		Trigger:   models.TriggerManual,
	})
}

// Refresh enqueues a refresh of every owner of a list.
func (s *Service) Refresh(ctx context.Context, id string, trigger models.Trigger) error {
	spec, found, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrListNotFound
	}
	return s.orch.Enqueue(models.RefreshQueueItem{
		ListID:    id,
		Kind:      spec.Kind,
		Operation: models.OperationRefresh,
		Spec:      spec,
		Trigger:   trigger,
	})
}

// Preview evaluates spec for userID without touching any artifact. limit
// caps the returned items; zero keeps them all.
func (s *Service) Preview(ctx context.Context, spec *models.ListSpec, userID string, limit int) (engine.FilterResult, error) {
	if spec == nil {
		return engine.FilterResult{}, s.engine.Validate(nil)
	}
	if err := s.engine.Validate(spec); err != nil {
		return engine.FilterResult{}, err
	}
	if userID == "" && len(spec.Owners) > 0 {
		userID = spec.Owners[0]
	}
	types, expanded := s.engine.RequiredTypes(spec)
	items, err := NewCache(s.provider).Get(ctx, NewCacheKey(userID, types, expanded))
	if err != nil {
		return engine.FilterResult{}, err
	}
	res, err := s.engine.Filter(ctx, engine.FilterRequest{
		Items:       items,
		Spec:        spec,
		EvalUserID:  userID,
		OwnerUserID: userID,
	})
	if err != nil {
		return engine.FilterResult{}, err
	}
	if limit > 0 && len(res.Items) > limit {
		res.Items = res.Items[:limit]
		res.IDs = res.IDs[:limit]
	}
	return res, nil
}

func (s *Service) enqueuePerOwner(spec *models.ListSpec, op models.Operation) error {
	for _, owner := range ownersOf(spec, "") {
		err := s.orch.Enqueue(models.RefreshQueueItem{
			ListID:    spec.ID,
			Kind:      spec.Kind,
			Operation: op,
			Spec:      spec.Clone(),
			UserID:    owner,
			Trigger:   models.TriggerAuto,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) published(t events.EventType, spec *models.ListSpec, op models.Operation) {
	s.bus.Publish(t, events.Payload{
		"list_id":   spec.ID,
		"list_name": spec.Name,
		"kind":      string(spec.Kind),
		"operation": string(op),
	})
}
