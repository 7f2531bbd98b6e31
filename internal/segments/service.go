// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package segments

import (
	"context"

	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/logging"
)

// Service couples the segment store to the analytical engine for previews.
type Service struct {
	store    *Store
	loader   *engine.Loader
	executor *engine.Executor
}

// NewService creates a segment service.
func NewService(store *Store, loader *engine.Loader, executor *engine.Executor) *Service {
	return &Service{store: store, loader: loader, executor: executor}
}

// Create persists a new segment definition.
func (s *Service) Create(def Segment) (*Segment, error) {
	return s.store.Create(def)
}

// Get loads a segment by id.
func (s *Service) Get(id string) (*Segment, error) {
	return s.store.Get(id)
}

// List returns segments, optionally scoped to a parent audience.
func (s *Service) List(parentID string) ([]*Segment, error) {
	return s.store.List(parentID)
}

// Delete removes a segment.
func (s *Service) Delete(id string) error {
	return s.store.Delete(id)
}

// Preview evaluates a stored segment against the live source: ensure the
// source is loaded, refresh the attributes view, then run the segment's
// filters and selection with the caller's page window.
//
// A segment whose definition no longer validates (a field key removed from
// the catalog, say) fails here, at first preview, not at creation.
func (s *Service) Preview(ctx context.Context, id string, limit, offset int) (*engine.Result, error) {
	seg, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	src := seg.Source()

	if _, err := s.loader.EnsureLoaded(ctx, src); err != nil {
		return nil, err
	}
	if err := s.loader.BuildAttributesView(ctx, src); err != nil {
		return nil, err
	}
	view, err := s.loader.View(src)
	if err != nil {
		return nil, err
	}

	res, err := s.executor.Execute(ctx, view, engine.Options{
		SelectedFields: seg.SelectedFields,
		Filters:        seg.FilterTree,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Debug().
		Str("segment_id", seg.ID).
		Int64("total", res.Total).
		Msg("Segment previewed")
	return res, nil
}
