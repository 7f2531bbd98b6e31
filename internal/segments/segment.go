// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package segments persists named audience segment definitions and evaluates
// them against live sources.
//
// A segment is a query descriptor, not a snapshot: its data values are never
// stored, and every preview re-evaluates the definition against the current
// state of the source file. Two previews of the same segment can therefore
// return different rows if the source changed in between.
package segments

import (
	"time"

	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/filter"
)

// Segment is a persisted audience segment definition. Read-only after
// creation except for deletion; the filter tree and selection never mutate
// in place.
type Segment struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ParentAudienceID string             `json:"parent_audience_id"`
	SourceURL        string             `json:"source_url"`
	Format           engine.Format      `json:"format"`
	FilterTree       []filter.Condition `json:"filter_tree"`
	SelectedFields   []string           `json:"selected_fields"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Source returns the audience source descriptor this segment queries.
func (s *Segment) Source() engine.Source {
	return engine.Source{URL: s.SourceURL, Format: s.Format}
}
