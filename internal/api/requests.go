// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/filter"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// QueryRequest runs an ad-hoc audience query against a source.
type QueryRequest struct {
	Source         engine.Source      `json:"source" validate:"required"`
	SelectedFields []string           `json:"selected_fields"`
	Filters        []filter.Condition `json:"filters"`
	Limit          int                `json:"limit"`
	Offset         int                `json:"offset"`
}

// DescribeRequest loads a source and reports its schema and row count.
// Refresh forces a re-import even when the source is already cached.
type DescribeRequest struct {
	Source  engine.Source `json:"source" validate:"required"`
	Refresh bool          `json:"refresh"`
}

// CreateSegmentRequest persists a new segment definition.
type CreateSegmentRequest struct {
	Name             string             `json:"name" validate:"required"`
	ParentAudienceID string             `json:"parent_audience_id"`
	SourceURL        string             `json:"source_url" validate:"required"`
	Format           engine.Format      `json:"format" validate:"required"`
	FilterTree       []filter.Condition `json:"filter_tree"`
	SelectedFields   []string           `json:"selected_fields"`
}

// PreviewRequest pages a segment preview.
type PreviewRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// decodeJSON decodes and validates a request body. Unknown body fields are
// rejected so typos surface as errors instead of silently ignored options.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Validationf("invalid request body: %s", err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return errs.Validationf("invalid request: %s", err.Error())
	}
	return nil
}
