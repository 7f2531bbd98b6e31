// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/config"
	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/segments"
)

// Handlers binds the engine components to HTTP endpoints.
type Handlers struct {
	cfg      *config.Config
	db       *engine.DB
	cat      *catalog.Catalog
	loader   *engine.Loader
	executor *engine.Executor
	segments *segments.Service
}

// NewHandlers creates the handler set.
func NewHandlers(
	cfg *config.Config,
	db *engine.DB,
	cat *catalog.Catalog,
	loader *engine.Loader,
	executor *engine.Executor,
	segmentSvc *segments.Service,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		db:       db,
		cat:      cat,
		loader:   loader,
		executor: executor,
		segments: segmentSvc,
	}
}

// Health reports process liveness and engine reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondData(w, r, code, map[string]string{"status": status})
}

// Fields lists the queryable field catalog.
func (h *Handlers) Fields(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.cat.Fields())
}

// Query runs an ad-hoc audience query: ensure the source is loaded, refresh
// the attributes view, then execute the filters and selection.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = h.cfg.API.DefaultPageSize
	}

	ctx := r.Context()
	if _, err := h.loader.EnsureLoaded(ctx, req.Source); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.loader.BuildAttributesView(ctx, req.Source); err != nil {
		respondError(w, r, err)
		return
	}
	view, err := h.loader.View(req.Source)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.executor.Execute(ctx, view, engine.Options{
		SelectedFields: req.SelectedFields,
		Filters:        req.Filters,
		Limit:          req.Limit,
		Offset:         req.Offset,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondDataMeta(w, r, http.StatusOK, res.Rows, &Pagination{
		Limit:  res.Limit,
		Offset: res.Offset,
		Total:  res.Total,
	})
}

// DescribeSource loads a source and reports its schema and row count.
func (h *Handlers) DescribeSource(w http.ResponseWriter, r *http.Request) {
	var req DescribeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := r.Context()
	if req.Refresh {
		if err := h.loader.Invalidate(ctx, req.Source); err != nil {
			respondError(w, r, err)
			return
		}
	}

	res, err := h.loader.EnsureLoaded(ctx, req.Source)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, res)
}

// CreateSegment persists a new segment definition. The definition is stored
// verbatim; validation against live data is deferred to first preview.
func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var req CreateSegmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	seg, err := h.segments.Create(segments.Segment{
		Name:             req.Name,
		ParentAudienceID: req.ParentAudienceID,
		SourceURL:        req.SourceURL,
		Format:           req.Format,
		FilterTree:       req.FilterTree,
		SelectedFields:   req.SelectedFields,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusCreated, seg)
}

// ListSegments lists segments, optionally filtered by parent audience.
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	parentID := r.URL.Query().Get("parent_audience_id")
	segs, err := h.segments.List(parentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, segs)
}

// GetSegment returns one segment by id.
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.segments.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, seg)
}

// DeleteSegment removes a segment definition.
func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.segments.Delete(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// PreviewSegment evaluates a stored segment against the live source.
// The request body is optional; omitted paging uses the configured default.
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	req := PreviewRequest{Limit: h.cfg.API.DefaultPageSize}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		if req.Limit == 0 {
			req.Limit = h.cfg.API.DefaultPageSize
		}
	}

	res, err := h.segments.Preview(r.Context(), chi.URLParam(r, "id"), req.Limit, req.Offset)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondDataMeta(w, r, http.StatusOK, res.Rows, &Pagination{
		Limit:  res.Limit,
		Offset: res.Offset,
		Total:  res.Total,
	})
}
