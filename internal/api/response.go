// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package api implements the HTTP surface over the engine: audience queries,
// source diagnostics, and segment management.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/logging"
)

// Response is the uniform JSON envelope for every endpoint.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody carries the machine-readable error code plus a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta holds response metadata.
type Meta struct {
	Timestamp  time.Time   `json:"timestamp"`
	RequestID  string      `json:"request_id,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination reports the effective page window and the total match count.
type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// respondData writes a success envelope.
func respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	respondDataMeta(w, r, status, data, nil)
}

// respondDataMeta writes a success envelope with pagination metadata.
func respondDataMeta(w http.ResponseWriter, r *http.Request, status int, data any, page *Pagination) {
	writeJSON(w, r, status, Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp:  time.Now().UTC(),
			RequestID:  logging.RequestIDFromContext(r.Context()),
			Pagination: page,
		},
	})
}

// respondError maps an engine error to its HTTP representation. The status
// code mapping lives here and only here; the engine deals in kinds.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForKind(errs.KindOf(err))

	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	} else {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Request rejected")
	}

	writeJSON(w, r, status, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: err.Error()},
		Meta: &Meta{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

// statusForKind maps error kinds to HTTP status and stable error codes.
func statusForKind(kind errs.Kind) (int, string) {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errs.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case errs.KindUpstream:
		return http.StatusBadGateway, "UPSTREAM_FAILED"
	case errs.KindQueryExecution:
		return http.StatusInternalServerError, "QUERY_FAILED"
	case errs.KindStore:
		return http.StatusInternalServerError, "STORE_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeJSON serializes the envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
	}
}
