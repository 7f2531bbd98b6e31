// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package errs defines the engine's error taxonomy.
//
// Every failure surfaced by the engine carries a machine-readable Kind so
// callers can distinguish "fix your input" (validation) from "retry later"
// (upstream) from "report a bug" (query_execution, store). The API layer maps
// kinds to HTTP status codes; the engine itself never deals in status codes.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	// KindValidation marks caller input errors: unknown field keys, missing
	// source url/format, malformed filter trees, unsupported operators.
	// Recoverable by correcting the request; never retried.
	KindValidation Kind = "validation"

	// KindNotFound marks lookups of identifiers that do not exist.
	KindNotFound Kind = "not_found"

	// KindUpstream marks source fetch/import failures: unreachable URL,
	// malformed file, timeout, permissions.
	KindUpstream Kind = "upstream"

	// KindQueryExecution marks compiled SQL that failed inside the
	// analytical engine despite passing validation.
	KindQueryExecution Kind = "query_execution"

	// KindStore marks durable segment store read/write failures.
	KindStore Kind = "store"

	// KindUnknown is returned by KindOf for errors outside the taxonomy.
	KindUnknown Kind = "unknown"
)

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not-found error with a formatted message.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a source fetch/import failure.
func Upstream(err error, message string) *Error {
	return Wrap(KindUpstream, err, message)
}

// QueryExecution wraps an analytical engine execution failure.
func QueryExecution(err error, message string) *Error {
	return Wrap(KindQueryExecution, err, message)
}

// Store wraps a durable store failure.
func Store(err error, message string) *Error {
	return Wrap(KindStore, err, message)
}

// KindOf returns the kind of err, walking the wrap chain.
// Errors outside the taxonomy report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err (or any error it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
