// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/segmentfold/segmentfold/internal/errs"
)

// Format identifies the file format of an audience source.
type Format string

// Supported source formats.
const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Source identifies an external audience dataset.
type Source struct {
	URL    string `json:"url" validate:"required"`
	Format Format `json:"format" validate:"required"`
}

// Validate checks the descriptor before any fetch or SQL work happens.
func (s Source) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return errs.Validationf("source url must not be empty")
	}
	switch s.Format {
	case FormatCSV, FormatParquet:
		return nil
	case "":
		return errs.Validationf("source format must not be empty")
	default:
		return errs.Validationf("unsupported source format %q", string(s.Format))
	}
}

// Key returns the normalized (url, format) identity used to decide whether a
// dataset is already loaded. Format is case-insensitive; the URL is trimmed
// but otherwise preserved byte for byte.
func (s Source) Key() string {
	return strings.TrimSpace(s.URL) + "|" + strings.ToLower(string(s.Format))
}

// names derives the working table and attributes view identifiers for this
// source. Identifiers are hex digests of the source key, so they are always
// safe to embed in SQL and never collide across sources.
func (s Source) names() (table, view string) {
	sum := sha256.Sum256([]byte(s.Key()))
	id := hex.EncodeToString(sum[:8])
	return "aud_" + id, "aud_" + id + "_attrs"
}
