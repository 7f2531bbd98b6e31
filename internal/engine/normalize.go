// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package engine

import (
	"math/big"
	"strconv"
	"time"
)

// maxSafeInteger is the largest integer a float64 represents exactly
// (2^53 - 1). JSON consumers parse numbers as float64, so integers beyond
// this bound are transported as decimal strings to avoid silent precision
// loss.
const maxSafeInteger = 1<<53 - 1

// normalizeValue converts a scanned database value into its JSON-safe form.
// Wide integers become decimal strings, byte slices become strings, and
// composite values are normalized recursively.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		if val > maxSafeInteger || val < -maxSafeInteger {
			return strconv.FormatInt(val, 10)
		}
		return val
	case uint64:
		if val > maxSafeInteger {
			return strconv.FormatUint(val, 10)
		}
		return val
	case *big.Int:
		// DuckDB HUGEINT values arrive as big.Int.
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return normalizeValue(val.Int64())
		}
		return val.String()
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeValue(elem)
		}
		return out
	default:
		return v
	}
}
