// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/filter"
	"github.com/segmentfold/segmentfold/internal/logging"
	"github.com/segmentfold/segmentfold/internal/metrics"
)

// Pagination bounds. Limits outside [1, MaxLimit] and negative offsets are
// clamped, not rejected.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Options controls one query over an attributes view.
type Options struct {
	// SelectedFields are the catalog field keys to return. Empty means all
	// fields the view carries.
	SelectedFields []string `json:"selected_fields"`

	// Filters are implicitly AND-combined predicates. Empty matches all rows.
	Filters []filter.Condition `json:"filters"`

	// Limit and Offset page the result window. The total count is computed
	// independently of the window.
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Result is one executed query: the requested page of rows plus the total
// match count across the whole view.
type Result struct {
	Rows    []map[string]any `json:"rows"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	Elapsed time.Duration    `json:"-"`
}

// Executor runs validated, compiled queries against attribute views.
type Executor struct {
	db  *DB
	cat *catalog.Catalog
}

// NewExecutor creates a query executor.
func NewExecutor(db *DB, cat *catalog.Catalog) *Executor {
	return &Executor{db: db, cat: cat}
}

// Execute validates the options, compiles them, and runs the paged select
// plus the unpaged count against the given attributes view.
//
// All validation happens before any SQL is sent: an unknown selected field or
// a bad filter fails the whole request without touching the engine. Failures
// after validation are query-execution errors.
func (e *Executor) Execute(ctx context.Context, view string, opts Options) (*Result, error) {
	start := time.Now()

	projection, err := e.projection(opts.SelectedFields)
	if err != nil {
		return nil, err
	}
	where, err := filter.Compile(e.cat, opts.Filters)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(opts.Limit)
	offset := clampOffset(opts.Offset)

	total, err := e.count(ctx, view, where)
	if err != nil {
		return nil, err
	}
	rows, err := e.selectPage(ctx, view, projection, where, limit, offset)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logging.Ctx(ctx).Debug().
		Str("view", view).
		Int64("total", total).
		Int("rows", len(rows)).
		Dur("elapsed", elapsed).
		Msg("Query executed")

	return &Result{
		Rows:    rows,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Elapsed: elapsed,
	}, nil
}

// Count runs only the unpaged count for the given filters.
func (e *Executor) Count(ctx context.Context, view string, conds []filter.Condition) (int64, error) {
	where, err := filter.Compile(e.cat, conds)
	if err != nil {
		return 0, err
	}
	return e.count(ctx, view, where)
}

// projection resolves the selected field keys into quoted view columns.
func (e *Executor) projection(selected []string) (string, error) {
	if len(selected) == 0 {
		return "*", nil
	}
	cols := make([]string, 0, len(selected))
	for _, key := range selected {
		def, err := e.cat.Resolve(key)
		if err != nil {
			return "", err
		}
		cols = append(cols, def.ColumnRef())
	}
	return strings.Join(cols, ", "), nil
}

// count runs the filtered COUNT(*) over the view.
func (e *Executor) count(ctx context.Context, view, where string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", view, where)

	start := time.Now()
	var total int64
	err := e.db.conn.QueryRowContext(ctx, query).Scan(&total)
	metrics.ObserveQuery("count", start, err)
	if err != nil {
		return 0, errs.QueryExecution(err, "count matching rows")
	}
	return total, nil
}

// selectPage runs the paged select and scans the rows into generic maps.
// Limit and offset travel as bind parameters; everything else in the query
// text came through the catalog or the literal escaper.
func (e *Executor) selectPage(ctx context.Context, view, projection, where string, limit, offset int) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT ? OFFSET ?", projection, view, where)

	start := time.Now()
	rows, err := e.db.conn.QueryContext(ctx, query, limit, offset)
	metrics.ObserveQuery("select", start, err)
	if err != nil {
		return nil, errs.QueryExecution(err, "execute audience query")
	}
	defer closeQuietly(rows)

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.QueryExecution(err, "read result columns")
	}

	out := make([]map[string]any, 0, limit)
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, errs.QueryExecution(err, "scan result row")
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.QueryExecution(err, "iterate result rows")
	}
	return out, nil
}

// clampLimit bounds the page size to [1, MaxLimit]. Omitted limits are
// defaulted by the API layer before they reach the executor.
func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// clampOffset bounds the offset to be non-negative.
func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
