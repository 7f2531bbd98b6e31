// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package filter compiles user-authored filter conditions into SQL boolean
// expressions.
//
// The compiler is pure: it performs no I/O and fails fast on invalid input,
// before any query reaches the analytical engine. Field keys resolve through
// the catalog (the injection boundary for identifiers); literals are embedded
// with every single quote doubled (the injection boundary for values).
package filter

import (
	"math"
	"strconv"
	"strings"

	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/errs"
)

// Operator is a filter comparison operator.
type Operator string

// Supported operators.
const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpExists      Operator = "exists"
)

// Condition is a single (field, operator, value) predicate.
type Condition struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    string   `json:"value"`
}

// Compile translates a flat, implicitly-AND-combined condition list into a
// SQL boolean expression over the attributes view.
//
// An empty list compiles to TRUE so callers can query everything with no
// filters. Output is deterministic for a given input order: conditions are
// joined with AND in source order.
func Compile(cat *catalog.Catalog, conds []Condition) (string, error) {
	if len(conds) == 0 {
		return "TRUE", nil
	}

	parts := make([]string, 0, len(conds))
	for _, cond := range conds {
		expr, err := compileCondition(cat, cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, " AND "), nil
}

// compileCondition compiles one predicate. The field must resolve through the
// catalog; the operator must be one of the supported set. Unknown operators
// are rejected by name rather than silently treated as equals.
func compileCondition(cat *catalog.Catalog, cond Condition) (string, error) {
	def, err := cat.Resolve(cond.Field)
	if err != nil {
		return "", err
	}
	col := def.ColumnRef()

	switch cond.Operator {
	case OpEquals:
		return col + " = '" + escapeLiteral(cond.Value) + "'", nil

	case OpContains:
		// Wildcards are appended after escaping and are deliberately not
		// escaped themselves: a % or _ inside the value acts as a wildcard.
		return col + " LIKE '%" + escapeLiteral(cond.Value) + "%'", nil

	case OpStartsWith:
		return col + " LIKE '" + escapeLiteral(cond.Value) + "%'", nil

	case OpEndsWith:
		return col + " LIKE '%" + escapeLiteral(cond.Value) + "'", nil

	case OpGreaterThan:
		return compileComparison(col, ">", cond.Value), nil

	case OpLessThan:
		return compileComparison(col, "<", cond.Value), nil

	case OpIn:
		return compileIn(col, cond.Value), nil

	case OpExists:
		// Value is ignored for existence checks.
		return col + " IS NOT NULL", nil

	default:
		return "", errs.Validationf("unsupported operator %q", string(cond.Operator))
	}
}

// compileComparison emits a numeric comparison when the value parses as a
// finite number, otherwise a quoted string comparison. Callers rely on
// passing either numeric or lexical thresholds through the same operator.
func compileComparison(col, op, value string) string {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil &&
		!math.IsInf(f, 0) && !math.IsNaN(f) {
		return col + " " + op + " " + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return col + " " + op + " '" + escapeLiteral(value) + "'"
}

// compileIn splits a comma-separated value string, trims each part, escapes
// it, and emits a set-membership expression.
func compileIn(col, value string) string {
	parts := strings.Split(value, ",")
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		quoted = append(quoted, "'"+escapeLiteral(strings.TrimSpace(part))+"'")
	}
	return col + " IN (" + strings.Join(quoted, ", ") + ")"
}

// escapeLiteral doubles every single quote so the literal cannot terminate
// the surrounding string token.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
