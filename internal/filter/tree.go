// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package filter

import (
	"strings"

	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/errs"
)

// Node is a recursive boolean filter tree supporting AND/OR/NOT nesting.
//
// The core query path uses the flat Compile list; the tree form serves the
// adjacent filtering paths that need full boolean composition. Exactly one of
// the fields must be set per node.
type Node struct {
	Leaf *Condition `json:"leaf,omitempty"`
	And  []*Node    `json:"and,omitempty"`
	Or   []*Node    `json:"or,omitempty"`
	Not  *Node      `json:"not,omitempty"`
}

// CompileTree translates a filter tree into a SQL boolean expression by
// structural recursion. A nil tree compiles to TRUE. Empty And compiles to
// TRUE and empty Or to FALSE (the identities of each connective).
func CompileTree(cat *catalog.Catalog, node *Node) (string, error) {
	if node == nil {
		return "TRUE", nil
	}
	if err := checkNodeShape(node); err != nil {
		return "", err
	}

	switch {
	case node.Leaf != nil:
		return compileCondition(cat, *node.Leaf)

	case node.And != nil:
		return compileJunction(cat, node.And, " AND ", "TRUE")

	case node.Or != nil:
		return compileJunction(cat, node.Or, " OR ", "FALSE")

	default:
		inner, err := CompileTree(cat, node.Not)
		if err != nil {
			return "", err
		}
		return "(NOT " + inner + ")", nil
	}
}

// compileJunction compiles the children of an And/Or node.
func compileJunction(cat *catalog.Catalog, children []*Node, connective, identity string) (string, error) {
	if len(children) == 0 {
		return identity, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		expr, err := CompileTree(cat, child)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, connective) + ")", nil
}

// checkNodeShape rejects nodes with zero or multiple variants set.
func checkNodeShape(node *Node) error {
	set := 0
	if node.Leaf != nil {
		set++
	}
	if node.And != nil {
		set++
	}
	if node.Or != nil {
		set++
	}
	if node.Not != nil {
		set++
	}
	if set != 1 {
		return errs.Validationf("malformed filter node: exactly one of leaf/and/or/not must be set, got %d", set)
	}
	return nil
}
