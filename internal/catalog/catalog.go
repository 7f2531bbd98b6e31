// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package catalog is the registry mapping logical field keys to the SQL
// expressions and metadata that back them.
//
// The catalog is the engine's injection boundary: every field key arriving in
// a filter or a selection must resolve here before any SQL text is built.
// Unknown keys are rejected with a validation error and never fall back to
// being used as raw column names.
//
// Each FieldDefinition carries the physical/derived expression over the raw
// imported table. That expression is emitted exactly once, by the loader's
// attributes-view build; the filter compiler and query executor reference the
// resulting view column via ColumnRef(), so expression text stays consistent
// between the two without duplication.
package catalog

import (
	"strings"

	"github.com/segmentfold/segmentfold/internal/errs"
)

// Type is the logical type of a field.
type Type string

// Field types.
const (
	TypeString    Type = "string"
	TypeNumber    Type = "number"
	TypeTimestamp Type = "timestamp"
	TypeBoolean   Type = "boolean"
	TypeJSON      Type = "json"
)

// Group distinguishes flat contact-record fields from fields derived from the
// semi-structured event payload column.
type Group string

// Field groups.
const (
	GroupContact Group = "contact"
	GroupEvent   Group = "event"
)

// FieldDefinition describes one logical field.
type FieldDefinition struct {
	// Key is the unique logical field name. Matching is case-sensitive exact.
	Key string `json:"key"`

	// Label is the display name for the outer UI layers.
	Label string `json:"label"`

	// Type is the logical field type.
	Type Type `json:"type"`

	// Group is the field's origin group.
	Group Group `json:"group"`

	// Expression is the SQL fragment over the raw imported table that
	// produces this field. Contact fields are plain column references; event
	// fields extract from the raw "properties" JSON payload.
	Expression string `json:"-"`
}

// ColumnRef returns the quoted identifier for this field's column in the
// attributes view. Filters and selections compile against the view, so this
// is the only form of the field that ever reaches query text.
func (f FieldDefinition) ColumnRef() string {
	return quoteIdent(f.Key)
}

// Catalog is an immutable field registry built once at process start.
type Catalog struct {
	fields map[string]FieldDefinition
	order  []string
}

// New builds a catalog from the given definitions. Definition order is
// preserved for listing and view projection.
func New(defs []FieldDefinition) *Catalog {
	c := &Catalog{
		fields: make(map[string]FieldDefinition, len(defs)),
		order:  make([]string, 0, len(defs)),
	}
	for _, def := range defs {
		if _, exists := c.fields[def.Key]; exists {
			continue
		}
		c.fields[def.Key] = def
		c.order = append(c.order, def.Key)
	}
	return c
}

// Resolve looks up a field definition by key. Unknown keys return a
// validation error; the raw key is reported in the message but never emitted
// into SQL text.
func (c *Catalog) Resolve(key string) (FieldDefinition, error) {
	def, ok := c.fields[key]
	if !ok {
		return FieldDefinition{}, errs.Validationf("unknown field %q", key)
	}
	return def, nil
}

// Has reports whether the key resolves.
func (c *Catalog) Has(key string) bool {
	_, ok := c.fields[key]
	return ok
}

// Fields returns all definitions in registration order.
func (c *Catalog) Fields() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.fields[key])
	}
	return out
}

// quoteIdent quotes a SQL identifier, doubling embedded double quotes.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// eventExpr builds the extraction expression for a string-valued event field
// stored under the given path in the raw "properties" JSON payload.
func eventExpr(path string) string {
	return "json_extract_string(properties, '$." + path + "')"
}

// eventNumberExpr builds the extraction expression for a numeric event field.
func eventNumberExpr(path string) string {
	return "CAST(json_extract(properties, '$." + path + "') AS DOUBLE)"
}

// defaultDefinitions is the fixed field table. Not user-configurable at
// runtime: the raw export schema and these definitions move together.
var defaultDefinitions = []FieldDefinition{
	// Contact-record fields (flat columns on the raw export)
	{Key: "email", Label: "Email", Type: TypeString, Group: GroupContact, Expression: `"email"`},
	{Key: "first_name", Label: "First Name", Type: TypeString, Group: GroupContact, Expression: `"first_name"`},
	{Key: "last_name", Label: "Last Name", Type: TypeString, Group: GroupContact, Expression: `"last_name"`},
	{Key: "company_name", Label: "Company", Type: TypeString, Group: GroupContact, Expression: `"company_name"`},
	{Key: "company_domain", Label: "Company Domain", Type: TypeString, Group: GroupContact, Expression: `"company_domain"`},
	{Key: "job_title", Label: "Job Title", Type: TypeString, Group: GroupContact, Expression: `"job_title"`},
	{Key: "seniority", Label: "Seniority", Type: TypeString, Group: GroupContact, Expression: `"seniority"`},
	{Key: "department", Label: "Department", Type: TypeString, Group: GroupContact, Expression: `"department"`},
	{Key: "country", Label: "Country", Type: TypeString, Group: GroupContact, Expression: `"country"`},
	{Key: "city", Label: "City", Type: TypeString, Group: GroupContact, Expression: `"city"`},
	{Key: "employee_count", Label: "Employee Count", Type: TypeNumber, Group: GroupContact, Expression: `"employee_count"`},
	{Key: "created_at", Label: "Created At", Type: TypeTimestamp, Group: GroupContact, Expression: `"created_at"`},

	// Event-derived fields (extracted from the raw "properties" JSON payload)
	{Key: "event_name", Label: "Event Name", Type: TypeString, Group: GroupEvent, Expression: eventExpr("event_name")},
	{Key: "page_url", Label: "Page URL", Type: TypeString, Group: GroupEvent, Expression: eventExpr("page_url")},
	{Key: "utm_source", Label: "UTM Source", Type: TypeString, Group: GroupEvent, Expression: eventExpr("utm_source")},
	{Key: "utm_campaign", Label: "UTM Campaign", Type: TypeString, Group: GroupEvent, Expression: eventExpr("utm_campaign")},
	{Key: "referrer", Label: "Referrer", Type: TypeString, Group: GroupEvent, Expression: eventExpr("referrer")},
	{Key: "revenue", Label: "Revenue", Type: TypeNumber, Group: GroupEvent, Expression: eventNumberExpr("revenue")},
}

// defaultCatalog is built once at package init.
var defaultCatalog = New(defaultDefinitions)

// Default returns the process-wide catalog.
func Default() *Catalog {
	return defaultCatalog
}
