// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package catalog

import (
	"strings"
	"testing"

	"github.com/segmentfold/segmentfold/internal/errs"
)

func TestResolveKnownField(t *testing.T) {
	def, err := Default().Resolve("company_domain")
	if err != nil {
		t.Fatalf("Resolve(company_domain) error: %v", err)
	}
	if def.Key != "company_domain" {
		t.Errorf("Key = %q, want company_domain", def.Key)
	}
	if def.Group != GroupContact {
		t.Errorf("Group = %q, want contact", def.Group)
	}
	if def.ColumnRef() != `"company_domain"` {
		t.Errorf("ColumnRef() = %q, want %q", def.ColumnRef(), `"company_domain"`)
	}
}

func TestResolveUnknownField(t *testing.T) {
	_, err := Default().Resolve("robert'); DROP TABLE contacts;--")
	if err == nil {
		t.Fatal("Resolve of unknown field did not fail")
	}
	if !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("error kind = %q, want validation", errs.KindOf(err))
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	if _, err := Default().Resolve("Company_Domain"); err == nil {
		t.Error("Resolve(Company_Domain) succeeded, want case-sensitive rejection")
	}
	if _, err := Default().Resolve("EMAIL"); err == nil {
		t.Error("Resolve(EMAIL) succeeded, want case-sensitive rejection")
	}
}

func TestEventFieldsExtractFromProperties(t *testing.T) {
	for _, key := range []string{"event_name", "utm_source", "revenue"} {
		def, err := Default().Resolve(key)
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", key, err)
		}
		if def.Group != GroupEvent {
			t.Errorf("%s: Group = %q, want event", key, def.Group)
		}
		if !strings.Contains(def.Expression, "properties") {
			t.Errorf("%s: expression %q does not reference properties payload", key, def.Expression)
		}
	}
}

func TestFieldsOrderedAndUnique(t *testing.T) {
	fields := Default().Fields()
	if len(fields) == 0 {
		t.Fatal("catalog has no fields")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Key] {
			t.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = true
	}
	if fields[0].Key != "email" {
		t.Errorf("first field = %q, want email (registration order)", fields[0].Key)
	}
}

func TestColumnRefQuotesEmbeddedQuotes(t *testing.T) {
	c := New([]FieldDefinition{{Key: `weird"key`, Expression: `"col"`}})
	def, err := c.Resolve(`weird"key`)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if def.ColumnRef() != `"weird""key"` {
		t.Errorf("ColumnRef() = %q, want %q", def.ColumnRef(), `"weird""key"`)
	}
}
