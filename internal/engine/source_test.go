// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package engine

import (
	"testing"

	"github.com/segmentfold/segmentfold/internal/errs"
)

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		wantErr bool
	}{
		{"valid csv", Source{URL: "s3://bucket/contacts.csv", Format: FormatCSV}, false},
		{"valid parquet", Source{URL: "https://x.example/a.parquet", Format: FormatParquet}, false},
		{"empty url", Source{URL: "", Format: FormatCSV}, true},
		{"whitespace url", Source{URL: "   ", Format: FormatCSV}, true},
		{"empty format", Source{URL: "s3://bucket/a.csv", Format: ""}, true},
		{"unsupported format", Source{URL: "s3://bucket/a.xlsx", Format: "xlsx"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errs.IsKind(err, errs.KindValidation) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSourceKey(t *testing.T) {
	a := Source{URL: "s3://bucket/contacts.csv", Format: FormatCSV}
	b := Source{URL: "  s3://bucket/contacts.csv  ", Format: "CSV"}
	if a.Key() != b.Key() {
		t.Errorf("keys should normalize equal: %q vs %q", a.Key(), b.Key())
	}

	c := Source{URL: "s3://bucket/contacts.csv", Format: FormatParquet}
	if a.Key() == c.Key() {
		t.Error("different formats must yield different keys")
	}
}

func TestSourceNames(t *testing.T) {
	a := Source{URL: "s3://bucket/contacts.csv", Format: FormatCSV}
	table1, view1 := a.names()
	table2, view2 := a.names()
	if table1 != table2 || view1 != view2 {
		t.Error("names must be deterministic")
	}
	if view1 != table1+"_attrs" {
		t.Errorf("view %q should derive from table %q", view1, table1)
	}

	b := Source{URL: "s3://bucket/other.csv", Format: FormatCSV}
	tableB, _ := b.names()
	if table1 == tableB {
		t.Error("different sources must map to different tables")
	}
}
