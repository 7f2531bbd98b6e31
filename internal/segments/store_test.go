// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package segments

import (
	"reflect"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/filter"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewStoreWithDB(db)
}

func sampleDefinition(name, parent string) Segment {
	return Segment{
		Name:             name,
		ParentAudienceID: parent,
		SourceURL:        "s3://bucket/contacts.csv",
		Format:           engine.FormatCSV,
		FilterTree: []filter.Condition{
			{Field: "company_domain", Operator: filter.OpEquals, Value: "acme.io"},
		},
		SelectedFields: []string{"email", "company_name"},
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(sampleDefinition("ICP engineers", "aud_1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created segment must have a generated id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("created segment must have a creation timestamp")
	}

	got, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got.FilterTree, created.FilterTree) {
		t.Errorf("filter tree not persisted verbatim: %v vs %v", got.FilterTree, created.FilterTree)
	}
	if !reflect.DeepEqual(got.SelectedFields, created.SelectedFields) {
		t.Errorf("selected fields not persisted verbatim: %v vs %v", got.SelectedFields, created.SelectedFields)
	}
	if got.Name != "ICP engineers" || got.ParentAudienceID != "aud_1" {
		t.Errorf("metadata mismatch: %+v", got)
	}
}

func TestStoreCreateUniqueIDs(t *testing.T) {
	store := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		seg, err := store.Create(sampleDefinition("s", "aud_1"))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[seg.ID] {
			t.Fatalf("duplicate segment id %q", seg.ID)
		}
		seen[seg.ID] = true
	}
}

func TestStoreCreateDoesNotValidateQuery(t *testing.T) {
	store := newTestStore(t)

	// Bogus field and unreachable source: creation still succeeds, the
	// failure is deferred to first preview.
	def := Segment{
		Name:      "broken",
		SourceURL: "s3://nope/missing.csv",
		Format:    engine.FormatCSV,
		FilterTree: []filter.Condition{
			{Field: "no_such_field", Operator: "regex", Value: ".*"},
		},
	}
	if _, err := store.Create(def); err != nil {
		t.Fatalf("Create should not validate the query: %v", err)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("seg_missing")
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestStoreListByParent(t *testing.T) {
	store := newTestStore(t)

	a1, _ := store.Create(sampleDefinition("a1", "aud_a"))
	a2, _ := store.Create(sampleDefinition("a2", "aud_a"))
	if _, err := store.Create(sampleDefinition("b1", "aud_b")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.List("aud_a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list aud_a = %d segments, want 2", len(got))
	}
	ids := map[string]bool{got[0].ID: true, got[1].ID: true}
	if !ids[a1.ID] || !ids[a2.ID] {
		t.Errorf("list aud_a returned wrong segments: %v", ids)
	}

	all, err := store.List("")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("list all = %d segments, want 3", len(all))
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)

	seg, err := store.Create(sampleDefinition("doomed", "aud_a"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(seg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(seg.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected not-found after delete, got %v", err)
	}

	left, err := store.List("aud_a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("parent index should be empty after delete, got %d", len(left))
	}

	if err := store.Delete(seg.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("double delete should be not-found, got %v", err)
	}
}
