// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package api

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/config"
	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/segments"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		API:      config.APIConfig{DefaultPageSize: 50, MaxPageSize: 1000},
		Security: config.SecurityConfig{CORSOrigins: []string{"*"}},
	}

	db, err := engine.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	bdb, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		_ = bdb.Close()
	})

	cat := catalog.Default()
	fetcher := engine.NewFetcher(config.SourcesConfig{
		CacheDir:      filepath.Join(t.TempDir(), "cache"),
		FetchTimeout:  30 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    10 * time.Millisecond,
	})
	loader := engine.NewLoader(db, cat, fetcher)
	executor := engine.NewExecutor(db, cat)
	store := segments.NewStoreWithDB(bdb)
	svc := segments.NewService(store, loader, executor)

	handlers := NewHandlers(cfg, db, cat, loader, executor, svc)
	srv := httptest.NewServer(NewRouter(handlers, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func writeContactsCSV(t *testing.T) string {
	t.Helper()
	rows := [][]string{
		{"email", "company_domain", "country", "seniority", "properties"},
		{"ada@acme.io", "acme.io", "GB", "staff", `{"utm_source":"google"}`},
		{"bo@acme.io", "acme.io", "US", "senior", `{"utm_source":"newsletter"}`},
		{"cy@initech.com", "initech.com", "US", "manager", `{"utm_source":"google"}`},
	}

	path := filepath.Join(t.TempDir(), "contacts.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	w.Flush()
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return path
}

// envelope mirrors Response with concrete field types for assertions.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
	Meta    *Meta           `json:"meta"`
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !env.Success {
		t.Error("health should report success")
	}
}

func TestFieldsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/fields", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var fields []catalog.FieldDefinition
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	for _, want := range []string{"email", "company_domain", "utm_source"} {
		if !keys[want] {
			t.Errorf("field catalog missing %q", want)
		}
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	csvPath := writeContactsCSV(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/query", map[string]any{
		"source":          map[string]string{"url": csvPath, "format": "csv"},
		"selected_fields": []string{"email", "company_domain"},
		"filters": []map[string]string{
			{"field": "company_domain", "operator": "equals", "value": "acme.io"},
		},
		"limit": 10,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error: %+v)", resp.StatusCode, env.Error)
	}

	var rows []map[string]any
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	if env.Meta == nil || env.Meta.Pagination == nil {
		t.Fatal("pagination metadata missing")
	}
	if env.Meta.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", env.Meta.Pagination.Total)
	}
}

func TestQueryEndpointUnknownField(t *testing.T) {
	srv := newTestServer(t)
	csvPath := writeContactsCSV(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/query", map[string]any{
		"source":          map[string]string{"url": csvPath, "format": "csv"},
		"selected_fields": []string{"ssn"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Errorf("error = %+v, want VALIDATION_FAILED", env.Error)
	}
}

func TestQueryEndpointMissingSource(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/query", map[string]any{
		"filters": []map[string]string{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Errorf("error = %+v, want VALIDATION_FAILED", env.Error)
	}
}

func TestDescribeEndpoint(t *testing.T) {
	srv := newTestServer(t)
	csvPath := writeContactsCSV(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sources/describe", map[string]any{
		"source": map[string]string{"url": csvPath, "format": "csv"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error: %+v)", resp.StatusCode, env.Error)
	}

	var res engine.LoadResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode load result: %v", err)
	}
	if res.RowCount != 3 {
		t.Errorf("row count = %d, want 3", res.RowCount)
	}
	if len(res.Columns) == 0 {
		t.Error("describe should report columns")
	}
}

func TestSegmentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	csvPath := writeContactsCSV(t)

	// Create
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/segments", map[string]any{
		"name":               "acme contacts",
		"parent_audience_id": "aud_1",
		"source_url":         csvPath,
		"format":             "csv",
		"filter_tree": []map[string]string{
			{"field": "company_domain", "operator": "equals", "value": "acme.io"},
		},
		"selected_fields": []string{"email"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (error: %+v)", resp.StatusCode, env.Error)
	}
	var created segments.Segment
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode segment: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created segment has no id")
	}

	// Get
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/segments/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}

	// List by parent
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/segments?parent_audience_id=aud_1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var listed []segments.Segment
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Errorf("list = %+v, want the created segment", listed)
	}

	// Preview
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/segments/"+created.ID+"/preview",
		map[string]any{"limit": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d, want 200 (error: %+v)", resp.StatusCode, env.Error)
	}
	if env.Meta == nil || env.Meta.Pagination == nil || env.Meta.Pagination.Total != 2 {
		t.Errorf("preview pagination = %+v, want total 2", env.Meta)
	}

	// Delete, then get is gone
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/segments/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/segments/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestPreviewMissingSegment(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/segments/seg_missing/preview", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}
