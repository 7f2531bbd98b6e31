// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/logging"
	"github.com/segmentfold/segmentfold/internal/metrics"
)

// ColumnInfo describes one column of an imported table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// LoadResult reports the outcome of EnsureLoaded.
type LoadResult struct {
	Source   Source       `json:"source"`
	Key      string       `json:"-"`
	Table    string       `json:"-"`
	View     string       `json:"-"`
	RowCount int64        `json:"row_count"`
	Columns  []ColumnInfo `json:"columns"`
	Cached   bool         `json:"cached"`
}

// loadedSource is the registry entry for a materialized source.
type loadedSource struct {
	table    string
	view     string
	rowCount int64
	columns  []ColumnInfo
}

// Loader materializes external audience sources as queryable tables and
// builds the derived attributes view over each.
//
// Tables are keyed by source key, so multiple sources coexist without
// evicting each other. A per-key mutex serializes the load step: concurrent
// requests for the same unloaded source perform exactly one import, and a
// re-load never leaves the engine without a queryable table because the
// import lands in a staging table that is swapped in only on success.
type Loader struct {
	db      *DB
	cat     *catalog.Catalog
	fetcher *Fetcher

	mu     sync.Mutex
	loaded map[string]*loadedSource
	locks  map[string]*sync.Mutex
}

// NewLoader creates a source loader.
func NewLoader(db *DB, cat *catalog.Catalog, fetcher *Fetcher) *Loader {
	return &Loader{
		db:      db,
		cat:     cat,
		fetcher: fetcher,
		loaded:  make(map[string]*loadedSource),
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureLoaded makes sure the dataset behind the source descriptor is
// materialized as a table and returns its metadata. Idempotent: a second
// call for the same source key is a cache hit and performs no import.
func (l *Loader) EnsureLoaded(ctx context.Context, src Source) (*LoadResult, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	key := src.Key()

	keyLock := l.keyLock(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	if ls := l.lookup(key); ls != nil {
		metrics.SourceCacheHits.Inc()
		return l.result(src, key, ls, true), nil
	}
	metrics.SourceCacheMisses.Inc()

	start := time.Now()
	ls, err := l.load(ctx, src)
	if err != nil {
		metrics.SourceLoadErrors.WithLabelValues(string(src.Format)).Inc()
		return nil, err
	}
	metrics.SourceLoadDuration.WithLabelValues(string(src.Format)).Observe(time.Since(start).Seconds())

	l.store(key, ls)

	logging.Info().
		Str("source", src.URL).
		Str("format", string(src.Format)).
		Int64("rows", ls.rowCount).
		Dur("elapsed", time.Since(start)).
		Msg("Source loaded")

	return l.result(src, key, ls, false), nil
}

// load fetches and imports one source. Called with the key lock held.
func (l *Loader) load(ctx context.Context, src Source) (*loadedSource, error) {
	path, err := l.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	// Staged downloads are one-shot; local in-place sources are kept.
	if strings.HasPrefix(path, l.fetcher.cfg.CacheDir+string(os.PathSeparator)) {
		defer func() {
			_ = os.Remove(path)
		}()
	}

	table, view := src.names()
	staging := table + "_staging"

	if err := l.importInto(ctx, staging, path, src.Format); err != nil {
		return nil, err
	}

	// Atomic-enough swap: the previous table (if any) is only dropped once
	// the staging import has fully succeeded.
	if err := l.swap(ctx, staging, table); err != nil {
		return nil, err
	}

	columns, err := l.describeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	rowCount, err := l.countTable(ctx, table)
	if err != nil {
		return nil, err
	}

	return &loadedSource{
		table:    table,
		view:     view,
		rowCount: rowCount,
		columns:  columns,
	}, nil
}

// importInto bulk-imports the staged file into a fresh table using the
// format-specific reader. The path is embedded as an escaped SQL literal;
// table identifiers are hash-derived and never user-controlled.
func (l *Loader) importInto(ctx context.Context, table, path string, format Format) error {
	quotedPath := "'" + strings.ReplaceAll(path, "'", "''") + "'"

	var reader string
	switch format {
	case FormatCSV:
		reader = "read_csv_auto(" + quotedPath + ", header=true)"
	case FormatParquet:
		reader = "read_parquet(" + quotedPath + ")"
	default:
		return errs.Validationf("unsupported source format %q", string(format))
	}

	start := time.Now()
	if _, err := l.db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return errs.Upstream(err, "drop stale staging table")
	}
	_, err := l.db.conn.ExecContext(ctx,
		fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", table, reader))
	metrics.ObserveQuery("import", start, err)
	if err != nil {
		return errs.Upstream(err, "import source file")
	}
	return nil
}

// swap replaces the working table with the freshly imported staging table.
func (l *Loader) swap(ctx context.Context, staging, table string) error {
	tx, err := l.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.Upstream(err, "begin table swap")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return errs.Upstream(err, "drop previous table")
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, table)); err != nil {
		return errs.Upstream(err, "swap in staging table")
	}
	if err := tx.Commit(); err != nil {
		return errs.Upstream(err, "commit table swap")
	}
	return nil
}

// BuildAttributesView builds or refreshes the derived view projecting
// catalog expressions over the raw table. The view, not the raw table, is
// the only query surface the executor sees, so logical field keys always
// resolve regardless of underlying column names.
//
// Catalog fields whose raw dependencies are absent from this particular
// source (a CSV without a "properties" payload column, say) are left out of
// the projection; filtering on them later fails at execution time rather
// than poisoning the view for every field.
func (l *Loader) BuildAttributesView(ctx context.Context, src Source) error {
	key := src.Key()
	ls := l.lookup(key)
	if ls == nil {
		return errs.New(errs.KindUpstream, "source "+src.URL+" is not loaded")
	}

	rawCols := make(map[string]bool, len(ls.columns))
	for _, col := range ls.columns {
		rawCols[col.Name] = true
	}

	projections := make([]string, 0, len(l.cat.Fields()))
	for _, def := range l.cat.Fields() {
		switch def.Group {
		case catalog.GroupContact:
			if !rawCols[def.Key] {
				continue
			}
		case catalog.GroupEvent:
			if !rawCols["properties"] {
				continue
			}
		}
		projections = append(projections, def.Expression+" AS "+def.ColumnRef())
	}
	if len(projections) == 0 {
		return errs.New(errs.KindUpstream,
			"source "+src.URL+" has no columns matching the field catalog")
	}

	start := time.Now()
	_, err := l.db.conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s",
		ls.view, strings.Join(projections, ", "), ls.table))
	metrics.ObserveQuery("view", start, err)
	if err != nil {
		return errs.Upstream(err, "build attributes view")
	}
	return nil
}

// View returns the attributes view name for a loaded source.
func (l *Loader) View(src Source) (string, error) {
	ls := l.lookup(src.Key())
	if ls == nil {
		return "", errs.New(errs.KindUpstream, "source "+src.URL+" is not loaded")
	}
	return ls.view, nil
}

// Describe returns the raw table schema for diagnostics.
func (l *Loader) Describe(src Source) ([]ColumnInfo, error) {
	ls := l.lookup(src.Key())
	if ls == nil {
		return nil, errs.New(errs.KindUpstream, "source "+src.URL+" is not loaded")
	}
	out := make([]ColumnInfo, len(ls.columns))
	copy(out, ls.columns)
	return out, nil
}

// Invalidate drops the table and view for a source so the next EnsureLoaded
// re-imports from the live file.
func (l *Loader) Invalidate(ctx context.Context, src Source) error {
	key := src.Key()

	keyLock := l.keyLock(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	ls := l.lookup(key)
	if ls == nil {
		return nil
	}

	if _, err := l.db.conn.ExecContext(ctx, "DROP VIEW IF EXISTS "+ls.view); err != nil {
		return errs.Upstream(err, "drop attributes view")
	}
	if _, err := l.db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+ls.table); err != nil {
		return errs.Upstream(err, "drop source table")
	}

	l.mu.Lock()
	delete(l.loaded, key)
	metrics.LoadedSources.Set(float64(len(l.loaded)))
	l.mu.Unlock()
	return nil
}

// describeTable introspects the imported table's schema.
func (l *Loader) describeTable(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := l.db.conn.QueryContext(ctx,
		fmt.Sprintf("SELECT column_name, column_type FROM (DESCRIBE %s)", table))
	if err != nil {
		return nil, errs.Upstream(err, "describe table")
	}
	defer closeQuietly(rows)

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, errs.Upstream(err, "scan describe row")
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Upstream(err, "iterate describe rows")
	}
	return columns, nil
}

// countTable returns the imported table's row count.
func (l *Loader) countTable(ctx context.Context, table string) (int64, error) {
	var count int64
	err := l.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, errs.Upstream(err, "count table rows")
	}
	return count, nil
}

// keyLock returns the per-source-key mutex, creating it on first use.
func (l *Loader) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// lookup returns the registry entry for a source key, or nil.
func (l *Loader) lookup(key string) *loadedSource {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[key]
}

// store registers a freshly loaded source.
func (l *Loader) store(key string, ls *loadedSource) {
	l.mu.Lock()
	l.loaded[key] = ls
	metrics.LoadedSources.Set(float64(len(l.loaded)))
	l.mu.Unlock()
}

// result builds a LoadResult from a registry entry.
func (l *Loader) result(src Source, key string, ls *loadedSource, cached bool) *LoadResult {
	columns := make([]ColumnInfo, len(ls.columns))
	copy(columns, ls.columns)
	return &LoadResult{
		Source:   src,
		Key:      key,
		Table:    ls.table,
		View:     ls.view,
		RowCount: ls.rowCount,
		Columns:  columns,
		Cached:   cached,
	}
}
