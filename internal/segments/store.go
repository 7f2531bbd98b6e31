// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package segments

import (
	"errors"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/logging"
	"github.com/segmentfold/segmentfold/internal/metrics"
)

// Key layout:
//
//	segment:<id>                          -> segment JSON
//	segment_parent:<parent_id>:<id>       -> <id>
//
// The parent index makes list-by-parent a prefix scan instead of a full scan.
const (
	segmentPrefix = "segment:"
	parentPrefix  = "segment_parent:"
)

// Store persists segment definitions in BadgerDB.
//
// Reads always hit the durable store; there is no in-process cache of
// segment values, so concurrent writers on a shared data directory are
// always observed by subsequent reads.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) the segment store at the given directory.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Store(err, "open segment store")
	}

	logging.Info().Str("path", path).Msg("Segment store opened")
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open Badger instance. Used in tests.
func NewStoreWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new segment. The definition is stored verbatim; nothing
// is executed or checked against live data, so a segment referencing an
// unreachable source is created successfully and fails at first preview.
func (s *Store) Create(def Segment) (*Segment, error) {
	seg := def
	seg.ID = "seg_" + uuid.NewString()
	seg.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(&seg)
	if err != nil {
		metrics.SegmentOps.WithLabelValues("create", "error").Inc()
		return nil, errs.Store(err, "encode segment")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(segmentPrefix+seg.ID), payload); err != nil {
			return err
		}
		return txn.Set(parentKey(seg.ParentAudienceID, seg.ID), []byte(seg.ID))
	})
	if err != nil {
		metrics.SegmentOps.WithLabelValues("create", "error").Inc()
		return nil, errs.Store(err, "persist segment")
	}

	metrics.SegmentOps.WithLabelValues("create", "success").Inc()
	logging.Info().Str("segment_id", seg.ID).Str("name", seg.Name).Msg("Segment created")
	return &seg, nil
}

// Get loads a segment by id from the durable store.
func (s *Store) Get(id string) (*Segment, error) {
	var seg Segment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(segmentPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &seg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.SegmentOps.WithLabelValues("get", "error").Inc()
		return nil, errs.NotFoundf("segment %q not found", id)
	}
	if err != nil {
		metrics.SegmentOps.WithLabelValues("get", "error").Inc()
		return nil, errs.Store(err, "load segment")
	}

	metrics.SegmentOps.WithLabelValues("get", "success").Inc()
	return &seg, nil
}

// List returns all segments, or only those under the given parent audience
// when parentID is non-empty. Results are ordered by creation time, then id.
func (s *Store) List(parentID string) ([]*Segment, error) {
	var out []*Segment
	err := s.db.View(func(txn *badger.Txn) error {
		if parentID == "" {
			return s.scanAll(txn, &out)
		}
		return s.scanParent(txn, parentID, &out)
	})
	if err != nil {
		metrics.SegmentOps.WithLabelValues("list", "error").Inc()
		return nil, errs.Store(err, "list segments")
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	metrics.SegmentOps.WithLabelValues("list", "success").Inc()
	return out, nil
}

// Delete removes a segment and its parent index entry.
func (s *Store) Delete(id string) error {
	seg, err := s.Get(id)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(segmentPrefix + id)); err != nil {
			return err
		}
		return txn.Delete(parentKey(seg.ParentAudienceID, id))
	})
	if err != nil {
		metrics.SegmentOps.WithLabelValues("delete", "error").Inc()
		return errs.Store(err, "delete segment")
	}

	metrics.SegmentOps.WithLabelValues("delete", "success").Inc()
	logging.Info().Str("segment_id", id).Msg("Segment deleted")
	return nil
}

// scanAll decodes every segment value under the segment prefix.
func (s *Store) scanAll(txn *badger.Txn, out *[]*Segment) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(segmentPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var seg Segment
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &seg)
		})
		if err != nil {
			return err
		}
		*out = append(*out, &seg)
	}
	return nil
}

// scanParent walks the parent index and resolves each id to its segment.
func (s *Store) scanParent(txn *badger.Txn, parentID string, out *[]*Segment) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(parentPrefix + parentID + ":")
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var id string
		err := it.Item().Value(func(val []byte) error {
			id = string(val)
			return nil
		})
		if err != nil {
			return err
		}

		item, err := txn.Get([]byte(segmentPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Dangling index entry from a half-finished delete; skip it.
			continue
		}
		if err != nil {
			return err
		}
		var seg Segment
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &seg)
		})
		if err != nil {
			return err
		}
		*out = append(*out, &seg)
	}
	return nil
}

func parentKey(parentID, id string) []byte {
	return []byte(parentPrefix + parentID + ":" + id)
}
