package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pypirun/pypirun/internal/db"
)

// HitStore tracks how many times each package's runner script was served.
// An in-memory snapshot (atomic pointer) avoids reading BoltDB on every
// stats broadcast.
type HitStore struct {
	db    *bolt.DB
	cache atomic.Pointer[StatsSnapshot] // lazily rebuilt, invalidated on writes
}

func NewHitStore(database *bolt.DB) *HitStore {
	return &HitStore{db: database}
}

// hitRecord is the stored per-package record.
type hitRecord struct {
	Package    string `json:"package"`
	Count      int64  `json:"count"`
	LastServed int64  `json:"lastServed"` // unix seconds
}

// HitEntry is the per-package view exposed to handlers.
type HitEntry struct {
	Package string `json:"package"`
	Count   int64  `json:"count"`
}

// StatsSnapshot is an immutable view of the counters, sorted by count
// descending. Callers must NOT mutate it; it is shared between readers.
type StatsSnapshot struct {
	Total    int64      `json:"total"`
	Packages []HitEntry `json:"packages"`
}

// Increment bumps the counter for a package and returns the new count.
func (s *HitStore) Increment(pkg string) (int64, error) {
	defer s.invalidate()

	var count int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketHits)
		rec := hitRecord{Package: pkg}
		if v := b.Get([]byte(pkg)); v != nil {
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal hit %q: %w", pkg, err)
			}
		}
		rec.Count++
		rec.LastServed = time.Now().Unix()
		count = rec.Count

		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(pkg), data)
	})
	if err != nil {
		return 0, fmt.Errorf("increment hit %q: %w", pkg, err)
	}
	return count, nil
}

// Snapshot returns the cached stats snapshot, rebuilding it from BoltDB
// if a write invalidated it.
func (s *HitStore) Snapshot() (*StatsSnapshot, error) {
	if cached := s.cache.Load(); cached != nil {
		return cached, nil
	}
	return s.rebuild()
}

func (s *HitStore) rebuild() (*StatsSnapshot, error) {
	snap := &StatsSnapshot{Packages: []HitEntry{}}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketHits).ForEach(func(k, v []byte) error {
			var rec hitRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal hit %q: %w", string(k), err)
			}
			snap.Total += rec.Count
			snap.Packages = append(snap.Packages, HitEntry{Package: rec.Package, Count: rec.Count})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(snap.Packages, func(i, j int) bool {
		if snap.Packages[i].Count != snap.Packages[j].Count {
			return snap.Packages[i].Count > snap.Packages[j].Count
		}
		return snap.Packages[i].Package < snap.Packages[j].Package
	})

	s.cache.Store(snap)
	return snap, nil
}

// Top returns the n most-served packages plus the grand total.
func (s *HitStore) Top(n int) (*StatsSnapshot, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if n >= len(snap.Packages) {
		return snap, nil
	}
	return &StatsSnapshot{Total: snap.Total, Packages: snap.Packages[:n]}, nil
}

// Reset deletes all counters.
func (s *HitStore) Reset() error {
	defer s.invalidate()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketHits)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// invalidate clears the in-memory snapshot, forcing a rebuild on next read.
func (s *HitStore) invalidate() {
	s.cache.Store(nil)
}
