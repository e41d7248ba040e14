// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.
//
// loro-go-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// loro-go-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with loro-go-core. If not, see <http://www.gnu.org/licenses/>.

// Package kv implements the persistent ordered key-value engine: a
// block-compressed, checksummed immutable table format (Block/SSTable,
// C1/C2) overlaid by an in-memory mutable map (OrderedKV, C3). Keys and
// values are raw bytes; ordering is the total byte order of bytes.Compare.
package kv

import (
	"bytes"

	"github.com/tidwall/btree"
)

// BoundKind tags which kind of endpoint a Bound represents.
type BoundKind uint8

const (
	BoundUnbounded BoundKind = iota
	BoundIncluded
	BoundExcluded
)

// Bound describes one end of a scan range. A zero Bound has Kind ==
// BoundUnbounded, matching everything on that side.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

func Unbounded() Bound        { return Bound{Kind: BoundUnbounded} }
func Included(k []byte) Bound { return Bound{Kind: BoundIncluded, Key: k} }
func Excluded(k []byte) Bound { return Bound{Kind: BoundExcluded, Key: k} }

// memEntry is the mutable overlay's value slot. A tombstone is recorded as
// Deleted=true with Value left empty, per spec.md §4.3 ("remove writes a
// tombstone: empty value in the mutable map").
type memEntry struct {
	key     []byte
	value   []byte
	deleted bool
}

func compareMemEntries(a, b memEntry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// OrderedKV is the C3 ordered key-value store: a sorted mutable map
// overlaying zero or one immutable SSTable.
type OrderedKV struct {
	mem   *btree.BTreeG[memEntry]
	table *SSTable
	cache *blockCache
}

// NewOrderedKV creates an empty store with its own block cache.
func NewOrderedKV() *OrderedKV {
	return &OrderedKV{
		mem:   btree.NewBTreeG(compareMemEntries),
		cache: newBlockCache(1 << 20), // SPEC_FULL.md D2
	}
}

// Get returns the value for k, or (nil, false) if absent or tombstoned.
func (s *OrderedKV) Get(k []byte) ([]byte, bool, error) {
	if e, ok := s.mem.Get(memEntry{key: k}); ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	if s.table == nil {
		return nil, false, nil
	}
	return s.table.Get(k)
}

// ContainsKey reports whether k has a live (non-tombstoned) value.
func (s *OrderedKV) ContainsKey(k []byte) (bool, error) {
	_, ok, err := s.Get(k)
	return ok, err
}

// Set inserts or overwrites k's value in the mutable overlay.
func (s *OrderedKV) Set(k, v []byte) {
	s.mem.Set(memEntry{key: clone(k), value: clone(v)})
}

// Remove writes a tombstone for k in the mutable overlay. The underlying
// SSTable entry, if any, is never touched directly — it is shadowed until
// the next ExportAll/ImportAll cycle compacts it away.
func (s *OrderedKV) Remove(k []byte) {
	s.mem.Set(memEntry{key: clone(k), deleted: true})
}

// CompareAndSwap replaces k's value with newV only if its current value
// (absent is represented by a nil old) equals old. Non-atomic with respect
// to concurrent mutators; callers must externally serialize writers, per
// spec.md §4.3.
func (s *OrderedKV) CompareAndSwap(k, old, newV []byte) (bool, error) {
	cur, ok, err := s.Get(k)
	if err != nil {
		return false, err
	}
	if !ok {
		if old != nil {
			return false, nil
		}
	} else if old == nil || !bytes.Equal(cur, old) {
		return false, nil
	}
	s.Set(k, newV)
	return true, nil
}

// Len returns the number of live keys visible through Scan(Unbounded,
// Unbounded) — i.e. merged and de-tombstoned, not the raw overlay size.
func (s *OrderedKV) Len() (int, error) {
	n := 0
	it, err := s.Scan(Unbounded(), Unbounded())
	if err != nil {
		return 0, err
	}
	for {
		_, _, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// Size estimates the store's total byte footprint (mutable overlay plus the
// immutable table, if any).
func (s *OrderedKV) Size() int {
	size := 0
	s.mem.Scan(func(e memEntry) bool {
		size += len(e.key) + len(e.value)
		return true
	})
	if s.table != nil {
		size += len(s.table.raw)
	}
	return size
}

// Scan returns a bidirectional iterator over the merged view between start
// and end (each Bound sets its own inclusivity), skipping tombstones at
// this public boundary per spec.md
// §4.3 ("skipping tombstones only at the public API boundary").
func (s *OrderedKV) Scan(start, end Bound) (*ScanIter, error) {
	raw, err := s.rawMergeIter(start, end)
	if err != nil {
		return nil, err
	}
	return &ScanIter{raw: raw}, nil
}

// ExportAll streams the merged, de-tombstoned view into a fresh SSTable and
// returns its encoded bytes — the store's single authoritative durable
// form, per spec.md §4.3.
func (s *OrderedKV) ExportAll() ([]byte, error) {
	b := NewSSTableBuilder(DefaultBlockBudget, CompressionZstd)
	it, err := s.Scan(Unbounded(), Unbounded())
	if err != nil {
		return nil, err
	}
	for {
		k, v, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		b.Add(k, v)
	}
	return b.Build(), nil
}

// ImportAll replaces the immutable side with the table encoded in raw. The
// mutable map is left as-is (the caller typically calls this only when it
// is empty, right after a fresh load).
func (s *OrderedKV) ImportAll(raw []byte) error {
	tbl, err := OpenSSTable(raw, s.cache)
	if err != nil {
		return err
	}
	s.table = tbl
	return nil
}
