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

package kv

import "bytes"

// rawIter walks the merged (mutable overlay ∪ immutable table) view within
// one bound range, in total key order, with independent front/back
// cursors — mirroring BlockIter's shape so scans over a one-block table
// and scans over the whole store compose the same way. Tombstones are kept
// in this raw view; only ScanIter filters them, per spec.md §4.3.
type rawIter struct {
	entries []memEntry
	front   int
	back    int
}

func (it *rawIter) hasNext() bool     { return it.front < it.back }
func (it *rawIter) hasNextBack() bool { return it.front < it.back }

func (it *rawIter) next() (memEntry, bool) {
	if !it.hasNext() {
		return memEntry{}, false
	}
	e := it.entries[it.front]
	it.front++
	return e, true
}

func (it *rawIter) nextBack() (memEntry, bool) {
	if !it.hasNextBack() {
		return memEntry{}, false
	}
	it.back--
	return it.entries[it.back], true
}

// rawMergeIter materializes the merged view of the mutable overlay and the
// immutable table between start and end (each Bound sets its own
// inclusivity), mutable entries winning ties. The
// merge itself is the classic two-pointer merge of two already-sorted
// sequences; what spec.md calls "bidirectional" is realized here by the
// dual front/back cursors over the single merged, materialized sequence,
// which is exactly as observable to callers as a streaming merge would be.
func (s *OrderedKV) rawMergeIter(start, end Bound) (*rawIter, error) {
	memEntries := s.memInRange(start, end)

	var tableEntries []memEntry
	if s.table != nil {
		var err error
		tableEntries, err = s.tableInRange(start, end)
		if err != nil {
			return nil, err
		}
	}

	merged := make([]memEntry, 0, len(memEntries)+len(tableEntries))
	i, j := 0, 0
	for i < len(memEntries) && j < len(tableEntries) {
		cmp := bytes.Compare(memEntries[i].key, tableEntries[j].key)
		switch {
		case cmp < 0:
			merged = append(merged, memEntries[i])
			i++
		case cmp > 0:
			merged = append(merged, tableEntries[j])
			j++
		default:
			// Equal keys: the mutable overlay always wins, per spec.md §4.3.
			merged = append(merged, memEntries[i])
			i++
			j++
		}
	}
	merged = append(merged, memEntries[i:]...)
	merged = append(merged, tableEntries[j:]...)

	return &rawIter{entries: merged, front: 0, back: len(merged)}, nil
}

func (s *OrderedKV) memInRange(start, end Bound) []memEntry {
	var out []memEntry
	s.mem.Scan(func(e memEntry) bool {
		if !boundAllowsLow(start, e.key) {
			return true
		}
		if !boundAllowsHigh(end, e.key) {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
}

func (s *OrderedKV) tableInRange(start, end Bound) ([]memEntry, error) {
	var out []memEntry
	for idx := 0; idx < s.table.BlockCount(); idx++ {
		blk, err := s.table.loadBlock(idx)
		if err != nil {
			return nil, err
		}
		if len(blk.entries) == 0 {
			continue
		}
		if !boundAllowsHigh(end, blk.FirstKey()) {
			break // blocks are in ascending key order; nothing further qualifies
		}
		if !boundAllowsLow(start, blk.LastKey()) {
			continue
		}
		for _, e := range blk.entries {
			if !boundAllowsLow(start, e.key) || !boundAllowsHigh(end, e.key) {
				continue
			}
			out = append(out, memEntry{key: e.key, value: e.value})
		}
	}
	return out, nil
}

func boundAllowsLow(b Bound, key []byte) bool {
	switch b.Kind {
	case BoundUnbounded:
		return true
	case BoundIncluded:
		return bytes.Compare(key, b.Key) >= 0
	case BoundExcluded:
		return bytes.Compare(key, b.Key) > 0
	default:
		return true
	}
}

func boundAllowsHigh(b Bound, key []byte) bool {
	switch b.Kind {
	case BoundUnbounded:
		return true
	case BoundIncluded:
		return bytes.Compare(key, b.Key) <= 0
	case BoundExcluded:
		return bytes.Compare(key, b.Key) < 0
	default:
		return true
	}
}

// ScanIter is the public scan handle: a bidirectional iterator over the
// merged view with tombstones filtered out.
type ScanIter struct {
	raw *rawIter
}

// Next advances from the front, skipping tombstones, and returns the next
// live (key, value) pair.
func (it *ScanIter) Next() (key, value []byte, ok bool, err error) {
	for it.raw.hasNext() {
		e, _ := it.raw.next()
		if e.deleted {
			continue
		}
		return e.key, e.value, true, nil
	}
	return nil, nil, false, nil
}

// NextBack retreats from the back, skipping tombstones, and returns the
// next live (key, value) pair in descending order.
func (it *ScanIter) NextBack() (key, value []byte, ok bool, err error) {
	for it.raw.hasNextBack() {
		e, _ := it.raw.nextBack()
		if e.deleted {
			continue
		}
		return e.key, e.value, true, nil
	}
	return nil, nil, false, nil
}
