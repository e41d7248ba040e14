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

// BlockIter walks one Block with two independent cursors, front and back,
// so the same iterator can drive both a forward and a backward traversal
// (needed by kv.merge_iter's bidirectional merge). The iterator is
// exhausted once the cursors meet.
type BlockIter struct {
	block *Block
	front int // index of the next entry Next() would yield
	back  int // one past the index of the next entry NextBack() would yield
}

func newBlockIter(b *Block) *BlockIter {
	return &BlockIter{block: b, front: 0, back: b.Len()}
}

// SeekToFirst resets both cursors to span the whole block.
func (it *BlockIter) SeekToFirst() {
	it.front = 0
	it.back = it.block.Len()
}

// SeekToKey moves the front cursor to the first entry with key >= k, via
// binary search over the decoded entries (standing in for spec.md §4.1's
// "binary search on offsets" — our Block keeps entries pre-sorted, so the
// offsets array's job and the entries slice's job coincide).
func (it *BlockIter) SeekToKey(k []byte) {
	lo, hi := 0, it.block.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(it.block.entries[mid].key, k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	it.front = lo
}

// BackToKey moves the back cursor so NextBack() yields the last entry with
// key <= k (symmetric to SeekToKey).
func (it *BlockIter) BackToKey(k []byte) {
	lo, hi := 0, it.block.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(it.block.entries[mid].key, k) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	it.back = lo
}

func (it *BlockIter) HasNext() bool     { return it.front < it.back }
func (it *BlockIter) HasNextBack() bool { return it.front < it.back }

// Next advances the front cursor and returns the entry it was on.
func (it *BlockIter) Next() (key, value []byte, ok bool) {
	if !it.HasNext() {
		return nil, nil, false
	}
	e := it.block.entries[it.front]
	it.front++
	return e.key, e.value, true
}

// NextBack retreats the back cursor and returns the entry it lands on.
func (it *BlockIter) NextBack() (key, value []byte, ok bool) {
	if !it.HasNextBack() {
		return nil, nil, false
	}
	it.back--
	e := it.block.entries[it.back]
	return e.key, e.value, true
}

// PeekNextCurrKey/Value return the entry Next() would yield without
// consuming it.
func (it *BlockIter) PeekNextCurrKey() []byte {
	if !it.HasNext() {
		return nil
	}
	return it.block.entries[it.front].key
}

func (it *BlockIter) PeekNextCurrValue() []byte {
	if !it.HasNext() {
		return nil
	}
	return it.block.entries[it.front].value
}

// PeekBackCurrKey/Value return the entry NextBack() would yield without
// consuming it.
func (it *BlockIter) PeekBackCurrKey() []byte {
	if !it.HasNextBack() {
		return nil
	}
	return it.block.entries[it.back-1].key
}

func (it *BlockIter) PeekBackCurrValue() []byte {
	if !it.HasNextBack() {
		return nil
	}
	return it.block.entries[it.back-1].value
}
