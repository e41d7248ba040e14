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

package undo

import (
	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/diffbatch"
)

// UndoItemMeta carries whatever a caller's on_push callback decided is
// worth remembering about a popped/pushed span: an opaque value plus the
// cursor set to restore on the matching pop.
type UndoItemMeta struct {
	Value   common.LoroValue
	Cursors []CursorWithPos
}

// StackItem is one undoable unit: the id-span it covers, its metadata,
// and the diff that undoes it (computed when the span was first recorded,
// before any transformation against concurrent remote edits).
type StackItem struct {
	Span     common.IdSpan
	Meta     UndoItemMeta
	UndoDiff diffbatch.DiffBatch
}

// stackRow groups a run of StackItems with the single pending remote diff
// that arrived while that run was on top of the stack. Popping the whole
// row composes its pending diff into the row beneath, since cursor
// transformation for items still in the row beneath needs it.
type stackRow struct {
	items             []StackItem
	pendingRemoteDiff diffbatch.DiffBatch
}

// Stack is the undo or redo history for one direction: a sequence of rows,
// each row holding the items pushed before the next remote diff arrived.
type Stack struct {
	rows []stackRow
	size int
}

// NewStack returns an empty stack with its sentinel bottom row.
func NewStack() *Stack {
	return &Stack{rows: []stackRow{{pendingRemoteDiff: diffbatch.New()}}}
}

// IsEmpty reports whether the stack holds no items.
func (s *Stack) IsEmpty() bool { return s.size == 0 }

// Len returns the total number of items across every row.
func (s *Stack) Len() int { return s.size }

// Clear drops every row, resetting to a single empty sentinel row.
func (s *Stack) Clear() {
	s.rows = []stackRow{{pendingRemoteDiff: diffbatch.New()}}
	s.size = 0
}

// Pop removes and returns the most recently pushed item along with the
// pending remote diff that was recorded on top of it. Empty trailing rows
// are discarded first, composing their pending diff down into the row
// beneath so future cursor transforms on that row still see it.
func (s *Stack) Pop() (StackItem, diffbatch.DiffBatch, bool) {
	for len(s.rows) > 1 && len(s.rows[len(s.rows)-1].items) == 0 {
		last := s.rows[len(s.rows)-1]
		s.rows = s.rows[:len(s.rows)-1]
		if !last.pendingRemoteDiff.IsEmpty() {
			below := &s.rows[len(s.rows)-1]
			below.pendingRemoteDiff = below.pendingRemoteDiff.Compose(last.pendingRemoteDiff)
		}
	}
	if len(s.rows) == 1 && len(s.rows[0].items) == 0 {
		s.rows[0].pendingRemoteDiff = diffbatch.New()
		return StackItem{}, diffbatch.DiffBatch{}, false
	}
	s.size--
	last := &s.rows[len(s.rows)-1]
	item := last.items[len(last.items)-1]
	last.items = last.items[:len(last.items)-1]
	return item, last.pendingRemoteDiff, true
}

// PopFront drops the oldest item, used to enforce a max stack depth. Its
// row's pending remote diff is preserved even if the row becomes empty,
// since rows beneath it may still need it composed in on a future Pop.
func (s *Stack) PopFront() {
	if s.size == 0 {
		return
	}
	s.size--
	first := &s.rows[0]
	first.items = first.items[1:]
	if len(first.items) == 0 && len(s.rows) > 1 {
		dropped := s.rows[0]
		s.rows = s.rows[1:]
		if !dropped.pendingRemoteDiff.IsEmpty() {
			next := &s.rows[0]
			next.pendingRemoteDiff = dropped.pendingRemoteDiff.Compose(next.pendingRemoteDiff)
		}
	}
}

// Push appends span/meta/undoDiff as a new item with no merge attempt.
func (s *Stack) Push(span common.IdSpan, meta UndoItemMeta, undoDiff diffbatch.DiffBatch) {
	s.PushWithMerge(span, meta, undoDiff, false, nil)
}

// PushWithMerge is Push's full form: it starts a new row when the top
// row's pending remote diff is non-empty and not disjoint from group (a
// concurrent import touched something this push also touches), otherwise
// it either merges into the previous item (canMerge, counter-adjacent) or
// appends to the current row.
func (s *Stack) PushWithMerge(span common.IdSpan, meta UndoItemMeta, undoDiff diffbatch.DiffBatch, canMerge bool, group *UndoGroup) {
	top := &s.rows[len(s.rows)-1]

	disjoint := true
	if group != nil {
		for cid := range group.AffectedCids {
			if d, ok := top.pendingRemoteDiff.Events[cid]; ok && !isEmptyDiff(d) {
				disjoint = false
				break
			}
		}
	} else {
		disjoint = false
	}

	shouldCreateNewRow := !top.pendingRemoteDiff.IsEmpty() && !disjoint
	if shouldCreateNewRow {
		s.rows = append(s.rows, stackRow{
			items:             []StackItem{{Span: span, Meta: meta, UndoDiff: undoDiff}},
			pendingRemoteDiff: diffbatch.New(),
		})
		s.size++
		return
	}

	if canMerge && len(top.items) > 0 {
		lastIdx := len(top.items) - 1
		last := &top.items[lastIdx]
		if last.Span.Peer == span.Peer && last.Span.CounterEnd == span.CounterStart {
			last.Span.CounterEnd = span.CounterEnd
			last.UndoDiff = last.UndoDiff.Compose(undoDiff)
			return
		}
	}

	s.size++
	top.items = append(top.items, StackItem{Span: span, Meta: meta, UndoDiff: undoDiff})
}

// ComposeRemoteEvent folds a remotely imported diff into the pending
// remote diff of the top row, a no-op on an empty stack (there is no undo
// item whose bookkeeping would need it).
func (s *Stack) ComposeRemoteEvent(diff diffbatch.DiffBatch) {
	if s.IsEmpty() {
		return
	}
	top := &s.rows[len(s.rows)-1]
	top.pendingRemoteDiff = top.pendingRemoteDiff.Compose(diff)
}

// TransformBasedOnDelta transforms the top row's pending remote diff by a
// diff the manager just applied locally (the new ops an undo/redo itself
// produced), keeping subsequent pops correct.
func (s *Stack) TransformBasedOnDelta(diff diffbatch.DiffBatch) {
	if s.IsEmpty() {
		return
	}
	top := &s.rows[len(s.rows)-1]
	top.pendingRemoteDiff = top.pendingRemoteDiff.Transform(diff, false)
}

func isEmptyDiff(d diffbatch.Diff) bool {
	return len(d.Text) == 0 && len(d.Map) == 0 && len(d.List) == 0 && len(d.Tree) == 0 && d.Counter == 0
}
