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

package diffbatch

import "github.com/loro-dev/loro-go-core/common"

// Transform returns the version of b that should be applied after other
// has already been applied to the same base state, per spec.md §4.10.
// leftPriority breaks ties when both b and other insert at the same
// position: true means b's insert is ordered first in the result.
func (b DiffBatch) Transform(other DiffBatch, leftPriority bool) DiffBatch {
	out := New()
	for _, cid := range b.Order {
		d := b.Events[cid]
		if od, ok := other.Events[cid]; ok {
			out.Set(cid, transformDiff(od, d, leftPriority))
		} else {
			out.Set(cid, d)
		}
	}
	return out
}

func transformDiff(applied, target Diff, targetPriority bool) Diff {
	switch target.Kind {
	case DiffText:
		return Diff{Kind: DiffText, Text: transformTextItems(applied.Text, target.Text, !targetPriority)}
	case DiffMap:
		return Diff{Kind: DiffMap, Map: transformMap(applied.Map, target.Map, targetPriority)}
	case DiffList, DiffMovableList:
		return Diff{Kind: target.Kind, List: transformListItems(applied.List, target.List, !targetPriority)}
	case DiffTree:
		return Diff{Kind: DiffTree, Tree: transformTree(applied.Tree, target.Tree, targetPriority)}
	case DiffCounter:
		// addition commutes; no adjustment needed.
		return target
	default:
		return target
	}
}

// transformMap applies LWW precedence: when both applied and target set
// the same key, target's entry survives only if targetPriority; otherwise
// applied already won on the document and target's conflicting entry is
// dropped so re-applying it would not clobber applied's write.
func transformMap(applied, target map[string]*common.LoroValue, targetPriority bool) map[string]*common.LoroValue {
	if len(target) == 0 {
		return target
	}
	out := make(map[string]*common.LoroValue, len(target))
	for k, v := range target {
		if _, conflict := applied[k]; conflict && !targetPriority {
			continue
		}
		out[k] = v
	}
	return out
}

// --- text transform (quill-delta "transform") ------------------------------

// transformTextItems returns target transformed against applied: the
// version of target suitable to apply to a document that already has
// applied's effect. appliedPriority governs whose insert is ordered first
// when both sides insert at the same retained position.
func transformTextItems(applied, target []TextDeltaItem, appliedPriority bool) []TextDeltaItem {
	ca := &textCursor{items: applied}
	ct := &textCursor{items: target}
	var out []TextDeltaItem
	retain := func(n int) {
		if n <= 0 {
			return
		}
		if k := len(out); k > 0 && out[k-1].Retain > 0 {
			out[k-1].Retain += n
			return
		}
		out = append(out, TextDeltaItem{Retain: n})
	}
	push := func(it TextDeltaItem) { out = append(out, it) }

	for !ca.done() || !ct.done() {
		aInsertNow := !ca.done() && ca.items[ca.idx].InsertText != ""
		tInsertNow := !ct.done() && ct.items[ct.idx].InsertText != ""

		if aInsertNow && (appliedPriority || !tInsertNow) {
			retain(ca.take(ca.peekLen()).len())
			continue
		}
		if tInsertNow {
			push(ct.take(ct.peekLen()))
			continue
		}
		if ca.done() {
			push(ct.take(ct.peekLen()))
			continue
		}
		if ct.done() {
			retain(ca.take(ca.peekLen()).len())
			continue
		}
		n := ca.peekLen()
		if ct.peekLen() < n {
			n = ct.peekLen()
		}
		aItem := ca.take(n)
		tItem := ct.take(n)
		switch {
		case aItem.Delete > 0:
			// already deleted by applied; target's op over this range is moot.
			continue
		case tItem.Delete > 0:
			push(tItem)
		default:
			retain(n)
		}
	}
	return out
}

// --- list/movable-list transform --------------------------------------------

func transformListItems(applied, target []ListDeltaItem, appliedPriority bool) []ListDeltaItem {
	ca := &listCursor{items: applied}
	ct := &listCursor{items: target}
	var out []ListDeltaItem
	retain := func(n int) {
		if n <= 0 {
			return
		}
		if k := len(out); k > 0 && out[k-1].Retain > 0 {
			out[k-1].Retain += n
			return
		}
		out = append(out, ListDeltaItem{Retain: n})
	}
	push := func(it ListDeltaItem) { out = append(out, it) }

	for !ca.done() || !ct.done() {
		_, _, aMove := ca.peekKind()
		if aMove {
			ca.take(0)
			continue
		}
		_, _, tMove := ct.peekKind()
		if tMove {
			push(ct.take(0))
			continue
		}
		aInsertNow := !ca.done() && len(ca.items[ca.idx].Insert) > 0
		tInsertNow := !ct.done() && len(ct.items[ct.idx].Insert) > 0

		if aInsertNow && (appliedPriority || !tInsertNow) {
			retain(len(ca.take(ca.peekLen()).Insert))
			continue
		}
		if tInsertNow {
			push(ct.take(ct.peekLen()))
			continue
		}
		if ca.done() {
			push(ct.take(ct.peekLen()))
			continue
		}
		if ct.done() {
			it := ca.take(ca.peekLen())
			retain(it.len())
			continue
		}
		n := ca.peekLen()
		if ct.peekLen() < n {
			n = ct.peekLen()
		}
		aItem := ca.take(n)
		tItem := ct.take(n)
		switch {
		case aItem.Delete > 0:
			continue
		case tItem.Delete > 0:
			push(tItem)
		default:
			retain(n)
		}
	}
	return out
}

// --- tree transform ----------------------------------------------------------

// transformTree resolves concurrent structural edits to the same target:
// when both sides touch a target, targetPriority decides whose action
// survives in the result (the other is dropped since applied already
// committed it to the document).
func transformTree(applied, target []TreeDiffItem, targetPriority bool) []TreeDiffItem {
	appliedTargets := make(map[common.ContainerID]bool, len(applied))
	for _, it := range applied {
		appliedTargets[it.Target] = true
	}
	out := make([]TreeDiffItem, 0, len(target))
	for _, it := range target {
		if appliedTargets[it.Target] && !targetPriority {
			continue
		}
		out = append(out, it)
	}
	return out
}

// TransformCursor maps a pre-diff position through d to its post-diff
// position, per spec.md §4.10's transform_cursor. A position inside a
// deleted run maps to where that run started, and an insert at exactly
// the cursor's position does not shift it. The result is the same for
// either value of isMove.
func TransformCursor(d Diff, pos int, isMove bool) int {
	switch d.Kind {
	case DiffText:
		return transformCursorText(d.Text, pos, isMove)
	case DiffList, DiffMovableList:
		return transformCursorList(d.List, pos, isMove)
	default:
		return pos
	}
}

func transformCursorText(items []TextDeltaItem, pos int, isMove bool) int {
	idx := 0
	out := 0
	for _, it := range items {
		if idx >= pos && !isMove {
			break
		}
		switch {
		case it.Retain > 0:
			n := it.Retain
			if idx+n > pos {
				out += pos - idx
				return out
			}
			idx += n
			out += n
		case it.InsertText != "":
			n := len([]rune(it.InsertText))
			if idx >= pos {
				return out
			}
			out += n
		default:
			n := it.Delete
			if idx >= pos {
				return out
			}
			if idx+n > pos {
				idx = pos
				continue
			}
			idx += n
		}
	}
	return out + max(0, pos-idx)
}

func transformCursorList(items []ListDeltaItem, pos int, isMove bool) int {
	idx := 0
	out := 0
	for _, it := range items {
		switch {
		case it.Retain > 0:
			n := it.Retain
			if idx+n > pos {
				out += pos - idx
				return out
			}
			idx += n
			out += n
		case len(it.Insert) > 0:
			n := len(it.Insert)
			if idx >= pos {
				return out
			}
			out += n
		case it.MoveElem != nil:
			continue
		default:
			n := it.Delete
			if idx >= pos {
				return out
			}
			if idx+n > pos {
				idx = pos
				continue
			}
			idx += n
		}
	}
	return out + max(0, pos-idx)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
