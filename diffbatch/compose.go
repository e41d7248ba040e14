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

// Compose returns the diff equivalent to applying b then other, per
// container, in one pass: apply(apply(doc, b), other) == apply(doc,
// b.Compose(other)).
func (b DiffBatch) Compose(other DiffBatch) DiffBatch {
	out := New()
	for _, cid := range b.Order {
		out.Set(cid, b.Events[cid])
	}
	for _, cid := range other.Order {
		d2 := other.Events[cid]
		if d1, ok := out.Events[cid]; ok {
			out.Set(cid, composeDiff(d1, d2))
		} else {
			out.Set(cid, d2)
		}
	}
	return out
}

func composeDiff(a, b Diff) Diff {
	switch a.Kind {
	case DiffText:
		composed := composeTextItems(a.Text, b.Text)
		if len(composed) == 0 {
			// An insert immediately cancelled by a delete composes to
			// identity, per spec.md §4.10's text-annihilation rule.
			return Diff{Kind: DiffText}
		}
		return Diff{Kind: DiffText, Text: composed}
	case DiffMap:
		return Diff{Kind: DiffMap, Map: composeMap(a.Map, b.Map)}
	case DiffList, DiffMovableList:
		return Diff{Kind: a.Kind, List: composeListItems(a.List, b.List)}
	case DiffTree:
		return Diff{Kind: DiffTree, Tree: composeTree(a.Tree, b.Tree)}
	case DiffCounter:
		return Diff{Kind: DiffCounter, Counter: a.Counter + b.Counter}
	default:
		return b
	}
}

// composeMap overlays b onto a: b's keys win (last-writer-wins), a's
// untouched keys survive. A nil value under a present key means delete.
func composeMap(a, b map[string]*common.LoroValue) map[string]*common.LoroValue {
	out := make(map[string]*common.LoroValue, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// --- text delta compose ----------------------------------------------------

type textCursor struct {
	items []TextDeltaItem
	idx   int
	off   int // offset consumed within items[idx]
}

func (c *textCursor) done() bool { return c.idx >= len(c.items) }

func (c *textCursor) peekKind() (isInsert, isDelete bool) {
	if c.done() {
		return false, false
	}
	it := c.items[c.idx]
	return it.InsertText != "", it.Delete > 0
}

func (c *textCursor) peekLen() int {
	if c.done() {
		return 0
	}
	return c.items[c.idx].len() - c.off
}

// take consumes up to n units from the current item, splitting it if
// necessary, and returns the consumed slice as a single item.
func (c *textCursor) take(n int) TextDeltaItem {
	it := c.items[c.idx]
	avail := it.len() - c.off
	if n > avail {
		n = avail
	}
	var out TextDeltaItem
	switch {
	case it.Retain > 0:
		out = TextDeltaItem{Retain: n}
	case it.InsertText != "":
		runes := []rune(it.InsertText)
		out = TextDeltaItem{InsertText: string(runes[c.off : c.off+n]), InsertAttrs: it.InsertAttrs}
	default:
		out = TextDeltaItem{Delete: n}
	}
	c.off += n
	if c.off >= it.len() {
		c.idx++
		c.off = 0
	}
	return out
}

func composeTextItems(a, b []TextDeltaItem) []TextDeltaItem {
	ca := &textCursor{items: a}
	cb := &textCursor{items: b}
	var out []TextDeltaItem
	push := func(it TextDeltaItem) {
		if it.Retain == 0 && it.InsertText == "" && it.Delete == 0 {
			return
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Retain > 0 && it.Retain > 0 {
				last.Retain += it.Retain
				return
			}
			if last.Delete > 0 && it.Delete > 0 {
				last.Delete += it.Delete
				return
			}
		}
		out = append(out, it)
	}

	for !ca.done() || !cb.done() {
		bIsInsert, _ := cb.peekKind()
		if bIsInsert {
			push(cb.take(cb.peekLen()))
			continue
		}
		_, aIsDelete := ca.peekKind()
		if aIsDelete {
			push(ca.take(ca.peekLen()))
			continue
		}
		if ca.done() {
			push(cb.take(cb.peekLen()))
			continue
		}
		if cb.done() {
			push(ca.take(ca.peekLen()))
			continue
		}
		n := ca.peekLen()
		if cb.peekLen() < n {
			n = cb.peekLen()
		}
		aItem := ca.take(n)
		bItem := cb.take(n)
		switch {
		case bItem.Delete > 0 && aItem.InsertText != "":
			// b deletes exactly what a just inserted: cancels, emits nothing.
		case bItem.Delete > 0:
			push(bItem)
		case aItem.InsertText != "":
			push(TextDeltaItem{InsertText: aItem.InsertText, InsertAttrs: aItem.InsertAttrs})
		default:
			push(TextDeltaItem{Retain: n})
		}
	}
	return out
}

// --- list/movable-list delta compose ---------------------------------------

type listCursor struct {
	items []ListDeltaItem
	idx   int
	off   int
}

func (c *listCursor) done() bool { return c.idx >= len(c.items) }

func (c *listCursor) peekKind() (isInsert, isDelete, isMove bool) {
	if c.done() {
		return false, false, false
	}
	it := c.items[c.idx]
	return len(it.Insert) > 0, it.Delete > 0, it.MoveElem != nil
}

func (c *listCursor) peekLen() int {
	if c.done() {
		return 0
	}
	return c.items[c.idx].len() - c.off
}

func (c *listCursor) take(n int) ListDeltaItem {
	it := c.items[c.idx]
	if it.MoveElem != nil {
		c.idx++
		c.off = 0
		return it
	}
	avail := it.len() - c.off
	if n > avail {
		n = avail
	}
	var out ListDeltaItem
	switch {
	case it.Retain > 0:
		out = ListDeltaItem{Retain: n}
	case len(it.Insert) > 0:
		out = ListDeltaItem{Insert: append([]common.LoroValue(nil), it.Insert[c.off:c.off+n]...)}
	default:
		out = ListDeltaItem{Delete: n}
	}
	c.off += n
	if c.off >= it.len() {
		c.idx++
		c.off = 0
	}
	return out
}

func composeListItems(a, b []ListDeltaItem) []ListDeltaItem {
	ca := &listCursor{items: a}
	cb := &listCursor{items: b}
	var out []ListDeltaItem
	push := func(it ListDeltaItem) {
		if it.Retain == 0 && len(it.Insert) == 0 && it.Delete == 0 && it.MoveElem == nil {
			return
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Retain > 0 && it.Retain > 0 {
				last.Retain += it.Retain
				return
			}
			if last.Delete > 0 && it.Delete > 0 {
				last.Delete += it.Delete
				return
			}
		}
		out = append(out, it)
	}

	for !ca.done() || !cb.done() {
		_, _, bMove := cb.peekKind()
		if bMove {
			push(cb.take(0))
			continue
		}
		bIsInsert, _, _ := cb.peekKind()
		if bIsInsert {
			push(cb.take(cb.peekLen()))
			continue
		}
		_, aIsDelete, aMove := ca.peekKind()
		if aMove {
			push(ca.take(0))
			continue
		}
		if aIsDelete {
			push(ca.take(ca.peekLen()))
			continue
		}
		if ca.done() {
			push(cb.take(cb.peekLen()))
			continue
		}
		if cb.done() {
			push(ca.take(ca.peekLen()))
			continue
		}
		n := ca.peekLen()
		if cb.peekLen() < n {
			n = cb.peekLen()
		}
		aItem := ca.take(n)
		bItem := cb.take(n)
		switch {
		case bItem.Delete > 0 && len(aItem.Insert) > 0:
			// b deletes exactly what a just inserted: cancels, emits nothing.
		case bItem.Delete > 0:
			push(bItem)
		case len(aItem.Insert) > 0:
			push(ListDeltaItem{Insert: aItem.Insert})
		default:
			push(ListDeltaItem{Retain: n})
		}
	}
	return out
}

// --- tree diff compose ------------------------------------------------------

// composeTree keeps, per target, the latest structural action (the
// parent-changed conflict resolution spec.md §4.10 names), preserving the
// first-seen order of targets.
func composeTree(a, b []TreeDiffItem) []TreeDiffItem {
	order := make([]common.ContainerID, 0, len(a)+len(b))
	latest := make(map[common.ContainerID]TreeDiffItem, len(a)+len(b))
	for _, it := range a {
		if _, ok := latest[it.Target]; !ok {
			order = append(order, it.Target)
		}
		latest[it.Target] = it
	}
	for _, it := range b {
		if _, ok := latest[it.Target]; !ok {
			order = append(order, it.Target)
		}
		latest[it.Target] = it
	}
	out := make([]TreeDiffItem, len(order))
	for i, cid := range order {
		out[i] = latest[cid]
	}
	return out
}
