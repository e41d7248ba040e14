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

// Package diffbatch implements the diff algebra shared by the undo engine
// (undo) and remote-event delivery: composing and transforming the
// per-container diffs produced by applying a set of changes.
package diffbatch

import "github.com/loro-dev/loro-go-core/common"

// DiffKind discriminates the container-specific shape a Diff carries.
type DiffKind uint8

const (
	DiffText DiffKind = iota
	DiffMap
	DiffList
	DiffMovableList
	DiffTree
	DiffCounter
)

// TextDeltaItem is one run of a quill-style text delta: exactly one of
// Retain, InsertText (with InsertAttrs), or Delete is set.
type TextDeltaItem struct {
	Retain      int
	InsertText  string
	InsertAttrs map[string]common.LoroValue
	Delete      int
}

func (i TextDeltaItem) len() int {
	switch {
	case i.Retain > 0:
		return i.Retain
	case i.InsertText != "":
		return len([]rune(i.InsertText))
	default:
		return i.Delete
	}
}

// ListDeltaItem is the list/movable-list analogue of TextDeltaItem: runs
// of retained, inserted, or deleted elements. A Move additionally carries
// the element being relocated (MovableList only).
type ListDeltaItem struct {
	Retain      int
	Insert      []common.LoroValue
	Delete      int
	MoveElem    *common.IdLp
	MoveFromIdx int
	MoveToIdx   int
}

func (i ListDeltaItem) len() int {
	switch {
	case i.Retain > 0:
		return i.Retain
	case len(i.Insert) > 0:
		return len(i.Insert)
	case i.MoveElem != nil:
		return 0
	default:
		return i.Delete
	}
}

// TreeDiffAction discriminates a TreeDiffItem's effect.
type TreeDiffAction uint8

const (
	TreeCreate TreeDiffAction = iota
	TreeMove
	TreeDelete
)

// TreeDiffItem records one structural change to a tree container.
type TreeDiffItem struct {
	Action   TreeDiffAction
	Target   common.ContainerID
	Parent   *common.ContainerID
	Position []byte
}

// Diff is a tagged union over the per-container diff shapes spec.md §4.10
// lists: text OT delta, map LWW overlay, list/movable-list delta, tree
// diff, and counter addition.
type Diff struct {
	Kind    DiffKind
	Text    []TextDeltaItem
	Map     map[string]*common.LoroValue // nil value means "key deleted"
	List    []ListDeltaItem
	Tree    []TreeDiffItem
	Counter int64
}

// DiffBatch is an ordered set of per-container diffs, applied in Order so
// that CRDT dependencies between sibling containers (a create before its
// children move) are respected.
type DiffBatch struct {
	Order  []common.ContainerID
	Events map[common.ContainerID]Diff
}

// New returns an empty batch ready for accumulation.
func New() DiffBatch {
	return DiffBatch{Events: make(map[common.ContainerID]Diff)}
}

// Set records or replaces the diff for cid, appending to Order on first
// use so insertion order is preserved.
func (b *DiffBatch) Set(cid common.ContainerID, d Diff) {
	if b.Events == nil {
		b.Events = make(map[common.ContainerID]Diff)
	}
	if _, ok := b.Events[cid]; !ok {
		b.Order = append(b.Order, cid)
	}
	b.Events[cid] = d
}

// IsEmpty reports whether the batch carries no container diffs.
func (b DiffBatch) IsEmpty() bool { return len(b.Order) == 0 }

// Clone deep-copies b so callers can mutate the result without aliasing.
func (b DiffBatch) Clone() DiffBatch {
	out := New()
	out.Order = append([]common.ContainerID(nil), b.Order...)
	for cid, d := range b.Events {
		out.Events[cid] = cloneDiff(d)
	}
	return out
}

func cloneDiff(d Diff) Diff {
	out := Diff{Kind: d.Kind, Counter: d.Counter}
	out.Text = append([]TextDeltaItem(nil), d.Text...)
	out.List = append([]ListDeltaItem(nil), d.List...)
	out.Tree = append([]TreeDiffItem(nil), d.Tree...)
	if d.Map != nil {
		out.Map = make(map[string]*common.LoroValue, len(d.Map))
		for k, v := range d.Map {
			if v == nil {
				out.Map[k] = nil
				continue
			}
			cp := *v
			out.Map[k] = &cp
		}
	}
	return out
}
