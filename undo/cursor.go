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

// Package undo implements per-peer undo/redo history (C9): two stacks of
// recorded op spans, each transformable against concurrently imported
// remote diffs so that undoing a local edit stays correct even after
// remote changes landed on top of it.
package undo

import "github.com/loro-dev/loro-go-core/common"
import "github.com/loro-dev/loro-go-core/diffbatch"

// AbsolutePosition is a plain index into a text/list container, paired
// with a side that decides which neighboring element an insert at this
// position binds to.
type AbsolutePosition struct {
	Pos  int
	Side int8
}

// Cursor names a location inside a container without depending on the
// counter of the element it currently points at; undo/redo retargets it
// through container_remap and the pending remote diff before restoring a
// selection.
type Cursor struct {
	Container common.ContainerID
	OriginPos int
	Side      int8
}

// CursorWithPos pairs a Cursor with the AbsolutePosition it was acquired
// at, mirroring the pair stored in UndoItemMeta.Cursors.
type CursorWithPos struct {
	Cursor Cursor
	Pos    AbsolutePosition
}

// retarget walks remap to the cursor's current container, then maps its
// position through remoteDiff's diff for that container (if any). The
// cursor's OriginPos is updated in place to the transformed position.
func retarget(c *CursorWithPos, remoteDiff diffbatch.DiffBatch, remap map[common.ContainerID]common.ContainerID) {
	cid := c.Cursor.Container
	for {
		next, ok := remap[cid]
		if !ok {
			break
		}
		cid = next
	}
	if d, ok := remoteDiff.Events[cid]; ok {
		c.Pos.Pos = diffbatch.TransformCursor(d, c.Pos.Pos, false)
	}
	c.Cursor.Container = cid
	c.Cursor.OriginPos = c.Pos.Pos
}

// retargetAll retargets every cursor recorded in cursors, in place.
func retargetAll(cursors []CursorWithPos, remoteDiff diffbatch.DiffBatch, remap map[common.ContainerID]common.ContainerID) {
	for i := range cursors {
		retarget(&cursors[i], remoteDiff, remap)
	}
}
