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

package common

// Change is a contiguous, causally-atomic run of Ops from a single peer: a
// local edit, or the unit the wire codec (encoding) and ChangeStore
// (oplog) both move in and out of storage.
type Change struct {
	ID        ID
	Lamport   Lamport
	Timestamp int64 // unix seconds
	Deps      Frontiers
	Ops       []Op
	Message   string // optional; interned on the wire via the msg arena
}

// Len returns the number of atomic counters this change spans, i.e. the sum
// of its ops' lengths.
func (c Change) Len() int {
	n := 0
	for _, op := range c.Ops {
		l := op.Len
		if l <= 0 {
			l = 1
		}
		n += l
	}
	return n
}

// CounterEnd returns the exclusive upper bound of this change's counter
// range: ID.Counter + Len().
func (c Change) CounterEnd() Counter {
	return c.ID.Counter + Counter(c.Len())
}

// Span returns the change's occupied counter range as an IdSpan.
func (c Change) Span() IdSpan {
	return IdSpan{Peer: c.ID.Peer, CounterStart: c.ID.Counter, CounterEnd: c.CounterEnd()}
}

// LastID returns the ID of the last atom in this change.
func (c Change) LastID() ID {
	return ID{Peer: c.ID.Peer, Counter: c.CounterEnd() - 1}
}

// DepsOnSelf reports whether one of this change's deps is the immediately
// preceding atom from the same peer — the condition ChangeStore's RLE
// merge and the DAG's same-peer run-merge both key off of.
func (c Change) DepsOnSelf() bool {
	if c.ID.Counter == 0 {
		return false // no predecessor to depend on
	}
	want := ID{Peer: c.ID.Peer, Counter: c.ID.Counter - 1}
	return c.Deps.Contains(want)
}
