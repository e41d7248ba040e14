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

// OpKind discriminates the shape of Op.Value/Prop, following spec.md
// §4.7's "special op encodings" list.
type OpKind uint8

const (
	OpInsert     OpKind = iota // list/text insert; Value holds the inserted run
	OpDelete                   // list/text delete; (id_start, len) carried out of band
	OpMapSet                   // map key set; Key names the entry, Value the new value
	OpMapDelete                // map key delete; Key names the entry
	OpTreeMove                 // tree move/create; Value is a TreeMove payload
	OpStyleStart               // rich-text mark start; Key names the style
	OpStyleEnd                 // rich-text mark end
	OpListMove                 // movable-list move
	OpListSet                  // movable-list set
	OpCounterInc               // counter increment
)

// Op is one atomic (or run-length) operation against a single container.
// An Op with Len > 1 represents a run of Len consecutive atoms starting at
// ID{Peer, Counter} — e.g. inserting a run of Len characters of text.
type Op struct {
	Container ContainerID
	Counter   Counter
	Len       int // number of counters this op consumes; 1 for non-run ops
	Kind      OpKind
	Prop      int64      // interpretation depends on Kind (unicode pos, tree position index, ...)
	Key       string     // OpMapSet/OpMapDelete/OpStyleStart: the map key or style name
	StyleInfo uint8      // OpStyleStart: the mark's info byte (spec.md §3 StyleStart{..., info: u8})
	Value     LoroValue  // payload; Kind-dependent shape
	DeleteID  ID         // OpDelete: id_start of the deleted run
	DeleteLen int        // OpDelete: length of the deleted run
	MoveElem  IdLp       // OpListMove/OpListSet: the element being moved/set
	TreeMove  *TreeMoveOp
}

// TreeMoveOp is the payload of an OpTreeMove: move Target to become a child
// of Parent (nil Parent means "move to root"), ordered at Position.
type TreeMoveOp struct {
	Target   ContainerID
	Parent   *ContainerID
	Position []byte // fractional-index byte string
}

// ID returns the op's starting identity.
func (o Op) ID(peer PeerID) ID { return ID{Peer: peer, Counter: o.Counter} }

// Span returns the counter range this op occupies.
func (o Op) Span(peer PeerID) IdSpan {
	n := o.Len
	if n <= 0 {
		n = 1
	}
	return IdSpan{Peer: peer, CounterStart: o.Counter, CounterEnd: o.Counter + Counter(n)}
}
