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

package oplog

import "github.com/loro-dev/loro-go-core/common"

// splitChange implements spec.md §4.5's "Splitting": when a Change's
// encoded size exceeds maxSize, it is sliced into successive synthetic
// Changes, each self-depending on the previous slice's last atom, so the
// original causal span is preserved exactly across the split.
func splitChange(c common.Change, maxSize uint32) []common.Change {
	if uint32(EstimateChangeSize(c)) <= maxSize || len(c.Ops) == 0 {
		return []common.Change{c}
	}

	var out []common.Change
	peer := c.ID.Peer
	counter := c.ID.Counter
	lamport := c.Lamport
	deps := c.Deps
	// Copy so sliceOp's in-place tail substitution never mutates the
	// caller's original Change.
	opsLeft := append([]common.Op(nil), c.Ops...)

	const fixedOverhead = 24 // header bytes per synthetic change, mirrors EstimateChangeSize's base cost

	for len(opsLeft) > 0 {
		budget := int(maxSize) - fixedOverhead
		if budget < 1 {
			budget = 1
		}
		var sliceOps []common.Op
		remaining := budget
		consumed := 0 // index into opsLeft fully or partially consumed by this slice

		for consumed < len(opsLeft) {
			op := opsLeft[consumed]
			size := EstimateOpSize(op)
			if size <= remaining {
				sliceOps = append(sliceOps, op)
				remaining -= size
				consumed++
				continue
			}
			// This op alone doesn't fit in what's left of the budget; try
			// to take a fitting prefix of it.
			fit := maxOpPrefixToFit(op, remaining)
			if fit > 0 {
				if head, tail, ok := sliceOp(op, fit); ok {
					sliceOps = append(sliceOps, head)
					opsLeft[consumed] = tail
					break
				}
			}
			// Can't even partially fit: if this slice is otherwise empty,
			// take a single atom of the op (or the whole op when it cannot
			// be sliced) so the split always progresses.
			if len(sliceOps) == 0 {
				if head, tail, ok := sliceOp(op, 1); ok {
					sliceOps = append(sliceOps, head)
					opsLeft[consumed] = tail
				} else {
					sliceOps = append(sliceOps, op)
					consumed++
				}
			}
			break
		}
		if len(sliceOps) == 0 {
			break
		}

		consumedLen := 0
		for _, op := range sliceOps {
			l := op.Len
			if l <= 0 {
				l = 1
			}
			consumedLen += l
		}

		out = append(out, common.Change{
			ID:        common.ID{Peer: peer, Counter: counter},
			Lamport:   lamport,
			Timestamp: c.Timestamp,
			Deps:      deps,
			Ops:       sliceOps,
		})

		counter += common.Counter(consumedLen)
		lamport += common.Lamport(consumedLen)
		deps = common.Frontiers{{Peer: peer, Counter: counter - 1}}

		opsLeft = opsLeft[consumed:]
	}

	if len(out) > 0 {
		out[len(out)-1].Message = c.Message
	}
	return out
}

// TrimKnownPrefix drops the leading knownEnd-c.ID.Counter atoms of c,
// returning a Change covering only [knownEnd, c.CounterEnd()). It is used
// on import when a decoded Change's span partially overlaps what the DAG
// already knows (spec.md §4.7's import pass, "trim any already-known
// prefix"). The returned Change depends on its own immediately-preceding
// atom, matching the self-dep convention splitChange already establishes.
// c is returned unchanged if knownEnd does not fall strictly inside its span.
func TrimKnownPrefix(c common.Change, knownEnd common.Counter) common.Change {
	if knownEnd <= c.ID.Counter || knownEnd >= c.CounterEnd() {
		return c
	}
	toDrop := int(knownEnd - c.ID.Counter)
	peer := c.ID.Peer
	counter := c.ID.Counter
	lamport := c.Lamport

	var newOps []common.Op
	for _, op := range c.Ops {
		l := op.Len
		if l <= 0 {
			l = 1
		}
		if toDrop >= l {
			toDrop -= l
			counter += common.Counter(l)
			lamport += common.Lamport(l)
			continue
		}
		if toDrop > 0 {
			if _, tail, ok := sliceOp(op, toDrop); ok {
				newOps = append(newOps, tail)
			} else {
				newOps = append(newOps, op)
			}
			counter += common.Counter(toDrop)
			lamport += common.Lamport(toDrop)
			toDrop = 0
			continue
		}
		newOps = append(newOps, op)
	}

	return common.Change{
		ID:        common.ID{Peer: peer, Counter: counter},
		Lamport:   lamport,
		Timestamp: c.Timestamp,
		Deps:      common.Frontiers{{Peer: peer, Counter: counter - 1}},
		Ops:       newOps,
		Message:   c.Message,
	}
}

// sliceOp splits op into a prefix of `atoms` atoms and the remaining
// suffix. Only Insert (string/bytes/list payloads) and Delete are
// sliceable, matching spec.md §4.5's "per-op-kind size predicate".
func sliceOp(op common.Op, atoms int) (head, tail common.Op, ok bool) {
	opLen := op.Len
	if opLen <= 0 {
		opLen = 1
	}
	if atoms <= 0 || atoms >= opLen {
		return op, common.Op{}, false
	}
	switch op.Kind {
	case common.OpInsert:
		switch op.Value.Kind {
		case common.ValueString:
			runes := []rune(op.Value.Str)
			if atoms > len(runes) {
				atoms = len(runes)
			}
			head = op
			head.Len = atoms
			head.Value = common.StringValue(string(runes[:atoms]))
			tail = op
			tail.Counter = op.Counter + common.Counter(atoms)
			tail.Len = opLen - atoms
			tail.Value = common.StringValue(string(runes[atoms:]))
			tail.Prop = op.Prop + int64(atoms)
			return head, tail, true
		case common.ValueBytes:
			head = op
			head.Len = atoms
			head.Value = common.BytesValue(append([]byte(nil), op.Value.Bytes[:atoms]...))
			tail = op
			tail.Counter = op.Counter + common.Counter(atoms)
			tail.Len = opLen - atoms
			tail.Value = common.BytesValue(append([]byte(nil), op.Value.Bytes[atoms:]...))
			tail.Prop = op.Prop + int64(atoms)
			return head, tail, true
		case common.ValueList:
			head = op
			head.Len = atoms
			head.Value = common.ListValue(append([]common.LoroValue(nil), op.Value.List[:atoms]...))
			tail = op
			tail.Counter = op.Counter + common.Counter(atoms)
			tail.Len = opLen - atoms
			tail.Value = common.ListValue(append([]common.LoroValue(nil), op.Value.List[atoms:]...))
			tail.Prop = op.Prop + int64(atoms)
			return head, tail, true
		}
		return op, common.Op{}, false
	case common.OpDelete:
		head = op
		head.Len = atoms
		head.DeleteLen = atoms
		tail = op
		tail.Counter = op.Counter + common.Counter(atoms)
		tail.Len = opLen - atoms
		tail.DeleteLen = opLen - atoms
		tail.DeleteID = common.ID{Peer: op.DeleteID.Peer, Counter: op.DeleteID.Counter + common.Counter(atoms)}
		return head, tail, true
	default:
		return op, common.Op{}, false
	}
}
