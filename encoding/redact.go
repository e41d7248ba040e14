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

package encoding

import (
	"strings"
	"unicode/utf8"

	"github.com/loro-dev/loro-go-core/common"
)

// RedactRange names a version range [Start, End) per peer: an op at
// ID(peer, counter) is redacted when Start[peer] <= counter < End[peer].
type RedactRange struct {
	Start common.VersionVector
	End   common.VersionVector
}

func (r RedactRange) contains(id common.ID) bool {
	if int64(id.Counter) < int64(r.Start[id.Peer]) {
		return false
	}
	return int64(id.Counter) < int64(r.End[id.Peer])
}

// Redact replaces op payloads inside r with neutral values, per spec.md
// §4.8: numbers become zero, text becomes the Unicode replacement
// character repeated to the same length, and anything else collapses to
// Null. Positions, deletions, and container-creation ops are left
// untouched so the causal structure — deps, lamports, frontiers — is
// byte-identical before and after.
func Redact(b Batch, r RedactRange) Batch {
	out := Batch{StartVV: b.StartVV, StartFrontiers: b.StartFrontiers, StateBlob: b.StateBlob}
	out.Changes = make([]common.Change, len(b.Changes))
	for i, c := range b.Changes {
		out.Changes[i] = redactChange(c, r)
	}
	return out
}

func redactChange(c common.Change, r RedactRange) common.Change {
	out := c
	out.Ops = make([]common.Op, len(c.Ops))
	counter := c.ID.Counter
	for i, op := range c.Ops {
		id := common.ID{Peer: c.ID.Peer, Counter: counter}
		n := op.Len
		if n <= 0 {
			n = 1
		}
		counter += common.Counter(n)
		if r.contains(id) {
			out.Ops[i] = redactOp(op)
		} else {
			out.Ops[i] = op
		}
	}
	return out
}

// redactOp neutralizes value-carrying ops; structural ops (delete,
// tree-move, map-delete, style-end) pass through unchanged since removing
// their target identity would break merge with non-redacted replicas.
func redactOp(op common.Op) common.Op {
	switch op.Kind {
	case common.OpInsert:
		if op.Container.Kind == common.ContainerText && op.Value.Kind == common.ValueString {
			op.Value = common.StringValue(strings.Repeat("�", utf8.RuneCountInString(op.Value.Str)))
		} else {
			op.Value = op.Value.Redacted()
		}
		return op
	case common.OpMapSet:
		op.Value = op.Value.Redacted()
		return op
	case common.OpStyleStart:
		op.Value = op.Value.Redacted()
		return op
	case common.OpListSet:
		op.Value = op.Value.Redacted()
		return op
	case common.OpCounterInc:
		op.Value = op.Value.Redacted()
		return op
	default:
		return op
	}
}
