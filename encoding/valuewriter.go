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
	"encoding/binary"
	"math"

	"github.com/loro-dev/loro-go-core/common"
)

// ValueWriter appends LoroValues to a single heterogeneous raw_values
// buffer: a 1-byte ValueKind tag followed by a kind-specific payload.
// Containers reference the arena's interned index rather than embedding a
// full ContainerID.
type ValueWriter struct {
	arena *arenaBuilder
	buf   []byte
}

func newValueWriter(arena *arenaBuilder) *ValueWriter {
	return &ValueWriter{arena: arena}
}

func (w *ValueWriter) Bytes() []byte { return w.buf }

func (w *ValueWriter) WriteValue(v common.LoroValue) {
	w.buf = append(w.buf, byte(v.Kind))
	switch v.Kind {
	case common.ValueNull:
	case common.ValueBool:
		var b byte
		if v.Bool {
			b = 1
		}
		w.buf = append(w.buf, b)
	case common.ValueInt64:
		w.buf = binary.AppendVarint(w.buf, v.Int64)
	case common.ValueFloat64:
		var fb [8]byte
		binary.BigEndian.PutUint64(fb[:], math.Float64bits(v.Float64))
		w.buf = append(w.buf, fb[:]...)
	case common.ValueString:
		w.buf = appendLenPrefixed(w.buf, []byte(v.Str))
	case common.ValueBytes:
		w.buf = appendLenPrefixed(w.buf, v.Bytes)
	case common.ValueList:
		w.buf = binary.AppendUvarint(w.buf, uint64(len(v.List)))
		for _, e := range v.List {
			w.WriteValue(e)
		}
	case common.ValueMap:
		w.buf = binary.AppendUvarint(w.buf, uint64(len(v.Map)))
		for k, mv := range v.Map {
			ki := w.arena.internKey(k)
			w.buf = binary.AppendUvarint(w.buf, uint64(ki))
			w.WriteValue(mv)
		}
	case common.ValueContainerID:
		ci := w.arena.internContainer(*v.Cid)
		w.buf = binary.AppendUvarint(w.buf, uint64(ci))
	}
}

// WriteRaw appends a length-prefixed opaque blob outside the tagged value
// scheme, used for text insert payloads (spec.md §4.7: "value = raw UTF-8
// bytes") which skip the tag byte since their kind is implied by the op.
func (w *ValueWriter) WriteRaw(b []byte) {
	w.buf = appendLenPrefixed(w.buf, b)
}

// WriteUvarint, WriteByte and WriteContainerRef let callers interleave
// untagged, op-kind-specific fields (tree-move targets, movable-list elem
// refs, style info bytes) into the same raw_values stream as tagged
// values, in the exact per-op order encode visits them — spec.md §4.7's
// "special op encodings" describe payload shapes that mix a handful of
// plain fields with one nested LoroValue, rather than a second arena.
func (w *ValueWriter) WriteUvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *ValueWriter) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteContainerRef interns c and writes its arena index.
func (w *ValueWriter) WriteContainerRef(c common.ContainerID) {
	idx := w.arena.internContainer(c)
	w.buf = binary.AppendUvarint(w.buf, uint64(idx))
}
