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

import (
	"encoding/binary"
	"math"
)

// valueTag is the 1-byte discriminant WriteValue prefixes every encoded
// LoroValue with, mirroring ValueKind but kept as its own type so the wire
// tag space can diverge from the in-memory enum without breaking either.
type valueTag = byte

const (
	tagNull valueTag = iota
	tagBool
	tagInt64
	tagFloat64
	tagString
	tagBytes
	tagList
	tagMap
	tagContainerID
)

// WriteValue appends v's tagged wire encoding to dst and returns the
// extended slice. This is the "ValueWriter" primitive spec.md §4.7
// describes: a 1-byte tag followed by the payload (LEB128 ints, big-endian
// f64, length-prefixed UTF-8 strings, recursively-tagged arrays/maps,
// length-prefixed binary blobs). encoding.arena builds the per-container
// value arena out of repeated calls to this function; oplog.ChangeBlock
// uses it directly for op payloads that don't need arena interning.
func WriteValue(dst []byte, v LoroValue) []byte {
	switch v.Kind {
	case ValueNull:
		return append(dst, tagNull)
	case ValueBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return append(dst, tagBool, b)
	case ValueInt64:
		dst = append(dst, tagInt64)
		return binary.AppendVarint(dst, v.Int64)
	case ValueFloat64:
		dst = append(dst, tagFloat64)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.Float64))
		return append(dst, buf[:]...)
	case ValueString:
		dst = append(dst, tagString)
		dst = binary.AppendUvarint(dst, uint64(len(v.Str)))
		return append(dst, v.Str...)
	case ValueBytes:
		dst = append(dst, tagBytes)
		dst = binary.AppendUvarint(dst, uint64(len(v.Bytes)))
		return append(dst, v.Bytes...)
	case ValueList:
		dst = append(dst, tagList)
		dst = binary.AppendUvarint(dst, uint64(len(v.List)))
		for _, e := range v.List {
			dst = WriteValue(dst, e)
		}
		return dst
	case ValueMap:
		dst = append(dst, tagMap)
		dst = binary.AppendUvarint(dst, uint64(len(v.Map)))
		for k, mv := range v.Map {
			dst = binary.AppendUvarint(dst, uint64(len(k)))
			dst = append(dst, k...)
			dst = WriteValue(dst, mv)
		}
		return dst
	case ValueContainerID:
		dst = append(dst, tagContainerID)
		dst = writeContainerID(dst, *v.Cid)
		return dst
	default:
		return append(dst, tagNull)
	}
}

// ReadValue decodes one WriteValue-encoded value from the front of b,
// returning the value and the unconsumed remainder.
func ReadValue(b []byte) (LoroValue, []byte, error) {
	if len(b) == 0 {
		return LoroValue{}, nil, NewDecodeError("value: empty input", nil)
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNull:
		return Null(), rest, nil
	case tagBool:
		if len(rest) < 1 {
			return LoroValue{}, nil, NewDecodeError("value: truncated bool", nil)
		}
		return BoolValue(rest[0] != 0), rest[1:], nil
	case tagInt64:
		i, n := binary.Varint(rest)
		if n <= 0 {
			return LoroValue{}, nil, NewDecodeError("value: truncated int64", nil)
		}
		return IntValue(i), rest[n:], nil
	case tagFloat64:
		if len(rest) < 8 {
			return LoroValue{}, nil, NewDecodeError("value: truncated float64", nil)
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(rest[:8]))
		return FloatValue(f), rest[8:], nil
	case tagString:
		ln, n := binary.Uvarint(rest)
		if n <= 0 || uint64(len(rest)-n) < ln {
			return LoroValue{}, nil, NewDecodeError("value: truncated string", nil)
		}
		rest = rest[n:]
		return StringValue(string(rest[:ln])), rest[ln:], nil
	case tagBytes:
		ln, n := binary.Uvarint(rest)
		if n <= 0 || uint64(len(rest)-n) < ln {
			return LoroValue{}, nil, NewDecodeError("value: truncated bytes", nil)
		}
		rest = rest[n:]
		buf := make([]byte, ln)
		copy(buf, rest[:ln])
		return BytesValue(buf), rest[ln:], nil
	case tagList:
		count, n := binary.Uvarint(rest)
		if n <= 0 {
			return LoroValue{}, nil, NewDecodeError("value: truncated list count", nil)
		}
		rest = rest[n:]
		out := make([]LoroValue, 0, count)
		for i := uint64(0); i < count; i++ {
			var v LoroValue
			var err error
			v, rest, err = ReadValue(rest)
			if err != nil {
				return LoroValue{}, nil, err
			}
			out = append(out, v)
		}
		return ListValue(out), rest, nil
	case tagMap:
		count, n := binary.Uvarint(rest)
		if n <= 0 {
			return LoroValue{}, nil, NewDecodeError("value: truncated map count", nil)
		}
		rest = rest[n:]
		out := make(map[string]LoroValue, count)
		for i := uint64(0); i < count; i++ {
			kLen, kn := binary.Uvarint(rest)
			if kn <= 0 || uint64(len(rest)-kn) < kLen {
				return LoroValue{}, nil, NewDecodeError("value: truncated map key", nil)
			}
			rest = rest[kn:]
			key := string(rest[:kLen])
			rest = rest[kLen:]
			var v LoroValue
			var err error
			v, rest, err = ReadValue(rest)
			if err != nil {
				return LoroValue{}, nil, err
			}
			out[key] = v
		}
		return MapValue(out), rest, nil
	case tagContainerID:
		cid, n, err := readContainerID(rest)
		if err != nil {
			return LoroValue{}, nil, err
		}
		return ContainerIDValue(cid), rest[n:], nil
	default:
		return LoroValue{}, nil, NewDecodeError("value: unknown tag", nil)
	}
}

func writeContainerID(dst []byte, c ContainerID) []byte {
	flags := byte(0)
	if c.IsRoot {
		flags |= 1
	}
	dst = append(dst, flags, byte(c.Kind), c.UnknownKindTag)
	if c.IsRoot {
		dst = binary.AppendUvarint(dst, uint64(len(c.RootName)))
		dst = append(dst, c.RootName...)
	} else {
		dst = binary.AppendUvarint(dst, uint64(c.Peer))
		dst = binary.AppendVarint(dst, int64(c.Counter))
	}
	return dst
}

func readContainerID(b []byte) (ContainerID, int, error) {
	if len(b) < 3 {
		return ContainerID{}, 0, NewDecodeError("containerID: truncated header", nil)
	}
	flags, kind, unknownTag := b[0], ContainerType(b[1]), b[2]
	rest := b[3:]
	isRoot := flags&1 != 0
	if isRoot {
		ln, n := binary.Uvarint(rest)
		if n <= 0 || uint64(len(rest)-n) < ln {
			return ContainerID{}, 0, NewDecodeError("containerID: truncated root name", nil)
		}
		name := string(rest[n : n+int(ln)])
		consumed := 3 + n + int(ln)
		return ContainerID{IsRoot: true, Kind: kind, RootName: name, UnknownKindTag: unknownTag}, consumed, nil
	}
	peer, n1 := binary.Uvarint(rest)
	if n1 <= 0 {
		return ContainerID{}, 0, NewDecodeError("containerID: truncated peer", nil)
	}
	rest = rest[n1:]
	counter, n2 := binary.Varint(rest)
	if n2 <= 0 {
		return ContainerID{}, 0, NewDecodeError("containerID: truncated counter", nil)
	}
	consumed := 3 + n1 + n2
	return ContainerID{IsRoot: false, Kind: kind, Peer: PeerID(peer), Counter: Counter(counter), UnknownKindTag: unknownTag}, consumed, nil
}
