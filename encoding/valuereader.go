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

// ValueReader is the inverse of ValueWriter: it recovers typed LoroValues
// from the raw_values buffer, resolving container/key references against
// the decoded arenas.
type ValueReader struct {
	arenas decodedArenas
	buf    []byte
}

func newValueReader(arenas decodedArenas, buf []byte) *ValueReader {
	return &ValueReader{arenas: arenas, buf: buf}
}

func (r *ValueReader) ReadValue() (common.LoroValue, error) {
	if len(r.buf) < 1 {
		return common.LoroValue{}, common.ErrTruncated
	}
	kind := common.ValueKind(r.buf[0])
	r.buf = r.buf[1:]
	switch kind {
	case common.ValueNull:
		return common.Null(), nil
	case common.ValueBool:
		if len(r.buf) < 1 {
			return common.LoroValue{}, common.ErrTruncated
		}
		b := r.buf[0] != 0
		r.buf = r.buf[1:]
		return common.BoolValue(b), nil
	case common.ValueInt64:
		v, rest, err := readVarint(r.buf)
		if err != nil {
			return common.LoroValue{}, err
		}
		r.buf = rest
		return common.IntValue(v), nil
	case common.ValueFloat64:
		if len(r.buf) < 8 {
			return common.LoroValue{}, common.ErrTruncated
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(r.buf[:8]))
		r.buf = r.buf[8:]
		return common.FloatValue(f), nil
	case common.ValueString:
		s, rest, err := readLenPrefixed(r.buf)
		if err != nil {
			return common.LoroValue{}, err
		}
		r.buf = rest
		return common.StringValue(string(s)), nil
	case common.ValueBytes:
		b, rest, err := readLenPrefixed(r.buf)
		if err != nil {
			return common.LoroValue{}, err
		}
		r.buf = rest
		return common.BytesValue(append([]byte(nil), b...)), nil
	case common.ValueList:
		n, rest, err := readUvarint(r.buf)
		if err != nil {
			return common.LoroValue{}, err
		}
		r.buf = rest
		out := make([]common.LoroValue, n)
		for i := range out {
			v, err := r.ReadValue()
			if err != nil {
				return common.LoroValue{}, err
			}
			out[i] = v
		}
		return common.ListValue(out), nil
	case common.ValueMap:
		n, rest, err := readUvarint(r.buf)
		if err != nil {
			return common.LoroValue{}, err
		}
		r.buf = rest
		out := make(map[string]common.LoroValue, n)
		for i := uint64(0); i < n; i++ {
			ki, rest, err := readUvarint(r.buf)
			if err != nil {
				return common.LoroValue{}, err
			}
			r.buf = rest
			if int(ki) >= len(r.arenas.keys) {
				return common.LoroValue{}, common.NewDecodeError("map key index out of range", nil)
			}
			v, err := r.ReadValue()
			if err != nil {
				return common.LoroValue{}, err
			}
			out[r.arenas.keys[ki]] = v
		}
		return common.MapValue(out), nil
	case common.ValueContainerID:
		ci, rest, err := readUvarint(r.buf)
		if err != nil {
			return common.LoroValue{}, err
		}
		r.buf = rest
		if int(ci) >= len(r.arenas.containers) {
			return common.LoroValue{}, common.NewDecodeError("container index out of range", nil)
		}
		return common.ContainerIDValue(r.arenas.containers[ci]), nil
	default:
		return common.LoroValue{}, common.NewDecodeError("unknown value kind tag", nil)
	}
}

// ReadRaw is the inverse of ValueWriter.WriteRaw.
func (r *ValueReader) ReadRaw() ([]byte, error) {
	b, rest, err := readLenPrefixed(r.buf)
	if err != nil {
		return nil, err
	}
	r.buf = rest
	return append([]byte(nil), b...), nil
}

// ReadUvarint, ReadByte and ReadContainerRef are the inverses of the
// matching ValueWriter methods.
func (r *ValueReader) ReadUvarint() (uint64, error) {
	v, rest, err := readUvarint(r.buf)
	if err != nil {
		return 0, err
	}
	r.buf = rest
	return v, nil
}

func (r *ValueReader) ReadByte() (byte, error) {
	if len(r.buf) < 1 {
		return 0, common.ErrTruncated
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b, nil
}

func (r *ValueReader) ReadContainerRef() (common.ContainerID, error) {
	idx, err := r.ReadUvarint()
	if err != nil {
		return common.ContainerID{}, err
	}
	if int(idx) >= len(r.arenas.containers) {
		return common.ContainerID{}, common.NewDecodeError("container index out of range", nil)
	}
	return r.arenas.containers[idx], nil
}
