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

// Package encoding implements the columnar wire/snapshot codec: per-op and
// per-change column sets, arena dictionaries, a container reordering pass,
// and the parallel JSON update schema. Grounded on spec.md §4.7-§4.8 and
// the delta/varint column style already used by oplog's ChangeBlock header.
package encoding

import (
	"encoding/binary"

	"github.com/loro-dev/loro-go-core/common"
)

func zigzag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }

func unzigzag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

// appendDeltaVarints encodes vals as a first-value-plus-deltas column: the
// "deltaRLE" compression spec.md §4.7 names for counter/lamport/timestamp
// columns. Deltas are zigzag-varint so negative deltas stay compact.
func appendDeltaVarints(dst []byte, vals []int64) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(vals)))
	var prev int64
	for i, v := range vals {
		if i == 0 {
			dst = binary.AppendUvarint(dst, zigzag(v))
		} else {
			dst = binary.AppendUvarint(dst, zigzag(v-prev))
		}
		prev = v
	}
	return dst
}

// readDeltaVarints is the inverse of appendDeltaVarints.
func readDeltaVarints(b []byte) ([]int64, []byte, error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]int64, n)
	var prev int64
	for i := range out {
		d, r, err := readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = r
		if i == 0 {
			prev = unzigzag(d)
		} else {
			prev += unzigzag(d)
		}
		out[i] = prev
	}
	return out, rest, nil
}

// appendUvarintColumn encodes a plain (non-delta) uvarint column, used for
// counts and indices that don't trend monotonically.
func appendUvarintColumn(dst []byte, vals []uint64) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(vals)))
	for _, v := range vals {
		dst = binary.AppendUvarint(dst, v)
	}
	return dst
}

func readUvarintColumn(b []byte) ([]uint64, []byte, error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		v, r, err := readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = r
		out[i] = v
	}
	return out, rest, nil
}

// appendRLEColumn encodes vals as (value, run_length) pairs, the "RLE"
// compression spec.md §4.7 names for peer_idx: a column of repeated small
// indices compresses to near-nothing when one peer authors many ops in a
// row.
func appendRLEColumn(dst []byte, vals []uint64) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(vals)))
	i := 0
	for i < len(vals) {
		j := i + 1
		for j < len(vals) && vals[j] == vals[i] {
			j++
		}
		dst = binary.AppendUvarint(dst, vals[i])
		dst = binary.AppendUvarint(dst, uint64(j-i))
		i = j
	}
	return dst
}

func readRLEColumn(b []byte) ([]uint64, []byte, error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]uint64, 0, n)
	for uint64(len(out)) < n {
		v, r, err := readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		run, r2, err := readUvarint(r)
		if err != nil {
			return nil, nil, err
		}
		rest = r2
		for k := uint64(0); k < run; k++ {
			out = append(out, v)
		}
	}
	return out, rest, nil
}

// appendBoolRLEColumn encodes bools as (bool, run_length) pairs.
func appendBoolRLEColumn(dst []byte, vals []bool) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(vals)))
	i := 0
	for i < len(vals) {
		j := i + 1
		for j < len(vals) && vals[j] == vals[i] {
			j++
		}
		var b byte
		if vals[i] {
			b = 1
		}
		dst = append(dst, b)
		dst = binary.AppendUvarint(dst, uint64(j-i))
		i = j
	}
	return dst
}

func readBoolRLEColumn(b []byte) ([]bool, []byte, error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]bool, 0, n)
	for uint64(len(out)) < n {
		if len(rest) < 1 {
			return nil, nil, common.ErrTruncated
		}
		v := rest[0] != 0
		rest = rest[1:]
		run, r, err := readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = r
		for k := uint64(0); k < run; k++ {
			out = append(out, v)
		}
	}
	return out, rest, nil
}

func readUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, common.ErrTruncated
	}
	return v, b[n:], nil
}

func readVarint(b []byte) (int64, []byte, error) {
	v, n := binary.Varint(b)
	if n <= 0 {
		return 0, nil, common.ErrTruncated
	}
	return v, b[n:], nil
}

func appendLenPrefixed(dst []byte, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func readLenPrefixed(b []byte) ([]byte, []byte, error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, common.ErrTruncated
	}
	return rest[:n], rest[n:], nil
}
