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

package kv

import (
	"encoding/binary"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"
	"github.com/loro-dev/loro-go-core/common"
)

// bloomFalsePositiveRate trades a small amount of table size for far fewer
// wasted block decompressions on Get misses (spec.md §4.2's "probabilistic
// membership test").
const bloomFalsePositiveRate = 0.01

// bloomExpectedKeys sizes the filter when the real key count isn't known
// up front; SSTableBuilder grows past this by just accepting a higher false
// positive rate rather than resizing (resizing a Bloom filter requires
// rebuilding it from scratch, which a single-pass builder can't do anyway).
const bloomExpectedKeys = 4096

// bloomBuilder accumulates keys into a Bloom filter alongside the table.
type bloomBuilder struct {
	filter *bloomfilter.Filter
	n      int
}

func newBloomBuilder() *bloomBuilder {
	f, err := bloomfilter.NewOptimal(bloomExpectedKeys, bloomFalsePositiveRate)
	if err != nil {
		panic(err)
	}
	return &bloomBuilder{filter: f}
}

func (b *bloomBuilder) add(key []byte) {
	b.filter.Add(keyHash(key))
	b.n++
}

// encode serializes the filter as length(4) | bytes | checksum(4). An empty
// table (no keys added) still emits a valid empty filter so OpenSSTable's
// decode path never has to special-case "no bloom section".
func (b *bloomBuilder) encode() []byte {
	raw, err := b.filter.MarshalBinary()
	if err != nil {
		// MarshalBinary only fails on a filter built wrong by us.
		panic(err)
	}
	body := appendU32full(nil, uint32(len(raw)))
	body = append(body, raw...)
	sum := checksum32(body)
	return appendU32full(body, sum)
}

// bloomFilter is the read-side wrapper; mayContain is the only operation a
// reader needs.
type bloomFilter struct {
	filter *bloomfilter.Filter
}

func decodeBloomFilter(b []byte) (*bloomFilter, error) {
	if len(b) < 8 {
		return nil, common.NewDecodeError("bloom section truncated (length)", nil)
	}
	n := int(binary.LittleEndian.Uint32(b[:4]))
	b = b[4:]
	if len(b) < n+4 {
		return nil, common.NewDecodeError("bloom section truncated (body)", nil)
	}
	body, sumBytes := b[:n], b[n:n+4]
	wantSum := binary.LittleEndian.Uint32(sumBytes)
	full := append(appendU32full(nil, uint32(n)), body...)
	if checksum32(full) != wantSum {
		return nil, common.ErrDecodeChecksumMismatch
	}
	f := new(bloomfilter.Filter)
	if err := f.UnmarshalBinary(body); err != nil {
		return nil, common.NewDecodeError("bloom filter unmarshal", err)
	}
	return &bloomFilter{filter: f}, nil
}

func (f *bloomFilter) mayContain(key []byte) bool {
	if f == nil || f.filter == nil {
		return true
	}
	return f.filter.Contains(keyHash(key))
}

// keyHash adapts a []byte key to the hash.Hash64 interface bloomfilter/v2
// expects, backed by xxhash (already a dependency for block checksums).
func keyHash(key []byte) hash.Hash64 {
	h := xxhash.New()
	h.Write(key)
	return h
}
