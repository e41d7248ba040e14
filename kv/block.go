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

	"github.com/loro-dev/loro-go-core/common"
)

// DefaultBlockBudget is the soft maximum size (bytes, pre-compression) of
// one SST block before the builder starts a new one. See SPEC_FULL.md D2.
const DefaultBlockBudget = 4 * 1024

// blockEntry is one decoded (key, value) pair. Blocks hold no tombstones
// (removed keys are left out of an export); nil Value never occurs
// once decoded (decode always allocates a zero-length slice for "no
// value").
type blockEntry struct {
	key   []byte
	value []byte
}

// Block is the decoded, in-memory form of one SST block: a sorted run of
// entries, optionally in "large" form (exactly one oversized pair).
type Block struct {
	isLarge bool
	entries []blockEntry
}

func (b *Block) Len() int { return len(b.entries) }

// FirstKey returns the block's first key, or nil if the block is empty
// (which only happens for a degenerate zero-entry block).
func (b *Block) FirstKey() []byte {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[0].key
}

// LastKey returns the block's last key. SSTable block-meta omits this for
// large blocks (spec.md §4.2's "optional last key"), but Block itself always
// knows it since it holds the decoded entries.
func (b *Block) LastKey() []byte {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[len(b.entries)-1].key
}

// blockBuilder accumulates sorted (key, value) pairs into one block,
// refusing to add once the encoded size would exceed the budget — except
// for the first pair, which is always accepted (becoming a "large" block
// if it alone exceeds budget).
type blockBuilder struct {
	budget     int
	entries    []blockEntry
	firstKey   []byte
	estSize    int // running estimate of the encoded (pre-compression) size
	forceLarge bool
}

func newBlockBuilder(budget int) *blockBuilder {
	if budget <= 0 {
		budget = DefaultBlockBudget
	}
	return &blockBuilder{budget: budget}
}

func (b *blockBuilder) isEmpty() bool { return len(b.entries) == 0 }

// add attempts to append (key, value). It returns false when doing so would
// overflow the block budget; the caller must finalize the current block and
// start a new one (retrying the same pair there). The first pair added to
// an empty builder is always accepted.
func (b *blockBuilder) add(key, value []byte) bool {
	if len(b.entries) == 0 {
		b.firstKey = append([]byte(nil), key...)
		b.entries = append(b.entries, blockEntry{key: clone(key), value: clone(value)})
		b.estSize = b.entrySize(key, value) + 3 // +3 for trailing count/offset overhead floor
		if b.estSize > b.budget {
			b.forceLarge = true
		}
		return true
	}
	add := b.entrySize(key, value) + 2 // +2 for this entry's offset slot
	if b.estSize+add > b.budget {
		return false
	}
	b.estSize += add
	b.entries = append(b.entries, blockEntry{key: clone(key), value: clone(value)})
	return true
}

func (b *blockBuilder) entrySize(key, value []byte) int {
	prefixLen := commonPrefixLen(b.firstKey, key)
	suffixLen := len(key) - prefixLen
	return 1 + 2 + suffixLen + 2 + len(value)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	if i > 255 {
		i = 255 // prefix length column is a single byte
	}
	return i
}

// build finalizes the builder into on-disk bytes (pre-compression,
// checksum already appended) and the decoded Block it represents.
func (b *blockBuilder) build() (encoded []byte, decoded *Block, isLarge bool) {
	if b.forceLarge && len(b.entries) == 1 {
		return encodeLargeBlock(b.entries[0]), &Block{isLarge: true, entries: b.entries}, true
	}
	return encodeNormalBlock(b.entries, b.firstKey), &Block{isLarge: false, entries: b.entries}, false
}

func encodeNormalBlock(entries []blockEntry, firstKey []byte) []byte {
	var body []byte
	offsets := make([]uint16, 0, len(entries))
	for _, e := range entries {
		offsets = append(offsets, uint16(len(body)))
		prefixLen := commonPrefixLen(firstKey, e.key)
		suffix := e.key[prefixLen:]
		body = append(body, byte(prefixLen))
		body = appendU16(body, uint16(len(suffix)))
		body = append(body, suffix...)
		body = appendU16(body, uint16(len(e.value)))
		body = append(body, e.value...)
	}
	for _, off := range offsets {
		body = appendU16(body, off)
	}
	body = appendU16(body, uint16(len(entries)))
	sum := checksum32(body)
	body = appendU32(body, sum)
	return body
}

func encodeLargeBlock(e blockEntry) []byte {
	var body []byte
	body = appendU16(body, uint16(len(e.key)))
	body = append(body, e.key...)
	body = appendU32(body, uint32(len(e.value)))
	body = append(body, e.value...)
	sum := checksum32(body)
	body = appendU32(body, sum)
	return body
}

// decodeBlock parses on-disk block bytes (post-decompression), verifying
// the checksum, and returns the decoded Block.
func decodeBlock(raw []byte, isLarge bool) (*Block, error) {
	if len(raw) < 4 {
		return nil, common.NewDecodeError("block too short for checksum", nil)
	}
	body, wantSum := raw[:len(raw)-4], binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if checksum32(body) != wantSum {
		return nil, common.ErrDecodeChecksumMismatch
	}
	if isLarge {
		return decodeLargeBody(body)
	}
	return decodeNormalBody(body)
}

func decodeLargeBody(body []byte) (*Block, error) {
	if len(body) < 2 {
		return nil, common.NewDecodeError("large block truncated (key len)", nil)
	}
	keyLen := int(binary.LittleEndian.Uint16(body[:2]))
	body = body[2:]
	if len(body) < keyLen+4 {
		return nil, common.NewDecodeError("large block truncated (key/value len)", nil)
	}
	key := body[:keyLen]
	body = body[keyLen:]
	valueLen := int(binary.LittleEndian.Uint32(body[:4]))
	body = body[4:]
	if len(body) < valueLen {
		return nil, common.NewDecodeError("large block truncated (value)", nil)
	}
	value := body[:valueLen]
	return &Block{isLarge: true, entries: []blockEntry{{key: clone(key), value: clone(value)}}}, nil
}

func decodeNormalBody(body []byte) (*Block, error) {
	if len(body) < 2 {
		return nil, common.NewDecodeError("normal block truncated (count)", nil)
	}
	n := int(binary.LittleEndian.Uint16(body[len(body)-2:]))
	body = body[:len(body)-2]
	if n < 0 || len(body) < n*2 {
		return nil, common.NewDecodeError("normal block truncated (offsets)", nil)
	}
	offsetsStart := len(body) - n*2
	entryBytes := body[:offsetsStart]
	offsetBytes := body[offsetsStart:]

	entries := make([]blockEntry, 0, n)
	var firstKey []byte
	for i := 0; i < n; i++ {
		off := int(binary.LittleEndian.Uint16(offsetBytes[i*2 : i*2+2]))
		if off < 0 || off >= len(entryBytes) {
			return nil, common.NewDecodeError("normal block: offset out of range", nil)
		}
		cursor := entryBytes[off:]
		if len(cursor) < 1 {
			return nil, common.NewDecodeError("normal block: entry truncated (prefix len)", nil)
		}
		prefixLen := int(cursor[0])
		cursor = cursor[1:]
		if len(cursor) < 2 {
			return nil, common.NewDecodeError("normal block: entry truncated (suffix len)", nil)
		}
		suffixLen := int(binary.LittleEndian.Uint16(cursor[:2]))
		cursor = cursor[2:]
		if len(cursor) < suffixLen {
			return nil, common.NewDecodeError("normal block: entry truncated (suffix)", nil)
		}
		suffix := cursor[:suffixLen]
		cursor = cursor[suffixLen:]
		if len(cursor) < 2 {
			return nil, common.NewDecodeError("normal block: entry truncated (value len)", nil)
		}
		valueLen := int(binary.LittleEndian.Uint16(cursor[:2]))
		cursor = cursor[2:]
		if len(cursor) < valueLen {
			return nil, common.NewDecodeError("normal block: entry truncated (value)", nil)
		}
		value := cursor[:valueLen]

		if i == 0 {
			firstKey = suffix // prefixLen must be 0 for the first key
		}
		if prefixLen > len(firstKey) {
			return nil, common.NewDecodeError("normal block: prefix longer than first key", nil)
		}
		key := make([]byte, 0, prefixLen+suffixLen)
		key = append(key, firstKey[:prefixLen]...)
		key = append(key, suffix...)
		entries = append(entries, blockEntry{key: key, value: clone(value)})
	}
	return &Block{isLarge: false, entries: entries}, nil
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
