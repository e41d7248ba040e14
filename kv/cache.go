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
	"unsafe"

	"github.com/elastic/go-freelru"
)

// blockCacheKey identifies one block within one open table. Tables are
// long-lived (mmap'd or owned by the store for their whole lifetime), so
// keying by pointer identity is safe: a *SSTable is never reused for a
// different underlying blob.
type blockCacheKey struct {
	table *SSTable
	idx   int
}

func hashBlockCacheKey(k blockCacheKey) uint32 {
	// FNV-1a over the pointer bits and index; cache keys are never
	// persisted or compared across processes so this need not be stable.
	h := uint32(2166136261)
	p := uint64(uintptr(unsafe.Pointer(k.table)))
	for i := 0; i < 8; i++ {
		h ^= uint32(p & 0xFF)
		h *= 16777619
		p >>= 8
	}
	h ^= uint32(k.idx)
	h *= 16777619
	return h
}

// blockCache is an LRU cache of decoded blocks shared by however many
// SSTables pull from it. Its capacity is an entry count derived from the
// byte budget (SPEC_FULL.md D2's 1 MiB default); block sizes are not
// tracked.
type blockCache struct {
	budget int
	used   int
	lru    *freelru.LRU[blockCacheKey, *Block]
}

// newBlockCache builds a cache sized by an approximate byte budget, assuming
// DefaultBlockBudget-sized decoded blocks; freelru itself caps by entry
// count, so the budget is converted to a capacity estimate.
func newBlockCache(byteBudget int) *blockCache {
	if byteBudget <= 0 {
		byteBudget = 1 << 20
	}
	capacity := uint32(byteBudget / DefaultBlockBudget)
	if capacity < 16 {
		capacity = 16
	}
	lru, err := freelru.New[blockCacheKey, *Block](capacity, hashBlockCacheKey)
	if err != nil {
		// Only invalid (zero) capacity can fail construction; we just
		// guarded against that above.
		panic(err)
	}
	return &blockCache{budget: byteBudget, lru: lru}
}

func (c *blockCache) get(key blockCacheKey) (*Block, bool) {
	return c.lru.Get(key)
}

func (c *blockCache) put(key blockCacheKey, blk *Block) {
	c.lru.Add(key, blk)
}
