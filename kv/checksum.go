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

// Package kv implements the SST block codec (C1), the immutable SSTable
// (C2), and the ordered key-value store that overlays a mutable map on top
// of it (C3).
package kv

import "github.com/cespare/xxhash/v2"

// checksum32 is the single checksum function used consistently across every
// block and table in this package, per spec.md §3 ("xxh32 or crc32,
// consistent within a file"). We standardize on xxhash (a direct erigon-lib
// dependency) truncated to its low 32 bits rather than crc32, since xxhash
// is both faster and already in the dependency graph.
func checksum32(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}
