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
	"sort"

	"github.com/loro-dev/loro-go-core/common"
)

// reorderContainers sorts the interned containers root-before-normal, then
// by kind, then by Root.name or (peer, counter) — exactly
// common.ContainerID.Less, which was written with this pass in mind. It
// returns the sorted dictionary and a map from old index to new index so
// callers can rewrite already-emitted container_index references.
func reorderContainers(containers []common.ContainerID) ([]common.ContainerID, map[int]int) {
	type entry struct {
		id  common.ContainerID
		old int
	}
	entries := make([]entry, len(containers))
	for i, c := range containers {
		entries[i] = entry{id: c, old: i}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id.Less(entries[j].id) })

	sorted := make([]common.ContainerID, len(entries))
	remap := make(map[int]int, len(entries))
	for newIdx, e := range entries {
		sorted[newIdx] = e.id
		remap[e.old] = newIdx
	}
	return sorted, remap
}
