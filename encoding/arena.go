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
	"sort"

	"github.com/loro-dev/loro-go-core/common"
)

// arenaBuilder interns peers, containers, map/root-name keys, and tree
// fractional-index positions during encode, handing out dense indices that
// the column sections reference. The arenas are written as peers,
// containers, keys, state_blob, then a "positions" dictionary for tree
// ops. There is no deps arena: deps are written inline with the change
// columns (encodeChangesColumns in wire.go).
type arenaBuilder struct {
	peers   []common.PeerID
	peerIdx map[common.PeerID]int

	containers   []common.ContainerID
	containerIdx map[common.ContainerID]int

	keys   []string
	keyIdx map[string]int

	positions   [][]byte
	positionIdx map[string]int
}

func newArenaBuilder() *arenaBuilder {
	return &arenaBuilder{
		peerIdx:      make(map[common.PeerID]int),
		containerIdx: make(map[common.ContainerID]int),
		keyIdx:       make(map[string]int),
		positionIdx:  make(map[string]int),
	}
}

func (a *arenaBuilder) internPeer(p common.PeerID) int {
	if idx, ok := a.peerIdx[p]; ok {
		return idx
	}
	idx := len(a.peers)
	a.peers = append(a.peers, p)
	a.peerIdx[p] = idx
	return idx
}

func (a *arenaBuilder) internContainer(c common.ContainerID) int {
	if idx, ok := a.containerIdx[c]; ok {
		return idx
	}
	idx := len(a.containers)
	a.containers = append(a.containers, c)
	a.containerIdx[c] = idx
	if c.IsRoot {
		// Root.name shares the generic "keys" dictionary with LoroValue map
		// keys (ValueWriter.WriteValue's ValueMap case), per the container
		// record's "key_idx_or_counter" field in spec.md §4.7.
		a.internKey(c.RootName)
	} else {
		a.internPeer(c.Peer)
	}
	return idx
}

func (a *arenaBuilder) internKey(k string) int {
	if idx, ok := a.keyIdx[k]; ok {
		return idx
	}
	idx := len(a.keys)
	a.keys = append(a.keys, k)
	a.keyIdx[k] = idx
	return idx
}

func (a *arenaBuilder) internPosition(p []byte) int {
	s := string(p)
	if idx, ok := a.positionIdx[s]; ok {
		return idx
	}
	idx := len(a.positions)
	a.positions = append(a.positions, p)
	a.positionIdx[s] = idx
	return idx
}

// setContainers replaces the container dictionary wholesale with an
// already-ordered slice (used after reorderContainers) and rebuilds the
// index map to match.
func (a *arenaBuilder) setContainers(ordered []common.ContainerID) {
	a.containers = ordered
	a.containerIdx = make(map[common.ContainerID]int, len(ordered))
	for i, c := range ordered {
		a.containerIdx[c] = i
	}
}

func (a *arenaBuilder) sortedPositions() ([][]byte, map[string]int) {
	sorted := append([][]byte(nil), a.positions...)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i]) < string(sorted[j])
	})
	idx := make(map[string]int, len(sorted))
	for i, p := range sorted {
		idx[string(p)] = i
	}
	return sorted, idx
}

// encodeArenas writes five dictionaries in order: peers, containers,
// keys, state_blob, positions. Deps have no section here; they are
// written inline by encodeChangesColumns in wire.go.
func encodeArenas(peers []common.PeerID, containers []common.ContainerID, keys []string, stateBlob []byte, positions [][]byte) []byte {
	var out []byte

	out = binary.AppendUvarint(out, uint64(len(peers)))
	for _, p := range peers {
		out = binary.AppendUvarint(out, uint64(p))
	}

	keyIdx := make(map[string]int, len(keys))
	for i, k := range keys {
		keyIdx[k] = i
	}
	out = binary.AppendUvarint(out, uint64(len(containers)))
	for _, c := range containers {
		out = encodeContainerID(out, c, keyIdx)
	}

	out = binary.AppendUvarint(out, uint64(len(keys)))
	for _, k := range keys {
		out = appendLenPrefixed(out, []byte(k))
	}

	out = appendLenPrefixed(out, stateBlob)

	out = binary.AppendUvarint(out, uint64(len(positions)))
	for _, p := range positions {
		out = appendLenPrefixed(out, p)
	}

	return out
}

type decodedArenas struct {
	peers      []common.PeerID
	containers []common.ContainerID
	keys       []string
	stateBlob  []byte
	positions  [][]byte
}

func decodeArenas(b []byte) (decodedArenas, []byte, error) {
	var d decodedArenas

	nPeers, rest, err := readUvarint(b)
	if err != nil {
		return d, nil, err
	}
	d.peers = make([]common.PeerID, nPeers)
	for i := range d.peers {
		v, r, err := readUvarint(rest)
		if err != nil {
			return d, nil, err
		}
		rest = r
		d.peers[i] = common.PeerID(v)
	}

	nContainers, r, err := readUvarint(rest)
	if err != nil {
		return d, nil, err
	}
	rest = r
	rawContainers := make([]rawContainerEntry, nContainers)
	for i := range rawContainers {
		rc, r, err := decodeContainerID(rest)
		if err != nil {
			return d, nil, err
		}
		rest = r
		rawContainers[i] = rc
	}

	nKeys, r, err := readUvarint(rest)
	if err != nil {
		return d, nil, err
	}
	rest = r
	d.keys = make([]string, nKeys)
	for i := range d.keys {
		kb, r, err := readLenPrefixed(rest)
		if err != nil {
			return d, nil, err
		}
		rest = r
		d.keys[i] = string(kb)
	}

	blob, r, err := readLenPrefixed(rest)
	if err != nil {
		return d, nil, err
	}
	rest = r
	d.stateBlob = blob

	nPos, r, err := readUvarint(rest)
	if err != nil {
		return d, nil, err
	}
	rest = r
	d.positions = make([][]byte, nPos)
	for i := range d.positions {
		p, r, err := readLenPrefixed(rest)
		if err != nil {
			return d, nil, err
		}
		rest = r
		d.positions[i] = p
	}

	d.containers = make([]common.ContainerID, len(rawContainers))
	for i, rc := range rawContainers {
		if rc.isRoot {
			if rc.keyIdx >= len(d.keys) {
				return d, nil, common.NewDecodeError("container root key index out of range", nil)
			}
			cid := common.RootContainerID(d.keys[rc.keyIdx], rc.kind)
			cid.UnknownKindTag = rc.unknownTag
			d.containers[i] = cid
			continue
		}
		cid := common.NormalContainerID(rc.peer, rc.counter, rc.kind)
		cid.UnknownKindTag = rc.unknownTag
		d.containers[i] = cid
	}

	return d, rest, nil
}

// encodeContainerID writes a flags byte (bit 0 = is_root), the kind byte,
// a tag byte for ContainerUnknown only, and then: for a Root container, a
// uvarint index into the "keys" dictionary (written right after
// containers); for a Normal container, the raw peer value (uvarint) plus
// the creating counter (varint).
func encodeContainerID(dst []byte, c common.ContainerID, keyIdx map[string]int) []byte {
	var flags byte
	if c.IsRoot {
		flags |= 1
	}
	dst = append(dst, flags, byte(c.Kind))
	if c.Kind == common.ContainerUnknown {
		dst = append(dst, c.UnknownKindTag)
	}
	if c.IsRoot {
		dst = binary.AppendUvarint(dst, uint64(keyIdx[c.RootName]))
	} else {
		dst = binary.AppendUvarint(dst, uint64(c.Peer))
		dst = binary.AppendVarint(dst, int64(c.Counter))
	}
	return dst
}

// rawContainerEntry holds a container record before the keys dictionary
// (decoded afterward, per spec's arena order) is available to resolve a
// Root container's name.
type rawContainerEntry struct {
	isRoot     bool
	kind       common.ContainerType
	unknownTag byte
	keyIdx     int
	peer       common.PeerID
	counter    common.Counter
}

func decodeContainerID(b []byte) (rawContainerEntry, []byte, error) {
	if len(b) < 2 {
		return rawContainerEntry{}, nil, common.ErrTruncated
	}
	flags, kind := b[0], common.ContainerType(b[1])
	rest := b[2:]
	var unknownTag byte
	if kind == common.ContainerUnknown {
		if len(rest) < 1 {
			return rawContainerEntry{}, nil, common.ErrTruncated
		}
		unknownTag = rest[0]
		rest = rest[1:]
	}
	if flags&1 != 0 {
		idx, r, err := readUvarint(rest)
		if err != nil {
			return rawContainerEntry{}, nil, err
		}
		return rawContainerEntry{isRoot: true, kind: kind, unknownTag: unknownTag, keyIdx: int(idx)}, r, nil
	}
	peer, r, err := readUvarint(rest)
	if err != nil {
		return rawContainerEntry{}, nil, err
	}
	ctr, r, err := readVarint(r)
	if err != nil {
		return rawContainerEntry{}, nil, err
	}
	return rawContainerEntry{kind: kind, unknownTag: unknownTag, peer: common.PeerID(peer), counter: common.Counter(ctr)}, r, nil
}
