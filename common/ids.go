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

// Package common holds the identifiers and value types shared by every
// other package in this module: peer/counter/lamport identities, frontiers,
// version vectors, container identity, and the tagged LoroValue union.
package common

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// PeerID identifies a replica. Replicas never coordinate on assignment;
// collisions are the caller's problem to avoid (e.g. by picking a random
// uint64 at process start).
type PeerID uint64

func (p PeerID) String() string { return fmt.Sprintf("%d", uint64(p)) }

// Counter is a peer-local, dense, non-negative, monotonically assigned
// sequence number. The first op a peer ever creates has Counter 0.
type Counter int32

// Lamport is a logical clock coalesced across a change's span:
// lamport(op) = max(lamport(dep)) + 1, constant within a change's first
// atom and incrementing by one per subsequent atom in the same change.
type Lamport uint32

// ID names a single atomic operation, or the first atom of a run.
type ID struct {
	Peer    PeerID
	Counter Counter
}

func NewID(peer PeerID, counter Counter) ID { return ID{Peer: peer, Counter: counter} }

func (id ID) String() string { return fmt.Sprintf("%d@%d", id.Counter, id.Peer) }

// Less orders IDs first by peer, then by counter. This is the order used
// by every ordered container keyed by ID (ChangeStore's mem_parsed_kv,
// DAG per-peer run indices).
func (id ID) Less(other ID) bool {
	if id.Peer != other.Peer {
		return id.Peer < other.Peer
	}
	return id.Counter < other.Counter
}

// Bytes packs the ID into the 12-byte sorted-order KV key spec.md §6
// requires: peer:u64 big-endian, then counter:i32 big-endian (offset by
// MinInt32 so sorted-byte order matches id-lexicographic order).
func (id ID) Bytes() [12]byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(id.Peer))
	binary.BigEndian.PutUint32(b[8:12], uint32(id.Counter)^0x8000_0000)
	return b
}

// IDFromBytes is the inverse of ID.Bytes.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != 12 {
		return ID{}, fmt.Errorf("id key must be 12 bytes, got %d", len(b))
	}
	peer := PeerID(binary.BigEndian.Uint64(b[0:8]))
	ctr := int32(binary.BigEndian.Uint32(b[8:12]) ^ 0x8000_0000)
	return ID{Peer: peer, Counter: Counter(ctr)}, nil
}

// IdLp pairs a peer with a Lamport timestamp — used to reference a single
// CRDT element (e.g. a movable-list item) independent of its current
// counter, since Move/Set ops address elements by IdLp rather than ID.
type IdLp struct {
	Peer    PeerID
	Lamport Lamport
}

func (l IdLp) Less(other IdLp) bool {
	if l.Lamport != other.Lamport {
		return l.Lamport < other.Lamport
	}
	return l.Peer < other.Peer
}

// IdSpan names a contiguous counter range owned by one peer:
// [CounterStart, CounterEnd).
type IdSpan struct {
	Peer         PeerID
	CounterStart Counter
	CounterEnd   Counter
}

func (s IdSpan) Len() int { return int(s.CounterEnd - s.CounterStart) }

func (s IdSpan) IsEmpty() bool { return s.CounterEnd <= s.CounterStart }

// Contains reports whether id falls within this span.
func (s IdSpan) Contains(id ID) bool {
	return id.Peer == s.Peer && id.Counter >= s.CounterStart && id.Counter < s.CounterEnd
}

// ContainsCounter reports whether a bare counter value falls in range.
func (s IdSpan) ContainsCounter(c Counter) bool {
	return c >= s.CounterStart && c < s.CounterEnd
}

// VersionVector maps each known peer to an exclusive upper bound on the
// counters seen from that peer: VersionVector[p] = n means counters
// [0, n) from peer p have been observed.
type VersionVector map[PeerID]Counter

func NewVersionVector() VersionVector { return make(VersionVector) }

// Get returns the recorded bound for peer, or 0 if the peer is unknown.
func (vv VersionVector) Get(peer PeerID) Counter {
	return vv[peer]
}

// Clone returns an independent copy.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	for k, v := range vv {
		out[k] = v
	}
	return out
}

// Extend raises vv[id.Peer] to at least id.Counter+len if it isn't already.
func (vv VersionVector) Extend(id ID, length int) {
	end := id.Counter + Counter(length)
	if cur, ok := vv[id.Peer]; !ok || cur < end {
		vv[id.Peer] = end
	}
}

// Includes reports whether id has already been observed by vv, i.e.
// id.Counter < vv[id.Peer].
func (vv VersionVector) Includes(id ID) bool {
	return id.Counter < vv[id.Peer]
}

// IncludesSpan reports whether the whole span has been observed.
func (vv VersionVector) IncludesSpan(span IdSpan) bool {
	return span.CounterEnd <= vv[span.Peer]
}

// Merge raises every entry of vv to at least the corresponding entry of other.
func (vv VersionVector) Merge(other VersionVector) {
	for p, c := range other {
		if cur, ok := vv[p]; !ok || cur < c {
			vv[p] = c
		}
	}
}

// Equal reports whether two version vectors agree on every peer (missing
// entries are treated as 0).
func (vv VersionVector) Equal(other VersionVector) bool {
	peers := make(map[PeerID]struct{}, len(vv)+len(other))
	for p := range vv {
		peers[p] = struct{}{}
	}
	for p := range other {
		peers[p] = struct{}{}
	}
	for p := range peers {
		if vv[p] != other[p] {
			return false
		}
	}
	return true
}

// SortedPeers returns the vv's peers in ascending order, useful for
// deterministic iteration (e.g. when building the peer arena in encoding).
func (vv VersionVector) SortedPeers() []PeerID {
	out := make([]PeerID, 0, len(vv))
	for p := range vv {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Frontiers is an antichain: the set of maximal IDs of a version under the
// causal order induced by Change.Deps. No ID in a Frontiers set may be a
// (transitive) dependency of another.
type Frontiers []ID

// Clone returns an independent copy.
func (f Frontiers) Clone() Frontiers {
	out := make(Frontiers, len(f))
	copy(out, f)
	return out
}

// Sorted returns a copy sorted by ID.Less, used for deterministic encoding
// and equality comparisons.
func (f Frontiers) Sorted() Frontiers {
	out := f.Clone()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Equal reports set-equality after sorting (Frontiers order is not
// semantically meaningful on its own).
func (f Frontiers) Equal(other Frontiers) bool {
	if len(f) != len(other) {
		return false
	}
	a, b := f.Sorted(), other.Sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id is present in the frontier set.
func (f Frontiers) Contains(id ID) bool {
	for _, x := range f {
		if x == id {
			return true
		}
	}
	return false
}

// Remove returns a copy of f with id removed, if present.
func (f Frontiers) Remove(id ID) Frontiers {
	out := make(Frontiers, 0, len(f))
	for _, x := range f {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// RemovePeer returns a copy of f with every ID belonging to peer removed.
// Used when a new node for peer supersedes its own prior tail ID.
func (f Frontiers) RemovePeer(peer PeerID) Frontiers {
	out := make(Frontiers, 0, len(f))
	for _, x := range f {
		if x.Peer != peer {
			out = append(out, x)
		}
	}
	return out
}

// ToVersionVector builds the VersionVector implied by a frontier set, given
// a lookup from ID to the length of the run it terminates (callers — the
// DAG — know this; Frontiers alone doesn't).
func (f Frontiers) ToVersionVector(lenOf func(ID) int) VersionVector {
	vv := NewVersionVector()
	for _, id := range f {
		vv.Extend(id, lenOf(id))
	}
	return vv
}
