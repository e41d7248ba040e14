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

package oplog

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/internal/logging"
	"github.com/loro-dev/loro-go-core/kv"
	"github.com/loro-dev/loro-go-core/metrics"
)

// Well-known keys in external_kv. Every other key is a 12-byte ID.Bytes().
var (
	keyVV = []byte("vv")
	keyFR = []byte("fr")
	keySR = []byte("sr") // shallow-root marker, supplemented from change_store.rs
)

// blockEntry is mem_parsed_kv's element, keyed by its block's first ID.
type blockEntry struct {
	firstID common.ID
	block   *ChangeBlock
}

func compareBlockEntries(a, b blockEntry) bool { return a.firstID.Less(b.firstID) }

// BlockChangeRef borrows into a parsed block: the iteration result iter_changes
// yields (spec.md §4.5 "Iteration").
type BlockChangeRef struct {
	Block       *ChangeBlock
	ChangeIndex int
}

// Change returns the referenced Change.
func (r BlockChangeRef) Change() (common.Change, error) {
	cs, err := r.Block.Changes()
	if err != nil {
		return common.Change{}, err
	}
	return cs[r.ChangeIndex], nil
}

// ChangeStore is the C5 peer-partitioned operation log: an in-memory index
// of parsed/bytes-form ChangeBlocks (mem_parsed_kv) overlaying the
// flushed, authoritative binary form (external_kv).
type ChangeStore struct {
	mu          sync.Mutex
	memParsedKV *btree.BTreeG[blockEntry]

	externalKV     *kv.OrderedKV
	externalVV     common.VersionVector
	startVV        common.VersionVector // nil: no shallow root
	startFrontiers common.Frontiers

	maxBlockSize    uint32
	mergeIntervalMs int64

	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewChangeStore creates an empty store. maxBlockSize and mergeIntervalMs
// are the spec.md §9 tunables (see config.Config); logger/reg may be nil.
func NewChangeStore(maxBlockSize uint32, mergeIntervalMs int64, logger *zap.Logger, reg *metrics.Registry) *ChangeStore {
	return &ChangeStore{
		memParsedKV:     btree.NewBTreeG(compareBlockEntries),
		externalKV:      kv.NewOrderedKV(),
		externalVV:      common.NewVersionVector(),
		maxBlockSize:    maxBlockSize,
		mergeIntervalMs: mergeIntervalMs,
		logger:          logging.NopIfNil(logger),
		metrics:         reg,
	}
}

// ExternalVV returns the version vector of the flushed, durable view.
func (s *ChangeStore) ExternalVV() common.VersionVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.externalVV.Clone()
}

// ShallowRoot returns the trimmed-history boundary, if one has been set.
func (s *ChangeStore) ShallowRoot() (common.VersionVector, common.Frontiers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startVV == nil {
		return nil, nil, false
	}
	return s.startVV.Clone(), s.startFrontiers.Clone(), true
}

// SetShallowRoot records a trimmed-history boundary and persists it under
// the "sr" key so a reloaded store remembers it (spec.md §3 supplement).
func (s *ChangeStore) SetShallowRoot(vv common.VersionVector, frontiers common.Frontiers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startVV = vv.Clone()
	s.startFrontiers = frontiers.Clone()
	s.externalKV.Set(keySR, encodeShallowRoot(s.startVV, s.startFrontiers))
}

// ---- insertion ---------------------------------------------------------

// InsertChange implements spec.md §4.5 "Insertion": splitting oversized
// changes, then locating or creating the tail block for (peer, counter).
func (s *ChangeStore) InsertChange(c common.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(c)
}

func (s *ChangeStore) insertLocked(c common.Change) error {
	if len(c.Ops) == 0 {
		return nil
	}
	if uint32(EstimateChangeSize(c)) > s.maxBlockSize {
		// A change that splitChange cannot slice any further is placed
		// below as it is.
		if parts := splitChange(c, s.maxBlockSize); len(parts) > 1 {
			for _, part := range parts {
				if err := s.insertLocked(part); err != nil {
					return err
				}
			}
			return nil
		}
	}

	if blk, ok := s.locateBlockLocked(c.ID.Peer, c.ID.Counter, true); ok {
		if next, accepted := blk.WithPushed(c, s.maxBlockSize, s.mergeIntervalMs); accepted {
			s.memParsedKV.Set(blockEntry{firstID: next.FirstID(), block: next})
			return nil
		}
	}

	nb := NewChangeBlock(c)
	s.memParsedKV.Set(blockEntry{firstID: nb.FirstID(), block: nb})
	return nil
}

// locateBlockLocked searches mem_parsed_kv for a peer's block via a
// descend-from-pivot scan: requireTail asks for the block whose range ends
// exactly at counter (insertion's tail lookup); otherwise it asks for the
// block whose range contains counter (read lookup).
func (s *ChangeStore) locateBlockLocked(peer common.PeerID, counter common.Counter, requireTail bool) (*ChangeBlock, bool) {
	pivot := blockEntry{firstID: common.ID{Peer: peer, Counter: counter}}
	var found *ChangeBlock
	s.memParsedKV.Descend(pivot, func(e blockEntry) bool {
		if e.firstID.Peer != peer {
			return false
		}
		cs, ce := e.block.CounterRange()
		if requireTail {
			if ce == counter {
				found = e.block
			}
		} else if cs <= counter && counter < ce {
			found = e.block
		}
		return false // only the closest candidate matters
	})
	return found, found != nil
}

// ---- lookup -------------------------------------------------------------

// GetChange implements spec.md §4.5 "Lookup": mem_parsed_kv first, falling
// back to a reverse scan of external_kv.
func (s *ChangeStore) GetChange(id common.ID) (common.Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blk, ok, err := s.findOrLoadBlockLocked(id.Peer, id.Counter)
	if err != nil || !ok {
		return common.Change{}, false, err
	}
	c, found, err := blk.ChangeContaining(id.Counter)
	if err != nil {
		return common.Change{}, false, err
	}
	return c, found, nil
}

func (s *ChangeStore) findOrLoadBlockLocked(peer common.PeerID, counter common.Counter) (*ChangeBlock, bool, error) {
	if blk, ok := s.locateBlockLocked(peer, counter, false); ok {
		return blk, true, nil
	}

	key := (common.ID{Peer: peer, Counter: counter}).Bytes()
	it, err := s.externalKV.Scan(kv.Unbounded(), kv.Included(key[:]))
	if err != nil {
		return nil, false, err
	}
	for {
		k, v, ok, err := it.NextBack()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if len(k) != 12 {
			continue // "vv"/"fr"/"sr" — not a change-block entry
		}
		blk, err := DecodeChangeBlockFull(v)
		if err != nil {
			return nil, false, err
		}
		if blk.Peer() != peer {
			return nil, false, nil // this peer has never been observed
		}
		_, ce := blk.CounterRange()
		if counter >= ce {
			return nil, false, fmt.Errorf("oplog: hole in change log for peer %d at counter %d: %w", peer, counter, common.ErrTruncated)
		}
		s.memParsedKV.Set(blockEntry{firstID: blk.FirstID(), block: blk})
		return blk, true, nil
	}
}

// GetChangeByLamport implements spec.md §4.5 "Lookup by lamport ≤ L for
// peer P": a galloping search over mem_parsed_kv's blocks for P, falling
// back to a reverse KV scan when the in-memory index has gaps.
func (s *ChangeStore) GetChangeByLamport(peer common.PeerID, lamport common.Lamport) (common.Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidate *ChangeBlock
	pivot := blockEntry{firstID: common.ID{Peer: peer, Counter: 1<<31 - 1}}
	s.memParsedKV.Descend(pivot, func(e blockEntry) bool {
		if e.firstID.Peer != peer {
			return false
		}
		ls, le := e.block.LamportRange()
		if ls > lamport {
			return true // keep galloping backward past blocks entirely above L
		}
		if lamport < le {
			candidate = e.block
		}
		return false
	})
	if candidate == nil {
		// The in-memory index doesn't cover this lamport (a gap); fall back
		// to a reverse scan of the whole peer range in external_kv.
		start := (common.ID{Peer: peer, Counter: 0}).Bytes()
		end := (common.ID{Peer: peer, Counter: 1<<31 - 1}).Bytes()
		it, err := s.externalKV.Scan(kv.Included(start[:]), kv.Included(end[:]))
		if err != nil {
			return common.Change{}, false, err
		}
		for {
			k, v, ok, err := it.NextBack()
			if err != nil {
				return common.Change{}, false, err
			}
			if !ok {
				return common.Change{}, false, nil
			}
			if len(k) != 12 {
				continue
			}
			blk, err := DecodeChangeBlockFull(v)
			if err != nil {
				return common.Change{}, false, err
			}
			ls, le := blk.LamportRange()
			if ls <= lamport && lamport < le {
				s.memParsedKV.Set(blockEntry{firstID: blk.FirstID(), block: blk})
				candidate = blk
				break
			}
		}
	}
	if candidate == nil {
		return common.Change{}, false, nil
	}
	changes, err := candidate.Changes()
	if err != nil {
		return common.Change{}, false, err
	}
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.Lamport <= lamport {
			return c, true, nil
		}
	}
	return common.Change{}, false, nil
}

// ---- iteration ----------------------------------------------------------

// IterChanges implements spec.md §4.5 "Iteration": yields BlockChangeRefs
// covering span, loading any unparsed blocks along the way.
func (s *ChangeStore) IterChanges(span common.IdSpan) ([]BlockChangeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []BlockChangeRef
	counter := span.CounterStart
	for counter < span.CounterEnd {
		blk, ok, err := s.findOrLoadBlockLocked(span.Peer, counter)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("oplog: hole in change log for peer %d at counter %d", span.Peer, counter)
		}
		changes, err := blk.Changes()
		if err != nil {
			return nil, err
		}
		for idx, c := range changes {
			if c.CounterEnd() <= span.CounterStart || c.ID.Counter >= span.CounterEnd {
				continue
			}
			out = append(out, BlockChangeRef{Block: blk, ChangeIndex: idx})
		}
		_, ce := blk.CounterRange()
		counter = ce
	}
	return out, nil
}

// ---- flush & compact ------------------------------------------------------

// FlushAndCompact implements spec.md §4.5 "Flush & compact": every
// unflushed block is encoded and written to external_kv in counter order,
// advancing external_vv one peer at a time with no hole admitted; then the
// "vv"/"fr" keys are written and the supplied vv is asserted equal to the
// resulting external_vv.
func (s *ChangeStore) FlushAndCompact(vv common.VersionVector, frontiers common.Frontiers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	var unflushed []blockEntry
	s.memParsedKV.Scan(func(e blockEntry) bool {
		if !e.block.Flushed() {
			unflushed = append(unflushed, e)
		}
		return true
	})

	for _, e := range unflushed {
		peer := e.block.Peer()
		cs, ce := e.block.CounterRange()
		if s.externalVV.Get(peer) != cs {
			return fmt.Errorf("oplog: flushing block %s would create a hole: external_vv[%d]=%d, block starts at %d",
				e.block.FirstID(), peer, s.externalVV.Get(peer), cs)
		}
		raw, err := e.block.EncodeBytes()
		if err != nil {
			return err
		}
		key := e.block.FirstID().Bytes()
		s.externalKV.Set(key[:], raw)
		s.externalVV[peer] = ce
		e.block.MarkFlushed()
	}

	if !vv.Equal(s.externalVV) {
		return fmt.Errorf("oplog: flush assertion failed: supplied vv does not match external_vv")
	}

	s.externalKV.Set(keyVV, encodeVersionVector(s.externalVV))
	s.externalKV.Set(keyFR, encodeFrontiers(frontiers))

	s.metrics.ObserveFlushSeconds(time.Since(start).Seconds())
	return nil
}

// ExportBytes returns the merged, de-tombstoned external_kv as a single
// SSTable blob — the store's durable form.
func (s *ChangeStore) ExportBytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.externalKV.ExportAll()
}

// LoadChangeStore rebuilds a ChangeStore from a previously exported
// external_kv blob, recovering external_vv, frontiers, and any shallow
// root from the well-known keys.
func LoadChangeStore(raw []byte, maxBlockSize uint32, mergeIntervalMs int64, logger *zap.Logger, reg *metrics.Registry) (*ChangeStore, common.Frontiers, error) {
	s := NewChangeStore(maxBlockSize, mergeIntervalMs, logger, reg)
	if err := s.externalKV.ImportAll(raw); err != nil {
		return nil, nil, err
	}
	if v, ok, err := s.externalKV.Get(keyVV); err != nil {
		return nil, nil, err
	} else if ok {
		vv, err := decodeVersionVector(v)
		if err != nil {
			return nil, nil, err
		}
		s.externalVV = vv
	}
	var frontiers common.Frontiers
	if v, ok, err := s.externalKV.Get(keyFR); err != nil {
		return nil, nil, err
	} else if ok {
		fr, err := decodeFrontiers(v)
		if err != nil {
			return nil, nil, err
		}
		frontiers = fr
	}
	if v, ok, err := s.externalKV.Get(keySR); err != nil {
		return nil, nil, err
	} else if ok {
		vv, fr, err := decodeShallowRoot(v)
		if err != nil {
			return nil, nil, err
		}
		s.startVV = vv
		s.startFrontiers = fr
	}
	return s, frontiers, nil
}

// ---- well-known value codecs --------------------------------------------

func encodeVersionVector(vv common.VersionVector) []byte {
	peers := vv.SortedPeers()
	var out []byte
	out = binary.AppendUvarint(out, uint64(len(peers)))
	for _, p := range peers {
		out = binary.AppendUvarint(out, uint64(p))
		out = binary.AppendUvarint(out, uint64(vv[p]))
	}
	return out
}

func decodeVersionVector(b []byte) (common.VersionVector, error) {
	vv := common.NewVersionVector()
	n, m := binary.Uvarint(b)
	if m <= 0 {
		return nil, common.NewDecodeError("changestore: truncated vv count", nil)
	}
	b = b[m:]
	for i := uint64(0); i < n; i++ {
		peer, mm := binary.Uvarint(b)
		if mm <= 0 {
			return nil, common.NewDecodeError("changestore: truncated vv peer", nil)
		}
		b = b[mm:]
		ctr, mm2 := binary.Uvarint(b)
		if mm2 <= 0 {
			return nil, common.NewDecodeError("changestore: truncated vv counter", nil)
		}
		b = b[mm2:]
		vv[common.PeerID(peer)] = common.Counter(ctr)
	}
	return vv, nil
}

func encodeFrontiers(f common.Frontiers) []byte {
	sorted := f.Sorted()
	var out []byte
	out = binary.AppendUvarint(out, uint64(len(sorted)))
	for _, id := range sorted {
		out = binary.AppendUvarint(out, uint64(id.Peer))
		out = binary.AppendVarint(out, int64(id.Counter))
	}
	return out
}

func decodeFrontiers(b []byte) (common.Frontiers, error) {
	n, m := binary.Uvarint(b)
	if m <= 0 {
		return nil, common.NewDecodeError("changestore: truncated frontiers count", nil)
	}
	b = b[m:]
	out := make(common.Frontiers, n)
	for i := uint64(0); i < n; i++ {
		peer, mm := binary.Uvarint(b)
		if mm <= 0 {
			return nil, common.NewDecodeError("changestore: truncated frontiers peer", nil)
		}
		b = b[mm:]
		ctr, mm2 := binary.Varint(b)
		if mm2 <= 0 {
			return nil, common.NewDecodeError("changestore: truncated frontiers counter", nil)
		}
		b = b[mm2:]
		out[i] = common.ID{Peer: common.PeerID(peer), Counter: common.Counter(ctr)}
	}
	return out, nil
}

func encodeShallowRoot(vv common.VersionVector, fr common.Frontiers) []byte {
	vvBytes := encodeVersionVector(vv)
	frBytes := encodeFrontiers(fr)
	var out []byte
	out = binary.AppendUvarint(out, uint64(len(vvBytes)))
	out = append(out, vvBytes...)
	out = append(out, frBytes...)
	return out
}

func decodeShallowRoot(b []byte) (common.VersionVector, common.Frontiers, error) {
	vvLen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < vvLen {
		return nil, nil, common.NewDecodeError("changestore: truncated shallow root", nil)
	}
	b = b[n:]
	vv, err := decodeVersionVector(b[:vvLen])
	if err != nil {
		return nil, nil, err
	}
	fr, err := decodeFrontiers(b[vvLen:])
	if err != nil {
		return nil, nil, err
	}
	return vv, fr, nil
}
