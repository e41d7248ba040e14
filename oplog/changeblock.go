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

// Package oplog implements the append-only, peer-partitioned operation log:
// the change-block columnar codec (C4), the peer-partitioned ChangeStore
// (C5), and the causal DAG (C6).
package oplog

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/kv"
)

var changeBlockMagic = [4]byte{'L', 'R', 'C', 'B'}

const changeBlockSchemaVersion = 0

// blockContent is the three-state cell SPEC_FULL.md §3 calls out
// (supplemented from change_store.rs's ChangesBlockContent): a block may
// hold only its encoded bytes, only its parsed Changes (freshly built, not
// yet flushed), or both at once so that parsing never evicts the cached
// bytes form.
type blockContent uint8

const (
	contentBytes blockContent = iota
	contentParsed
	contentBoth
)

// ChangeBlock is a contiguous, RLE-sorted run of one peer's Changes, stored
// as a columnar byte block with a header-only parse path (spec.md §4.4).
// Once installed in ChangeStore.memParsedKV it is treated as logically
// immutable; appending to an unflushed tail block copy-on-writes a new
// *ChangeBlock (spec.md §5) rather than mutating this one in place.
type ChangeBlock struct {
	mu sync.Mutex // guards lazy ensureParsed/EncodeBytes caching only

	peer         common.PeerID
	counterStart common.Counter
	counterEnd   common.Counter
	lamportStart common.Lamport
	lamportEnd   common.Lamport

	content blockContent
	raw     []byte
	changes []common.Change

	estimatedSize uint32
	flushed       bool
}

// NewChangeBlock seeds a fresh block with a single Change, per spec.md
// §4.5 step 3 ("create a new block seeded with this change").
func NewChangeBlock(c common.Change) *ChangeBlock {
	return &ChangeBlock{
		peer:          c.ID.Peer,
		counterStart:  c.ID.Counter,
		counterEnd:    c.CounterEnd(),
		lamportStart:  c.Lamport,
		lamportEnd:    c.Lamport + common.Lamport(c.Len()),
		content:       contentParsed,
		changes:       []common.Change{c},
		estimatedSize: uint32(EstimateChangeSize(c)),
	}
}

func (b *ChangeBlock) Peer() common.PeerID { return b.peer }

// CounterRange returns [start, end) over this block's counters.
func (b *ChangeBlock) CounterRange() (common.Counter, common.Counter) {
	return b.counterStart, b.counterEnd
}

// LamportRange returns [start, end) over this block's lamports.
func (b *ChangeBlock) LamportRange() (common.Lamport, common.Lamport) {
	return b.lamportStart, b.lamportEnd
}

func (b *ChangeBlock) EstimatedSize() uint32 { return b.estimatedSize }

func (b *ChangeBlock) Flushed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

func (b *ChangeBlock) MarkFlushed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushed = true
}

// FirstID returns the ID of this block's first atom.
func (b *ChangeBlock) FirstID() common.ID {
	return common.ID{Peer: b.peer, Counter: b.counterStart}
}

// ensureParsed decodes raw into changes if only the bytes form is cached,
// installing the parsed form alongside (contentBoth) rather than discarding
// the bytes, per spec.md §9 "Ownership of parsed blocks".
func (b *ChangeBlock) ensureParsed() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.content == contentParsed || b.content == contentBoth {
		return nil
	}
	changes, err := decodeChangeBlockBody(b.raw)
	if err != nil {
		return err
	}
	b.changes = changes
	b.content = contentBoth
	return nil
}

// Changes returns every Change in this block, parsing lazily if needed.
func (b *ChangeBlock) Changes() ([]common.Change, error) {
	if err := b.ensureParsed(); err != nil {
		return nil, err
	}
	return b.changes, nil
}

// LastChange returns the block's final Change.
func (b *ChangeBlock) LastChange() (common.Change, error) {
	cs, err := b.Changes()
	if err != nil {
		return common.Change{}, err
	}
	return cs[len(cs)-1], nil
}

// ChangeContaining returns the Change whose counter range contains counter,
// via binary search over the (contiguous, strictly increasing) change list.
func (b *ChangeBlock) ChangeContaining(counter common.Counter) (common.Change, bool, error) {
	cs, err := b.Changes()
	if err != nil {
		return common.Change{}, false, err
	}
	idx := sort.Search(len(cs), func(i int) bool { return cs[i].CounterEnd() > counter })
	if idx >= len(cs) || cs[idx].ID.Counter > counter {
		return common.Change{}, false, nil
	}
	return cs[idx], true, nil
}

// EncodeBytes returns this block's columnar byte encoding, computing and
// caching it on first call (contentBoth) so repeated flush/export passes
// over an already-flushed block don't re-encode.
func (b *ChangeBlock) EncodeBytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.content == contentBytes || b.content == contentBoth {
		return b.raw, nil
	}
	raw, err := encodeChangeBlockBody(b.changes)
	if err != nil {
		return nil, err
	}
	b.raw = raw
	b.content = contentBoth
	return raw, nil
}

// clone returns a shallow copy suitable for copy-on-write mutation: the
// Changes slice is re-sliced (never mutated in place by the caller) and the
// bytes form is dropped, since the clone's content differs.
func (b *ChangeBlock) clone() *ChangeBlock {
	out := &ChangeBlock{
		peer:          b.peer,
		counterStart:  b.counterStart,
		counterEnd:    b.counterEnd,
		lamportStart:  b.lamportStart,
		lamportEnd:    b.lamportEnd,
		content:       contentParsed,
		changes:       append([]common.Change(nil), b.changes...),
		estimatedSize: b.estimatedSize,
		flushed:       false, // mutation always invalidates the flushed bytes form
	}
	return out
}

// WithPushed attempts to push Change c onto the tail of this block,
// returning a new *ChangeBlock (copy-on-write) and true on success, or
// (nil, false) if the block rejects — spec.md §4.5 step 2's two-armed
// accept rule.
func (b *ChangeBlock) WithPushed(c common.Change, maxSize uint32, mergeIntervalMs int64) (*ChangeBlock, bool) {
	if c.ID.Peer != b.peer || c.ID.Counter != b.counterEnd {
		return nil, false
	}
	if _, err := b.Changes(); err != nil {
		return nil, false
	}
	last := b.changes[len(b.changes)-1]

	addSize := uint32(EstimateChangeSize(c))
	newSize := b.estimatedSize + addSize

	// Arm (a): plain append as a new Change entry.
	if newSize <= maxSize && c.DepsOnSelf() && c.Timestamp-last.Timestamp < mergeIntervalMs {
		out := b.clone()
		out.changes = append(out.changes, c)
		out.counterEnd = c.CounterEnd()
		out.lamportEnd = c.Lamport + common.Lamport(c.Len())
		out.estimatedSize = newSize
		return out, true
	}

	// Arm (b): RLE-merge a single-op change into the last change's last op.
	if len(c.Ops) == 1 && len(last.Ops) > 0 {
		lastOpIdx := len(last.Ops) - 1
		merged, ok := mergeOps(last.Ops[lastOpIdx], c.Ops[0])
		if ok {
			out := b.clone()
			newLast := out.changes[len(out.changes)-1]
			newLast.Ops = append([]common.Op(nil), newLast.Ops...)
			newLast.Ops[lastOpIdx] = merged
			out.changes[len(out.changes)-1] = newLast
			out.counterEnd = c.CounterEnd()
			out.lamportEnd = c.Lamport + common.Lamport(c.Len())
			out.estimatedSize = b.estimatedSize + uint32(EstimateOpSize(c.Ops[0]))
			return out, true
		}
	}

	return nil, false
}

// mergeOps implements the RLE-merge condition spec.md §4.4/§4.5 refer to:
// two ops of the same container/kind whose counters are contiguous collapse
// into one run. Only Insert and Delete are mergeable; every other op kind
// is inherently atomic (a single Set/Move/Create touches exactly one
// element) and never merges.
func mergeOps(prev, next common.Op) (common.Op, bool) {
	if prev.Container != next.Container || prev.Kind != next.Kind {
		return common.Op{}, false
	}
	prevLen := prev.Len
	if prevLen <= 0 {
		prevLen = 1
	}
	if next.Counter != prev.Counter+common.Counter(prevLen) {
		return common.Op{}, false
	}
	switch prev.Kind {
	case common.OpInsert:
		merged, ok := mergeInsertValues(prev.Value, next.Value)
		if !ok {
			return common.Op{}, false
		}
		out := prev
		out.Value = merged
		out.Len = prevLen + maxInt(next.Len, 1)
		return out, true
	case common.OpDelete:
		prevDelLen := prev.DeleteLen
		nextDelLen := next.DeleteLen
		if prev.DeleteID.Peer != next.DeleteID.Peer {
			return common.Op{}, false
		}
		if prev.DeleteID.Counter+common.Counter(prevDelLen) != next.DeleteID.Counter {
			return common.Op{}, false
		}
		out := prev
		out.DeleteLen = prevDelLen + nextDelLen
		out.Len = prevLen + maxInt(next.Len, 1)
		return out, true
	default:
		return common.Op{}, false
	}
}

func mergeInsertValues(a, b common.LoroValue) (common.LoroValue, bool) {
	if a.Kind != b.Kind {
		return common.LoroValue{}, false
	}
	switch a.Kind {
	case common.ValueString:
		return common.StringValue(a.Str + b.Str), true
	case common.ValueBytes:
		out := make([]byte, 0, len(a.Bytes)+len(b.Bytes))
		out = append(out, a.Bytes...)
		out = append(out, b.Bytes...)
		return common.BytesValue(out), true
	case common.ValueList:
		out := make([]common.LoroValue, 0, len(a.List)+len(b.List))
		out = append(out, a.List...)
		out = append(out, b.List...)
		return common.ListValue(out), true
	default:
		return common.LoroValue{}, false
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ---- size estimation -------------------------------------------------

// EstimateChangeSize estimates a Change's encoded byte size: used both for
// the block's estimated_size accounting and to decide when a Change must
// be split (spec.md §4.5 "Splitting").
func EstimateChangeSize(c common.Change) int {
	n := 24 + len(c.Deps)*10 + len(c.Message)
	for _, op := range c.Ops {
		n += EstimateOpSize(op)
	}
	return n
}

// EstimateOpSize estimates one Op's encoded byte size.
func EstimateOpSize(op common.Op) int {
	n := 16 // kind, counter, len, container, prop overhead
	switch op.Kind {
	case common.OpInsert:
		n += loroValueSize(op.Value)
	case common.OpDelete:
		n += 16
	case common.OpMapSet:
		n += len(op.Key) + loroValueSize(op.Value)
	case common.OpMapDelete:
		n += len(op.Key) + 4
	case common.OpTreeMove:
		if op.TreeMove != nil {
			n += 20 + len(op.TreeMove.Position)
		}
	case common.OpStyleStart, common.OpStyleEnd:
		n += len(op.Key) + 1 + loroValueSize(op.Value)
	case common.OpListMove, common.OpListSet:
		n += 12 + loroValueSize(op.Value)
	case common.OpCounterInc:
		n += 8
	}
	return n
}

func loroValueSize(v common.LoroValue) int {
	switch v.Kind {
	case common.ValueString:
		return len(v.Str) + 4
	case common.ValueBytes:
		return len(v.Bytes) + 4
	case common.ValueList:
		n := 4
		for _, e := range v.List {
			n += loroValueSize(e)
		}
		return n
	case common.ValueMap:
		n := 4
		for k, mv := range v.Map {
			n += len(k) + 4 + loroValueSize(mv)
		}
		return n
	default:
		return 9
	}
}

// check_whether_slice_content_to_fit_in_size from spec.md §4.5: given a
// byte budget, returns the largest atom-count prefix of op that fits. Only
// Insert/Delete are sliceable (they carry a per-atom payload); every other
// kind is atomic and either fits whole or not at all.
func maxOpPrefixToFit(op common.Op, budget int) int {
	opLen := op.Len
	if opLen <= 0 {
		opLen = 1
	}
	switch op.Kind {
	case common.OpInsert:
		perAtom := 1
		switch op.Value.Kind {
		case common.ValueString:
			if opLen > 0 {
				perAtom = maxInt(1, len(op.Value.Str)/opLen)
			}
		case common.ValueBytes:
			if opLen > 0 {
				perAtom = maxInt(1, len(op.Value.Bytes)/opLen)
			}
		case common.ValueList:
			perAtom = 9
		}
		fit := (budget - 16) / perAtom
		if fit < 1 {
			return 0
		}
		if fit > opLen {
			fit = opLen
		}
		return fit
	case common.OpDelete:
		if budget < 32 {
			return 0
		}
		return opLen
	default:
		if budget >= EstimateOpSize(op) {
			return opLen
		}
		return 0
	}
}

// ---- byte encode/decode ----------------------------------------------
//
// On-wire layout:
//   MAGIC(4) | VERSION(1)
//   headerLen(uvarint) | header bytes | headerChecksum(4 LE)
//   bodyCompression(1) | bodyLen(uvarint) | body bytes | bodyChecksum(4 LE)
//
// The header alone reconstructs (peer, counter_range, lamport_range)
// without touching the body (spec.md §4.4's "header-only parse").

type changeBlockHeader struct {
	peer         common.PeerID
	counterStart common.Counter
	counterEnd   common.Counter
	lamportStart common.Lamport
	lamportEnd   common.Lamport
}

// DecodeChangeBlockHeader parses only the header section of raw, recovering
// (peer, counter_range, lamport_range) without decoding any op.
func DecodeChangeBlockHeader(raw []byte) (peer common.PeerID, counterStart, counterEnd common.Counter, lamportStart, lamportEnd common.Lamport, err error) {
	h, _, _, err := parseHeaderSection(raw)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	return h.peer, h.counterStart, h.counterEnd, h.lamportStart, h.lamportEnd, nil
}

// DecodeChangeBlockFull parses the full byte form into a *ChangeBlock with
// both bytes and parsed forms cached (contentBoth).
func DecodeChangeBlockFull(raw []byte) (*ChangeBlock, error) {
	h, hf, rest, err := parseHeaderSection(raw)
	if err != nil {
		return nil, err
	}
	changes, err := decodeBodySection(rest, hf)
	if err != nil {
		return nil, err
	}
	size := 0
	for _, c := range changes {
		size += EstimateChangeSize(c)
	}
	return &ChangeBlock{
		peer:          h.peer,
		counterStart:  h.counterStart,
		counterEnd:    h.counterEnd,
		lamportStart:  h.lamportStart,
		lamportEnd:    h.lamportEnd,
		content:       contentBoth,
		raw:           raw,
		changes:       changes,
		estimatedSize: uint32(size),
	}, nil
}

func decodeChangeBlockBody(raw []byte) ([]common.Change, error) {
	_, hf, rest, err := parseHeaderSection(raw)
	if err != nil {
		return nil, err
	}
	return decodeBodySection(rest, hf)
}

// parseHeaderSection validates and decodes the header-only section of raw,
// returning the summary ranges (changeBlockHeader), the full decoded header
// fields needed later to reconstruct Changes from the ops section, and the
// unconsumed remainder (the body section, untouched and unverified).
func parseHeaderSection(raw []byte) (changeBlockHeader, headerFields, []byte, error) {
	if len(raw) < 5 {
		return changeBlockHeader{}, headerFields{}, nil, common.NewDecodeError("changeblock: too short", nil)
	}
	if raw[0] != changeBlockMagic[0] || raw[1] != changeBlockMagic[1] || raw[2] != changeBlockMagic[2] || raw[3] != changeBlockMagic[3] {
		return changeBlockHeader{}, headerFields{}, nil, common.ErrBadMagic
	}
	if raw[4] != changeBlockSchemaVersion {
		return changeBlockHeader{}, headerFields{}, nil, common.ErrBadSchemaVersion
	}
	b := raw[5:]
	hLen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < hLen+4 {
		return changeBlockHeader{}, headerFields{}, nil, common.NewDecodeError("changeblock: truncated header", nil)
	}
	b = b[n:]
	headerBytes := b[:hLen]
	b = b[hLen:]
	wantSum := binary.LittleEndian.Uint32(b[:4])
	if kv.Checksum32(headerBytes) != wantSum {
		return changeBlockHeader{}, headerFields{}, nil, common.ErrDecodeChecksumMismatch
	}
	rest := b[4:]

	h, hf, err := decodeHeaderFields(headerBytes)
	if err != nil {
		return changeBlockHeader{}, headerFields{}, nil, err
	}
	return h, hf, rest, nil
}

// headerFields captures everything decoded from the header besides the
// ranges, needed later to reconstruct Changes from the body's op columns.
type headerFields struct {
	peer       common.PeerID
	counters   []common.Counter // n+1 values
	lamports   []common.Lamport // n values
	timestamps []int64          // n values
	depPeers   []common.PeerID  // interned dict
	deps       [][]common.ID    // n entries
	depOnSelf  []bool           // n entries
	messages   []string         // n entries, "" if absent
}

func decodeHeaderFields(b []byte) (changeBlockHeader, headerFields, error) {
	var hf headerFields
	peer, n := binary.Uvarint(b)
	if n <= 0 {
		return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated peer", nil)
	}
	b = b[n:]
	hf.peer = common.PeerID(peer)

	firstCounter, n := binary.Varint(b)
	if n <= 0 {
		return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated first_counter", nil)
	}
	b = b[n:]

	nChanges, n := binary.Uvarint(b)
	if n <= 0 {
		return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated n_changes", nil)
	}
	b = b[n:]
	count := int(nChanges)

	hf.counters = make([]common.Counter, count+1)
	hf.counters[0] = common.Counter(firstCounter)
	for i := 1; i <= count; i++ {
		delta, nn := binary.Uvarint(b)
		if nn <= 0 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated counters", nil)
		}
		b = b[nn:]
		hf.counters[i] = common.Counter(firstCounter) + common.Counter(delta)
	}

	hf.lamports = make([]common.Lamport, count)
	var prevLamport uint64
	for i := 0; i < count; i++ {
		v, nn := binary.Uvarint(b)
		if nn <= 0 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated lamports", nil)
		}
		b = b[nn:]
		if i == 0 {
			prevLamport = v
		} else {
			prevLamport += v
		}
		hf.lamports[i] = common.Lamport(prevLamport)
	}

	hf.timestamps = make([]int64, count)
	var prevTs int64
	for i := 0; i < count; i++ {
		v, nn := binary.Varint(b)
		if nn <= 0 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated timestamps", nil)
		}
		b = b[nn:]
		if i == 0 {
			prevTs = v
		} else {
			prevTs += v
		}
		hf.timestamps[i] = prevTs
	}

	// Dep-peer dictionary.
	nPeers, n := binary.Uvarint(b)
	if n <= 0 {
		return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated dep peer dict count", nil)
	}
	b = b[n:]
	hf.depPeers = make([]common.PeerID, nPeers)
	for i := range hf.depPeers {
		p, nn := binary.Uvarint(b)
		if nn <= 0 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated dep peer dict", nil)
		}
		b = b[nn:]
		hf.depPeers[i] = common.PeerID(p)
	}

	// Per-change deps groups: n_deps (uvarint), dep_on_self (1 byte), then
	// n_deps entries of (peer_idx uvarint, dep counter varint, written as
	// the absolute counter value).
	hf.deps = make([][]common.ID, count)
	hf.depOnSelf = make([]bool, count)
	for i := 0; i < count; i++ {
		nDeps, nn := binary.Uvarint(b)
		if nn <= 0 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated n_deps", nil)
		}
		b = b[nn:]
		if len(b) < 1 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated dep_on_self flag", nil)
		}
		hf.depOnSelf[i] = b[0] != 0
		b = b[1:]
		deps := make([]common.ID, nDeps)
		for j := range deps {
			peerIdx, nn2 := binary.Uvarint(b)
			if nn2 <= 0 {
				return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated dep peer idx", nil)
			}
			b = b[nn2:]
			ctr, nn3 := binary.Varint(b)
			if nn3 <= 0 {
				return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated dep counter", nil)
			}
			b = b[nn3:]
			if int(peerIdx) >= len(hf.depPeers) {
				return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: dep peer idx out of range", nil)
			}
			deps[j] = common.ID{Peer: hf.depPeers[peerIdx], Counter: common.Counter(ctr)}
		}
		hf.deps[i] = deps
	}

	// Message presence bitset + interned indices + arena.
	presentBytes := (count + 7) / 8
	if len(b) < presentBytes {
		return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated msg presence bitset", nil)
	}
	present := b[:presentBytes]
	b = b[presentBytes:]

	nArena, n := binary.Uvarint(b)
	if n <= 0 {
		return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated msg arena count", nil)
	}
	b = b[n:]
	arena := make([]string, nArena)
	for i := range arena {
		ln, nn := binary.Uvarint(b)
		if nn <= 0 || uint64(len(b)-nn) < ln {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated msg arena entry", nil)
		}
		b = b[nn:]
		arena[i] = string(b[:ln])
		b = b[ln:]
	}

	hf.messages = make([]string, count)
	for i := 0; i < count; i++ {
		bit := present[i/8]&(1<<uint(i%8)) != 0
		if !bit {
			continue
		}
		idx, nn := binary.Uvarint(b)
		if nn <= 0 {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: truncated msg index", nil)
		}
		b = b[nn:]
		if int(idx) >= len(arena) {
			return changeBlockHeader{}, hf, common.NewDecodeError("changeblock: msg index out of range", nil)
		}
		hf.messages[i] = arena[idx]
	}

	h := changeBlockHeader{
		peer:         hf.peer,
		counterStart: hf.counters[0],
		counterEnd:   hf.counters[len(hf.counters)-1],
	}
	if count > 0 {
		h.lamportStart = hf.lamports[0]
		last := hf.counters[len(hf.counters)-1] - hf.counters[len(hf.counters)-2]
		h.lamportEnd = hf.lamports[count-1] + common.Lamport(last)
	}
	return h, hf, nil
}

func decodeBodySection(b []byte, hf headerFields) ([]common.Change, error) {
	if len(b) < 1 {
		return nil, common.NewDecodeError("changeblock: truncated body framing", nil)
	}
	ct := kv.CompressionType(b[0])
	b = b[1:]
	bodyLen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < bodyLen+4 {
		return nil, common.NewDecodeError("changeblock: truncated body", nil)
	}
	b = b[n:]
	compressed := b[:bodyLen]
	b = b[bodyLen:]
	wantSum := binary.LittleEndian.Uint32(b[:4])
	if kv.Checksum32(compressed) != wantSum {
		return nil, common.ErrDecodeChecksumMismatch
	}
	decompressed, err := kv.DecompressBytes(compressed, ct)
	if err != nil {
		return nil, fmt.Errorf("changeblock: decompress body: %w", err)
	}
	return decodeOpsSection(decompressed, hf)
}

// encodeChangeBlockBody is the inverse of decodeChangeBlockBody: it
// reconstructs the full header+body layout from a parsed Change slice,
// independent of whatever header the block was originally loaded with.
func encodeChangeBlockBody(changes []common.Change) ([]byte, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("changeblock: cannot encode an empty block")
	}
	header := encodeHeaderFields(changes)
	opsBytes := encodeOpsSection(changes)
	compressed, err := kv.CompressBytes(opsBytes, kv.CompressionZstd)
	if err != nil {
		return nil, err
	}

	var out []byte
	out = append(out, changeBlockMagic[:]...)
	out = append(out, changeBlockSchemaVersion)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	var sumBuf [4]byte
	binary.LittleEndian.PutUint32(sumBuf[:], kv.Checksum32(header))
	out = append(out, sumBuf[:]...)

	out = append(out, byte(kv.CompressionZstd))
	out = binary.AppendUvarint(out, uint64(len(compressed)))
	out = append(out, compressed...)
	binary.LittleEndian.PutUint32(sumBuf[:], kv.Checksum32(compressed))
	out = append(out, sumBuf[:]...)
	return out, nil
}

func encodeHeaderFields(changes []common.Change) []byte {
	peer := changes[0].ID.Peer
	var out []byte
	out = binary.AppendUvarint(out, uint64(peer))
	out = binary.AppendVarint(out, int64(changes[0].ID.Counter))
	out = binary.AppendUvarint(out, uint64(len(changes)))

	firstCounter := changes[0].ID.Counter
	for _, c := range changes {
		out = binary.AppendUvarint(out, uint64(c.CounterEnd()-firstCounter))
	}

	var prevLamport common.Lamport
	for i, c := range changes {
		if i == 0 {
			out = binary.AppendUvarint(out, uint64(c.Lamport))
		} else {
			out = binary.AppendUvarint(out, uint64(c.Lamport-prevLamport))
		}
		prevLamport = c.Lamport
	}

	var prevTs int64
	for i, c := range changes {
		if i == 0 {
			out = binary.AppendVarint(out, c.Timestamp)
		} else {
			out = binary.AppendVarint(out, c.Timestamp-prevTs)
		}
		prevTs = c.Timestamp
	}

	// Dep-peer dictionary: sorted unique set of every dep's peer.
	peerSet := map[common.PeerID]struct{}{}
	for _, c := range changes {
		for _, d := range c.Deps {
			peerSet[d.Peer] = struct{}{}
		}
	}
	depPeers := make([]common.PeerID, 0, len(peerSet))
	for p := range peerSet {
		depPeers = append(depPeers, p)
	}
	sort.Slice(depPeers, func(i, j int) bool { return depPeers[i] < depPeers[j] })
	peerIdx := make(map[common.PeerID]int, len(depPeers))
	for i, p := range depPeers {
		peerIdx[p] = i
	}
	out = binary.AppendUvarint(out, uint64(len(depPeers)))
	for _, p := range depPeers {
		out = binary.AppendUvarint(out, uint64(p))
	}

	for _, c := range changes {
		out = binary.AppendUvarint(out, uint64(len(c.Deps)))
		selfFlag := byte(0)
		if c.DepsOnSelf() {
			selfFlag = 1
		}
		out = append(out, selfFlag)
		for _, d := range c.Deps {
			out = binary.AppendUvarint(out, uint64(peerIdx[d.Peer]))
			out = binary.AppendVarint(out, int64(d.Counter))
		}
	}

	// Message presence bitset + interned arena.
	presentBytes := (len(changes) + 7) / 8
	present := make([]byte, presentBytes)
	arenaIdx := map[string]int{}
	var arena []string
	var msgIdxBytes []byte
	for i, c := range changes {
		if c.Message == "" {
			continue
		}
		present[i/8] |= 1 << uint(i%8)
		idx, ok := arenaIdx[c.Message]
		if !ok {
			idx = len(arena)
			arena = append(arena, c.Message)
			arenaIdx[c.Message] = idx
		}
		msgIdxBytes = binary.AppendUvarint(msgIdxBytes, uint64(idx))
	}
	out = append(out, present...)
	out = binary.AppendUvarint(out, uint64(len(arena)))
	for _, s := range arena {
		out = binary.AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)
	}
	out = append(out, msgIdxBytes...)

	return out
}

// ---- ops section -------------------------------------------------------

func encodeOpsSection(changes []common.Change) []byte {
	var out []byte
	for _, c := range changes {
		out = binary.AppendUvarint(out, uint64(len(c.Ops)))
		for _, op := range c.Ops {
			out = encodeOp(out, op, c.ID.Peer)
		}
	}
	return out
}

// decodeOpsSection reassembles full Changes by pairing the ops section's
// per-change op runs with the ranges/deps/timestamps/messages already
// recovered into hf by decodeHeaderFields.
func decodeOpsSection(b []byte, hf headerFields) ([]common.Change, error) {
	count := len(hf.lamports)
	changes := make([]common.Change, count)
	for i := 0; i < count; i++ {
		nOps, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, common.NewDecodeError("changeblock: truncated op count", nil)
		}
		b = b[n:]
		ops := make([]common.Op, nOps)
		for j := range ops {
			var op common.Op
			var err error
			op, b, err = decodeOp(b)
			if err != nil {
				return nil, err
			}
			ops[j] = op
		}
		changes[i] = common.Change{
			ID:        common.ID{Peer: hf.peer, Counter: hf.counters[i]},
			Lamport:   hf.lamports[i],
			Timestamp: hf.timestamps[i],
			Deps:      common.Frontiers(hf.deps[i]),
			Ops:       ops,
			Message:   hf.messages[i],
		}
	}
	return changes, nil
}

func encodeOp(dst []byte, op common.Op, peer common.PeerID) []byte {
	dst = append(dst, byte(op.Kind))
	dst = binary.AppendVarint(dst, int64(op.Counter))
	opLen := op.Len
	if opLen <= 0 {
		opLen = 1
	}
	dst = binary.AppendUvarint(dst, uint64(opLen))
	dst = common.WriteValue(dst, common.ContainerIDValue(op.Container))
	dst = binary.AppendVarint(dst, op.Prop)
	switch op.Kind {
	case common.OpMapSet, common.OpMapDelete, common.OpStyleStart:
		dst = binary.AppendUvarint(dst, uint64(len(op.Key)))
		dst = append(dst, op.Key...)
	}
	if op.Kind == common.OpStyleStart {
		dst = append(dst, op.StyleInfo)
	}
	switch op.Kind {
	case common.OpInsert, common.OpMapSet, common.OpStyleStart, common.OpStyleEnd, common.OpListSet:
		dst = common.WriteValue(dst, op.Value)
	case common.OpDelete:
		dst = binary.AppendUvarint(dst, uint64(op.DeleteID.Peer))
		dst = binary.AppendVarint(dst, int64(op.DeleteID.Counter))
		dst = binary.AppendVarint(dst, int64(op.DeleteLen))
	case common.OpTreeMove:
		tm := op.TreeMove
		if tm == nil {
			tm = &common.TreeMoveOp{}
		}
		dst = common.WriteValue(dst, common.ContainerIDValue(tm.Target))
		if tm.Parent != nil {
			dst = append(dst, 1)
			dst = common.WriteValue(dst, common.ContainerIDValue(*tm.Parent))
		} else {
			dst = append(dst, 0)
		}
		dst = binary.AppendUvarint(dst, uint64(len(tm.Position)))
		dst = append(dst, tm.Position...)
	case common.OpListMove:
		dst = binary.AppendUvarint(dst, uint64(op.MoveElem.Peer))
		dst = binary.AppendUvarint(dst, uint64(op.MoveElem.Lamport))
	case common.OpCounterInc:
		dst = common.WriteValue(dst, op.Value)
	case common.OpMapDelete:
		// no payload
	}
	if op.Kind == common.OpListSet {
		dst = binary.AppendUvarint(dst, uint64(op.MoveElem.Peer))
		dst = binary.AppendUvarint(dst, uint64(op.MoveElem.Lamport))
	}
	return dst
}

func decodeOp(b []byte) (common.Op, []byte, error) {
	if len(b) < 1 {
		return common.Op{}, nil, common.NewDecodeError("op: empty", nil)
	}
	kind := common.OpKind(b[0])
	b = b[1:]
	counter, n := binary.Varint(b)
	if n <= 0 {
		return common.Op{}, nil, common.NewDecodeError("op: truncated counter", nil)
	}
	b = b[n:]
	opLen, n := binary.Uvarint(b)
	if n <= 0 {
		return common.Op{}, nil, common.NewDecodeError("op: truncated len", nil)
	}
	b = b[n:]
	cidVal, b, err := common.ReadValue(b)
	if err != nil {
		return common.Op{}, nil, err
	}
	if cidVal.Cid == nil {
		return common.Op{}, nil, common.NewDecodeError("op: missing container id", nil)
	}
	prop, n := binary.Varint(b)
	if n <= 0 {
		return common.Op{}, nil, common.NewDecodeError("op: truncated prop", nil)
	}
	b = b[n:]

	op := common.Op{
		Container: *cidVal.Cid,
		Counter:   common.Counter(counter),
		Len:       int(opLen),
		Kind:      kind,
		Prop:      prop,
	}

	switch kind {
	case common.OpMapSet, common.OpMapDelete, common.OpStyleStart:
		keyLen, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b)-n) < keyLen {
			return common.Op{}, nil, common.NewDecodeError("op: truncated key", nil)
		}
		b = b[n:]
		op.Key = string(b[:keyLen])
		b = b[keyLen:]
	}
	if kind == common.OpStyleStart {
		if len(b) < 1 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated style info", nil)
		}
		op.StyleInfo = b[0]
		b = b[1:]
	}

	switch kind {
	case common.OpInsert, common.OpMapSet, common.OpListSet, common.OpStyleStart, common.OpStyleEnd:
		var v common.LoroValue
		v, b, err = common.ReadValue(b)
		if err != nil {
			return common.Op{}, nil, err
		}
		op.Value = v
	case common.OpDelete:
		peer, n := binary.Uvarint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated delete peer", nil)
		}
		b = b[n:]
		ctr, n := binary.Varint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated delete counter", nil)
		}
		b = b[n:]
		dl, n := binary.Varint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated delete len", nil)
		}
		b = b[n:]
		op.DeleteID = common.ID{Peer: common.PeerID(peer), Counter: common.Counter(ctr)}
		op.DeleteLen = int(dl)
	case common.OpTreeMove:
		var targetVal common.LoroValue
		targetVal, b, err = common.ReadValue(b)
		if err != nil {
			return common.Op{}, nil, err
		}
		tm := &common.TreeMoveOp{}
		if targetVal.Cid != nil {
			tm.Target = *targetVal.Cid
		}
		if len(b) < 1 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated tree parent flag", nil)
		}
		hasParent := b[0] != 0
		b = b[1:]
		if hasParent {
			var parentVal common.LoroValue
			parentVal, b, err = common.ReadValue(b)
			if err != nil {
				return common.Op{}, nil, err
			}
			tm.Parent = parentVal.Cid
		}
		posLen, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b)-n) < posLen {
			return common.Op{}, nil, common.NewDecodeError("op: truncated tree position", nil)
		}
		b = b[n:]
		tm.Position = append([]byte(nil), b[:posLen]...)
		b = b[posLen:]
		op.TreeMove = tm
	case common.OpListMove:
		peer, n := binary.Uvarint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated move peer", nil)
		}
		b = b[n:]
		lp, n := binary.Uvarint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated move lamport", nil)
		}
		b = b[n:]
		op.MoveElem = common.IdLp{Peer: common.PeerID(peer), Lamport: common.Lamport(lp)}
	case common.OpCounterInc:
		var v common.LoroValue
		v, b, err = common.ReadValue(b)
		if err != nil {
			return common.Op{}, nil, err
		}
		op.Value = v
	case common.OpMapDelete:
		// no payload
	}
	if kind == common.OpListSet {
		peer, n := binary.Uvarint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated set peer", nil)
		}
		b = b[n:]
		lp, n := binary.Uvarint(b)
		if n <= 0 {
			return common.Op{}, nil, common.NewDecodeError("op: truncated set lamport", nil)
		}
		b = b[n:]
		op.MoveElem = common.IdLp{Peer: common.PeerID(peer), Lamport: common.Lamport(lp)}
	}
	return op, b, nil
}
