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
	"github.com/loro-dev/loro-go-core/common"
)

// Batch is the in-memory form C7 moves: a contiguous set of Changes
// spanning the half-open version range (StartVV, the Changes' own
// frontiers], per spec.md §4.7's opening paragraph. StateBlob is only
// populated for snapshot-mode blobs (spec.md §4.7 "Snapshot mode").
type Batch struct {
	Changes        []common.Change
	StartVV        common.VersionVector
	StartFrontiers common.Frontiers
	StateBlob      []byte // snapshot-only; nil for updates blobs
}

// EncodeUpdates serializes b as a "fast-updates" blob: framed body, no
// container-state snapshot.
func EncodeUpdates(b Batch) ([]byte, error) {
	body, err := encodeBatchBody(b, false)
	if err != nil {
		return nil, err
	}
	return wrapBlob(ModeFastUpdates, body), nil
}

// EncodeSnapshot serializes b as a "fast-snapshot" blob, including
// b.StateBlob in the state_info section.
func EncodeSnapshot(b Batch) ([]byte, error) {
	body, err := encodeBatchBody(b, true)
	if err != nil {
		return nil, err
	}
	return wrapBlob(ModeFastSnapshot, body), nil
}

// Decode routes raw to the updates or snapshot decoder based on its mode
// byte. Outdated modes surface common.ErrUnsupportedOutdated (via
// unwrapBlob) rather than being parsed.
func Decode(raw []byte) (Batch, BlobMode, error) {
	mode, body, err := unwrapBlob(raw)
	if err != nil {
		return Batch{}, mode, err
	}
	b, err := decodeBatchBody(body, mode == ModeFastSnapshot)
	return b, mode, err
}

// opRow is the flattened, arena-interned form of a common.Op used while
// building/reading the ops column set. Ops from every Change in the batch
// are flattened into one stream, in Change order then Op order within
// each Change — the order import's "group by peer, sort by counter
// descending" redistribution pass (spec.md §4.7) expects to reverse.
type opRow struct {
	containerIdx int64
	peerIdx      uint64 // arena index of the owning Change's peer
	kind         int64
	prop         int64
	counter      int64
	atomLen      int64
}

func maxLen(n int) int64 {
	if n <= 0 {
		return 1
	}
	return int64(n)
}

// internAllArenaRefs walks every Change/Op once, registering every
// peer/container/key/position this batch references, before any column or
// payload byte is written. This lets reorderContainers run once the full
// dictionary is known, and every later pass resolve a stable index via a
// map lookup rather than by appending.
func internAllArenaRefs(arena *arenaBuilder, changes []common.Change) {
	for _, c := range changes {
		arena.internPeer(c.ID.Peer)
		for _, dep := range c.Deps {
			arena.internPeer(dep.Peer)
		}
		if c.Message != "" {
			arena.internKey(c.Message)
		}
		for _, op := range c.Ops {
			arena.internContainer(op.Container)
			switch op.Kind {
			case common.OpDelete:
				arena.internPeer(op.DeleteID.Peer)
			case common.OpMapSet, common.OpMapDelete, common.OpStyleStart:
				arena.internKey(op.Key)
			case common.OpTreeMove:
				if op.TreeMove != nil {
					arena.internContainer(op.TreeMove.Target)
					if op.TreeMove.Parent != nil {
						arena.internContainer(*op.TreeMove.Parent)
					}
					arena.internPosition(op.TreeMove.Position)
				}
			case common.OpListMove, common.OpListSet:
				arena.internPeer(op.MoveElem.Peer)
			}
		}
	}
}

func encodeBatchBody(b Batch, snapshot bool) ([]byte, error) {
	arena := newArenaBuilder()
	for _, p := range b.StartVV.SortedPeers() {
		arena.internPeer(p)
	}
	for _, id := range b.StartFrontiers {
		arena.internPeer(id.Peer)
	}
	internAllArenaRefs(arena, b.Changes)

	sortedContainers, _ := reorderContainers(arena.containers)
	arena.setContainers(sortedContainers)

	vw := newValueWriter(arena)
	var rows []opRow
	var delPeerIdx []uint64
	var delCounter, delLen []int64
	var opsCount []int64

	for _, c := range b.Changes {
		peerIdx := uint64(arena.internPeer(c.ID.Peer))
		opsCount = append(opsCount, int64(len(c.Ops)))
		for _, op := range c.Ops {
			ci := int64(arena.internContainer(op.Container))
			row := opRow{containerIdx: ci, peerIdx: peerIdx, kind: int64(op.Kind), counter: int64(op.Counter), atomLen: maxLen(op.Len)}

			switch op.Kind {
			case common.OpInsert:
				row.prop = op.Prop
				if op.Value.Kind == common.ValueString {
					vw.WriteRaw([]byte(op.Value.Str))
				} else {
					vw.WriteValue(op.Value)
				}
			case common.OpDelete:
				row.prop = op.Prop
				delPeerIdx = append(delPeerIdx, uint64(arena.internPeer(op.DeleteID.Peer)))
				delCounter = append(delCounter, int64(op.DeleteID.Counter))
				delLen = append(delLen, int64(op.DeleteLen))
			case common.OpMapSet:
				row.prop = int64(arena.internKey(op.Key))
				vw.WriteValue(op.Value)
			case common.OpMapDelete:
				row.prop = int64(arena.internKey(op.Key))
			case common.OpStyleStart:
				row.prop = int64(arena.internKey(op.Key))
				vw.WriteByte(op.StyleInfo)
				vw.WriteValue(op.Value)
			case common.OpStyleEnd:
				// no payload
			case common.OpTreeMove:
				tm := op.TreeMove
				if tm == nil {
					tm = &common.TreeMoveOp{}
				}
				vw.WriteContainerRef(tm.Target)
				if tm.Parent != nil {
					vw.WriteByte(1)
					vw.WriteContainerRef(*tm.Parent)
				} else {
					vw.WriteByte(0)
				}
				vw.WriteUvarint(uint64(arena.internPosition(tm.Position)))
			case common.OpListMove:
				vw.WriteUvarint(uint64(arena.internPeer(op.MoveElem.Peer)))
				vw.WriteUvarint(uint64(op.MoveElem.Lamport))
			case common.OpListSet:
				vw.WriteUvarint(uint64(arena.internPeer(op.MoveElem.Peer)))
				vw.WriteUvarint(uint64(op.MoveElem.Lamport))
				vw.WriteValue(op.Value)
			case common.OpCounterInc:
				vw.WriteValue(op.Value)
			}
			rows = append(rows, row)
		}
	}

	opsCols := encodeOpsColumns(rows)
	deleteCols := encodeDeleteStarts(delPeerIdx, delCounter, delLen)
	changesCols, depsCols := encodeChangesColumns(b.Changes, opsCount, arena)

	var stateInfo []byte
	if snapshot {
		stateInfo = b.StateBlob
	}

	arenasBlob := encodeArenas(arena.peers, arena.containers, arena.keys, nil, arena.positions)

	var out []byte
	out = appendLenPrefixed(out, opsCols)
	out = appendLenPrefixed(out, changesCols)
	out = appendLenPrefixed(out, depsCols)
	out = appendLenPrefixed(out, deleteCols)
	out = appendLenPrefixed(out, stateInfo)
	out = appendLenPrefixed(out, encodeVV(b.StartVV))
	out = appendLenPrefixed(out, encodeFrontiersFlat(b.StartFrontiers))
	out = appendLenPrefixed(out, vw.Bytes())
	out = appendLenPrefixed(out, arenasBlob)
	return out, nil
}

func decodeBatchBody(body []byte, snapshot bool) (Batch, error) {
	opsCols, rest, err := readLenPrefixed(body)
	if err != nil {
		return Batch{}, err
	}
	changesCols, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	depsCols, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	deleteCols, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	stateInfo, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	startVVBytes, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	startFrBytes, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	payload, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}
	arenasBlob, _, err := readLenPrefixed(rest)
	if err != nil {
		return Batch{}, err
	}

	arenas, _, err := decodeArenas(arenasBlob)
	if err != nil {
		return Batch{}, err
	}
	startVV, err := decodeVV(startVVBytes)
	if err != nil {
		return Batch{}, err
	}
	startFr, err := decodeFrontiersFlat(startFrBytes, arenas)
	if err != nil {
		return Batch{}, err
	}

	rows, err := decodeOpsColumns(opsCols)
	if err != nil {
		return Batch{}, err
	}
	delPeerIdx, delCounter, delLen, err := decodeDeleteStarts(deleteCols)
	if err != nil {
		return Batch{}, err
	}

	vr := newValueReader(arenas, payload)
	ops := make([]common.Op, len(rows))
	delI := 0
	for i, row := range rows {
		if row.containerIdx < 0 || int(row.containerIdx) >= len(arenas.containers) {
			return Batch{}, common.NewDecodeError("op container index out of range", nil)
		}
		op := common.Op{
			Container: arenas.containers[row.containerIdx],
			Counter:   common.Counter(row.counter),
			Len:       int(row.atomLen),
			Kind:      common.OpKind(row.kind),
			Prop:      row.prop,
		}
		switch op.Kind {
		case common.OpInsert:
			if op.Container.Kind == common.ContainerText {
				raw, err := vr.ReadRaw()
				if err != nil {
					return Batch{}, err
				}
				op.Value = common.StringValue(string(raw))
			} else {
				v, err := vr.ReadValue()
				if err != nil {
					return Batch{}, err
				}
				op.Value = v
			}
		case common.OpDelete:
			if delI >= len(delPeerIdx) {
				return Batch{}, common.NewDecodeError("delete_starts underflow", nil)
			}
			if int(delPeerIdx[delI]) >= len(arenas.peers) {
				return Batch{}, common.NewDecodeError("delete peer index out of range", nil)
			}
			op.DeleteID = common.ID{Peer: arenas.peers[delPeerIdx[delI]], Counter: common.Counter(delCounter[delI])}
			op.DeleteLen = int(delLen[delI])
			delI++
		case common.OpMapSet:
			if int(row.prop) >= len(arenas.keys) {
				return Batch{}, common.NewDecodeError("map key index out of range", nil)
			}
			op.Key = arenas.keys[row.prop]
			v, err := vr.ReadValue()
			if err != nil {
				return Batch{}, err
			}
			op.Value = v
		case common.OpMapDelete:
			if int(row.prop) >= len(arenas.keys) {
				return Batch{}, common.NewDecodeError("map key index out of range", nil)
			}
			op.Key = arenas.keys[row.prop]
		case common.OpStyleStart:
			if int(row.prop) >= len(arenas.keys) {
				return Batch{}, common.NewDecodeError("style key index out of range", nil)
			}
			op.Key = arenas.keys[row.prop]
			info, err := vr.ReadByte()
			if err != nil {
				return Batch{}, err
			}
			op.StyleInfo = info
			v, err := vr.ReadValue()
			if err != nil {
				return Batch{}, err
			}
			op.Value = v
		case common.OpStyleEnd:
			// no payload
		case common.OpTreeMove:
			target, err := vr.ReadContainerRef()
			if err != nil {
				return Batch{}, err
			}
			hasParent, err := vr.ReadByte()
			if err != nil {
				return Batch{}, err
			}
			tm := &common.TreeMoveOp{Target: target}
			if hasParent != 0 {
				parent, err := vr.ReadContainerRef()
				if err != nil {
					return Batch{}, err
				}
				tm.Parent = &parent
			}
			posIdx, err := vr.ReadUvarint()
			if err != nil {
				return Batch{}, err
			}
			if int(posIdx) >= len(arenas.positions) {
				return Batch{}, common.NewDecodeError("tree position index out of range", nil)
			}
			tm.Position = append([]byte(nil), arenas.positions[posIdx]...)
			op.TreeMove = tm
		case common.OpListMove:
			elem, err := readMoveElem(vr, arenas)
			if err != nil {
				return Batch{}, err
			}
			op.MoveElem = elem
		case common.OpListSet:
			elem, err := readMoveElem(vr, arenas)
			if err != nil {
				return Batch{}, err
			}
			op.MoveElem = elem
			v, err := vr.ReadValue()
			if err != nil {
				return Batch{}, err
			}
			op.Value = v
		case common.OpCounterInc:
			v, err := vr.ReadValue()
			if err != nil {
				return Batch{}, err
			}
			op.Value = v
		}
		ops[i] = op
	}

	changes, err := decodeChangesColumns(changesCols, depsCols, arenas, ops)
	if err != nil {
		return Batch{}, err
	}

	out := Batch{Changes: changes, StartVV: startVV, StartFrontiers: startFr}
	if snapshot {
		out.StateBlob = append([]byte(nil), stateInfo...)
	}
	return out, nil
}

func readMoveElem(vr *ValueReader, arenas decodedArenas) (common.IdLp, error) {
	peerIdx, err := vr.ReadUvarint()
	if err != nil {
		return common.IdLp{}, err
	}
	lp, err := vr.ReadUvarint()
	if err != nil {
		return common.IdLp{}, err
	}
	if int(peerIdx) >= len(arenas.peers) {
		return common.IdLp{}, common.NewDecodeError("move-elem peer index out of range", nil)
	}
	return common.IdLp{Peer: arenas.peers[peerIdx], Lamport: common.Lamport(lp)}, nil
}

// ---- ops column set -----------------------------------------------------

func encodeOpsColumns(rows []opRow) []byte {
	n := len(rows)
	containerIdx := make([]int64, n)
	peerIdx := make([]uint64, n)
	kind := make([]int64, n)
	prop := make([]int64, n)
	counter := make([]int64, n)
	atomLen := make([]int64, n)
	for i, r := range rows {
		containerIdx[i] = r.containerIdx
		peerIdx[i] = r.peerIdx
		kind[i] = r.kind
		prop[i] = r.prop
		counter[i] = r.counter
		atomLen[i] = r.atomLen
	}
	var out []byte
	out = appendDeltaVarints(out, containerIdx)
	out = appendRLEColumn(out, peerIdx)
	out = appendDeltaVarints(out, kind)
	out = appendDeltaVarints(out, prop)
	out = appendDeltaVarints(out, counter)
	out = appendDeltaVarints(out, atomLen)
	return out
}

func decodeOpsColumns(b []byte) ([]opRow, error) {
	containerIdx, rest, err := readDeltaVarints(b)
	if err != nil {
		return nil, err
	}
	peerIdx, rest, err := readRLEColumn(rest)
	if err != nil {
		return nil, err
	}
	kind, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	prop, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	counter, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	atomLen, _, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	n := len(containerIdx)
	if len(peerIdx) != n || len(kind) != n || len(prop) != n || len(counter) != n || len(atomLen) != n {
		return nil, common.NewDecodeError("ops column length mismatch", nil)
	}
	rows := make([]opRow, n)
	for i := range rows {
		rows[i] = opRow{
			containerIdx: containerIdx[i],
			peerIdx:      peerIdx[i],
			kind:         kind[i],
			prop:         prop[i],
			counter:      counter[i],
			atomLen:      atomLen[i],
		}
	}
	return rows, nil
}

// ---- delete_starts column set --------------------------------------------

func encodeDeleteStarts(peerIdx []uint64, counter, length []int64) []byte {
	var out []byte
	out = appendRLEColumn(out, peerIdx)
	out = appendDeltaVarints(out, counter)
	out = appendDeltaVarints(out, length)
	return out
}

func decodeDeleteStarts(b []byte) (peerIdx []uint64, counter, length []int64, err error) {
	peerIdx, rest, err := readRLEColumn(b)
	if err != nil {
		return nil, nil, nil, err
	}
	counter, rest, err = readDeltaVarints(rest)
	if err != nil {
		return nil, nil, nil, err
	}
	length, _, err = readDeltaVarints(rest)
	if err != nil {
		return nil, nil, nil, err
	}
	return peerIdx, counter, length, nil
}

// ---- changes + deps column sets -------------------------------------------

func encodeChangesColumns(changes []common.Change, opsCount []int64, arena *arenaBuilder) (changesCols, depsCols []byte) {
	n := len(changes)
	peerIdx := make([]uint64, n)
	counter := make([]int64, n)
	lamport := make([]int64, n)
	length := make([]int64, n)
	timestamp := make([]int64, n)
	depsLen := make([]int64, n)
	depOnSelf := make([]bool, n)
	msgIdx := make([]int64, n)

	var depPeerIdx []uint64
	var depCounter []int64

	for i, c := range changes {
		peerIdx[i] = uint64(arena.internPeer(c.ID.Peer))
		counter[i] = int64(c.ID.Counter)
		lamport[i] = int64(c.Lamport)
		length[i] = int64(c.Len())
		timestamp[i] = c.Timestamp
		depsLen[i] = int64(len(c.Deps))
		depOnSelf[i] = c.DepsOnSelf()
		if c.Message == "" {
			msgIdx[i] = 0
		} else {
			msgIdx[i] = int64(arena.internKey(c.Message)) + 1
		}
		for _, dep := range c.Deps {
			depPeerIdx = append(depPeerIdx, uint64(arena.internPeer(dep.Peer)))
			depCounter = append(depCounter, int64(dep.Counter))
		}
	}

	var cc []byte
	cc = appendRLEColumn(cc, peerIdx)
	cc = appendDeltaVarints(cc, counter)
	cc = appendDeltaVarints(cc, lamport)
	cc = appendDeltaVarints(cc, length)
	cc = appendDeltaVarints(cc, timestamp)
	cc = appendDeltaVarints(cc, depsLen)
	cc = appendBoolRLEColumn(cc, depOnSelf)
	cc = appendDeltaVarints(cc, msgIdx)
	cc = appendDeltaVarints(cc, opsCount)

	var dc []byte
	dc = appendRLEColumn(dc, depPeerIdx)
	dc = appendDeltaVarints(dc, depCounter)

	return cc, dc
}

func decodeChangesColumns(changesCols, depsCols []byte, arenas decodedArenas, ops []common.Op) ([]common.Change, error) {
	peerIdx, rest, err := readRLEColumn(changesCols)
	if err != nil {
		return nil, err
	}
	counter, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	lamport, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	_, rest, err = readDeltaVarints(rest) // total atom length; recomputed from ops on read, not load-bearing
	if err != nil {
		return nil, err
	}
	timestamp, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	depsLen, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	depOnSelf, rest, err := readBoolRLEColumn(rest)
	if err != nil {
		return nil, err
	}
	_ = depOnSelf // informational only; Change.DepsOnSelf() is recomputed from Deps
	msgIdx, rest, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	opsCount, _, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}

	depPeerIdx, rest, err := readRLEColumn(depsCols)
	if err != nil {
		return nil, err
	}
	depCounter, _, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}

	n := len(peerIdx)
	if len(counter) != n || len(lamport) != n || len(timestamp) != n || len(depsLen) != n || len(msgIdx) != n || len(opsCount) != n {
		return nil, common.NewDecodeError("changes column length mismatch", nil)
	}

	changes := make([]common.Change, n)
	depCursor, opCursor := 0, 0
	for i := 0; i < n; i++ {
		if int(peerIdx[i]) >= len(arenas.peers) {
			return nil, common.NewDecodeError("change peer index out of range", nil)
		}
		nd := int(depsLen[i])
		if depCursor+nd > len(depPeerIdx) || depCursor+nd > len(depCounter) {
			return nil, common.NewDecodeError("deps column underflow", nil)
		}
		deps := make(common.Frontiers, nd)
		for j := 0; j < nd; j++ {
			if int(depPeerIdx[depCursor]) >= len(arenas.peers) {
				return nil, common.NewDecodeError("dep peer index out of range", nil)
			}
			deps[j] = common.ID{Peer: arenas.peers[depPeerIdx[depCursor]], Counter: common.Counter(depCounter[depCursor])}
			depCursor++
		}

		no := int(opsCount[i])
		if opCursor+no > len(ops) {
			return nil, common.NewDecodeError("ops column underflow", nil)
		}
		changeOps := append([]common.Op(nil), ops[opCursor:opCursor+no]...)
		opCursor += no

		msg := ""
		if msgIdx[i] > 0 {
			ki := int(msgIdx[i]) - 1
			if ki >= len(arenas.keys) {
				return nil, common.NewDecodeError("message key index out of range", nil)
			}
			msg = arenas.keys[ki]
		}

		changes[i] = common.Change{
			ID:        common.ID{Peer: arenas.peers[peerIdx[i]], Counter: common.Counter(counter[i])},
			Lamport:   common.Lamport(lamport[i]),
			Timestamp: timestamp[i],
			Deps:      deps,
			Ops:       changeOps,
			Message:   msg,
		}
	}
	return changes, nil
}

// ---- start_vv / start_frontiers -------------------------------------------

// encodeVV/decodeVV encode a VersionVector independent of the arena (the
// (peer, counter) pairs are few and not worth dictionary-interning).
func encodeVV(vv common.VersionVector) []byte {
	peers := vv.SortedPeers()
	var out []byte
	peerVals := make([]uint64, len(peers))
	counterVals := make([]int64, len(peers))
	for i, p := range peers {
		peerVals[i] = uint64(p)
		counterVals[i] = int64(vv[p])
	}
	out = appendUvarintColumn(out, peerVals)
	out = appendDeltaVarints(out, counterVals)
	return out
}

func decodeVV(b []byte) (common.VersionVector, error) {
	peers, rest, err := readUvarintColumn(b)
	if err != nil {
		return nil, err
	}
	counters, _, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	if len(peers) != len(counters) {
		return nil, common.NewDecodeError("vv column length mismatch", nil)
	}
	vv := common.NewVersionVector()
	for i, p := range peers {
		vv[common.PeerID(p)] = common.Counter(counters[i])
	}
	return vv, nil
}

// encodeFrontiersFlat/decodeFrontiersFlat encode a Frontiers set the same
// arena-independent way as encodeVV.
func encodeFrontiersFlat(f common.Frontiers) []byte {
	peerVals := make([]uint64, len(f))
	counterVals := make([]int64, len(f))
	for i, id := range f {
		peerVals[i] = uint64(id.Peer)
		counterVals[i] = int64(id.Counter)
	}
	var out []byte
	out = appendUvarintColumn(out, peerVals)
	out = appendDeltaVarints(out, counterVals)
	return out
}

func decodeFrontiersFlat(b []byte, _ decodedArenas) (common.Frontiers, error) {
	peers, rest, err := readUvarintColumn(b)
	if err != nil {
		return nil, err
	}
	counters, _, err := readDeltaVarints(rest)
	if err != nil {
		return nil, err
	}
	if len(peers) != len(counters) {
		return nil, common.NewDecodeError("frontiers column length mismatch", nil)
	}
	out := make(common.Frontiers, len(peers))
	for i := range peers {
		out[i] = common.ID{Peer: common.PeerID(peers[i]), Counter: common.Counter(counters[i])}
	}
	return out, nil
}
