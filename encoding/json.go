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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ugorji/go/codec"

	"github.com/loro-dev/loro-go-core/common"
)

const jsonSchemaVersion = 0

// JsonBatch is the human-readable mirror of Batch, per spec.md §4.8. It
// carries the same information as the columnar blob but self-describes
// every field, at the cost of one JSON object per op.
type JsonBatch struct {
	SchemaVersion uint8            `codec:"schema_version"`
	StartVersion  map[string]int64 `codec:"start_version"`
	Peers         []uint64         `codec:"peers"`
	Changes       []JsonChange     `codec:"changes"`
}

// JsonChange mirrors common.Change; deps/id use the "<counter>@<peer>"
// form spec.md §6 fixes for the JSON schema.
type JsonChange struct {
	ID        string   `codec:"id"`
	Lamport   uint32   `codec:"lamport"`
	Timestamp int64    `codec:"timestamp"`
	Deps      []string `codec:"deps"`
	Msg       string   `codec:"msg,omitempty"`
	Ops       []JsonOp `codec:"ops"`
}

// JsonOp self-describes its container and carries an op-kind-specific
// payload. Only the fields relevant to Type are populated; the rest are
// omitted from the encoded JSON.
type JsonOp struct {
	Container string `codec:"container"`
	Type      string `codec:"type"`

	Pos   *int64      `codec:"pos,omitempty"`
	Value interface{} `codec:"value,omitempty"`

	IDStart   *string `codec:"id_start,omitempty"`
	SignedLen *int64  `codec:"signed_len,omitempty"`

	Key  *string `codec:"key,omitempty"`
	Info *uint8  `codec:"info,omitempty"`

	Target      *string `codec:"target,omitempty"`
	Parent      *string `codec:"parent,omitempty"`
	PositionHex *string `codec:"position,omitempty"`

	// ElemPeerIdx indexes into the outer JsonBatch.Peers list rather than
	// carrying the raw peer value, per spec.md §4.8's "PeerIDs inside ops
	// are re-indexed into the outer peers list on write".
	ElemPeerIdx *int    `codec:"elem_peer_idx,omitempty"`
	ElemLamport *uint32 `codec:"elem_lamport,omitempty"`

	Prop *int64 `codec:"prop,omitempty"`
}

var jsonHandle codec.JsonHandle

// EncodeJSON renders b using the JSON update schema.
func EncodeJSON(b Batch) ([]byte, error) {
	jb, err := toJsonBatch(b)
	if err != nil {
		return nil, err
	}
	var out []byte
	enc := codec.NewEncoderBytes(&out, &jsonHandle)
	if err := enc.Encode(jb); err != nil {
		return nil, common.NewDecodeError("json encode failed", err)
	}
	return out, nil
}

// DecodeJSON parses the JSON update schema back into a Batch.
func DecodeJSON(raw []byte) (Batch, error) {
	var jb JsonBatch
	dec := codec.NewDecoderBytes(raw, &jsonHandle)
	if err := dec.Decode(&jb); err != nil {
		return Batch{}, common.NewDecodeError("json decode failed", err)
	}
	return fromJsonBatch(jb)
}

func toJsonBatch(b Batch) (JsonBatch, error) {
	peerSet := map[common.PeerID]int{}
	peerOf := func(p common.PeerID) int {
		if idx, ok := peerSet[p]; ok {
			return idx
		}
		idx := len(peerSet)
		peerSet[p] = idx
		return idx
	}
	for _, p := range b.StartVV.SortedPeers() {
		peerOf(p)
	}
	for _, c := range b.Changes {
		peerOf(c.ID.Peer)
		for _, d := range c.Deps {
			peerOf(d.Peer)
		}
	}

	startVersion := make(map[string]int64, len(b.StartVV))
	for p, c := range b.StartVV {
		startVersion[strconv.FormatUint(uint64(p), 10)] = int64(c)
	}

	jb := JsonBatch{SchemaVersion: jsonSchemaVersion, StartVersion: startVersion}

	jsonChanges := make([]JsonChange, len(b.Changes))
	for i, c := range b.Changes {
		deps := make([]string, len(c.Deps))
		for j, d := range c.Deps {
			deps[j] = formatID(d)
		}
		ops := make([]JsonOp, len(c.Ops))
		for j, op := range c.Ops {
			jop, err := opToJSON(op, peerOf)
			if err != nil {
				return JsonBatch{}, err
			}
			ops[j] = jop
		}
		jsonChanges[i] = JsonChange{
			ID:        formatID(c.ID),
			Lamport:   uint32(c.Lamport),
			Timestamp: c.Timestamp,
			Deps:      deps,
			Msg:       c.Message,
			Ops:       ops,
		}
	}
	jb.Changes = jsonChanges

	jb.Peers = make([]uint64, len(peerSet))
	for p, idx := range peerSet {
		jb.Peers[idx] = uint64(p)
	}
	return jb, nil
}

func fromJsonBatch(jb JsonBatch) (Batch, error) {
	startVV := common.NewVersionVector()
	for k, v := range jb.StartVersion {
		p, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return Batch{}, common.NewDecodeError("bad start_version peer key", err)
		}
		startVV[common.PeerID(p)] = common.Counter(v)
	}

	peerAt := func(idx int) (common.PeerID, error) {
		if idx < 0 || idx >= len(jb.Peers) {
			return 0, common.NewDecodeError("peer index out of range", nil)
		}
		return common.PeerID(jb.Peers[idx]), nil
	}

	changes := make([]common.Change, len(jb.Changes))
	for i, jc := range jb.Changes {
		id, err := parseID(jc.ID)
		if err != nil {
			return Batch{}, err
		}
		deps := make(common.Frontiers, len(jc.Deps))
		for j, ds := range jc.Deps {
			d, err := parseID(ds)
			if err != nil {
				return Batch{}, err
			}
			deps[j] = d
		}
		ops := make([]common.Op, len(jc.Ops))
		for j, jop := range jc.Ops {
			op, err := opFromJSON(jop, peerAt)
			if err != nil {
				return Batch{}, err
			}
			ops[j] = op
		}
		changes[i] = common.Change{
			ID:        id,
			Lamport:   common.Lamport(jc.Lamport),
			Timestamp: jc.Timestamp,
			Deps:      deps,
			Ops:       ops,
			Message:   jc.Msg,
		}
	}

	return Batch{Changes: changes, StartVV: startVV}, nil
}

func formatID(id common.ID) string {
	return fmt.Sprintf("%d@%d", id.Counter, id.Peer)
}

func parseID(s string) (common.ID, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return common.ID{}, common.NewDecodeError("malformed id string "+s, nil)
	}
	counter, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return common.ID{}, common.NewDecodeError("malformed id counter "+s, err)
	}
	peer, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return common.ID{}, common.NewDecodeError("malformed id peer "+s, err)
	}
	return common.ID{Peer: common.PeerID(peer), Counter: common.Counter(counter)}, nil
}

func parseContainerKind(s string) (common.ContainerType, bool) {
	switch s {
	case "Text":
		return common.ContainerText, true
	case "Map":
		return common.ContainerMap, true
	case "List":
		return common.ContainerList, true
	case "MovableList":
		return common.ContainerMovableList, true
	case "Tree":
		return common.ContainerTree, true
	case "Counter":
		return common.ContainerCounter, true
	case "Unknown":
		return common.ContainerUnknown, true
	default:
		return 0, false
	}
}

// parseContainerID is the inverse of common.ContainerID.String(): either
// "cid:root-<name>:<Kind>" or "cid:<counter>@<peer>:<Kind>".
func parseContainerID(s string) (common.ContainerID, error) {
	rest := strings.TrimPrefix(s, "cid:")
	if rest == s {
		return common.ContainerID{}, common.NewDecodeError("malformed container id "+s, nil)
	}
	lastColon := strings.LastIndex(rest, ":")
	if lastColon < 0 {
		return common.ContainerID{}, common.NewDecodeError("malformed container id "+s, nil)
	}
	body, kindStr := rest[:lastColon], rest[lastColon+1:]
	kind, ok := parseContainerKind(kindStr)
	if !ok {
		return common.ContainerID{}, common.NewDecodeError("unknown container kind "+kindStr, nil)
	}
	if name, ok := strings.CutPrefix(body, "root-"); ok {
		return common.RootContainerID(name, kind), nil
	}
	id, err := parseID(body)
	if err != nil {
		return common.ContainerID{}, err
	}
	return common.NormalContainerID(id.Peer, id.Counter, kind), nil
}

func opKindName(k common.OpKind) string {
	switch k {
	case common.OpInsert:
		return "insert"
	case common.OpDelete:
		return "delete"
	case common.OpMapSet:
		return "map_set"
	case common.OpMapDelete:
		return "map_delete"
	case common.OpTreeMove:
		return "tree_move"
	case common.OpStyleStart:
		return "style_start"
	case common.OpStyleEnd:
		return "style_end"
	case common.OpListMove:
		return "list_move"
	case common.OpListSet:
		return "list_set"
	case common.OpCounterInc:
		return "counter_inc"
	default:
		return "unknown"
	}
}

func opKindFromName(s string) (common.OpKind, bool) {
	switch s {
	case "insert":
		return common.OpInsert, true
	case "delete":
		return common.OpDelete, true
	case "map_set":
		return common.OpMapSet, true
	case "map_delete":
		return common.OpMapDelete, true
	case "tree_move":
		return common.OpTreeMove, true
	case "style_start":
		return common.OpStyleStart, true
	case "style_end":
		return common.OpStyleEnd, true
	case "list_move":
		return common.OpListMove, true
	case "list_set":
		return common.OpListSet, true
	case "counter_inc":
		return common.OpCounterInc, true
	default:
		return 0, false
	}
}

func loroValueToJSON(v common.LoroValue) interface{} {
	switch v.Kind {
	case common.ValueNull:
		return nil
	case common.ValueBool:
		return v.Bool
	case common.ValueInt64:
		return v.Int64
	case common.ValueFloat64:
		return v.Float64
	case common.ValueString:
		return v.Str
	case common.ValueBytes:
		return v.Bytes
	case common.ValueList:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = loroValueToJSON(e)
		}
		return out
	case common.ValueMap:
		out := make(map[string]interface{}, len(v.Map))
		for k, mv := range v.Map {
			out[k] = loroValueToJSON(mv)
		}
		return out
	case common.ValueContainerID:
		if v.Cid == nil {
			return nil
		}
		return v.Cid.String()
	default:
		return nil
	}
}

func loroValueFromJSON(raw interface{}) common.LoroValue {
	switch x := raw.(type) {
	case nil:
		return common.Null()
	case bool:
		return common.BoolValue(x)
	case string:
		return common.StringValue(x)
	case []byte:
		return common.BytesValue(x)
	case []interface{}:
		out := make([]common.LoroValue, len(x))
		for i, e := range x {
			out[i] = loroValueFromJSON(e)
		}
		return common.ListValue(out)
	case map[string]interface{}:
		out := make(map[string]common.LoroValue, len(x))
		for k, v := range x {
			out[k] = loroValueFromJSON(v)
		}
		return common.MapValue(out)
	case int64:
		return common.IntValue(x)
	case float64:
		if x == float64(int64(x)) {
			return common.IntValue(int64(x))
		}
		return common.FloatValue(x)
	default:
		return common.Null()
	}
}

func opToJSON(op common.Op, peerOf func(common.PeerID) int) (JsonOp, error) {
	jop := JsonOp{Container: op.Container.String(), Type: opKindName(op.Kind)}
	switch op.Kind {
	case common.OpInsert:
		pos := op.Prop
		jop.Pos = &pos
		jop.Value = loroValueToJSON(op.Value)
	case common.OpDelete:
		idStart := formatID(op.DeleteID)
		jop.IDStart = &idStart
		signedLen := int64(op.DeleteLen)
		jop.SignedLen = &signedLen
	case common.OpMapSet:
		key := op.Key
		jop.Key = &key
		jop.Value = loroValueToJSON(op.Value)
	case common.OpMapDelete:
		key := op.Key
		jop.Key = &key
	case common.OpStyleStart:
		key := op.Key
		jop.Key = &key
		info := op.StyleInfo
		jop.Info = &info
		jop.Value = loroValueToJSON(op.Value)
	case common.OpStyleEnd:
		// no payload
	case common.OpTreeMove:
		tm := op.TreeMove
		if tm == nil {
			tm = &common.TreeMoveOp{}
		}
		target := tm.Target.String()
		jop.Target = &target
		if tm.Parent != nil {
			parent := tm.Parent.String()
			jop.Parent = &parent
		}
		posHex := hex.EncodeToString(tm.Position)
		jop.PositionHex = &posHex
	case common.OpListMove:
		idx := peerOf(op.MoveElem.Peer)
		jop.ElemPeerIdx = &idx
		lp := uint32(op.MoveElem.Lamport)
		jop.ElemLamport = &lp
	case common.OpListSet:
		idx := peerOf(op.MoveElem.Peer)
		jop.ElemPeerIdx = &idx
		lp := uint32(op.MoveElem.Lamport)
		jop.ElemLamport = &lp
		jop.Value = loroValueToJSON(op.Value)
	case common.OpCounterInc:
		jop.Value = loroValueToJSON(op.Value)
	default:
		prop := op.Prop
		jop.Prop = &prop
		jop.Value = loroValueToJSON(op.Value)
	}
	return jop, nil
}

func opFromJSON(jop JsonOp, peerAt func(int) (common.PeerID, error)) (common.Op, error) {
	container, err := parseContainerID(jop.Container)
	if err != nil {
		return common.Op{}, err
	}
	kind, ok := opKindFromName(jop.Type)
	if !ok {
		kind = common.OpKind(255) // FutureOp::Unknown pass-through
	}
	op := common.Op{Container: container, Kind: kind, Len: 1}

	switch kind {
	case common.OpInsert:
		if jop.Pos != nil {
			op.Prop = *jop.Pos
		}
		op.Value = loroValueFromJSON(jop.Value)
		if op.Value.Kind == common.ValueString {
			op.Len = utf8.RuneCountInString(op.Value.Str)
		}
	case common.OpDelete:
		if jop.IDStart == nil {
			return common.Op{}, common.NewDecodeError("delete op missing id_start", nil)
		}
		id, err := parseID(*jop.IDStart)
		if err != nil {
			return common.Op{}, err
		}
		op.DeleteID = id
		if jop.SignedLen != nil {
			op.DeleteLen = int(*jop.SignedLen)
		}
	case common.OpMapSet:
		if jop.Key != nil {
			op.Key = *jop.Key
		}
		op.Value = loroValueFromJSON(jop.Value)
	case common.OpMapDelete:
		if jop.Key != nil {
			op.Key = *jop.Key
		}
	case common.OpStyleStart:
		if jop.Key != nil {
			op.Key = *jop.Key
		}
		if jop.Info != nil {
			op.StyleInfo = *jop.Info
		}
		op.Value = loroValueFromJSON(jop.Value)
	case common.OpStyleEnd:
		// no payload
	case common.OpTreeMove:
		tm := &common.TreeMoveOp{}
		if jop.Target != nil {
			target, err := parseContainerID(*jop.Target)
			if err != nil {
				return common.Op{}, err
			}
			tm.Target = target
		}
		if jop.Parent != nil {
			parent, err := parseContainerID(*jop.Parent)
			if err != nil {
				return common.Op{}, err
			}
			tm.Parent = &parent
		}
		if jop.PositionHex != nil {
			pos, err := hex.DecodeString(*jop.PositionHex)
			if err != nil {
				return common.Op{}, common.NewDecodeError("malformed tree position hex", err)
			}
			tm.Position = pos
		}
		op.TreeMove = tm
	case common.OpListMove, common.OpListSet:
		if jop.ElemPeerIdx != nil {
			p, err := peerAt(*jop.ElemPeerIdx)
			if err != nil {
				return common.Op{}, err
			}
			op.MoveElem.Peer = p
		}
		if jop.ElemLamport != nil {
			op.MoveElem.Lamport = common.Lamport(*jop.ElemLamport)
		}
		if kind == common.OpListSet {
			op.Value = loroValueFromJSON(jop.Value)
		}
	case common.OpCounterInc:
		op.Value = loroValueFromJSON(jop.Value)
	default:
		if jop.Prop != nil {
			op.Prop = *jop.Prop
		}
		op.Value = loroValueFromJSON(jop.Value)
	}
	return op, nil
}
