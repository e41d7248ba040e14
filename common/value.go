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

package common

// ValueKind tags a LoroValue's dynamic type. The tag values are stable
// across versions since they're written as a raw byte in the wire format's
// raw_values arena (encoding.ValueWriter).
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt64
	ValueFloat64
	ValueString
	ValueBytes
	ValueList
	ValueMap
	ValueContainerID
)

// LoroValue is the dynamically-typed value container used by map entries,
// list elements, and op payloads. Exactly one of the typed fields is valid,
// selected by Kind.
type LoroValue struct {
	Kind ValueKind

	Bool    bool
	Int64   int64
	Float64 float64
	Str     string
	Bytes   []byte
	List    []LoroValue
	Map     map[string]LoroValue
	Cid     *ContainerID
}

func Null() LoroValue                { return LoroValue{Kind: ValueNull} }
func BoolValue(b bool) LoroValue     { return LoroValue{Kind: ValueBool, Bool: b} }
func IntValue(i int64) LoroValue     { return LoroValue{Kind: ValueInt64, Int64: i} }
func FloatValue(f float64) LoroValue { return LoroValue{Kind: ValueFloat64, Float64: f} }
func StringValue(s string) LoroValue { return LoroValue{Kind: ValueString, Str: s} }
func BytesValue(b []byte) LoroValue  { return LoroValue{Kind: ValueBytes, Bytes: b} }
func ListValue(l []LoroValue) LoroValue {
	return LoroValue{Kind: ValueList, List: l}
}
func MapValue(m map[string]LoroValue) LoroValue {
	return LoroValue{Kind: ValueMap, Map: m}
}
func ContainerIDValue(cid ContainerID) LoroValue {
	return LoroValue{Kind: ValueContainerID, Cid: &cid}
}

// IsNull reports whether v is the null value.
func (v LoroValue) IsNull() bool { return v.Kind == ValueNull }

// Equal performs a deep structural comparison between two values.
func (v LoroValue) Equal(other LoroValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNull:
		return true
	case ValueBool:
		return v.Bool == other.Bool
	case ValueInt64:
		return v.Int64 == other.Int64
	case ValueFloat64:
		return v.Float64 == other.Float64
	case ValueString:
		return v.Str == other.Str
	case ValueBytes:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	case ValueList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for k, mv := range v.Map {
			ov, ok := other.Map[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case ValueContainerID:
		if v.Cid == nil || other.Cid == nil {
			return v.Cid == other.Cid
		}
		return *v.Cid == *other.Cid
	default:
		return false
	}
}

// Redacted returns the "neutral" placeholder for this value's kind, used by
// encoding.Redact: Int64 and Float64 become 0; every other kind, strings
// included, becomes Null (the caller substitutes the Unicode replacement
// run for text runs specifically since that needs a length).
func (v LoroValue) Redacted() LoroValue {
	switch v.Kind {
	case ValueInt64:
		return IntValue(0)
	case ValueFloat64:
		return FloatValue(0)
	default:
		return Null()
	}
}
