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

import "fmt"

// ContainerType is the closed set of container kinds the wire format knows
// about, plus Unknown for forward compatibility.
type ContainerType uint8

const (
	ContainerText ContainerType = iota
	ContainerMap
	ContainerList
	ContainerMovableList
	ContainerTree
	ContainerCounter
	ContainerUnknown
)

func (t ContainerType) String() string {
	switch t {
	case ContainerText:
		return "Text"
	case ContainerMap:
		return "Map"
	case ContainerList:
		return "List"
	case ContainerMovableList:
		return "MovableList"
	case ContainerTree:
		return "Tree"
	case ContainerCounter:
		return "Counter"
	default:
		return "Unknown"
	}
}

// ContainerID identifies a container: either a well-known root (named at
// the document level) or a "normal" container identified by the ID of the
// operation that created it.
type ContainerID struct {
	IsRoot bool
	Kind   ContainerType

	// Root form.
	RootName string

	// Normal form.
	Peer    PeerID
	Counter Counter

	// UnknownKindTag carries the raw kind byte when Kind == ContainerUnknown,
	// so forward-incompatible blobs round-trip without losing the tag.
	UnknownKindTag uint8
}

// RootContainerID builds a well-known root container id.
func RootContainerID(name string, kind ContainerType) ContainerID {
	return ContainerID{IsRoot: true, Kind: kind, RootName: name}
}

// NormalContainerID builds a container id from its creating op.
func NormalContainerID(peer PeerID, counter Counter, kind ContainerType) ContainerID {
	return ContainerID{IsRoot: false, Kind: kind, Peer: peer, Counter: counter}
}

func (c ContainerID) String() string {
	if c.IsRoot {
		return fmt.Sprintf("cid:root-%s:%s", c.RootName, c.Kind)
	}
	return fmt.Sprintf("cid:%d@%d:%s", c.Counter, c.Peer, c.Kind)
}

// CreatorID returns the ID of the op that created this container. Only
// meaningful for Normal containers; callers must check IsRoot first.
func (c ContainerID) CreatorID() ID {
	return ID{Peer: c.Peer, Counter: c.Counter}
}

// Less gives ContainerIDs a total order: roots before normals, then by
// kind, then Root.Name or (Peer, Counter) — the ordering
// encoding/reorder.go uses to place containers in the wire-format
// dictionary for maximal locality.
func (c ContainerID) Less(other ContainerID) bool {
	if c.IsRoot != other.IsRoot {
		return c.IsRoot // roots sort first
	}
	if c.Kind != other.Kind {
		return c.Kind < other.Kind
	}
	if c.IsRoot {
		return c.RootName < other.RootName
	}
	if c.Peer != other.Peer {
		return c.Peer < other.Peer
	}
	return c.Counter < other.Counter
}
