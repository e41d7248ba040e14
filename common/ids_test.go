// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package common

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIDBytesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		peer := PeerID(rapid.Uint64().Draw(t, "peer"))
		counter := Counter(rapid.Int32Range(0, 1<<30).Draw(t, "counter"))
		id := NewID(peer, counter)
		b := id.Bytes()
		got, err := IDFromBytes(b[:])
		require.NoError(t, err)
		require.Equal(t, id, got)
	})
}

func TestIDBytesPreserveOrder(t *testing.T) {
	a := NewID(1, 5)
	b := NewID(1, 6)
	ba, bb := a.Bytes(), b.Bytes()
	require.True(t, a.Less(b))
	require.True(t, string(ba[:]) < string(bb[:]))
}

func TestVersionVectorIncludes(t *testing.T) {
	vv := NewVersionVector()
	vv.Extend(NewID(1, 0), 5)
	require.True(t, vv.Includes(NewID(1, 4)))
	require.False(t, vv.Includes(NewID(1, 5)))
	require.False(t, vv.Includes(NewID(2, 0)))
}

func TestVersionVectorMergeIsUnionOfUpperBounds(t *testing.T) {
	a := VersionVector{1: 5, 2: 2}
	b := VersionVector{2: 7, 3: 1}
	a.Merge(b)
	require.Equal(t, Counter(5), a[1])
	require.Equal(t, Counter(7), a[2])
	require.Equal(t, Counter(1), a[3])
}

func TestFrontiersEqualIgnoresOrder(t *testing.T) {
	a := Frontiers{NewID(1, 2), NewID(2, 3)}
	b := Frontiers{NewID(2, 3), NewID(1, 2)}
	require.True(t, a.Equal(b))
}

func TestFrontiersRemove(t *testing.T) {
	f := Frontiers{NewID(1, 2), NewID(2, 3)}
	f = f.Remove(NewID(1, 2))
	require.Len(t, f, 1)
	require.Equal(t, NewID(2, 3), f[0])
}

func TestContainerIDOrderingRootsBeforeNormal(t *testing.T) {
	root := RootContainerID("doc", ContainerText)
	normal := NormalContainerID(1, 0, ContainerText)
	require.True(t, root.Less(normal))
	require.False(t, normal.Less(root))
}

func TestLoroValueEqualDeep(t *testing.T) {
	a := MapValue(map[string]LoroValue{"x": IntValue(1), "y": ListValue([]LoroValue{StringValue("a")})})
	b := MapValue(map[string]LoroValue{"x": IntValue(1), "y": ListValue([]LoroValue{StringValue("a")})})
	require.True(t, a.Equal(b))
	c := MapValue(map[string]LoroValue{"x": IntValue(2)})
	require.False(t, a.Equal(c))
}
