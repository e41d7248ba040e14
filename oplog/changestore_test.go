// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package oplog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go-core/common"
)

func newTestChangeStore() *ChangeStore {
	return NewChangeStore(256, 10_000, nil, nil)
}

func TestChangeStoreInsertAndGetChange(t *testing.T) {
	s := newTestChangeStore()
	c0 := textInsert(1, 0, 0, "hello")
	c1 := textInsert(1, 5, 5, " world")

	require.NoError(t, s.InsertChange(c0))
	require.NoError(t, s.InsertChange(c1))

	got, ok, err := s.GetChange(common.ID{Peer: 1, Counter: 3})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c0.ID, got.ID)

	got, ok, err = s.GetChange(common.ID{Peer: 1, Counter: 7})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c1.ID, got.ID)

	_, ok, err = s.GetChange(common.ID{Peer: 2, Counter: 0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChangeStoreSplitsOversizedChanges(t *testing.T) {
	s := NewChangeStore(40, 10_000, nil, nil)
	big := textInsert(1, 0, 0, "0123456789abcdefghijklmnopqrstuvwxyz0123456789abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, s.InsertChange(big))

	got, ok, err := s.GetChange(common.ID{Peer: 1, Counter: big.CounterEnd() - 1})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, common.PeerID(1), got.ID.Peer)
}

func TestChangeStoreFlushAndReload(t *testing.T) {
	s := newTestChangeStore()
	c0 := textInsert(1, 0, 0, "hello")
	require.NoError(t, s.InsertChange(c0))

	vv := common.VersionVector{1: c0.CounterEnd()}
	frontiers := common.Frontiers{c0.LastID()}
	require.NoError(t, s.FlushAndCompact(vv, frontiers))

	raw, err := s.ExportBytes()
	require.NoError(t, err)

	reloaded, fr, err := LoadChangeStore(raw, 256, 10_000, nil, nil)
	require.NoError(t, err)
	require.True(t, fr.Equal(frontiers))
	require.True(t, reloaded.ExternalVV().Equal(vv))

	got, ok, err := reloaded.GetChange(c0.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c0.Ops[0].Value.Str, got.Ops[0].Value.Str)
}

func TestChangeStoreFlushRejectsHole(t *testing.T) {
	s := newTestChangeStore()
	c1 := textInsert(1, 5, 5, "x") // no predecessor ever inserted: a hole at [0,5)
	c1.Deps = nil
	require.NoError(t, s.InsertChange(c1))

	err := s.FlushAndCompact(common.VersionVector{1: c1.CounterEnd()}, nil)
	require.Error(t, err)
}

func TestChangeStoreShallowRootPersists(t *testing.T) {
	s := newTestChangeStore()
	vv := common.VersionVector{1: 10}
	fr := common.Frontiers{{Peer: 1, Counter: 9}}
	s.SetShallowRoot(vv, fr)

	gotVV, gotFR, ok := s.ShallowRoot()
	require.True(t, ok)
	require.True(t, gotVV.Equal(vv))
	require.True(t, gotFR.Equal(fr))
}

func TestChangeStoreIterChanges(t *testing.T) {
	s := newTestChangeStore()
	c0 := textInsert(1, 0, 0, "hello")
	c1 := textInsert(1, 5, 5, " world")
	require.NoError(t, s.InsertChange(c0))
	require.NoError(t, s.InsertChange(c1))

	refs, err := s.IterChanges(common.IdSpan{Peer: 1, CounterStart: 0, CounterEnd: 11})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	first, err := refs[0].Change()
	require.NoError(t, err)
	require.Equal(t, c0.ID, first.ID)
}
