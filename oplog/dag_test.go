// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package oplog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go-core/common"
)

func TestDagInsertAssignsMonotoneLamportAndFrontiers(t *testing.T) {
	d := NewDag(nil, nil)

	c0 := textInsert(1, 0, 0, "a")
	c0.Deps = nil
	lp, err := d.TryInsertChange(c0)
	require.NoError(t, err)
	require.Equal(t, common.Lamport(0), lp)
	require.Equal(t, common.Frontiers{c0.LastID()}, d.Frontiers())

	c1 := textInsert(1, 1, 0, "b")
	c1.Deps = common.Frontiers{c0.LastID()}
	lp, err = d.TryInsertChange(c1)
	require.NoError(t, err)
	require.Equal(t, common.Lamport(1), lp)
	require.Equal(t, common.Frontiers{c1.LastID()}, d.Frontiers(), "c1's self-dep on c0 removes c0 from the frontier")

	vv := d.VersionVector()
	require.Equal(t, common.Counter(2), vv.Get(1))
}

func TestDagMergesAdjacentSelfDependentRuns(t *testing.T) {
	d := NewDag(nil, nil)
	c0 := textInsert(1, 0, 0, "a")
	c0.Deps = nil
	_, err := d.TryInsertChange(c0)
	require.NoError(t, err)

	c1 := textInsert(1, 1, 0, "b")
	c1.Deps = common.Frontiers{c0.LastID()}
	_, err = d.TryInsertChange(c1)
	require.NoError(t, err)

	require.Len(t, d.runs[1], 1, "adjacent same-peer runs sharing a single self-dep merge into one DagNode")
	require.Equal(t, 2, d.runs[1][0].Len)
}

func TestDagQueuesChangeWithUnresolvedDep(t *testing.T) {
	d := NewDag(nil, nil)

	// peer 2's change depends on peer 1's change, which hasn't arrived yet.
	c := textInsert(2, 0, 0, "a")
	c.Deps = common.Frontiers{{Peer: 1, Counter: 0}}
	_, err := d.TryInsertChange(c)
	require.ErrorIs(t, err, common.ErrUnknownDepPeer)
	require.Equal(t, 1, d.PendingLen())

	// Duplicate arrival while still pending is deduped, not re-queued.
	_, err = d.TryInsertChange(c)
	require.ErrorIs(t, err, common.ErrUnknownDepPeer)
	require.Equal(t, 1, d.PendingLen())

	dep := textInsert(1, 0, 0, "z")
	dep.Deps = nil
	_, err = d.TryInsertChange(dep)
	require.NoError(t, err)

	inserted := d.RetryPending()
	require.Len(t, inserted, 1)
	require.Equal(t, 0, d.PendingLen())

	lp, ok := d.lamportAt(c.ID)
	require.True(t, ok)
	require.Equal(t, common.Lamport(1), lp)
}

func TestDagRejectsDepsBeforeShallowRoot(t *testing.T) {
	d := NewDag(nil, nil)
	d.SetShallowRoot(common.VersionVector{1: 5}, common.Frontiers{{Peer: 1, Counter: 4}})

	c := textInsert(1, 10, 0, "a")
	c.Deps = common.Frontiers{{Peer: 1, Counter: 2}} // trimmed away
	_, err := d.TryInsertChange(c)
	require.ErrorIs(t, err, common.ErrImportUpdatesOutdatedVersion)
	require.Equal(t, 0, d.PendingLen(), "a rejected change is never queued")
}
