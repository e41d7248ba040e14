// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/config"
)

func textInsertOp(peer common.PeerID, counter common.Counter, text string) common.Op {
	cid := common.NormalContainerID(peer, 0, common.ContainerText)
	return common.Op{
		Container: cid,
		Counter:   counter,
		Len:       len([]rune(text)),
		Kind:      common.OpInsert,
		Value:     common.StringValue(text),
	}
}

func newTestOpLog() *OpLog {
	cfg := config.Default()
	return New(cfg, nil, nil)
}

func TestCommitLocalAssignsCounterDepsAndLamport(t *testing.T) {
	o := newTestOpLog()

	c0, err := o.CommitLocal(1, []common.Op{textInsertOp(1, 0, "hello")}, 1000, "")
	require.NoError(t, err)
	require.Equal(t, common.Counter(0), c0.ID.Counter)
	require.Empty(t, c0.Deps)
	require.Equal(t, common.Lamport(0), c0.Lamport)

	c1, err := o.CommitLocal(1, []common.Op{textInsertOp(1, 5, " world")}, 1001, "")
	require.NoError(t, err)
	require.Equal(t, common.Counter(5), c1.ID.Counter)
	require.True(t, c1.Deps.Contains(c0.LastID()))
	require.Equal(t, common.Lamport(5), c1.Lamport)

	require.Equal(t, common.Counter(11), o.VersionVector().Get(1))
	require.Equal(t, common.Frontiers{c1.LastID()}, o.Frontiers())
}

func TestExportImportRoundTrip(t *testing.T) {
	a := newTestOpLog()
	_, err := a.CommitLocal(1, []common.Op{textInsertOp(1, 0, "hello ")}, 1000, "")
	require.NoError(t, err)
	_, err = a.CommitLocal(1, []common.Op{textInsertOp(1, 6, "world")}, 1001, "")
	require.NoError(t, err)

	blob, err := a.ExportAll()
	require.NoError(t, err)

	b := newTestOpLog()
	res, err := b.Import(blob)
	require.NoError(t, err)
	require.NoError(t, res.Rejected)
	require.Equal(t, 2, res.Applied)
	require.True(t, res.VersionVector.Equal(a.VersionVector()))
	require.True(t, b.Frontiers().Equal(a.Frontiers()))

	c, ok, err := b.ChangeStore().GetChange(common.ID{Peer: 1, Counter: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello ", c.Ops[0].Value.Str)
}

func TestImportIsIdempotent(t *testing.T) {
	a := newTestOpLog()
	_, err := a.CommitLocal(1, []common.Op{textInsertOp(1, 0, "hi")}, 1000, "")
	require.NoError(t, err)
	blob, err := a.ExportAll()
	require.NoError(t, err)

	b := newTestOpLog()
	res1, err := b.Import(blob)
	require.NoError(t, err)
	require.Equal(t, 1, res1.Applied)

	res2, err := b.Import(blob)
	require.NoError(t, err)
	require.Equal(t, 0, res2.Applied)
	require.True(t, res2.VersionVector.Equal(res1.VersionVector))
}

func TestImportQueuesUnknownDepPeerThenResolves(t *testing.T) {
	a := newTestOpLog()
	c0, err := a.CommitLocal(1, []common.Op{textInsertOp(1, 0, "a")}, 1000, "")
	require.NoError(t, err)
	c1, err := a.CommitLocal(1, []common.Op{textInsertOp(1, 1, "b")}, 1001, "")
	require.NoError(t, err)

	blob1, err := a.ExportFrom(common.VersionVector{1: c0.CounterEnd()})
	require.NoError(t, err)

	b := newTestOpLog()
	res, err := b.Import(blob1)
	require.NoError(t, err)
	require.Equal(t, 0, res.Applied)
	require.Equal(t, 1, res.Pending)

	full, err := a.ExportFrom(common.NewVersionVector())
	require.NoError(t, err)
	res2, err := b.Import(full)
	require.NoError(t, err)
	require.Equal(t, 2, res2.Applied)
	require.Equal(t, 0, res2.Pending)
	require.True(t, res2.VersionVector.Equal(common.VersionVector{1: c1.CounterEnd()}))
}

func TestFlushExportAndReloadRebuildsDag(t *testing.T) {
	a := newTestOpLog()
	c0, err := a.CommitLocal(1, []common.Op{textInsertOp(1, 0, "hello")}, 1000, "")
	require.NoError(t, err)
	c1, err := a.CommitLocal(2, []common.Op{textInsertOp(2, 0, "world")}, 1001, "")
	require.NoError(t, err)

	raw, err := a.FlushAndExportBytes()
	require.NoError(t, err)

	reloaded, err := LoadFromBytes(raw, config.Default(), nil, nil)
	require.NoError(t, err)
	require.True(t, reloaded.VersionVector().Equal(a.VersionVector()))

	got, ok, err := reloaded.ChangeStore().GetChange(c0.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got.Ops[0].Value.Str)

	got1, ok, err := reloaded.ChangeStore().GetChange(c1.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", got1.Ops[0].Value.Str)
}
