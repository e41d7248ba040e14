// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package oplog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/loro-dev/loro-go-core/common"
)

func textInsert(peer common.PeerID, counter common.Counter, lamport common.Lamport, text string) common.Change {
	cid := common.NormalContainerID(peer, 0, common.ContainerText)
	return common.Change{
		ID:      common.ID{Peer: peer, Counter: counter},
		Lamport: lamport,
		Deps:    depsFor(peer, counter),
		Ops: []common.Op{{
			Container: cid,
			Counter:   counter,
			Len:       len([]rune(text)),
			Kind:      common.OpInsert,
			Value:     common.StringValue(text),
		}},
	}
}

func depsFor(peer common.PeerID, counter common.Counter) common.Frontiers {
	if counter == 0 {
		return nil
	}
	return common.Frontiers{{Peer: peer, Counter: counter - 1}}
}

func TestChangeBlockEncodeDecodeRoundTrip(t *testing.T) {
	c0 := textInsert(1, 0, 0, "hello")
	c1 := textInsert(1, 5, 5, " world")

	blk := NewChangeBlock(c0)
	next, ok := blk.WithPushed(c1, 1<<20, 10_000)
	require.True(t, ok)

	raw, err := next.EncodeBytes()
	require.NoError(t, err)

	decoded, err := DecodeChangeBlockFull(raw)
	require.NoError(t, err)

	changes, err := decoded.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, c0.ID, changes[0].ID)
	require.Equal(t, c0.Ops[0].Value, changes[0].Ops[0].Value)
	require.Equal(t, c1.Ops[0].Value, changes[1].Ops[0].Value)

	peer, cs, ce, ls, le, err := DecodeChangeBlockHeader(raw)
	require.NoError(t, err)
	require.Equal(t, common.PeerID(1), peer)
	require.Equal(t, common.Counter(0), cs)
	require.Equal(t, common.Counter(11), ce)
	require.Equal(t, common.Lamport(0), ls)
	require.Equal(t, common.Lamport(11), le)
}

func TestChangeBlockWithPushedRLEMergesSingleOp(t *testing.T) {
	c0 := textInsert(1, 0, 0, "ab")
	blk := NewChangeBlock(c0)

	// Timestamped outside the 10_000 merge interval passed below, so only
	// the single-op RLE merge can accept it.
	merge := common.Change{
		ID:        common.ID{Peer: 1, Counter: 2},
		Lamport:   2,
		Timestamp: 20_000,
		Deps:      common.Frontiers{{Peer: 1, Counter: 1}},
		Ops: []common.Op{{
			Container: c0.Ops[0].Container,
			Counter:   2,
			Len:       1,
			Kind:      common.OpInsert,
			Value:     common.StringValue("c"),
		}},
	}

	next, ok := blk.WithPushed(merge, 1<<20, 10_000)
	require.True(t, ok)
	changes, err := next.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 1, "single-op RLE-mergeable change folds into the last change's last op")
	require.Equal(t, "abc", changes[0].Ops[0].Value.Str)
}

func TestChangeBlockWithPushedRejectsWrongPeerOrGap(t *testing.T) {
	c0 := textInsert(1, 0, 0, "x")
	blk := NewChangeBlock(c0)

	wrongPeer := textInsert(2, 1, 1, "y")
	_, ok := blk.WithPushed(wrongPeer, 1<<20, 10_000)
	require.False(t, ok)

	gap := textInsert(1, 5, 5, "y")
	_, ok = blk.WithPushed(gap, 1<<20, 10_000)
	require.False(t, ok)
}

func TestChangeBlockHeaderOnlyParseNeverDecodesBody(t *testing.T) {
	c0 := textInsert(7, 0, 0, "abcdef")
	blk := NewChangeBlock(c0)
	raw, err := blk.EncodeBytes()
	require.NoError(t, err)

	// Corrupt only the body bytes (after the header+headerChecksum); the
	// header-only decode must still succeed.
	corrupted := append([]byte(nil), raw...)
	corrupted[len(corrupted)-1] ^= 0xFF

	peer, cs, ce, _, _, err := DecodeChangeBlockHeader(corrupted)
	require.NoError(t, err)
	require.Equal(t, common.PeerID(7), peer)
	require.Equal(t, common.Counter(0), cs)
	require.Equal(t, common.Counter(6), ce)

	_, err = DecodeChangeBlockFull(corrupted)
	require.ErrorIs(t, err, common.ErrDecodeChecksumMismatch)
}

func TestSplitChangeProducesSelfDependentSlices(t *testing.T) {
	big := textInsert(1, 0, 0, "0123456789abcdefghijklmnopqrstuvwxyz")
	parts := splitChange(big, 40)
	require.Greater(t, len(parts), 1)

	for i, p := range parts {
		if i > 0 {
			require.True(t, p.DepsOnSelf(), "part %d must self-depend on the previous slice", i)
			require.Equal(t, parts[i-1].CounterEnd(), p.ID.Counter)
		}
	}
	require.Equal(t, big.ID.Counter, parts[0].ID.Counter)
	require.Equal(t, big.CounterEnd(), parts[len(parts)-1].CounterEnd())
}

func TestChangeBlockEncodeDecodeRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		peer := common.PeerID(rapid.Uint64Range(1, 5).Draw(t, "peer"))
		n := rapid.IntRange(1, 6).Draw(t, "n")

		var changes []common.Change
		counter := common.Counter(0)
		lamport := common.Lamport(0)
		for i := 0; i < n; i++ {
			text := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "text")
			c := textInsert(peer, counter, lamport, text)
			changes = append(changes, c)
			counter = c.CounterEnd()
			lamport += common.Lamport(c.Len())
		}

		raw, err := encodeChangeBlockBody(changes)
		require.NoError(t, err)
		decoded, err := decodeChangeBlockBody(raw)
		require.NoError(t, err)
		require.Len(t, decoded, len(changes))
		for i := range changes {
			require.Equal(t, changes[i].ID, decoded[i].ID)
			require.Equal(t, changes[i].Lamport, decoded[i].Lamport)
			require.Equal(t, changes[i].Ops[0].Value.Str, decoded[i].Ops[0].Value.Str)
		}
	})
}
