// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package kv

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		keys := make(map[string][]byte, n)
		for i := 0; i < n; i++ {
			k := fmt.Sprintf("k%04d", i)
			v := rapid.SliceOfN(rapid.Byte(), 0, 20).Draw(t, "v"+k)
			keys[k] = v
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)

		b := newBlockBuilder(DefaultBlockBudget)
		for _, k := range sorted {
			require.True(t, b.add([]byte(k), keys[k]))
		}
		encoded, decoded, isLarge := b.build()
		require.False(t, isLarge)

		reDecoded, err := decodeBlock(encoded, false)
		require.NoError(t, err)
		require.Equal(t, decoded.Len(), reDecoded.Len())
		for i, k := range sorted {
			require.Equal(t, k, string(reDecoded.entries[i].key))
			require.Equal(t, keys[k], reDecoded.entries[i].value)
		}
	})
}

func TestBlockChecksumMismatchRejected(t *testing.T) {
	b := newBlockBuilder(DefaultBlockBudget)
	b.add([]byte("a"), []byte("1"))
	b.add([]byte("b"), []byte("2"))
	encoded, _, _ := b.build()
	corrupted := append([]byte(nil), encoded...)
	corrupted[0] ^= 0xFF

	_, err := decodeBlock(corrupted, false)
	require.ErrorIs(t, err, common.ErrDecodeChecksumMismatch)
}

func TestLargeBlockRoundTrip(t *testing.T) {
	b := newBlockBuilder(64) // tiny budget forces "large" on the first big value
	big := bytes.Repeat([]byte("x"), 4096)
	ok := b.add([]byte("onlykey"), big)
	require.True(t, ok)
	encoded, decoded, isLarge := b.build()
	require.True(t, isLarge)
	require.True(t, decoded.isLarge)

	reDecoded, err := decodeBlock(encoded, true)
	require.NoError(t, err)
	require.Equal(t, 1, reDecoded.Len())
	require.Equal(t, "onlykey", string(reDecoded.entries[0].key))
	require.Equal(t, big, reDecoded.entries[0].value)
}

func TestBlockBuilderRefusesOverflowButAcceptsFirst(t *testing.T) {
	b := newBlockBuilder(16)
	// First pair always accepted even though it alone overflows the budget.
	require.True(t, b.add([]byte("k"), bytes.Repeat([]byte("y"), 100)))
	require.False(t, b.add([]byte("k2"), []byte("z")))
}

func TestBlockIterForwardBackwardNoRevisit(t *testing.T) {
	b := newBlockBuilder(DefaultBlockBudget)
	for i := 0; i < 10; i++ {
		b.add([]byte(fmt.Sprintf("k%02d", i)), []byte{byte(i)})
	}
	_, decoded, _ := b.build()
	it := newBlockIter(decoded)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		k, _, ok := it.Next()
		require.True(t, ok)
		seen[string(k)] = true
	}
	for i := 0; i < 5; i++ {
		k, _, ok := it.NextBack()
		require.True(t, ok)
		require.False(t, seen[string(k)], "back cursor revisited %s", k)
		seen[string(k)] = true
	}
	require.False(t, it.HasNext())
	require.Len(t, seen, 10)
}
