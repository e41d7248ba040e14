// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package kv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTestTable(t *testing.T, n int, blockBudget int) (*SSTable, map[string][]byte) {
	t.Helper()
	b := NewSSTableBuilder(blockBudget, CompressionZstd)
	want := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%05d", i)
		v := []byte(fmt.Sprintf("value-%05d", i))
		b.Add([]byte(k), v)
		want[k] = v
	}
	raw := b.Build()
	tbl, err := OpenSSTable(raw, nil)
	require.NoError(t, err)
	return tbl, want
}

func TestSSTableGetRoundTrip(t *testing.T) {
	tbl, want := buildTestTable(t, 200, 256)
	require.GreaterOrEqual(t, tbl.BlockCount(), 2)
	for k, v := range want {
		got, ok, err := tbl.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok, "missing key %s", k)
		require.Equal(t, v, got)
	}
}

func TestSSTableGetMissingKey(t *testing.T) {
	tbl, _ := buildTestTable(t, 50, DefaultBlockBudget)
	_, ok, err := tbl.Get([]byte("does-not-exist"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSSTableManyBlocksScenario(t *testing.T) {
	// Mirrors the "large table" scenario from the scan-correctness suite:
	// force many small blocks so block-boundary handling gets exercised.
	tbl, want := buildTestTable(t, 1000, 128)
	require.GreaterOrEqual(t, tbl.BlockCount(), 25)
	for k, v := range want {
		got, ok, err := tbl.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, got)
	}
}

func TestSSTableBadMagicRejected(t *testing.T) {
	tbl, _ := buildTestTable(t, 5, DefaultBlockBudget)
	_ = tbl
	b := NewSSTableBuilder(DefaultBlockBudget, CompressionNone)
	b.Add([]byte("a"), []byte("1"))
	raw := b.Build()
	corrupted := append([]byte(nil), raw...)
	corrupted[0] = 'X'
	_, err := OpenSSTable(corrupted, nil)
	require.Error(t, err)
}

func TestSSTableEmptyTable(t *testing.T) {
	b := NewSSTableBuilder(DefaultBlockBudget, CompressionNone)
	raw := b.Build()
	tbl, err := OpenSSTable(raw, nil)
	require.NoError(t, err)
	require.Equal(t, 0, tbl.BlockCount())
	_, ok, err := tbl.Get([]byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSSTableBloomFilterShortCircuitsMiss(t *testing.T) {
	tbl, want := buildTestTable(t, 100, DefaultBlockBudget)
	// A key with the same length family but guaranteed absent.
	_, ok, err := tbl.Get([]byte("zzzzzzzzzzzzzzzzzzzz"))
	require.NoError(t, err)
	require.False(t, ok)
	for k := range want {
		_, ok, err := tbl.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		break
	}
}
