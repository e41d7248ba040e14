// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package kv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedKVSetGetRemove(t *testing.T) {
	s := NewOrderedKV()
	s.Set([]byte("a"), []byte("1"))
	v, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	s.Remove([]byte("a"))
	_, ok, err = s.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOrderedKVCompareAndSwap(t *testing.T) {
	s := NewOrderedKV()
	s.Set([]byte("k"), []byte("v1"))

	ok, err := s.CompareAndSwap([]byte("k"), []byte("wrong"), []byte("v2"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CompareAndSwap([]byte("k"), []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	require.True(t, ok)

	v, _, _ := s.Get([]byte("k"))
	require.Equal(t, []byte("v2"), v)

	ok, err = s.CompareAndSwap([]byte("new"), nil, []byte("created"))
	require.NoError(t, err)
	require.True(t, ok)
	v, _, _ = s.Get([]byte("new"))
	require.Equal(t, []byte("created"), v)
}

// TestOrderedKVScanForwardBackwardNoRevisit mirrors scenario S4: insert
// k0000..k0999, scan [Included(k0500), Excluded(k0510)) and alternate
// Next/NextBack, expecting exactly the ten keys k0500..k0509 with no
// revisits in either direction.
func TestOrderedKVScanForwardBackwardNoRevisit(t *testing.T) {
	s := NewOrderedKV()
	for i := 0; i < 1000; i++ {
		s.Set([]byte(fmt.Sprintf("k%04d", i)), []byte{byte(i)})
	}

	it, err := s.Scan(Included([]byte("k0500")), Excluded([]byte("k0510")))
	require.NoError(t, err)

	seen := map[string]bool{}
	forward := true
	for {
		var k []byte
		var ok bool
		if forward {
			k, _, ok, err = it.Next()
		} else {
			k, _, ok, err = it.NextBack()
		}
		require.NoError(t, err)
		if !ok {
			break
		}
		require.False(t, seen[string(k)], "revisited %s", k)
		seen[string(k)] = true
		forward = !forward
	}
	require.Len(t, seen, 10)
	for i := 500; i < 510; i++ {
		require.True(t, seen[fmt.Sprintf("k%04d", i)])
	}
}

func TestOrderedKVScanFullForwardThenReverseSameMultiset(t *testing.T) {
	s := NewOrderedKV()
	keys := []string{"b", "a", "d", "c"}
	for _, k := range keys {
		s.Set([]byte(k), []byte(k+"v"))
	}

	itFwd, err := s.Scan(Unbounded(), Unbounded())
	require.NoError(t, err)
	var forward []string
	for {
		k, _, ok, err := itFwd.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		forward = append(forward, string(k))
	}

	itBack, err := s.Scan(Unbounded(), Unbounded())
	require.NoError(t, err)
	var backward []string
	for {
		k, _, ok, err := itBack.NextBack()
		require.NoError(t, err)
		if !ok {
			break
		}
		backward = append(backward, string(k))
	}

	require.Equal(t, []string{"a", "b", "c", "d"}, forward)
	require.Equal(t, []string{"d", "c", "b", "a"}, backward)
}

func TestOrderedKVExportImportRoundTrip(t *testing.T) {
	s := NewOrderedKV()
	for i := 0; i < 50; i++ {
		s.Set([]byte(fmt.Sprintf("key-%03d", i)), []byte(fmt.Sprintf("val-%03d", i)))
	}
	blob, err := s.ExportAll()
	require.NoError(t, err)

	s2 := NewOrderedKV()
	require.NoError(t, s2.ImportAll(blob))
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("key-%03d", i)
		v, ok, err := s2.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("val-%03d", i), string(v))
	}
}

func TestOrderedKVOverlayShadowsTableAndWinsOnTie(t *testing.T) {
	s := NewOrderedKV()
	s.Set([]byte("k1"), []byte("old"))
	blob, err := s.ExportAll()
	require.NoError(t, err)

	s2 := NewOrderedKV()
	require.NoError(t, s2.ImportAll(blob))
	s2.Set([]byte("k1"), []byte("new")) // overlay entry for a key already in the table

	v, ok, err := s2.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), v)

	s2.Remove([]byte("k1")) // tombstone shadows the table entry entirely
	_, ok, err = s2.Get([]byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOrderedKVLenExcludesTombstones(t *testing.T) {
	s := NewOrderedKV()
	s.Set([]byte("a"), []byte("1"))
	s.Set([]byte("b"), []byte("2"))
	s.Remove([]byte("a"))

	n, err := s.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
