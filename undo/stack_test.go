// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package undo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/diffbatch"
)

func span(peer common.PeerID, start, end common.Counter) common.IdSpan {
	return common.IdSpan{Peer: peer, CounterStart: start, CounterEnd: end}
}

func TestStackPushPopOrder(t *testing.T) {
	s := NewStack()
	require.True(t, s.IsEmpty())

	s.Push(span(1, 0, 2), UndoItemMeta{}, diffbatch.New())
	s.Push(span(1, 2, 4), UndoItemMeta{}, diffbatch.New())
	require.Equal(t, 2, s.Len())

	item, _, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, common.Counter(2), item.Span.CounterStart)
	require.Equal(t, common.Counter(4), item.Span.CounterEnd)

	item, _, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, common.Counter(0), item.Span.CounterStart)

	_, _, ok = s.Pop()
	require.False(t, ok)
}

func TestStackMergeAdjacentSpans(t *testing.T) {
	s := NewStack()
	s.PushWithMerge(span(1, 0, 2), UndoItemMeta{}, diffbatch.New(), true, nil)
	s.PushWithMerge(span(1, 2, 5), UndoItemMeta{}, diffbatch.New(), true, nil)
	require.Equal(t, 1, s.Len())

	item, _, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, common.Counter(0), item.Span.CounterStart)
	require.Equal(t, common.Counter(5), item.Span.CounterEnd)
}

func TestStackComposeRemoteEventStartsNewRowOnNextPush(t *testing.T) {
	s := NewStack()
	s.Push(span(1, 0, 2), UndoItemMeta{}, diffbatch.New())

	cid := common.RootContainerID("text", common.ContainerText)
	remote := diffbatch.New()
	remote.Set(cid, diffbatch.Diff{Kind: diffbatch.DiffText, Text: []diffbatch.TextDeltaItem{{InsertText: "x"}}})
	s.ComposeRemoteEvent(remote)

	group := newUndoGroup(0)
	group.AffectedCids[cid] = true
	s.PushWithMerge(span(1, 2, 4), UndoItemMeta{}, diffbatch.New(), true, group)

	require.Equal(t, 2, s.Len())
	_, remoteDiff, ok := s.Pop()
	require.True(t, ok)
	require.True(t, remoteDiff.IsEmpty())

	_, remoteDiff2, ok := s.Pop()
	require.True(t, ok)
	require.False(t, remoteDiff2.IsEmpty())
}

func TestStackPopFrontEnforcesMaxDepth(t *testing.T) {
	s := NewStack()
	s.Push(span(1, 0, 1), UndoItemMeta{}, diffbatch.New())
	s.Push(span(1, 1, 2), UndoItemMeta{}, diffbatch.New())
	s.Push(span(1, 2, 3), UndoItemMeta{}, diffbatch.New())

	s.PopFront()
	require.Equal(t, 2, s.Len())

	item, _, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, common.Counter(2), item.Span.CounterStart)
}
