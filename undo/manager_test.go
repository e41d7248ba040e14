// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package undo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/diffbatch"
)

// fakeDoc is a minimal DiffApplier that just tracks the current counter
// frontier and echoes back whatever diff it's asked to apply, simulating
// a document where every undo/redo always has effect.
type fakeDoc struct {
	end    common.Counter
	applyN int
}

func (f *fakeDoc) ApplyDiff(d diffbatch.DiffBatch, remap map[common.ContainerID]common.ContainerID, isUndo bool) (diffbatch.DiffBatch, error) {
	f.applyN++
	if d.IsEmpty() {
		return diffbatch.New(), nil
	}
	return d.Clone(), nil
}

func (f *fakeDoc) VersionEnd(peer common.PeerID) common.Counter { return f.end }

func (f *fakeDoc) Commit() error { return nil }

func textCid() common.ContainerID { return common.RootContainerID("text", common.ContainerText) }

func insertDiff(s string) diffbatch.DiffBatch {
	b := diffbatch.New()
	b.Set(textCid(), diffbatch.Diff{Kind: diffbatch.DiffText, Text: []diffbatch.TextDeltaItem{{InsertText: s}}})
	return b
}

func deleteDiff(n int) diffbatch.DiffBatch {
	b := diffbatch.New()
	b.Set(textCid(), diffbatch.Diff{Kind: diffbatch.DiffText, Text: []diffbatch.TextDeltaItem{{Delete: n}}})
	return b
}

func TestManagerUndoRedoRoundTrip(t *testing.T) {
	doc := &fakeDoc{end: 0}
	m := NewManager(doc, 1)

	doc.end = 3
	m.OnLocalEvent(3, "", insertDiff("abc"), deleteDiff(3), 0)

	require.Equal(t, 1, m.undoStack.Len())

	ok, err := m.Undo(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, m.undoStack.Len())
	require.Equal(t, 1, m.redoStack.Len())

	ok, err = m.Redo(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, m.undoStack.Len())
	require.Equal(t, 0, m.redoStack.Len())
}

func TestManagerUndoOnEmptyStackReportsFalse(t *testing.T) {
	doc := &fakeDoc{end: 0}
	m := NewManager(doc, 1)
	ok, err := m.Undo(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerExcludedOriginDoesNotPush(t *testing.T) {
	doc := &fakeDoc{end: 0}
	m := NewManager(doc, 1)
	m.AddExcludeOriginPrefix("sys:")

	doc.end = 2
	m.OnLocalEvent(2, "sys:init", insertDiff("xy"), deleteDiff(2), 0)
	require.Equal(t, 0, m.undoStack.Len())
}

func TestManagerOnCheckoutClearsStacks(t *testing.T) {
	doc := &fakeDoc{end: 0}
	m := NewManager(doc, 1)
	doc.end = 1
	m.OnLocalEvent(1, "", insertDiff("a"), deleteDiff(1), 0)
	require.Equal(t, 1, m.undoStack.Len())

	m.OnCheckout()
	require.Equal(t, 0, m.undoStack.Len())
	require.Nil(t, m.nextCounter)
}

func TestManagerGroupStartTwiceErrors(t *testing.T) {
	doc := &fakeDoc{end: 0}
	m := NewManager(doc, 1)
	require.NoError(t, m.GroupStart())
	require.ErrorIs(t, m.GroupStart(), ErrGroupAlreadyStarted)
	m.GroupEnd()
	require.NoError(t, m.GroupStart())
}
