// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package undo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/diffbatch"
	"github.com/loro-dev/loro-go-core/undo/mocks"
)

var errApplyFailed = errors.New("mock: apply failed")

// TestManagerUndoCallsApplyDiffWithStoredUndoDiff exercises Manager against
// a gomock-driven DiffApplier: unlike fakeDoc (manager_test.go), which
// always echoes the diff back, this pins down the exact calls Manager.Undo
// must make — VersionEnd to seed/checkpoint, then ApplyDiff with isUndo
// true — and controls exactly what ApplyDiff returns, which becomes the
// redo stack's new entry.
func TestManagerUndoCallsApplyDiffWithStoredUndoDiff(t *testing.T) {
	ctrl := gomock.NewController(t)
	doc := mocks.NewMockDiffApplier(ctrl)

	// The version end is 0 when the manager is created and 3 once the
	// local edit below has been made.
	doc.EXPECT().VersionEnd(common.PeerID(1)).Return(common.Counter(0)).Times(1)
	doc.EXPECT().VersionEnd(common.PeerID(1)).Return(common.Counter(3)).AnyTimes()
	doc.EXPECT().Commit().Return(nil).AnyTimes()

	m := NewManager(doc, 1)
	m.OnLocalEvent(3, "", insertDiff("abc"), deleteDiff(3), 0)
	require.Equal(t, 1, m.undoStack.Len())

	redoDiff := insertDiff("abc") // what re-applying the inverse produces
	doc.EXPECT().
		ApplyDiff(gomock.Any(), gomock.Any(), true).
		Return(redoDiff, nil).
		Times(1)

	ok, err := m.Undo(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, m.redoStack.Len())
}

// TestManagerUndoPropagatesApplyDiffError confirms a DiffApplier failure
// surfaces from Undo rather than being swallowed, and that the popped
// frame is not re-pushed anywhere (no partial state).
func TestManagerUndoPropagatesApplyDiffError(t *testing.T) {
	ctrl := gomock.NewController(t)
	doc := mocks.NewMockDiffApplier(ctrl)

	// The version end is 0 when the manager is created and 2 once the
	// local edit below has been made.
	doc.EXPECT().VersionEnd(common.PeerID(1)).Return(common.Counter(0)).Times(1)
	doc.EXPECT().VersionEnd(common.PeerID(1)).Return(common.Counter(2)).AnyTimes()
	doc.EXPECT().Commit().Return(nil).AnyTimes()

	m := NewManager(doc, 1)
	m.OnLocalEvent(2, "", insertDiff("xy"), deleteDiff(2), 0)

	doc.EXPECT().ApplyDiff(gomock.Any(), gomock.Any(), true).Return(diffbatch.DiffBatch{}, errApplyFailed)

	_, err := m.Undo(0)
	require.ErrorIs(t, err, errApplyFailed)
	require.Equal(t, 0, m.undoStack.Len())
	require.Equal(t, 0, m.redoStack.Len())
}
