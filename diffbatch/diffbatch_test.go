// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.

package diffbatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go-core/common"
)

func textCid() common.ContainerID {
	return common.RootContainerID("text", common.ContainerText)
}

func TestComposeTextInsertThenDeleteAnnihilates(t *testing.T) {
	cid := textCid()
	a := New()
	a.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{InsertText: "hi"}}})
	b := New()
	b.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Delete: 2}}})

	out := a.Compose(b)
	got := out.Events[cid]
	require.Equal(t, DiffText, got.Kind)
	require.Empty(t, got.Text)
}

func TestComposeTextRetainThenInsert(t *testing.T) {
	cid := textCid()
	a := New()
	a.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Retain: 3}, {InsertText: "x"}}})
	b := New()
	b.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Retain: 4}, {InsertText: "y"}}})

	out := a.Compose(b)
	got := out.Events[cid].Text
	require.Equal(t, []TextDeltaItem{{Retain: 3}, {InsertText: "x"}, {InsertText: "y"}}, got)
}

func TestComposeMapLastWriterWins(t *testing.T) {
	cid := common.RootContainerID("m", common.ContainerMap)
	v1 := common.IntValue(1)
	v2 := common.IntValue(2)
	a := New()
	a.Set(cid, Diff{Kind: DiffMap, Map: map[string]*common.LoroValue{"k": &v1}})
	b := New()
	b.Set(cid, Diff{Kind: DiffMap, Map: map[string]*common.LoroValue{"k": &v2}})

	out := a.Compose(b)
	got := out.Events[cid].Map["k"]
	require.Equal(t, v2, *got)
}

func TestTransformTextConcurrentInsertsAtSamePosition(t *testing.T) {
	cid := textCid()
	local := New()
	local.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Retain: 2}, {InsertText: "L"}}})
	remote := New()
	remote.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Retain: 2}, {InsertText: "R"}}})

	transformed := local.Transform(remote, true)
	got := transformed.Events[cid].Text
	// local has priority, so its insert is ordered before remote's already-
	// applied "R", which the trailing retain skips over.
	require.Equal(t, []TextDeltaItem{{Retain: 2}, {InsertText: "L"}, {Retain: 1}}, got)
}

func TestTransformDeleteAgainstDeleteIsIdempotent(t *testing.T) {
	cid := textCid()
	local := New()
	local.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Retain: 1}, {Delete: 2}}})
	remote := New()
	remote.Set(cid, Diff{Kind: DiffText, Text: []TextDeltaItem{{Retain: 1}, {Delete: 2}}})

	transformed := local.Transform(remote, true)
	got := transformed.Events[cid].Text
	// the deleted range was already removed by remote, so only the
	// untouched prefix survives as a retain; the delete itself vanishes.
	require.Equal(t, []TextDeltaItem{{Retain: 1}}, got)
}

func TestCloneIsIndependent(t *testing.T) {
	cid := common.RootContainerID("m", common.ContainerMap)
	v1 := common.IntValue(1)
	b := New()
	b.Set(cid, Diff{Kind: DiffMap, Map: map[string]*common.LoroValue{"k": &v1}})

	c := b.Clone()
	*c.Events[cid].Map["k"] = common.IntValue(99)
	require.Equal(t, v1, *b.Events[cid].Map["k"])
}
