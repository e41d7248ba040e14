// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.
//
// loro-go-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// loro-go-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with loro-go-core. If not, see <http://www.gnu.org/licenses/>.

package undo

import (
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/diffbatch"
)

// ErrGroupAlreadyStarted is returned by GroupStart when a group is active.
var ErrGroupAlreadyStarted = errors.New("undo: group already started")

// UndoOrRedo discriminates which stack a callback or perform() call
// concerns.
type UndoOrRedo uint8

const (
	KindUndo UndoOrRedo = iota
	KindRedo
)

func (k UndoOrRedo) opposite() UndoOrRedo {
	if k == KindUndo {
		return KindRedo
	}
	return KindUndo
}

// OnPush is called when a local edit span is about to be pushed, so the
// caller can attach application-level metadata (e.g. the current
// selection) to the stack item.
type OnPush func(kind UndoOrRedo, span common.IdSpan, diff diffbatch.DiffBatch) UndoItemMeta

// OnPop is called after a stack item has been undone/redone, with its
// retargeted metadata, so the caller can restore a selection.
type OnPop func(kind UndoOrRedo, span common.IdSpan, meta UndoItemMeta)

// DiffApplier is the subset of document operations the undo engine needs:
// applying a precomputed diff back into the document (producing the diff
// of whatever new ops that application created, for the opposite stack's
// redo entry), and reading the current counter frontier for a peer.
type DiffApplier interface {
	ApplyDiff(d diffbatch.DiffBatch, remap map[common.ContainerID]common.ContainerID, isUndo bool) (diffbatch.DiffBatch, error)
	VersionEnd(peer common.PeerID) common.Counter
	Commit() error
}

// UndoGroup freezes merge behavior across group_start/group_end so a
// multi-step user action undoes as one unit; it tracks which containers
// the group touched so a concurrent, disjoint import doesn't break it.
type UndoGroup struct {
	StartCounter common.Counter
	AffectedCids map[common.ContainerID]bool
}

func newUndoGroup(start common.Counter) *UndoGroup {
	return &UndoGroup{StartCounter: start, AffectedCids: make(map[common.ContainerID]bool)}
}

// Manager owns a local peer's undo and redo stacks. It is local-only: it
// cannot undo changes made by other peers, only transform its own pending
// entries against them.
//
// Unlike the subscription-driven original this is ported from, Manager
// exposes explicit recording methods (OnLocalEvent, OnRemoteEvent,
// OnCheckout) rather than subscribing to a document event bus itself —
// the caller's event dispatcher invokes them as changes commit or import.
type Manager struct {
	mu sync.Mutex

	doc  DiffApplier
	peer common.PeerID

	containerRemap map[common.ContainerID]common.ContainerID

	nextCounter      *common.Counter
	undoStack        *Stack
	redoStack        *Stack
	processingUndo   bool
	lastUndoTimeMs   int64
	mergeIntervalMs  int64
	maxStackSize     int
	excludePrefixes  []string
	lastPoppedCursor []CursorWithPos
	onPush           OnPush
	onPop            OnPop
	group            *UndoGroup
}

// NewManager builds a Manager tracking peer's local edits to doc, seeded
// with doc's current counter frontier for peer so the first OnLocalEvent
// after construction records a real span rather than a baseline jump.
func NewManager(doc DiffApplier, peer common.PeerID) *Manager {
	start := doc.VersionEnd(peer)
	return &Manager{
		doc:            doc,
		peer:           peer,
		containerRemap: make(map[common.ContainerID]common.ContainerID),
		nextCounter:    &start,
		undoStack:      NewStack(),
		redoStack:      NewStack(),
		maxStackSize:   math.MaxInt32,
	}
}

func (m *Manager) SetOnPush(f OnPush) { m.mu.Lock(); defer m.mu.Unlock(); m.onPush = f }
func (m *Manager) SetOnPop(f OnPop)   { m.mu.Lock(); defer m.mu.Unlock(); m.onPop = f }

// SetMergeInterval sets the window, in milliseconds, within which two
// counter-adjacent local edits merge into one undo item. Adjacency within
// an active group always merges regardless of this interval.
func (m *Manager) SetMergeInterval(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeIntervalMs = ms
}

// SetMaxUndoSteps bounds the undo stack depth; pushes beyond it drop the
// oldest entry.
func (m *Manager) SetMaxUndoSteps(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxStackSize = n
}

// AddExcludeOriginPrefix marks local edits whose origin starts with
// prefix as not independently undoable: their effect is folded into both
// stacks' pending remote diff instead of becoming a new undo item.
func (m *Manager) AddExcludeOriginPrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excludePrefixes = append(m.excludePrefixes, prefix)
}

// GroupStart freezes merge behavior until GroupEnd.
func (m *Manager) GroupStart() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group != nil {
		return ErrGroupAlreadyStarted
	}
	start := common.Counter(0)
	if m.nextCounter != nil {
		start = *m.nextCounter
	}
	m.group = newUndoGroup(start)
	return nil
}

// GroupEnd ends the active group, if any.
func (m *Manager) GroupEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.group = nil
}

// OnLocalEvent records a local edit reaching counter newEnd on the local
// peer at nowMs (caller's monotonic-ish clock reading), whose effect is
// described by forwardDiff (used for group bookkeeping and the on_push
// callback) and whose inverse is undoDiff — the diff the engine computed
// that would undo exactly this edit. Excluded-origin edits are folded
// into both stacks' pending remote diff instead of being pushed as a new
// undo item.
func (m *Manager) OnLocalEvent(newEnd common.Counter, origin string, forwardDiff, undoDiff diffbatch.DiffBatch, nowMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processingUndo {
		return
	}

	for _, prefix := range m.excludePrefixes {
		if strings.HasPrefix(origin, prefix) {
			m.undoStack.ComposeRemoteEvent(forwardDiff)
			m.redoStack.ComposeRemoteEvent(forwardDiff)
			m.nextCounter = ptr(newEnd)
			return
		}
	}

	m.recordCheckpointLocked(newEnd, &forwardDiff, undoDiff, nowMs)
}

// recordCheckpointLocked pushes the span [nextCounter, newEnd) with
// undoDiff onto the undo stack (merging with the previous top when
// allowed) and clears the redo stack, since a new local edit invalidates
// any pending redo. event is nil when called with no local diff to report
// to the group / on_push callback (a bare checkpoint).
func (m *Manager) recordCheckpointLocked(newEnd common.Counter, event *diffbatch.DiffBatch, undoDiff diffbatch.DiffBatch, nowMs int64) {
	previousCounter := m.nextCounter
	if previousCounter != nil && *previousCounter == newEnd {
		return
	}
	if previousCounter == nil {
		m.nextCounter = ptr(newEnd)
		return
	}

	if m.group != nil && event != nil {
		for _, cid := range event.Order {
			m.group.AffectedCids[cid] = true
		}
	}

	span := common.IdSpan{Peer: m.peer, CounterStart: *previousCounter, CounterEnd: newEnd}

	var meta UndoItemMeta
	if m.onPush != nil {
		ev := diffbatch.New()
		if event != nil {
			ev = *event
		}
		meta = m.onPush(KindUndo, span, ev)
	}

	inMergeInterval := nowMs-m.lastUndoTimeMs < m.mergeIntervalMs
	groupShouldMerge := m.group != nil && *previousCounter != m.group.StartCounter
	shouldMerge := !m.undoStack.IsEmpty() && (inMergeInterval || groupShouldMerge)

	if shouldMerge {
		m.undoStack.PushWithMerge(span, meta, undoDiff, true, m.group)
	} else {
		m.lastUndoTimeMs = nowMs
		m.undoStack.Push(span, meta, undoDiff)
	}

	m.nextCounter = ptr(newEnd)
	m.redoStack.Clear()
	for m.undoStack.Len() > m.maxStackSize {
		m.undoStack.PopFront()
	}
}

// RecordNewCheckpoint forces the current local counter frontier into the
// undo stack as a checkpoint boundary, without an accompanying event —
// used before a perform() so a span left mid-edit still gets recorded.
func (m *Manager) RecordNewCheckpoint(nowMs int64) error {
	if err := m.doc.Commit(); err != nil {
		return err
	}
	end := m.doc.VersionEnd(m.peer)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCheckpointLocked(end, nil, diffbatch.New(), nowMs)
	return nil
}

// OnRemoteEvent folds an imported diff into both stacks' pending remote
// diff. If the import is not disjoint from the active group's touched
// containers, the group ends: everything pushed after this point starts a
// fresh undo item rather than merging into the group.
func (m *Manager) OnRemoteEvent(diff diffbatch.DiffBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	disjoint := true
	if m.group != nil {
		for _, cid := range diff.Order {
			if m.group.AffectedCids[cid] {
				disjoint = false
				break
			}
		}
	}
	m.undoStack.ComposeRemoteEvent(diff)
	m.redoStack.ComposeRemoteEvent(diff)
	if m.group != nil && !disjoint {
		m.group = nil
	}
}

// OnCheckout clears both stacks: the document jumped to a different
// version, so neither stack's spans are meaningful any more.
func (m *Manager) OnCheckout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undoStack.Clear()
	m.redoStack.Clear()
	m.nextCounter = nil
}

// RemapContainer records that oldCid's undone Create now lives at newCid
// (redo recreates containers under new ids); future cursor retargeting
// consults this map.
func (m *Manager) RemapContainer(oldCid, newCid common.ContainerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containerRemap[oldCid] = newCid
}

// Undo pops and applies the most recent undoable span, pushing its
// inverse onto the redo stack. It reports false when there was nothing
// left to undo.
func (m *Manager) Undo(nowMs int64) (bool, error) {
	return m.perform(KindUndo, nowMs)
}

// Redo is Undo's mirror image over the redo stack.
func (m *Manager) Redo(nowMs int64) (bool, error) {
	return m.perform(KindRedo, nowMs)
}

func (m *Manager) stacks(kind UndoOrRedo) (active, opposite *Stack) {
	if kind == KindUndo {
		return m.undoStack, m.redoStack
	}
	return m.redoStack, m.undoStack
}

// perform implements §4.9's six-step pop: record a checkpoint, pop a
// frame, transform its undo_diff against the frame's pending remote diff
// and apply it, transform the opposite stack's pending remote diffs by
// whatever new ops the apply produced, retarget cursors, and push the
// new diff as the opposite stack's counterpart entry. A pop whose apply
// had no effect (the target was concurrently removed) is skipped in favor
// of the next frame down, per spec.md §4.9 step 6.
func (m *Manager) perform(kind UndoOrRedo, nowMs int64) (bool, error) {
	if err := m.RecordNewCheckpoint(nowMs); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.processingUndo = true
	active, opposite := m.stacks(kind)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		item, remoteDiff, ok := active.Pop()
		m.mu.Unlock()
		if !ok {
			m.mu.Lock()
			m.processingUndo = false
			m.mu.Unlock()
			return false, nil
		}

		undoDiff := item.UndoDiff.Clone().Transform(remoteDiff, true)

		m.mu.Lock()
		remap := m.containerRemap
		m.mu.Unlock()

		newDiff, err := m.doc.ApplyDiff(undoDiff, remap, true)
		if err != nil {
			m.mu.Lock()
			m.processingUndo = false
			m.mu.Unlock()
			return false, err
		}

		if newDiff.IsEmpty() {
			// No counterpart effect: keep popping until one has effect or
			// the stack empties.
			continue
		}

		m.mu.Lock()
		opposite.TransformBasedOnDelta(newDiff)
		m.mu.Unlock()

		cursors := append([]CursorWithPos(nil), item.Meta.Cursors...)
		retargetAll(cursors, remoteDiff, remap)
		item.Meta.Cursors = cursors

		m.mu.Lock()
		nextSelection := m.lastPoppedCursor
		m.lastPoppedCursor = cursors
		m.processingUndo = false
		m.mu.Unlock()

		redoMeta := UndoItemMeta{Cursors: nextSelection}
		if m.onPush != nil {
			redoMeta = m.onPush(kind.opposite(), item.Span, newDiff)
			if nextSelection != nil {
				redoMeta.Cursors = nextSelection
			}
		}

		m.mu.Lock()
		opposite.Push(item.Span, redoMeta, newDiff)
		m.mu.Unlock()

		if m.onPop != nil {
			m.onPop(kind, item.Span, item.Meta)
		}
		return true, nil
	}
}

func ptr[T any](v T) *T { return &v }
