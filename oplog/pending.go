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

package oplog

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/loro-dev/loro-go-core/common"
)

// PendingQueue holds Changes whose deps aren't resolvable yet (spec.md
// §4.6 "fail-fast to a pending queue"). A per-peer RoaringBitmap of
// already-queued counters gives Push its dedup check: the original's
// PendingChanges map gets this for free via key overwrite; here the
// bitmap is the explicit fast membership test, with byID holding the
// actual Change values.
type PendingQueue struct {
	mu     sync.Mutex
	queued map[common.PeerID]*roaring.Bitmap
	byID   map[common.ID]common.Change
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{
		queued: make(map[common.PeerID]*roaring.Bitmap),
		byID:   make(map[common.ID]common.Change),
	}
}

// Push enqueues c if it isn't already queued, returning false on a
// duplicate (e.g. the same update delivered twice while its deps are
// still missing).
func (q *PendingQueue) Push(c common.Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	bm, ok := q.queued[c.ID.Peer]
	if !ok {
		bm = roaring.New()
		q.queued[c.ID.Peer] = bm
	}
	ctr := uint32(c.ID.Counter)
	if bm.Contains(ctr) {
		return false
	}
	bm.Add(ctr)
	q.byID[c.ID] = c
	return true
}

// Remove drops id from the queue, whether because it was successfully
// inserted or permanently rejected.
func (q *PendingQueue) Remove(id common.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; !ok {
		return
	}
	delete(q.byID, id)
	if bm, ok := q.queued[id.Peer]; ok {
		bm.Remove(uint32(id.Counter))
	}
}

// Snapshot returns a copy of every currently queued Change, in no
// particular order.
func (q *PendingQueue) Snapshot() []common.Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]common.Change, 0, len(q.byID))
	for _, c := range q.byID {
		out = append(out, c)
	}
	return out
}

// Len reports the number of queued Changes.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}
