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
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/internal/logging"
	"github.com/loro-dev/loro-go-core/metrics"
)

// DagNode is an RLE run of one peer's Changes in the causal DAG. Adjacent
// nodes for the same peer merge when the newer one depends only on the
// tail of the older (spec.md §4.6).
type DagNode struct {
	Peer    common.PeerID
	Cnt     common.Counter
	Len     int
	Lamport common.Lamport
	Deps    common.Frontiers
	HasSucc bool // true once some later change depends on this node's tail
}

func (n *DagNode) ID() common.ID { return common.ID{Peer: n.Peer, Counter: n.Cnt} }

func (n *DagNode) Span() common.IdSpan {
	return common.IdSpan{Peer: n.Peer, CounterStart: n.Cnt, CounterEnd: n.Cnt + common.Counter(n.Len)}
}

func (n *DagNode) LastID() common.ID {
	return common.ID{Peer: n.Peer, Counter: n.Cnt + common.Counter(n.Len) - 1}
}

// Dag is the C6 causal DAG: per-peer RLE runs plus the current frontiers
// and version vector they imply.
type Dag struct {
	mu   sync.Mutex
	runs map[common.PeerID][]*DagNode

	frontiers common.Frontiers
	vv        common.VersionVector

	// shallowVV/shallowFrontiers mark a trimmed-history boundary: deps
	// that predate it can never be resolved, per spec.md §4.6.
	shallowVV        common.VersionVector
	shallowFrontiers common.Frontiers

	pending *PendingQueue

	logger  *zap.Logger
	metrics *metrics.Registry
}

func NewDag(logger *zap.Logger, reg *metrics.Registry) *Dag {
	return &Dag{
		runs:    make(map[common.PeerID][]*DagNode),
		vv:      common.NewVersionVector(),
		pending: NewPendingQueue(),
		logger:  logging.NopIfNil(logger),
		metrics: reg,
	}
}

func (d *Dag) Frontiers() common.Frontiers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frontiers.Clone()
}

func (d *Dag) VersionVector() common.VersionVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vv.Clone()
}

func (d *Dag) PendingLen() int { return d.pending.Len() }

// SetShallowRoot records the trimmed-history boundary: deps predating it
// can never be resolved and are rejected rather than queued.
func (d *Dag) SetShallowRoot(vv common.VersionVector, frontiers common.Frontiers) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shallowVV = vv.Clone()
	d.shallowFrontiers = frontiers.Clone()
}

// findNode locates the run covering (peer, counter) via binary search
// over runs[peer], which is kept sorted by Cnt ascending.
func (d *Dag) findNode(peer common.PeerID, counter common.Counter) (*DagNode, bool) {
	runs := d.runs[peer]
	idx := sort.Search(len(runs), func(i int) bool {
		return runs[i].Cnt+common.Counter(runs[i].Len) > counter
	})
	if idx >= len(runs) || runs[idx].Cnt > counter {
		return nil, false
	}
	return runs[idx], true
}

func (d *Dag) lamportAt(id common.ID) (common.Lamport, bool) {
	n, ok := d.findNode(id.Peer, id.Counter)
	if !ok {
		return 0, false
	}
	return n.Lamport + common.Lamport(id.Counter-n.Cnt), true
}

// depsLamport implements spec.md §4.6 step 1/2: "lookup lamport(deps)...
// assign lamport = max(dep.lamport + dep.span) over deps." Each dep names
// a single atom, so dep.span is 1: the assigned lamport is one past the
// highest dependency lamport, or 0 with no deps.
func (d *Dag) depsLamport(deps common.Frontiers) (common.Lamport, bool) {
	var max common.Lamport
	found := false
	for _, dep := range deps {
		l, ok := d.lamportAt(dep)
		if !ok {
			return 0, false
		}
		if !found || l+1 > max {
			max = l + 1
			found = true
		}
	}
	return max, true
}

// dependsOnOutdatedVersion reports whether any of deps point at a counter
// the shallow root has already trimmed away.
func (d *Dag) dependsOnOutdatedVersion(deps common.Frontiers) bool {
	if d.shallowVV == nil {
		return false
	}
	for _, dep := range deps {
		if dep.Counter < d.shallowVV.Get(dep.Peer) {
			return true
		}
	}
	return false
}

// TryInsertChange implements spec.md §4.6's insertion algorithm. On
// success it returns the assigned lamport. If any dep is unresolved it
// queues c onto the pending queue and returns common.ErrUnknownDepPeer. If
// any dep predates the shallow root it returns
// common.ErrImportUpdatesOutdatedVersion without queuing.
func (d *Dag) TryInsertChange(c common.Change) (common.Lamport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dependsOnOutdatedVersion(c.Deps) {
		return 0, common.ErrImportUpdatesOutdatedVersion
	}
	lamport, ok := d.depsLamport(c.Deps)
	if !ok {
		if d.pending.Push(c) {
			d.metrics.SetPendingChanges(d.pending.Len())
		}
		return 0, common.ErrUnknownDepPeer
	}
	d.installLocked(c, lamport)
	return lamport, nil
}

// RetryPending re-attempts every queued Change, repeating passes while any
// pass makes progress (resolving one change can unblock another queued in
// the same batch). Returns the Changes successfully inserted, in the order
// they were resolved.
func (d *Dag) RetryPending() []common.Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	var inserted []common.Change
	for {
		progressed := false
		for _, c := range d.pending.Snapshot() {
			if c.CounterEnd() <= d.vv.Get(c.ID.Peer) {
				// Already installed by a separate path (e.g. a later
				// Import call decoded and applied the same change
				// directly) while this one sat in the queue; spec.md
				// §4.7's "already known: skip" applies here too.
				d.pending.Remove(c.ID)
				continue
			}
			if d.dependsOnOutdatedVersion(c.Deps) {
				d.logger.Warn("dropping pending change that depends on a trimmed version",
					zap.Uint64("peer", uint64(c.ID.Peer)), zap.Int32("counter", int32(c.ID.Counter)))
				d.pending.Remove(c.ID)
				continue
			}
			lamport, ok := d.depsLamport(c.Deps)
			if !ok {
				continue
			}
			d.installLocked(c, lamport)
			d.pending.Remove(c.ID)
			inserted = append(inserted, c)
			progressed = true
		}
		if !progressed {
			break
		}
	}
	d.metrics.SetPendingChanges(d.pending.Len())
	return inserted
}

// installLocked extends or appends the peer's run, updates frontiers, and
// extends the version vector — spec.md §4.6 steps 3-5.
func (d *Dag) installLocked(c common.Change, lamport common.Lamport) {
	peer := c.ID.Peer
	runs := d.runs[peer]

	merged := false
	if len(runs) > 0 {
		last := runs[len(runs)-1]
		if last.Cnt+common.Counter(last.Len) == c.ID.Counter &&
			len(c.Deps) == 1 && c.Deps[0] == last.LastID() {
			last.Len += c.Len()
			merged = true
		}
	}
	if !merged {
		d.runs[peer] = append(runs, &DagNode{
			Peer:    peer,
			Cnt:     c.ID.Counter,
			Len:     c.Len(),
			Lamport: lamport,
			Deps:    c.Deps.Clone(),
		})
	}

	newFrontiers := d.frontiers
	for _, dep := range c.Deps {
		newFrontiers = newFrontiers.Remove(dep)
		if n, ok := d.findNode(dep.Peer, dep.Counter); ok && n.LastID() == dep {
			n.HasSucc = true
		}
	}
	d.frontiers = append(newFrontiers, c.LastID())
	d.vv.Extend(c.ID, c.Len())
}
