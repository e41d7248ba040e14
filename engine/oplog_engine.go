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

// Package engine wires the oplog (C5/C6) and wire codec (C7) components
// together into the write/read path spec.md §2's data-flow paragraph
// describes: a local Change goes through ChangeStore into the DAG; export
// walks a version range through the DAG and ChangeStore and hands it to
// the columnar codec; import runs the codec's decode and replays the
// result through the DAG and ChangeStore, retrying anything left pending.
//
// It is not itself a named component in spec.md §2's table — the merge
// algorithms and document handle API that would normally drive this glue
// are out of scope (spec.md §1) — but every export/import round trip in
// this module passes through it.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/loro-dev/loro-go-core/common"
	"github.com/loro-dev/loro-go-core/config"
	"github.com/loro-dev/loro-go-core/encoding"
	"github.com/loro-dev/loro-go-core/internal/logging"
	"github.com/loro-dev/loro-go-core/metrics"
	"github.com/loro-dev/loro-go-core/oplog"
)

// OpLog bundles a ChangeStore and a Dag behind one mutex, matching
// spec.md §5's "single-threaded logically... serialized behind a
// coarse mutex" scheduling model. It is the closest analogue in this
// module to the original's OpLog struct
// (original_source/crates/loro-internal/src/oplog/change_store.rs).
type OpLog struct {
	mu sync.Mutex

	changes *oplog.ChangeStore
	dag     *oplog.Dag

	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New builds an empty OpLog from cfg's tunables. logger/reg may be nil.
func New(cfg config.Config, logger *zap.Logger, reg *metrics.Registry) *OpLog {
	cfg.Normalize()
	logger = logging.NopIfNil(logger)
	return &OpLog{
		changes: oplog.NewChangeStore(uint32(cfg.MaxChangeBlockSize), cfg.ChangeMergeIntervalMs, logger, reg),
		dag:     oplog.NewDag(logger, reg),
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
	}
}

// ChangeStore exposes the underlying C5 store for callers (e.g. the undo
// engine's diff machinery, or a document handle) that need direct
// GetChange/IterChanges access beyond Commit/Import/Export.
func (o *OpLog) ChangeStore() *oplog.ChangeStore { return o.changes }

// Dag exposes the underlying C6 DAG.
func (o *OpLog) Dag() *oplog.Dag { return o.dag }

// VersionVector returns the DAG's current version vector.
func (o *OpLog) VersionVector() common.VersionVector { return o.dag.VersionVector() }

// Frontiers returns the DAG's current frontiers.
func (o *OpLog) Frontiers() common.Frontiers { return o.dag.Frontiers() }

// CommitLocal assigns id.Counter = vv[peer], deps = current frontiers, and
// a DAG-assigned lamport to a locally-produced run of ops, then inserts
// the resulting Change into the ChangeStore and DAG — spec.md §2's write
// path: "a local edit produces a Change... ChangeStore appends it... the
// DAG registers the new node."
func (o *OpLog) CommitLocal(peer common.PeerID, ops []common.Op, timestampUnix int64, msg string) (common.Change, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	counter := o.dag.VersionVector().Get(peer)
	c := common.Change{
		ID:        common.ID{Peer: peer, Counter: counter},
		Timestamp: timestampUnix,
		Deps:      o.dag.Frontiers(),
		Ops:       ops,
		Message:   msg,
	}
	lamport, err := o.dag.TryInsertChange(c)
	if err != nil {
		// A local commit's deps are always the DAG's own frontiers, so
		// every dep is by definition already known; this can only fire if
		// a caller bypassed the version vector read above.
		return common.Change{}, fmt.Errorf("engine: local commit rejected: %w", err)
	}
	c.Lamport = lamport
	if err := o.changes.InsertChange(c); err != nil {
		return common.Change{}, err
	}
	return c, nil
}

// ExportFrom encodes every Change in (startVV, current frontiers] as a
// fast-updates blob (spec.md §4.7, §5 "Export reflects the causal closure
// of vv").
func (o *OpLog) ExportFrom(startVV common.VersionVector) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	batch, err := o.collectBatchLocked(startVV)
	if err != nil {
		return nil, err
	}
	blob, err := encoding.EncodeUpdates(batch)
	if err != nil {
		return nil, err
	}
	o.metrics.AddExportedBytes(len(blob))
	return blob, nil
}

// ExportAll encodes the full history, equivalent to ExportFrom(an empty
// version vector).
func (o *OpLog) ExportAll() ([]byte, error) {
	return o.ExportFrom(common.NewVersionVector())
}

func (o *OpLog) collectBatchLocked(startVV common.VersionVector) (encoding.Batch, error) {
	endVV := o.dag.VersionVector()
	var changes []common.Change
	for _, peer := range endVV.SortedPeers() {
		start := startVV.Get(peer)
		end := endVV.Get(peer)
		if start >= end {
			continue
		}
		refs, err := o.changes.IterChanges(common.IdSpan{Peer: peer, CounterStart: start, CounterEnd: end})
		if err != nil {
			return encoding.Batch{}, err
		}
		for _, r := range refs {
			c, err := r.Change()
			if err != nil {
				return encoding.Batch{}, err
			}
			changes = append(changes, c)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Lamport < changes[j].Lamport })
	return encoding.Batch{
		Changes:        changes,
		StartVV:        startVV.Clone(),
		StartFrontiers: frontiersOf(startVV),
	}, nil
}

// frontiersOf approximates the causal frontier implied by a version
// vector cut: one ID per peer with a non-zero count, at its last known
// counter. This is only ever round-tripped as descriptive blob metadata
// (encoding never reconstructs causality from it), so an approximation
// that isn't a minimal antichain
// is harmless.
func frontiersOf(vv common.VersionVector) common.Frontiers {
	var out common.Frontiers
	for _, p := range vv.SortedPeers() {
		if c := vv.Get(p); c > 0 {
			out = append(out, common.ID{Peer: p, Counter: c - 1})
		}
	}
	return out
}

// ImportResult reports what an Import call actually did, per spec.md §7's
// tier-2 causal-error handling: the caller always gets the resulting
// version vector, plus a non-nil Rejected error only when some change
// could not be resolved because it depends on trimmed history.
type ImportResult struct {
	VersionVector common.VersionVector
	Applied       int
	Pending       int
	Rejected      error
}

// Import decodes raw and replays its Changes through the DAG and
// ChangeStore, per spec.md §4.7's import pass: sort the whole batch by
// lamport (it is not grouped by peer), skip anything fully known,
// trim any partially-known prefix, queue unresolved deps as pending, and
// retry the pending queue once the main pass is done. Import is
// idempotent (spec.md §5): re-importing a blob that is already fully
// included in vv applies nothing.
func (o *OpLog) Import(raw []byte) (ImportResult, error) {
	batch, mode, err := encoding.Decode(raw)
	if err != nil {
		return ImportResult{}, err
	}
	if mode == encoding.ModeFastSnapshot {
		o.logger.Debug("engine: importing snapshot blob; container state reconstruction is an external collaborator (spec.md §1)")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	changes := append([]common.Change(nil), batch.Changes...)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Lamport < changes[j].Lamport })

	var rejected error
	applied := 0
	for _, c := range changes {
		n, err := o.importOneLocked(c)
		if err != nil {
			if rejected == nil {
				rejected = err
			}
			continue
		}
		if n {
			applied++
		}
	}

	for _, c := range o.dag.RetryPending() {
		if err := o.changes.InsertChange(c); err != nil {
			if rejected == nil {
				rejected = err
			}
			continue
		}
		applied++
	}

	vv := o.dag.VersionVector()
	o.metrics.AddImportedChanges(applied)
	return ImportResult{
		VersionVector: vv,
		Applied:       applied,
		Pending:       o.dag.PendingLen(),
		Rejected:      rejected,
	}, nil
}

// importOneLocked handles one decoded Change: skip if fully known, trim a
// partially-known prefix, then hand the remainder to the DAG/ChangeStore
// pair. It returns true if a (possibly trimmed) Change was installed.
func (o *OpLog) importOneLocked(c common.Change) (bool, error) {
	known := o.dag.VersionVector().Get(c.ID.Peer)
	if c.CounterEnd() <= known {
		return false, nil // already known in full
	}
	if known > c.ID.Counter {
		c = oplog.TrimKnownPrefix(c, known)
		if len(c.Ops) == 0 {
			return false, nil
		}
	}

	lamport, err := o.dag.TryInsertChange(c)
	if err != nil {
		return false, err
	}
	c.Lamport = lamport
	if err := o.changes.InsertChange(c); err != nil {
		return false, err
	}
	return true, nil
}

// FlushAndExportBytes flushes every unflushed ChangeBlock to the durable
// KV form and returns it as a single blob suitable for ImportExternal —
// the blob/export path spec.md §6 describes for opaque caller storage.
func (o *OpLog) FlushAndExportBytes() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.changes.FlushAndCompact(o.dag.VersionVector(), o.dag.Frontiers()); err != nil {
		return nil, err
	}
	return o.changes.ExportBytes()
}

// LoadFromBytes rebuilds an OpLog's ChangeStore from a previously
// exported durable blob. The DAG is rebuilt by replaying every change the
// reloaded ChangeStore reports, since the DAG itself is not persisted
// (spec.md §5: "all persistence is in-memory byte blobs").
func LoadFromBytes(raw []byte, cfg config.Config, logger *zap.Logger, reg *metrics.Registry) (*OpLog, error) {
	cfg.Normalize()
	logger = logging.NopIfNil(logger)
	cs, _, err := oplog.LoadChangeStore(raw, uint32(cfg.MaxChangeBlockSize), cfg.ChangeMergeIntervalMs, logger, reg)
	if err != nil {
		return nil, err
	}
	o := &OpLog{
		changes: cs,
		dag:     oplog.NewDag(logger, reg),
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
	}
	if sVV, sFr, ok := cs.ShallowRoot(); ok {
		o.dag.SetShallowRoot(sVV, sFr)
	}

	vv := cs.ExternalVV()
	var all []common.Change
	for _, peer := range vv.SortedPeers() {
		refs, err := cs.IterChanges(common.IdSpan{Peer: peer, CounterStart: 0, CounterEnd: vv.Get(peer)})
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			c, err := r.Change()
			if err != nil {
				return nil, err
			}
			all = append(all, c)
		}
	}
	// Every change already carries its originally-assigned lamport, so a
	// lamport-ascending replay installs deps before dependents in the
	// common case; the pending-queue retry below (mirroring Import's
	// pass/retry structure) mops up anything left unresolved by the first
	// pass, exactly as a freshly-imported out-of-order batch would.
	sort.Slice(all, func(i, j int) bool { return all[i].Lamport < all[j].Lamport })
	for _, c := range all {
		if _, err := o.dag.TryInsertChange(c); err != nil && !errors.Is(err, common.ErrUnknownDepPeer) {
			return nil, fmt.Errorf("engine: rebuilding dag from reloaded changestore: %w", err)
		}
	}
	o.dag.RetryPending()
	return o, nil
}
