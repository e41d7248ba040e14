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

// Package metrics exposes read-only Prometheus observers for the engine's
// internal state (spec.md §5 is explicit that these never participate in
// the locking protocol — they are observers, not synchronization).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the gauges/counters/histograms this module reports. A
// nil *Registry is safe to call methods on (they no-op), so callers that
// don't care about metrics can skip construction entirely.
type Registry struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	FlushLatency    prometheus.Histogram
	UndoStackDepth  prometheus.Gauge
	RedoStackDepth  prometheus.Gauge
	PendingChanges  prometheus.Gauge
	ImportedChanges prometheus.Counter
	ExportedBytes   prometheus.Counter
}

// New registers this module's metrics against reg (typically
// prometheus.DefaultRegisterer, but tests pass a fresh prometheus.Registry
// so repeated construction doesn't panic on duplicate registration).
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Subsystem: "kv", Name: "block_cache_hits_total",
			Help: "SSTable block cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Subsystem: "kv", Name: "block_cache_misses_total",
			Help: "SSTable block cache misses.",
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loro", Subsystem: "oplog", Name: "flush_seconds",
			Help:    "ChangeStore flush-and-compact latency.",
			Buckets: prometheus.DefBuckets,
		}),
		UndoStackDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loro", Subsystem: "undo", Name: "undo_stack_depth",
			Help: "Current number of frames on the undo stack.",
		}),
		RedoStackDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loro", Subsystem: "undo", Name: "redo_stack_depth",
			Help: "Current number of frames on the redo stack.",
		}),
		PendingChanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loro", Subsystem: "oplog", Name: "pending_changes",
			Help: "Changes queued in the DAG's pending-change queue awaiting deps.",
		}),
		ImportedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Subsystem: "encoding", Name: "imported_changes_total",
			Help: "Changes successfully imported via the columnar wire codec.",
		}),
		ExportedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Subsystem: "encoding", Name: "exported_bytes_total",
			Help: "Total bytes produced by export.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			r.CacheHits, r.CacheMisses, r.FlushLatency, r.UndoStackDepth,
			r.RedoStackDepth, r.PendingChanges, r.ImportedChanges, r.ExportedBytes,
		} {
			reg.MustRegister(c)
		}
	}
	return r
}

// ObserveCacheHit and ObserveCacheMiss count block cache hits and misses;
// no package in this module calls them.
func (r *Registry) ObserveCacheHit() {
	if r == nil || r.CacheHits == nil {
		return
	}
	r.CacheHits.Inc()
}

func (r *Registry) ObserveCacheMiss() {
	if r == nil || r.CacheMisses == nil {
		return
	}
	r.CacheMisses.Inc()
}

// SetUndoDepth and SetRedoDepth report the current stack sizes; the undo
// package does not call them.
func (r *Registry) SetUndoDepth(n int) {
	if r == nil || r.UndoStackDepth == nil {
		return
	}
	r.UndoStackDepth.Set(float64(n))
}

func (r *Registry) SetRedoDepth(n int) {
	if r == nil || r.RedoStackDepth == nil {
		return
	}
	r.RedoStackDepth.Set(float64(n))
}

// SetPendingChanges reports the DAG's pending-queue size.
func (r *Registry) SetPendingChanges(n int) {
	if r == nil || r.PendingChanges == nil {
		return
	}
	r.PendingChanges.Set(float64(n))
}

// ObserveFlushSeconds records one ChangeStore flush-and-compact duration.
func (r *Registry) ObserveFlushSeconds(seconds float64) {
	if r == nil || r.FlushLatency == nil {
		return
	}
	r.FlushLatency.Observe(seconds)
}

// AddImportedChanges and AddExportedBytes are cumulative counters reported
// by the columnar wire codec (C7).
func (r *Registry) AddImportedChanges(n int) {
	if r == nil || r.ImportedChanges == nil {
		return
	}
	r.ImportedChanges.Add(float64(n))
}

func (r *Registry) AddExportedBytes(n int) {
	if r == nil || r.ExportedBytes == nil {
		return
	}
	r.ExportedBytes.Add(float64(n))
}
