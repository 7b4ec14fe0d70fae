// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus metrics of a DB.
type Metrics struct {
	Flushes            prometheus.Counter
	Compactions        *prometheus.CounterVec
	TablesWritten      prometheus.Counter
	RangeDelTables     prometheus.Counter
	UnboundedTables    prometheus.Counter
	PropertyErrors     prometheus.Counter
	LiveTables         *prometheus.GaugeVec
	TablesPrunedByTime prometheus.Counter
}

// NewMetrics creates the DB metrics. Open registers them with
// Options.MetricsRegisterer and Close unregisters them.
func NewMetrics() *Metrics {
	m := &Metrics{
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propdb_flushes_total",
			Help: "Total memtable flushes",
		}),
		Compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propdb_compactions_total",
			Help: "Total compactions by reason",
		}, []string{"reason"}),
		TablesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propdb_tables_written_total",
			Help: "Total tables written by flushes and compactions",
		}),
		RangeDelTables: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propdb_tables_with_range_deletions_total",
			Help: "Tables written or opened whose properties record a range deletion",
		}),
		UnboundedTables: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propdb_tables_without_time_bounds_total",
			Help: "Tables written or opened without known MVCC time bounds",
		}),
		PropertyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propdb_table_property_errors_total",
			Help: "Tables opened with a missing or damaged properties block",
		}),
		LiveTables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "propdb_live_tables",
			Help: "Live tables per level",
		}, []string{"level"}),
		TablesPrunedByTime: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propdb_tables_pruned_by_time_total",
			Help: "Tables skipped by time-bound filtering",
		}),
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Flushes, m.Compactions, m.TablesWritten, m.RangeDelTables,
		m.UnboundedTables, m.PropertyErrors, m.LiveTables, m.TablesPrunedByTime}
}

// register registers the metrics with reg. If any registration fails, the
// metrics already registered are unregistered again.
func (m *Metrics) register(reg prometheus.Registerer) error {
	cs := m.collectors()
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, r := range cs[:i] {
				reg.Unregister(r)
			}
			return errors.Wrap(err, "propdb: registering metrics")
		}
	}
	return nil
}

func (m *Metrics) unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

func (m *Metrics) updateLevels(v *manifest.Version) {
	for level := range v.Files {
		m.LiveTables.WithLabelValues(strconv.Itoa(level)).Set(float64(len(v.Files[level])))
	}
}
