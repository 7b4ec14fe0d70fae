// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/khushmanvar/propdb"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const contentTypeJSON = "application/json"

// tableJSON is the JSON form of a live table.
type tableJSON struct {
	FileNum             uint64 `json:"file_num"`
	Level               int    `json:"level"`
	Size                uint64 `json:"size"`
	Smallest            string `json:"smallest"`
	Largest             string `json:"largest"`
	SmallestSeqNum      uint64 `json:"smallest_seq_num"`
	LargestSeqNum       uint64 `json:"largest_seq_num"`
	MarkedForCompaction bool   `json:"marked_for_compaction"`
	HasTimeBounds       bool   `json:"has_time_bounds"`
	MinTimestamp        string `json:"min_timestamp,omitempty"`
	MaxTimestamp        string `json:"max_timestamp,omitempty"`
	HasRangeDeletion    bool   `json:"has_range_deletion"`
}

func newTableJSON(t propdb.TableInfo) tableJSON {
	j := tableJSON{
		FileNum:             t.FileNum,
		Level:               t.Level,
		Size:                t.Size,
		Smallest:            t.Smallest.String(),
		Largest:             t.Largest.String(),
		SmallestSeqNum:      t.SmallestSeqNum,
		LargestSeqNum:       t.LargestSeqNum,
		MarkedForCompaction: t.MarkedForCompaction,
		HasTimeBounds:       t.Summary.HasTimeBounds,
		HasRangeDeletion:    t.Summary.HasRangeDeletion,
	}
	if t.Summary.HasTimeBounds {
		j.MinTimestamp = t.Summary.MinTimestamp.String()
		j.MaxTimestamp = t.Summary.MaxTimestamp.String()
	}
	return j
}

type errorResponse struct {
	Error string `json:"error"`
}

// server exposes a DB's tables, their properties, and the DB metrics over
// HTTP.
type server struct {
	db     *propdb.DB
	gather prometheus.Gatherer
	logger *slog.Logger
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	r.Get("/tables", s.handleTables)
	r.Get("/tables/{file}/properties", s.handleProperties)
	return r
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding response", "error", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTables lists the live tables. The optional min and max query
// parameters restrict the list to the tables that may hold versions in
// [min, max].
func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var tables []propdb.TableInfo
	if q.Has("min") || q.Has("max") {
		var bounds [2]mvcc.Timestamp
		for i, name := range []string{"min", "max"} {
			v := q.Get(name)
			if v == "" {
				continue
			}
			ts, err := mvcc.ParseTimestamp(v)
			if err != nil {
				s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: errors.Wrapf(err, "invalid %s", name).Error()})
				return
			}
			bounds[i] = ts
		}
		tables = s.db.TablesForTimeRange(bounds[0], bounds[1])
	} else {
		tables = s.db.Tables()
	}
	res := make([]tableJSON, 0, len(tables))
	for _, t := range tables {
		res = append(res, newTableJSON(t))
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleProperties returns every property of a table, rendered as by the
// properties command.
func (s *server) handleProperties(w http.ResponseWriter, r *http.Request) {
	fileNum, err := strconv.ParseUint(chi.URLParam(r, "file"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid file number"})
		return
	}
	props, err := s.db.TableProperties(fileNum)
	if errors.Is(err, propdb.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	} else if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	res := make(map[string]string)
	for _, p := range props.All() {
		res[p.Name] = describeProperty(p.Name, p.Value)
	}
	s.writeJSON(w, http.StatusOK, res)
}
