// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "list the tables that may hold versions in a time range",
	Long: `List the tables of a directory whose recorded time bounds intersect
[min, max]. Timestamps are written as wall[,logical]. Tables without time
bounds are always listed. An empty --max leaves the range unbounded above.`,
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, _ []string) error {
		minTS, err := parseTimestampFlag("min")
		if err != nil {
			return err
		}
		maxTS, err := parseTimestampFlag("max")
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		opts, err := loadOptions(logger)
		if err != nil {
			return err
		}
		opts.DisableAutomaticCompactions = true
		d, err := openDir(viper.GetString("dir"), opts)
		if err != nil {
			return err
		}
		printTables(cmd.OutOrStdout(), d.TablesForTimeRange(minTS, maxTS))
		return d.Close()
	},
}

func init() {
	pruneCmd.Flags().String("dir", "data", "directory holding the tables")
	pruneCmd.Flags().String("min", "", "inclusive lower bound, wall[,logical]")
	pruneCmd.Flags().String("max", "", "inclusive upper bound, wall[,logical]")
}

func parseTimestampFlag(name string) (mvcc.Timestamp, error) {
	s := viper.GetString(name)
	if s == "" {
		return mvcc.Timestamp{}, nil
	}
	ts, err := mvcc.ParseTimestamp(s)
	if err != nil {
		return mvcc.Timestamp{}, errors.Wrapf(err, "invalid --%s", name)
	}
	return ts, nil
}

func printTables(w io.Writer, tables []propdb.TableInfo) {
	for _, t := range tables {
		bounds := "unknown"
		if t.Summary.HasTimeBounds {
			bounds = fmt.Sprintf("[%s, %s]", t.Summary.MinTimestamp, t.Summary.MaxTimestamp)
		}
		fmt.Fprintf(w, "%06d L%d %d bytes time=%s range-del=%t marked=%t\n",
			t.FileNum, t.Level, t.Size, bounds, t.Summary.HasRangeDeletion, t.MarkedForCompaction)
	}
}
