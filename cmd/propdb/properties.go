// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/tableprops"
	"github.com/spf13/cobra"
)

var propertiesCmd = &cobra.Command{
	Use:   "properties <file.sst>",
	Short: "print the properties of a table",
	Long: `Print every property recorded in a table followed by the decoded
time bounds and range deletion flag. A table whose properties block is
damaged is still printed; the damaged entries are reported as absent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printTableProperties(cmd.OutOrStdout(), args[0])
	},
}

func printTableProperties(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r, err := sstable.NewReader(f, st.Size(), sstable.ReaderOptions{})
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	defer r.Close()

	props := r.Properties()
	if err := r.PropertiesError(); err != nil {
		fmt.Fprintf(w, "warning: %v\n", err)
	}
	for _, p := range props.All() {
		fmt.Fprintf(w, "%s: %s\n", p.Name, describeProperty(p.Name, p.Value))
	}
	fmt.Fprintln(w)
	writeSummary(w, tableprops.Summarize(props))
	return nil
}

func writeSummary(w io.Writer, s tableprops.Summary) {
	if s.HasTimeBounds {
		fmt.Fprintf(w, "time bounds: [%s, %s]\n", s.MinTimestamp, s.MaxTimestamp)
	} else {
		fmt.Fprintln(w, "time bounds: unknown")
	}
	fmt.Fprintf(w, "range deletions: %t\n", s.HasRangeDeletion)
}

// describeProperty renders a property value for display. Values of unknown
// properties are printed in hex.
func describeProperty(name string, value []byte) string {
	switch name {
	case sstable.PropNumEntries, sstable.PropNumDeletions, sstable.PropNumRangeDeletions,
		sstable.PropRawKeySize, sstable.PropRawValueSize,
		sstable.PropSmallestSeqNum, sstable.PropLargestSeqNum:
		if v, n := binary.Uvarint(value); n == len(value) && n > 0 {
			return strconv.FormatUint(v, 10)
		}
	case sstable.PropComparer, sstable.PropCompression, sstable.PropPropertyCollectors:
		return string(value)
	case tableprops.TimeBoundMinProperty, tableprops.TimeBoundMaxProperty:
		if len(value) == 0 {
			return "unbounded"
		}
		if ts, err := mvcc.DecodeTimestamp(value); err == nil {
			return ts.String()
		}
	case tableprops.DeleteRangeProperty:
		if len(value) == 1 && value[0] <= 1 {
			return strconv.FormatBool(value[0] == 1)
		}
	}
	if len(value) == 0 {
		return `""`
	}
	return "0x" + hex.EncodeToString(value)
}
