// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package keyspan holds range deletion tombstones.
package keyspan

import (
	"fmt"
	"sort"

	"github.com/khushmanvar/propdb/internal/base"
)

// Span is a range deletion tombstone covering the user keys in [Start, End)
// that were written with a sequence number below SeqNum.
type Span struct {
	// Start is the inclusive start of the key span.
	Start []byte
	// End is the exclusive end of the key span.
	End []byte
	// SeqNum is the sequence number of the tombstone.
	SeqNum uint64
}

// Valid returns true if the span covers at least one key.
func (s Span) Valid(cmp base.Compare) bool {
	return cmp(s.Start, s.End) < 0
}

// Contains returns true if key falls within [Start, End).
func (s Span) Contains(cmp base.Compare, key []byte) bool {
	return cmp(s.Start, key) <= 0 && cmp(key, s.End) < 0
}

// Covers returns true if the tombstone deletes key: the key lies within the
// span and is older than the tombstone.
func (s Span) Covers(cmp base.Compare, key base.InternalKey) bool {
	return key.SeqNum() < s.SeqNum && s.Contains(cmp, key.UserKey)
}

// StartKey returns the internal key under which the tombstone is stored.
func (s Span) StartKey() base.InternalKey {
	return base.MakeInternalKey(s.Start, s.SeqNum, base.InternalKeyKindRangeDelete)
}

func (s Span) String() string {
	return fmt.Sprintf("[%q, %q)#%d", s.Start, s.End, s.SeqNum)
}

// Sort orders spans by start key ascending, breaking ties by sequence number
// descending, which is the order in which tombstones are added to a table.
func Sort(cmp base.Compare, spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if c := cmp(spans[i].Start, spans[j].Start); c != 0 {
			return c < 0
		}
		return spans[i].SeqNum > spans[j].SeqNum
	})
}

// Covered returns true if any span in spans deletes key.
func Covered(cmp base.Compare, spans []Span, key base.InternalKey) bool {
	for i := range spans {
		if spans[i].Covers(cmp, key) {
			return true
		}
	}
	return false
}

// CoveringSeqNum returns the largest sequence number of the spans containing
// key, or 0 if no span contains it.
func CoveringSeqNum(cmp base.Compare, spans []Span, key []byte) uint64 {
	var seqNum uint64
	for i := range spans {
		if spans[i].SeqNum > seqNum && spans[i].Contains(cmp, key) {
			seqNum = spans[i].SeqNum
		}
	}
	return seqNum
}
