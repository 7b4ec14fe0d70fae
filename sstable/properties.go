// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/khushmanvar/propdb/internal/base"
)

// Names of the properties every table records about itself. Properties
// emitted by collectors live alongside these in the same block.
const (
	PropNumEntries         = "propdb.num.entries"
	PropNumDeletions       = "propdb.num.deletions"
	PropNumRangeDeletions  = "propdb.num.range-deletions"
	PropRawKeySize         = "propdb.raw.key.size"
	PropRawValueSize       = "propdb.raw.value.size"
	PropComparer           = "propdb.comparator"
	PropCompression        = "propdb.compression"
	PropPropertyCollectors = "propdb.property.collectors"
	PropSmallestSeqNum     = "propdb.seqnum.smallest"
	PropLargestSeqNum      = "propdb.seqnum.largest"
)

// Property is a single named entry of a table's properties block. Once
// written the entry is immutable for the lifetime of the table.
type Property struct {
	Name  string
	Value []byte
}

// TableProperties are the decoded contents of a table's properties block.
type TableProperties struct {
	// NumEntries is the number of point entries in the table.
	NumEntries uint64
	// NumDeletions is the number of point deletion tombstones.
	NumDeletions uint64
	// NumRangeDeletions is the number of range deletion tombstones.
	NumRangeDeletions uint64
	// RawKeySize is the total size of the encoded keys.
	RawKeySize uint64
	// RawValueSize is the total size of the values.
	RawValueSize uint64
	// ComparerName is the name of the comparer the table was written with.
	ComparerName string
	// CompressionName is the data block compression.
	CompressionName string
	// PropertyCollectorNames is a comma separated list of the collectors
	// that ran while the table was written, enclosed in brackets.
	PropertyCollectorNames string
	// SmallestSeqNum and LargestSeqNum bound the sequence numbers of the
	// entries in the table.
	SmallestSeqNum uint64
	LargestSeqNum  uint64

	// all holds every entry of the block sorted by name, including the ones
	// mirrored in the fields above.
	all []Property
}

// Get returns the raw value of the named property. A missing property is a
// normal outcome: the table predates the collector or the collector was not
// configured when the table was written.
func (p *TableProperties) Get(name string) ([]byte, bool) {
	if p == nil {
		return nil, false
	}
	i := sort.Search(len(p.all), func(i int) bool { return p.all[i].Name >= name })
	if i < len(p.all) && p.all[i].Name == name {
		return p.all[i].Value, true
	}
	return nil, false
}

// All returns every property in name order. The slice must not be modified.
func (p *TableProperties) All() []Property {
	if p == nil {
		return nil
	}
	return p.all
}

// CollectorNames returns the names listed in PropertyCollectorNames.
func (p *TableProperties) CollectorNames() []string {
	s := strings.TrimSuffix(strings.TrimPrefix(p.PropertyCollectorNames, "["), "]")
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// load populates p from decoded entries. Built-in properties that fail to
// decode are left at zero.
func (p *TableProperties) load(props []Property) {
	sortProperties(props)
	p.all = props
	for _, prop := range props {
		switch prop.Name {
		case PropNumEntries:
			p.NumEntries = decodeUvarintProp(prop.Value)
		case PropNumDeletions:
			p.NumDeletions = decodeUvarintProp(prop.Value)
		case PropNumRangeDeletions:
			p.NumRangeDeletions = decodeUvarintProp(prop.Value)
		case PropRawKeySize:
			p.RawKeySize = decodeUvarintProp(prop.Value)
		case PropRawValueSize:
			p.RawValueSize = decodeUvarintProp(prop.Value)
		case PropComparer:
			p.ComparerName = string(prop.Value)
		case PropCompression:
			p.CompressionName = string(prop.Value)
		case PropPropertyCollectors:
			p.PropertyCollectorNames = string(prop.Value)
		case PropSmallestSeqNum:
			p.SmallestSeqNum = decodeUvarintProp(prop.Value)
		case PropLargestSeqNum:
			p.LargestSeqNum = decodeUvarintProp(prop.Value)
		}
	}
}

func (p *TableProperties) builtin() []Property {
	return []Property{
		{Name: PropNumEntries, Value: binary.AppendUvarint(nil, p.NumEntries)},
		{Name: PropNumDeletions, Value: binary.AppendUvarint(nil, p.NumDeletions)},
		{Name: PropNumRangeDeletions, Value: binary.AppendUvarint(nil, p.NumRangeDeletions)},
		{Name: PropRawKeySize, Value: binary.AppendUvarint(nil, p.RawKeySize)},
		{Name: PropRawValueSize, Value: binary.AppendUvarint(nil, p.RawValueSize)},
		{Name: PropComparer, Value: []byte(p.ComparerName)},
		{Name: PropCompression, Value: []byte(p.CompressionName)},
		{Name: PropPropertyCollectors, Value: []byte(p.PropertyCollectorNames)},
		{Name: PropSmallestSeqNum, Value: binary.AppendUvarint(nil, p.SmallestSeqNum)},
		{Name: PropLargestSeqNum, Value: binary.AppendUvarint(nil, p.LargestSeqNum)},
	}
}

func decodeUvarintProp(b []byte) uint64 {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0
	}
	return v
}

func sortProperties(props []Property) {
	sort.SliceStable(props, func(i, j int) bool { return props[i].Name < props[j].Name })
}

// EncodeProperties appends each property to dst as a length-prefixed name
// followed by a length-prefixed value, in the order given.
func EncodeProperties(dst []byte, props []Property) []byte {
	for _, p := range props {
		dst = binary.AppendUvarint(dst, uint64(len(p.Name)))
		dst = append(dst, p.Name...)
		dst = binary.AppendUvarint(dst, uint64(len(p.Value)))
		dst = append(dst, p.Value...)
	}
	return dst
}

// DecodeProperties decodes a block produced by EncodeProperties. On malformed
// input it returns the entries decoded before the damage along with a
// corruption error. Values alias b.
func DecodeProperties(b []byte) ([]Property, error) {
	var props []Property
	for len(b) > 0 {
		name, rest, ok := decodeLengthPrefixed(b)
		if !ok {
			return props, base.CorruptionErrorf("propdb/table: truncated property name at entry %d", len(props))
		}
		value, rest, ok := decodeLengthPrefixed(rest)
		if !ok {
			return props, base.CorruptionErrorf("propdb/table: truncated value of property %q", name)
		}
		props = append(props, Property{Name: string(name), Value: value})
		b = rest
	}
	return props, nil
}

// LookupProperty scans an encoded properties block for the named entry
// without decoding the rest of the block. A malformed block is treated as not
// containing the entry.
func LookupProperty(block []byte, name string) ([]byte, bool) {
	for len(block) > 0 {
		n, rest, ok := decodeLengthPrefixed(block)
		if !ok {
			return nil, false
		}
		value, rest, ok := decodeLengthPrefixed(rest)
		if !ok {
			return nil, false
		}
		if string(n) == name {
			return value, true
		}
		block = rest
	}
	return nil, false
}

func decodeLengthPrefixed(b []byte) (v, rest []byte, ok bool) {
	l, n := binary.Uvarint(b)
	if n <= 0 || l > uint64(len(b)-n) {
		return nil, nil, false
	}
	end := n + int(l)
	return b[n:end:end], b[end:], true
}
