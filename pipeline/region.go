// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/hts/sam"
)

// Region is a half-open, 0-based genomic interval processed as one unit of
// work.  Padding expands the interval for read fetching and candidate
// context; [PaddedStart, Start) and [End, PaddedEnd) belong to neighboring
// regions' core intervals.
type Region struct {
	Ref     *sam.Reference
	Start   int
	End     int
	Padding int
	// Index is the region's position in reference order.  Output order does
	// not use it; the merge keys rows by contig rank and position.
	Index int
}

// Size returns the core interval width in base pairs.
func (r Region) Size() int { return r.End - r.Start }

// PaddedStart returns max(Start-Padding, 0).
func (r Region) PaddedStart() int {
	if s := r.Start - r.Padding; s > 0 {
		return s
	}
	return 0
}

// PaddedEnd returns min(End+Padding, contig length).
func (r Region) PaddedEnd() int {
	e := r.End + r.Padding
	if r.Ref != nil && e > r.Ref.Len() {
		return r.Ref.Len()
	}
	return e
}

// RecordOverlaps reports whether an aligned read intersects the padded
// interval.
func (r Region) RecordOverlaps(rec *sam.Record) bool {
	if rec.Ref == nil || r.Ref == nil || rec.Ref.ID() != r.Ref.ID() {
		return false
	}
	return rec.Pos < r.PaddedEnd() && rec.End() > r.PaddedStart()
}

func (r Region) String() string {
	name := "?"
	if r.Ref != nil {
		name = r.Ref.Name()
	}
	return fmt.Sprintf("%s:%d-%d", name, r.Start, r.End)
}

// RegionState tracks a region through the scheduler.
type RegionState int32

const (
	RegionPending RegionState = iota
	RegionInProgress
	RegionCompleted
	RegionSkipped
	RegionFailed
)

func (s RegionState) String() string {
	switch s {
	case RegionPending:
		return "Pending"
	case RegionInProgress:
		return "InProgress"
	case RegionCompleted:
		return "Completed"
	case RegionSkipped:
		return "Skipped"
	case RegionFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Partition slices every reference contig in header into consecutive
// regions of at most regionSize base pairs.  Regions are returned in
// reference order with ascending Index.
func Partition(header *sam.Header, regionSize, padding int) ([]Region, error) {
	if regionSize <= 0 {
		return nil, fmt.Errorf("pipeline.Partition: region size %d must be positive", regionSize)
	}
	if padding < 0 {
		return nil, fmt.Errorf("pipeline.Partition: negative padding %d", padding)
	}
	var regions []Region
	idx := 0
	for _, ref := range header.Refs() {
		for start := 0; start < ref.Len(); start += regionSize {
			end := start + regionSize
			if end > ref.Len() {
				end = ref.Len()
			}
			regions = append(regions, Region{
				Ref:     ref,
				Start:   start,
				End:     end,
				Padding: padding,
				Index:   idx,
			})
			idx++
		}
	}
	return regions, nil
}

// RegionFromString parses "contig:first-last" (1-based, inclusive),
// "contig:pos", or "contig" against the header, returning a single region
// covering the requested interval.
func RegionFromString(header *sam.Header, s string, padding int) (Region, error) {
	if s == "" {
		return Region{}, fmt.Errorf("pipeline.RegionFromString: empty region string")
	}
	name := s
	start0, end := 0, -1
	if colon := strings.IndexByte(s, ':'); colon != -1 {
		if colon == 0 {
			return Region{}, fmt.Errorf("pipeline.RegionFromString: empty contig ID in %q", s)
		}
		name = s[:colon]
		rangeStr := s[colon+1:]
		dash := strings.IndexByte(rangeStr, '-')
		if dash == -1 {
			pos1, err := strconv.Atoi(rangeStr)
			if err != nil || pos1 <= 0 {
				return Region{}, fmt.Errorf("pipeline.RegionFromString: bad position in %q", s)
			}
			start0, end = pos1-1, pos1
		} else {
			start1, err := strconv.Atoi(rangeStr[:dash])
			if err != nil || start1 <= 0 {
				return Region{}, fmt.Errorf("pipeline.RegionFromString: bad start in %q", s)
			}
			last, err := strconv.Atoi(rangeStr[dash+1:])
			if err != nil || last < start1 {
				return Region{}, fmt.Errorf("pipeline.RegionFromString: bad range in %q", s)
			}
			start0, end = start1-1, last
		}
	}
	for _, ref := range header.Refs() {
		if ref.Name() != name {
			continue
		}
		if end < 0 {
			end = ref.Len()
		}
		if end > ref.Len() {
			return Region{}, fmt.Errorf("pipeline.RegionFromString: %q extends past end of %s (%d)", s, name, ref.Len())
		}
		return Region{Ref: ref, Start: start0, End: end, Padding: padding}, nil
	}
	return Region{}, fmt.Errorf("pipeline.RegionFromString: contig %q not in header", name)
}
