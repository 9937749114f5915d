// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

const (
	readRetryAttempts = 3
	readRetryBackoff  = 500 * time.Millisecond
)

// BAMReadSource fetches region reads from a coordinate-sorted BAM by
// sequential scan.  Transient IO failures are retried with doubling
// backoff; after readRetryAttempts the error surfaces and the region is
// marked Failed by the scheduler.
type BAMReadSource struct {
	Path string
	// MinMapQ drops reads below this mapping quality.
	MinMapQ int
	// FlagExclude drops reads whose FLAG intersects this mask.
	FlagExclude sam.Flags
}

// Reads implements ReadSource.
func (s *BAMReadSource) Reads(ctx context.Context, region Region, sample string) ([]*sam.Record, error) {
	backoff := readRetryBackoff
	var lastErr error
	for attempt := 0; attempt < readRetryAttempts; attempt++ {
		if attempt > 0 {
			log.Error.Printf("BAMReadSource: attempt %d for %s after error: %v", attempt+1, region, lastErr)
			time.Sleep(backoff)
			backoff *= 2
		}
		recs, err := s.fetch(ctx, region)
		if err == nil {
			return recs, nil
		}
		lastErr = err
	}
	return nil, errors.E(lastErr, "BAMReadSource: reads for", region.String())
}

func (s *BAMReadSource) fetch(ctx context.Context, region Region) ([]*sam.Record, error) {
	infile, err := file.Open(ctx, s.Path)
	if err != nil {
		return nil, err
	}
	defer infile.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(infile.Reader(ctx), 1)
	if err != nil {
		return nil, err
	}
	defer br.Close() // nolint: errcheck

	var out []*sam.Record
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Ref == nil || rec.Ref.ID() != region.Ref.ID() {
			// Input is coordinate sorted; once past the region's contig
			// there is nothing left to find.
			if rec.Ref != nil && rec.Ref.ID() > region.Ref.ID() {
				break
			}
			continue
		}
		if rec.Pos >= region.PaddedEnd() {
			break
		}
		if int(rec.MapQ) < s.MinMapQ || rec.Flags&s.FlagExclude != 0 {
			continue
		}
		if region.RecordOverlaps(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// readsFootprint estimates the buffered byte footprint of a read set for
// the budget.
func readsFootprint(recs []*sam.Record) int64 {
	var n int64
	for _, r := range recs {
		n += int64(r.Seq.Length) + int64(len(r.Qual)) + 128
	}
	return n
}
