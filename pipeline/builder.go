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
	"bytes"
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/varcall/candidate"
	"github.com/grailbio/varcall/haplotype"
)

// PerVariantBuilder proposes the reference haplotype plus one haplotype
// per candidate variant, each spanning the region's padded window.
// Combinatorial multi-variant proposal plugs in behind the same
// HaplotypeBuilder interface.
type PerVariantBuilder struct{}

// Build implements HaplotypeBuilder.
func (PerVariantBuilder) Build(ctx context.Context, region Region, refSeq []byte,
	variants []candidate.Variant) (*haplotype.Set, haplotype.Handle, error) {
	start := region.PaddedStart()
	end := region.PaddedEnd()
	if end > len(refSeq) {
		end = len(refSeq)
	}
	window := refSeq[start:end]

	set := haplotype.NewSet()
	refHandle := set.Add(haplotype.Haplotype{
		Contig: region.Ref.Name(),
		Start:  start,
		End:    end,
		Seq:    window,
	})

	nMismatch := 0
	for i, v := range variants {
		if v.Pos < start || v.Pos+len(v.Ref) > end {
			continue
		}
		if !bytes.Equal(refSeq[v.Pos:v.Pos+len(v.Ref)], v.Ref) {
			nMismatch++
			continue
		}
		seq := make([]byte, 0, len(window)-len(v.Ref)+len(v.Alt))
		seq = append(seq, refSeq[start:v.Pos]...)
		seq = append(seq, v.Alt...)
		seq = append(seq, refSeq[v.Pos+len(v.Ref):end]...)
		set.Add(haplotype.Haplotype{
			Contig:     region.Ref.Name(),
			Start:      start,
			End:        end,
			Seq:        seq,
			VariantIDs: []int32{int32(i)},
		})
	}
	if nMismatch > 0 {
		log.Error.Printf("PerVariantBuilder: %s: dropped %d candidate(s) whose REF disagrees with the reference",
			region, nMismatch)
	}
	return set, refHandle, nil
}
