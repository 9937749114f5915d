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
	"math"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/haplotype"
)

// BasicAligner scores a read against a haplotype under an ungapped
// per-base error model: each aligned base contributes ln(1-e) on match and
// ln(e/3) on mismatch, with e from the base quality.  Bases outside the
// haplotype window are ignored.
//
// TODO: CIGAR-aware scoring, so reads spanning proposed indels don't pay
// spurious mismatch penalties downstream of the edit.
type BasicAligner struct{}

// qualLogProbs[q] is {ln(1-e), ln(e/3)} for phred quality q.
var qualLogProbs [64][2]float64

func init() {
	for q := range qualLogProbs {
		e := math.Pow(10, -float64(q)/10)
		if q == 0 {
			// Phred 0 means "no information"; a flat quarter keeps the
			// term finite.
			qualLogProbs[q] = [2]float64{math.Log(0.25), math.Log(0.25)}
			continue
		}
		qualLogProbs[q] = [2]float64{math.Log1p(-e), math.Log(e / 3)}
	}
}

// Align implements Aligner.
func (BasicAligner) Align(read *sam.Record, hap *haplotype.Haplotype) float64 {
	seq := read.Seq.Expand()
	qual := read.Qual
	offset := read.Pos - hap.Start
	total := 0.0
	aligned := 0
	for i, base := range seq {
		hapPos := offset + i
		if hapPos < 0 || hapPos >= len(hap.Seq) {
			continue
		}
		q := 30
		if i < len(qual) {
			q = int(qual[i])
			if q >= len(qualLogProbs) {
				q = len(qualLogProbs) - 1
			}
		}
		if base == hap.Seq[hapPos] {
			total += qualLogProbs[q][0]
		} else {
			total += qualLogProbs[q][1]
		}
		aligned++
	}
	if aligned == 0 {
		return math.Inf(-1)
	}
	return total
}
