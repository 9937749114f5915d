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

// Package pipeline partitions the genome into regions, drives each region
// through candidate generation, haplotype construction, likelihood
// evaluation and genotype calling on a parallel worker pool, and writes
// ordered output.
package pipeline

import (
	"context"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/candidate"
	"github.com/grailbio/varcall/haplotype"
)

// Aligner scores one read against one haplotype, returning
// ln P(read | haplotype).  -Inf means the read is incompatible with the
// haplotype.  Implementations are the pairwise error model; the pipeline
// only consumes the scores.
type Aligner interface {
	Align(read *sam.Record, hap *haplotype.Haplotype) float64
}

// HaplotypeBuilder proposes the haplotype working set for a region from
// its candidate variants.  refHandle identifies the reference haplotype
// within the returned set.
type HaplotypeBuilder interface {
	Build(ctx context.Context, region Region, refSeq []byte, variants []candidate.Variant) (set *haplotype.Set, refHandle haplotype.Handle, err error)
}

// ReadSource fetches the aligned reads overlapping a region for one
// sample.  Implementations retry transient IO internally; a returned error
// marks the region Failed.
type ReadSource interface {
	Reads(ctx context.Context, region Region, sample string) ([]*sam.Record, error)
}

// Components bundles the external collaborators a run needs.
type Components struct {
	Candidates candidate.Generator
	Haplotypes HaplotypeBuilder
	Aligner    Aligner
	Reads      ReadSource
	// RefGet returns the full upcased sequence of a contig; usually
	// (*refseq.Cache).Get.
	RefGet func(ctx context.Context, contig string) ([]byte, error)
}
