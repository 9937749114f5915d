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
package main

/*
bio-varcall is a small germline variant caller: it proposes candidate
haplotypes per region, evaluates genotype likelihoods against the aligned
reads, and emits genotype calls with posterior probabilities as VCF.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/candidate"
	"github.com/grailbio/varcall/pipeline"
	"github.com/grailbio/varcall/refseq"
)

var (
	region            = flag.String("region", "", "Restrict calling to the specified region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>")
	candidatesPath    = flag.String("candidates", "", "Input VCF of externally proposed candidate variants (may be gzipped)")
	sample            = flag.String("sample", "SAMPLE", "Sample name used in the output VCF")
	ploidy            = flag.Int("ploidy", 2, "Number of haplotype copies per genotype")
	parallelism       = flag.Int("parallelism", 0, "Maximum number of simultaneous region jobs; 0 = runtime.NumCPU()")
	regionSize        = flag.Int("region-size", 100000, "Processing region width in base pairs")
	padding           = flag.Int("padding", 500, "Bases of context fetched on each side of a region")
	haplotypeOverflow = flag.Int("haplotype-overflow", 200, "Regions proposing more haplotypes than this are thinned, then skipped")
	maxHoldoutDepth   = flag.Int("max-holdout-depth", 3, "Candidate-thinning attempts before a region is skipped")
	order             = flag.String("order", "ref-index", "Output contig order; 'ref-index', 'lex-asc', 'lex-desc', or 'contig-size'")
	callerName        = flag.String("caller", "individual", "Calling model")
	minCallQual       = flag.Float64("min-call-qual", 20, "Calls below this quality are marked LowQual")
	mapq              = flag.Int("mapq", 20, "Reads with MAPQ below this level are skipped")
	flagExclude       = flag.Int("flag-exclude", 0xf00, "Reads with a FLAG bit intersecting this value are skipped")
	refCacheBytes     = flag.Int64("ref-cache-bytes", refseq.DefaultCapBytes, "Reference sequence cache footprint cap")
	readBudgetBytes   = flag.Int64("read-budget-bytes", 2<<30, "Soft cap on buffered reads across all workers")
	outPath           = flag.String("out", "varcall.vcf", "Output VCF path")
	tempDir           = flag.String("temp-dir", "", "Directory to write temporary files to (default os.TempDir())")
)

func bioVarcallUsage() {
	fmt.Printf("Usage: %s [OPTIONS] bampath fapath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// noCandidates is the generator used when no external VCF is supplied.
type noCandidates struct{}

func (noCandidates) Generate(ctx context.Context, q candidate.Query) ([]candidate.Variant, error) {
	return nil, nil
}

func main() {
	flag.Usage = bioVarcallUsage
	shutdown := grail.Init()
	defer shutdown()

	allArgs := flag.Args()
	nPositionalArgs := flag.NArg()
	positionalArgs := allArgs[len(allArgs)-nPositionalArgs:]
	if nPositionalArgs != 2 {
		log.Fatalf("Expected exactly two positional arguments (bampath and fapath); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
	}
	bamPath, faPath := positionalArgs[0], positionalArgs[1]
	ctx := vcontext.Background()

	header, err := readHeader(ctx, bamPath)
	if err != nil {
		log.Fatalf("Couldn't read BAM header from %s: %v", bamPath, err)
	}

	var candGen candidate.Generator = noCandidates{}
	if *candidatesPath != "" {
		if candGen, err = candidate.NewVCFGeneratorFromPath(ctx, *candidatesPath); err != nil {
			log.Fatalf("Couldn't load candidate VCF %s: %v", *candidatesPath, err)
		}
	}
	refCache := refseq.NewCache(faPath, *refCacheBytes)

	comps := pipeline.Components{
		Candidates: candGen,
		Haplotypes: pipeline.PerVariantBuilder{},
		Aligner:    pipeline.BasicAligner{},
		Reads: &pipeline.BAMReadSource{
			Path:        bamPath,
			MinMapQ:     *mapq,
			FlagExclude: sam.Flags(*flagExclude),
		},
		RefGet: refCache.Get,
	}
	opts := pipeline.Opts{
		Region:            *region,
		Sample:            *sample,
		Ploidy:            *ploidy,
		Parallelism:       *parallelism,
		RegionSize:        *regionSize,
		Padding:           *padding,
		HaplotypeOverflow: *haplotypeOverflow,
		MaxHoldoutDepth:   *maxHoldoutDepth,
		Order:             *order,
		Caller:            *callerName,
		MinCallQual:       *minCallQual,
		ReadBudgetBytes:   *readBudgetBytes,
		TempDir:           *tempDir,
	}
	stats, err := pipeline.Run(ctx, header, comps, opts, *outPath)
	if err != nil {
		log.Fatalf("varcall: %v", err)
	}
	log.Printf("varcall: wrote %s (%d region(s) completed, %d skipped, %d failed)",
		*outPath, stats.Completed, stats.Skipped, stats.Failed)
}

func readHeader(ctx context.Context, path string) (*sam.Header, error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer infile.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(infile.Reader(ctx), 1)
	if err != nil {
		return nil, err
	}
	defer br.Close() // nolint: errcheck
	return br.Header(), nil
}
