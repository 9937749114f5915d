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
	"fmt"
	"io/ioutil"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/caller"
	"github.com/grailbio/varcall/candidate"
	"github.com/grailbio/varcall/genotype"
	"github.com/grailbio/varcall/haplotype"
	"github.com/grailbio/varcall/likelihood"
)

func init() {
	recordiozstd.Init()
}

// Opts configures a run.
type Opts struct {
	// Commandline options.
	Region            string
	Sample            string
	Ploidy            int
	Parallelism       int
	RegionSize        int
	Padding           int
	HaplotypeOverflow int
	MaxHoldoutDepth   int
	Order             string
	Caller            string
	MinCallQual       float64
	ReadBudgetBytes   int64
	TempDir           string
}

// DefaultOpts mirrors the flag defaults.
var DefaultOpts = Opts{
	Sample:            "SAMPLE",
	Ploidy:            2,
	Parallelism:       0,
	RegionSize:        100000,
	Padding:           500,
	HaplotypeOverflow: 200,
	MaxHoldoutDepth:   3,
	Order:             "ref-index",
	Caller:            "individual",
	MinCallQual:       20,
	ReadBudgetBytes:   2 << 30,
}

// RunStats summarizes region outcomes.
type RunStats struct {
	Completed int
	Skipped   int
	Failed    int
	// Outcomes holds each region's terminal state, indexed like the
	// region slice; cancelled regions stay Pending.
	Outcomes []RegionState
}

// Run drives all regions through the pipeline and writes the merged VCF to
// outPath.  Configuration errors surface before any work starts; per-region
// read failures and overflow skips are recorded in RunStats without
// aborting the run.
func Run(ctx context.Context, header *sam.Header, comps Components, opts Opts, outPath string) (RunStats, error) {
	var stats RunStats
	if opts.Ploidy < 1 {
		return stats, fmt.Errorf("pipeline.Run: invalid ploidy= argument %d", opts.Ploidy)
	}
	if opts.RegionSize <= 0 {
		return stats, fmt.Errorf("pipeline.Run: invalid region-size= argument %d", opts.RegionSize)
	}
	if opts.MaxHoldoutDepth < 0 {
		return stats, fmt.Errorf("pipeline.Run: invalid max-holdout-depth= argument %d", opts.MaxHoldoutDepth)
	}
	order, err := ParseOutputOrder(opts.Order)
	if err != nil {
		return stats, err
	}
	callerKind, err := caller.ParseCallerKind(opts.Caller)
	if err != nil {
		return stats, err
	}
	sample := opts.Sample
	if sample == "" {
		sample = DefaultOpts.Sample
	}

	var regions []Region
	if opts.Region != "" {
		r, err := RegionFromString(header, opts.Region, opts.Padding)
		if err != nil {
			return stats, err
		}
		regions = []Region{r}
	} else {
		if regions, err = Partition(header, opts.RegionSize, opts.Padding); err != nil {
			return stats, err
		}
	}
	stats.Outcomes = make([]RegionState, len(regions))

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(regions) {
		parallelism = len(regions)
	}
	if parallelism == 0 {
		return stats, fmt.Errorf("pipeline.Run: no regions to process")
	}

	tmpFiles := make([]*os.File, parallelism)
	defer func() {
		for _, f := range tmpFiles {
			if f != nil {
				f.Close()           // nolint: errcheck
				os.Remove(f.Name()) // nolint: errcheck
			}
		}
	}()
	for jobIdx := range tmpFiles {
		if tmpFiles[jobIdx], err = ioutil.TempFile(opts.TempDir, "varcall_tmp"+strconv.Itoa(jobIdx)+"_*.rio"); err != nil {
			return stats, err
		}
	}

	meter := NewMeter(regions)
	budget := newByteBudget(opts.ReadBudgetBytes)
	var statsMu sync.Mutex

	log.Printf("pipeline.Run: starting main loop (%d jobs, %d regions)", parallelism, len(regions))
	err = traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(regions)) / parallelism
		endIdx := ((jobIdx + 1) * len(regions)) / parallelism

		ws := workerState{
			cache: likelihood.NewCache(),
			w: recordio.NewWriter(tmpFiles[jobIdx], recordio.WriterOpts{
				Marshal:      marshalCallRow,
				Transformers: []string{recordiozstd.Name},
			}),
		}
		ws.model = likelihood.NewGermlineModel(ws.cache)
		var cerr error
		if ws.call, cerr = caller.New(callerKind, caller.Config{Ploidy: opts.Ploidy}); cerr != nil {
			return cerr
		}

		for i := startIdx; i < endIdx; i++ {
			// Cooperative cancel: in-flight regions complete, the rest
			// stay Pending.
			if ctx.Err() != nil {
				break
			}
			region := regions[i]
			statsMu.Lock()
			stats.Outcomes[i] = RegionInProgress
			statsMu.Unlock()

			state, perr := processRegion(ctx, region, &comps, &opts, sample, &ws, budget)
			statsMu.Lock()
			stats.Outcomes[i] = state
			switch state {
			case RegionCompleted:
				stats.Completed++
			case RegionSkipped:
				stats.Skipped++
			case RegionFailed:
				stats.Failed++
			}
			statsMu.Unlock()
			if perr != nil {
				log.Error.Printf("pipeline.Run: region %s %s: %v", region, state, perr)
			}
			meter.Completed(region)
		}
		return ws.w.Finish()
	})
	if err != nil {
		return stats, err
	}
	log.Printf("pipeline.Run: main loop complete (%d completed, %d skipped, %d failed)",
		stats.Completed, stats.Skipped, stats.Failed)

	if err = writeCalls(ctx, outPath, header.Refs(), order, sample, opts.MinCallQual, tmpFiles); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

type workerState struct {
	cache *likelihood.Cache
	model *likelihood.GermlineModel
	call  *caller.Caller
	w     recordio.Writer
}

// processRegion runs one region end-to-end: fetch reads, generate
// candidates, build haplotypes, prime the likelihood cache, call the
// genotype, and spill per-variant rows.
func processRegion(ctx context.Context, region Region, comps *Components, opts *Opts,
	sample string, ws *workerState, budget *byteBudget) (RegionState, error) {
	reads, err := comps.Reads.Reads(ctx, region, sample)
	if err != nil {
		return RegionFailed, err
	}
	footprint := readsFootprint(reads)
	budget.Acquire(footprint)
	defer budget.Release(footprint)

	q := candidate.Query{
		Contig: region.Ref.Name(),
		Start:  region.PaddedStart(),
		End:    region.PaddedEnd(),
	}
	variants, err := comps.Candidates.Generate(ctx, q)
	if err != nil {
		return RegionFailed, err
	}
	refSeq, err := comps.RefGet(ctx, region.Ref.Name())
	if err != nil {
		return RegionFailed, err
	}

	// Holdout: when the proposal overflows, retry with a thinned
	// candidate set before giving up on the region.
	set, refHandle, err := comps.Haplotypes.Build(ctx, region, refSeq, variants)
	if err != nil {
		return RegionFailed, err
	}
	for holdout := 0; set.Len() > opts.HaplotypeOverflow; holdout++ {
		if holdout == opts.MaxHoldoutDepth {
			return RegionSkipped, fmt.Errorf("haplotype count %d still exceeds overflow limit %d after %d holdout attempt(s)",
				set.Len(), opts.HaplotypeOverflow, holdout)
		}
		variants = variants[:len(variants)/2]
		log.Printf("pipeline: %s: holdout %d, retrying with %d candidate(s)", region, holdout+1, len(variants))
		if set, refHandle, err = comps.Haplotypes.Build(ctx, region, refSeq, variants); err != nil {
			return RegionFailed, err
		}
	}

	entries := make(map[haplotype.Handle][]float64, set.Len())
	for _, h := range set.Handles() {
		hap := set.Get(h)
		vec := make([]float64, len(reads))
		for i, read := range reads {
			vec[i] = comps.Aligner.Align(read, hap)
		}
		entries[h] = vec
	}
	ws.cache.Prime(sample, entries)
	defer ws.cache.Clear()

	gll := ws.call.Evaluate(ws.model, set.Handles(), sample)
	call := caller.CallGenotypes(gll)

	// One output row per called variant inside the core interval; padded
	// flanks belong to the neighboring regions.
	for _, vid := range calledVariantIDs(set, call.Genotype, refHandle) {
		v := variants[vid]
		if v.Pos < region.Start || v.Pos >= region.End {
			continue
		}
		ws.w.Append(&CallRow{
			RefID:     int32(region.Ref.ID()),
			Pos:       int32(v.Pos),
			Ref:       v.Ref,
			Alt:       v.Alt,
			Qual:      call.Qual,
			Posterior: call.Posterior,
			Depth:     int32(len(reads)),
			GT:        gtString(set, call.Genotype, vid),
		})
	}
	return RegionCompleted, nil
}

// calledVariantIDs returns the distinct variant IDs carried by the winning
// genotype's non-reference haplotypes, ascending.
func calledVariantIDs(set *haplotype.Set, g genotype.Genotype, refHandle haplotype.Handle) []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, h := range g.Unique() {
		if h == refHandle {
			continue
		}
		for _, vid := range set.Get(h).VariantIDs {
			if !seen[vid] {
				seen[vid] = true
				out = append(out, vid)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// gtString renders the genotype column for one variant: copies carrying
// the variant are allele 1, reference alleles first.
func gtString(set *haplotype.Set, g genotype.Genotype, vid int32) []byte {
	carriers := 0
	for _, h := range g.Handles() {
		for _, id := range set.Get(h).VariantIDs {
			if id == vid {
				carriers++
				break
			}
		}
	}
	alleles := make([]string, 0, g.Ploidy())
	for i := 0; i < g.Ploidy()-carriers; i++ {
		alleles = append(alleles, "0")
	}
	for i := 0; i < carriers; i++ {
		alleles = append(alleles, "1")
	}
	return []byte(strings.Join(alleles, "/"))
}
