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
package pipeline_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/varcall/candidate"
	"github.com/grailbio/varcall/pipeline"
)

// memReads serves a fixed read set filtered by region overlap.
type memReads struct {
	recs []*sam.Record
}

func (m *memReads) Reads(ctx context.Context, region pipeline.Region, sample string) ([]*sam.Record, error) {
	var out []*sam.Record
	for _, rec := range m.recs {
		if region.RecordOverlaps(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// failReads simulates persistent read IO failure.
type failReads struct{}

func (failReads) Reads(ctx context.Context, region pipeline.Region, sample string) ([]*sam.Record, error) {
	return nil, fmt.Errorf("synthetic read failure for %s", region)
}

func e2eFixture(t *testing.T) (*sam.Header, []byte, pipeline.Components) {
	ref, err := sam.NewReference("chrT", "", "", 60, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	assert.NoError(t, err)

	refSeq := []byte(strings.Repeat("ACGT", 15))

	// Candidate SNV at 0-based 30 (refSeq[30] == 'G'), from an external
	// VCF.
	vcf := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\nchrT\t31\t.\tG\tT\t.\t.\t.\n"
	candGen, err := candidate.NewVCFGenerator(strings.NewReader(vcf))
	assert.NoError(t, err)

	// Every read carries the alternate base.
	var recs []*sam.Record
	for p := 19; p <= 30; p++ {
		seq := append([]byte(nil), refSeq[p:p+12]...)
		seq[30-p] = 'T'
		qual := make([]byte, 12)
		for i := range qual {
			qual[i] = 40
		}
		recs = append(recs, &sam.Record{
			Name:  fmt.Sprintf("read%d", p),
			Ref:   ref,
			Pos:   p,
			MapQ:  60,
			Cigar: []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 12)},
			Seq:   sam.NewSeq(seq),
			Qual:  qual,
		})
	}

	comps := pipeline.Components{
		Candidates: candGen,
		Haplotypes: pipeline.PerVariantBuilder{},
		Aligner:    pipeline.BasicAligner{},
		Reads:      &memReads{recs: recs},
		RefGet: func(ctx context.Context, contig string) ([]byte, error) {
			if contig != "chrT" {
				return nil, fmt.Errorf("unknown contig %q", contig)
			}
			return refSeq, nil
		},
	}
	return header, refSeq, comps
}

func TestRunEndToEnd(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	header, _, comps := e2eFixture(t)

	opts := pipeline.DefaultOpts
	opts.Sample = "s1"
	opts.Parallelism = 2
	opts.RegionSize = 30
	opts.Padding = 10
	opts.TempDir = tmpdir
	outPath := filepath.Join(tmpdir, "out.vcf")

	stats, err := pipeline.Run(vcontext.Background(), header, comps, opts, outPath)
	assert.NoError(t, err)
	assert.EQ(t, stats.Completed, 2)
	assert.EQ(t, stats.Skipped, 0)
	assert.EQ(t, stats.Failed, 0)
	for _, state := range stats.Outcomes {
		assert.EQ(t, state, pipeline.RegionCompleted)
	}

	data, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	var body []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			body = append(body, line)
		}
	}
	// The variant sits in exactly one region's core interval, so the two
	// overlapping padded regions must not emit it twice.
	assert.EQ(t, len(body), 1)
	fields := strings.Split(body[0], "\t")
	assert.EQ(t, fields[0], "chrT")
	assert.EQ(t, fields[1], "31")
	assert.EQ(t, fields[3], "G")
	assert.EQ(t, fields[4], "T")
	assert.EQ(t, fields[6], "PASS")
	assert.EQ(t, fields[9], "1/1")
	if !strings.Contains(string(data), "##fileformat=VCFv4.2") {
		t.Fatal("missing VCF header")
	}
}

func TestRunReadFailureContinues(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	header, _, comps := e2eFixture(t)
	comps.Reads = failReads{}

	opts := pipeline.DefaultOpts
	opts.Parallelism = 1
	opts.RegionSize = 30
	opts.TempDir = tmpdir
	outPath := filepath.Join(tmpdir, "out.vcf")

	stats, err := pipeline.Run(vcontext.Background(), header, comps, opts, outPath)
	assert.NoError(t, err) // failed regions don't abort the run
	assert.EQ(t, stats.Failed, 2)
	assert.EQ(t, stats.Completed, 0)
	for _, state := range stats.Outcomes {
		assert.EQ(t, state, pipeline.RegionFailed)
	}

	// The output exists and carries only the header.
	data, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			t.Fatalf("unexpected call row %q after all-failed run", line)
		}
	}
}

func TestRunHaplotypeOverflowSkips(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	header, _, comps := e2eFixture(t)

	opts := pipeline.DefaultOpts
	opts.Parallelism = 1
	opts.RegionSize = 30
	opts.Padding = 10
	opts.TempDir = tmpdir
	// Even the reference haplotype alone overflows, so thinning can't
	// save the regions.
	opts.HaplotypeOverflow = 0
	opts.MaxHoldoutDepth = 1
	outPath := filepath.Join(tmpdir, "out.vcf")

	stats, err := pipeline.Run(vcontext.Background(), header, comps, opts, outPath)
	assert.NoError(t, err)
	assert.EQ(t, stats.Skipped, 2)
	assert.EQ(t, stats.Completed, 0)
}

func TestRunSingleRegionRestriction(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	header, _, comps := e2eFixture(t)

	opts := pipeline.DefaultOpts
	opts.Sample = "s1"
	opts.Parallelism = 1
	opts.Region = "chrT:1-25" // excludes the variant at 0-based 30
	opts.Padding = 2
	opts.TempDir = tmpdir
	outPath := filepath.Join(tmpdir, "out.vcf")

	stats, err := pipeline.Run(vcontext.Background(), header, comps, opts, outPath)
	assert.NoError(t, err)
	assert.EQ(t, stats.Completed, 1)

	data, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			t.Fatalf("variant outside the region leaked into output: %q", line)
		}
	}
}

func TestRunConfigErrors(t *testing.T) {
	header, _, comps := e2eFixture(t)
	ctx := vcontext.Background()

	bad := pipeline.DefaultOpts
	bad.Ploidy = 0
	if _, err := pipeline.Run(ctx, header, comps, bad, "/dev/null"); err == nil {
		t.Fatal("expected error for ploidy 0")
	}

	bad = pipeline.DefaultOpts
	bad.Order = "alphabetical"
	if _, err := pipeline.Run(ctx, header, comps, bad, "/dev/null"); err == nil {
		t.Fatal("expected error for unknown order")
	}

	bad = pipeline.DefaultOpts
	bad.Caller = "trio"
	if _, err := pipeline.Run(ctx, header, comps, bad, "/dev/null"); err == nil {
		t.Fatal("expected error for unknown caller")
	}

	bad = pipeline.DefaultOpts
	bad.Region = "chrZ"
	if _, err := pipeline.Run(ctx, header, comps, bad, "/dev/null"); err == nil {
		t.Fatal("expected error for unknown region contig")
	}
}
