package candidate

import (
	"context"
	"strings"
	"testing"
)

func TestVCFLeftTrim(t *testing.T) {
	// Positions in these tables are 1-based as written in the VCF and
	// 0-based in the emitted variants.
	tests := []struct {
		name    string
		record  string
		want    []Variant
	}{
		{
			name:   "substitution trims common prefix",
			record: "chr1\t101\t.\tACGT\tACGG\t.\t.\t.",
			want:   []Variant{{Contig: "chr1", Pos: 103, Ref: []byte("T"), Alt: []byte("G")}},
		},
		{
			name:   "deletion trims prefix and advances",
			record: "chr1\t101\t.\tAT\tA\t.\t.\t.",
			want:   []Variant{{Contig: "chr1", Pos: 101, Ref: []byte("T"), Alt: []byte{}}},
		},
		{
			name:   "snv verbatim",
			record: "chr1\t101\t.\tA\tT\t.\t.\t.",
			want:   []Variant{{Contig: "chr1", Pos: 100, Ref: []byte("A"), Alt: []byte("T")}},
		},
		{
			name:   "insertion trims prefix",
			record: "chr1\t101\t.\tA\tATTT\t.\t.\t.",
			want:   []Variant{{Contig: "chr1", Pos: 101, Ref: []byte{}, Alt: []byte("TTT")}},
		},
		{
			name:   "unequal lengths trim to a deletion",
			record: "chr1\t101\t.\tACGT\tACG\t.\t.\t.",
			want:   []Variant{{Contig: "chr1", Pos: 103, Ref: []byte("T"), Alt: []byte{}}},
		},
		{
			name:   "multiallelic emits one variant per alt",
			record: "chr1\t101\t.\tAT\tA,CT\t.\t.\t.",
			want: []Variant{
				{Contig: "chr1", Pos: 100, Ref: []byte("AT"), Alt: []byte("CT")},
				{Contig: "chr1", Pos: 101, Ref: []byte("T"), Alt: []byte{}},
			},
		},
		{
			name:   "symbolic alts skipped",
			record: "chr1\t101\tsv1\tA\t<DEL>,T\t.\t.\t.",
			want:   []Variant{{Contig: "chr1", Pos: 100, Ref: []byte("A"), Alt: []byte("T")}},
		},
	}
	for _, tc := range tests {
		vcf := "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" + tc.record + "\n"
		g, err := NewVCFGenerator(strings.NewReader(vcf))
		if err != nil {
			t.Fatalf("%s: NewVCFGenerator: %v", tc.name, err)
		}
		got, err := g.Generate(context.Background(), Query{Contig: "chr1", Start: 0, End: 1 << 30})
		if err != nil {
			t.Fatalf("%s: Generate: %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %d variants, want %d: %v", tc.name, len(got), len(tc.want), got)
		}
		for i, w := range tc.want {
			if got[i].Compare(w) != 0 {
				t.Fatalf("%s: variant %d: got %s:%d %q>%q, want %s:%d %q>%q", tc.name, i,
					got[i].Contig, got[i].Pos, got[i].Ref, got[i].Alt, w.Contig, w.Pos, w.Ref, w.Alt)
			}
		}
	}
}

func TestVCFQueryFilter(t *testing.T) {
	vcf := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
		"chr1\t101\t.\tA\tT\t.\t.\t.\n" +
		"chr1\t201\t.\tC\tG\t.\t.\t.\n" +
		"chr2\t101\t.\tG\tA\t.\t.\t.\n"
	g, err := NewVCFGenerator(strings.NewReader(vcf))
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.Generate(context.Background(), Query{Contig: "chr1", Start: 150, End: 250})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Pos != 200 {
		t.Fatalf("query filter: got %v", got)
	}
}

func TestVCFBadRecords(t *testing.T) {
	for _, bad := range []string{
		"chr1\t101\t.\tA\n",            // too few columns
		"chr1\tpos\t.\tA\tT\t.\t.\t.\n", // non-numeric POS
		"chr1\t0\t.\tA\tT\t.\t.\t.\n",   // POS out of range
	} {
		if _, err := NewVCFGenerator(strings.NewReader(bad)); err == nil {
			t.Fatalf("record %q: expected error", bad)
		}
	}
}
