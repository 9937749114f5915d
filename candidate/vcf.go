package candidate

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// VCFGenerator proposes candidates read from an external VCF.  The file is
// parsed once at construction; Generate filters the in-memory slice by
// query.
type VCFGenerator struct {
	// variants is sorted by (contig, pos, ref, alt).
	variants []Variant
}

// NewVCFGeneratorFromPath parses the (optionally gzipped) VCF at path.  Any
// file.Open-able path works, including S3 URLs.
func NewVCFGeneratorFromPath(ctx context.Context, path string) (*VCFGenerator, error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer infile.Close(ctx) // nolint: errcheck
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		if reader, err = gzip.NewReader(reader); err != nil {
			return nil, err
		}
	}
	return NewVCFGenerator(reader)
}

// NewVCFGenerator parses VCF text from r.  For each record, one Variant is
// emitted per ALT allele, left-trimmed by the common REF/ALT prefix with
// the position advanced by the prefix length (so "AT">"A" at 1-based 101
// becomes "T">"" at 0-based 101, and "ACGT">"ACGG" becomes "T">"G" three
// bases downstream).  No right-trimming is performed.  Symbolic and
// breakend ALTs are skipped and counted.
func NewVCFGenerator(r io.Reader) (*VCFGenerator, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	g := &VCFGenerator{}
	lineIdx := 0
	nSkipped := 0
	var fields [5][]byte
	for scanner.Scan() {
		lineIdx++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if got := tabTokens(fields[:], line); got < 5 {
			return nil, errors.Errorf("candidate.NewVCFGenerator: line %d: %d columns, want >= 5", lineIdx, got)
		}
		pos1, err := strconv.Atoi(string(fields[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "candidate.NewVCFGenerator: line %d: bad POS", lineIdx)
		}
		if pos1 <= 0 {
			return nil, errors.Errorf("candidate.NewVCFGenerator: line %d: POS %d out of range", lineIdx, pos1)
		}
		contig := string(fields[0])
		ref := fields[3]
		for _, alt := range splitAlts(fields[4]) {
			if symbolicAlt(alt) {
				nSkipped++
				continue
			}
			g.variants = append(g.variants, trimmedVariant(contig, pos1-1, ref, alt))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "candidate.NewVCFGenerator")
	}
	if nSkipped > 0 {
		log.Printf("candidate.NewVCFGenerator: skipped %d symbolic/breakend ALT(s)", nSkipped)
	}
	sort.Slice(g.variants, func(i, j int) bool { return g.variants[i].Compare(g.variants[j]) < 0 })
	return g, nil
}

// Generate returns the parsed variants overlapping q.
func (g *VCFGenerator) Generate(ctx context.Context, q Query) ([]Variant, error) {
	var out []Variant
	for _, v := range g.variants {
		if q.Overlaps(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// trimmedVariant applies the left-trim rule.  pos0 is 0-based.
func trimmedVariant(contig string, pos0 int, ref, alt []byte) Variant {
	prefix := 0
	// One of ref/alt may be exhausted before the other; a fully trimmed
	// side leaves an empty allele (pure insertion or deletion).
	for prefix < len(ref) && prefix < len(alt) && ref[prefix] == alt[prefix] {
		prefix++
	}
	pos0 += prefix
	ref = ref[prefix:]
	alt = alt[prefix:]
	v := Variant{Contig: contig, Pos: pos0}
	v.Ref = append([]byte(nil), ref...)
	v.Alt = append([]byte(nil), alt...)
	return v
}

func splitAlts(alts []byte) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i <= len(alts); i++ {
		if i == len(alts) || alts[i] == ',' {
			if i > start {
				out = append(out, alts[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func symbolicAlt(alt []byte) bool {
	if len(alt) == 0 {
		return true
	}
	for _, c := range alt {
		switch c {
		case '<', '>', '[', ']', '.', '*':
			return true
		}
	}
	return false
}

// tabTokens fills tokens with the first len(tokens) tab-delimited fields of
// line, returning the number found.
func tabTokens(tokens [][]byte, line []byte) int {
	n := 0
	start := 0
	for i := 0; i <= len(line) && n < len(tokens); i++ {
		if i == len(line) || line[i] == '\t' {
			if i > start {
				tokens[n] = line[start:i]
				n++
			}
			start = i + 1
		}
	}
	return n
}
