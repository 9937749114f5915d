// Package candidate defines candidate variants and the generators that
// propose them for a region.  Multiple generators (CIGAR-derived,
// assembly-derived, external-VCF-derived) are composed by Union; the
// haplotype builder consumes the merged, deduplicated slice.
package candidate

import (
	"bytes"
	"context"
	"sort"

	"github.com/grailbio/base/errors"
)

// Variant is a single candidate edit against the reference: replace
// Ref with Alt at 0-based Pos on Contig.  Insertions have empty Ref,
// deletions empty Alt.  No normalization beyond VCF left-trimming is
// applied; the haplotype builder works with the coordinates as given.
type Variant struct {
	Contig string
	Pos    int
	Ref    []byte
	Alt    []byte
}

// IsInsertion reports len(Ref) == 0.
func (v Variant) IsInsertion() bool { return len(v.Ref) == 0 }

// IsDeletion reports len(Alt) == 0.
func (v Variant) IsDeletion() bool { return len(v.Alt) == 0 }

// IsSNV reports a length-1 substitution.
func (v Variant) IsSNV() bool { return len(v.Ref) == 1 && len(v.Alt) == 1 }

// Compare orders variants by (contig, pos, ref, alt); 0 means identical.
func (v Variant) Compare(o Variant) int {
	if v.Contig != o.Contig {
		if v.Contig < o.Contig {
			return -1
		}
		return 1
	}
	if v.Pos != o.Pos {
		if v.Pos < o.Pos {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(v.Ref, o.Ref); c != 0 {
		return c
	}
	return bytes.Compare(v.Alt, o.Alt)
}

// Query restricts generation to a half-open reference interval.
type Query struct {
	Contig string
	Start  int
	End    int
}

// Overlaps reports whether v's reference footprint intersects q.  Pure
// insertions have an empty footprint and count as overlapping when the
// insertion point is inside q.
func (q Query) Overlaps(v Variant) bool {
	if v.Contig != q.Contig {
		return false
	}
	end := v.Pos + len(v.Ref)
	if v.IsInsertion() {
		end = v.Pos + 1
	}
	return v.Pos < q.End && end > q.Start
}

// Generator proposes candidate variants for a region.
type Generator interface {
	// Generate returns candidates overlapping the query.  Order is not
	// specified; Union sorts.
	Generate(ctx context.Context, q Query) ([]Variant, error)
}

// Union runs all generators against q, merges their output, sorts by
// (contig, pos, ref, alt), and drops exact duplicates.  A generator error
// aborts the merge.
func Union(ctx context.Context, q Query, gens ...Generator) ([]Variant, error) {
	var all []Variant
	for _, g := range gens {
		vs, err := g.Generate(ctx, q)
		if err != nil {
			return nil, errors.E(err, "candidate.Union")
		}
		all = append(all, vs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Compare(all[j]) < 0 })
	out := all[:0]
	for i, v := range all {
		if i == 0 || all[i-1].Compare(v) != 0 {
			out = append(out, v)
		}
	}
	return out, nil
}
