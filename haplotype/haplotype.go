// Package haplotype defines candidate haplotype sequences and the dense
// handles used to refer to them while one region is being processed.
package haplotype

import (
	"bytes"
	"fmt"

	farm "github.com/dgryski/go-farm"
)

// Handle is a dense index into a Set.  Handles are stable for the lifetime
// of one region's working set and meaningless across regions; downstream
// code (genotypes, the likelihood cache) keys everything by Handle rather
// than by content.
type Handle int32

// InvalidHandle is returned by Set.Find for absent sequences.
const InvalidHandle = Handle(-1)

// Haplotype is a reference-anchored candidate sequence, assembled upstream
// by applying a subset of candidate variants to the reference.  Immutable
// once added to a Set.
type Haplotype struct {
	// Contig and [Start, End) anchor the sequence on the reference.
	Contig string
	Start  int
	End    int
	// Seq is the haplotype sequence itself.
	Seq []byte
	// VariantIDs lists the candidate variants this haplotype encodes, as
	// indices into the region's candidate slice.  The reference haplotype
	// has none.
	VariantIDs []int32
}

// HasNs reports whether seq contains the base 'N'.  Sequences are upcased
// on FASTA load, so only the uppercase form is checked.
func HasNs(seq []byte) bool {
	return bytes.IndexByte(seq, 'N') >= 0
}

// Set is one region's working set of haplotypes.  Add deduplicates by
// sequence content and anchor, so two haplotype proposals that spell the
// same bases from the same contig and start share a Handle.
type Set struct {
	haps []Haplotype
	// byDigest maps farmhash64(seq) to the handles carrying that digest.
	// Collisions are resolved by byte comparison.
	byDigest map[uint64][]Handle
}

// NewSet returns an empty working set.
func NewSet() *Set {
	return &Set{byDigest: make(map[uint64][]Handle)}
}

// Add installs h and returns its handle.  If an identical sequence on the
// same anchor was already added, the existing handle is returned instead.
func (s *Set) Add(h Haplotype) Handle {
	d := farm.Hash64(h.Seq)
	for _, prev := range s.byDigest[d] {
		p := &s.haps[prev]
		if p.Contig == h.Contig && p.Start == h.Start && bytes.Equal(p.Seq, h.Seq) {
			return prev
		}
	}
	hdl := Handle(len(s.haps))
	s.haps = append(s.haps, h)
	s.byDigest[d] = append(s.byDigest[d], hdl)
	return hdl
}

// Find returns the handle of an identical previously added haplotype, or
// InvalidHandle.
func (s *Set) Find(h Haplotype) Handle {
	for _, prev := range s.byDigest[farm.Hash64(h.Seq)] {
		p := &s.haps[prev]
		if p.Contig == h.Contig && p.Start == h.Start && bytes.Equal(p.Seq, h.Seq) {
			return prev
		}
	}
	return InvalidHandle
}

// Get returns the haplotype for a handle.  The returned pointer stays valid
// until the Set is dropped; callers must not mutate through it.
func (s *Set) Get(h Handle) *Haplotype {
	if h < 0 || int(h) >= len(s.haps) {
		panic(fmt.Sprintf("haplotype.Set.Get: handle %d out of range [0, %d)", h, len(s.haps)))
	}
	return &s.haps[h]
}

// Len returns the number of distinct haplotypes added.
func (s *Set) Len() int { return len(s.haps) }

// Handles returns all handles in insertion order.
func (s *Set) Handles() []Handle {
	out := make([]Handle, len(s.haps))
	for i := range out {
		out[i] = Handle(i)
	}
	return out
}
