// Package genotype defines genotypes as multisets of haplotype handles and
// enumerates the genotype space for a given ploidy.
package genotype

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/varcall/haplotype"
)

// Genotype is an immutable multiset of haplotype handles.  The multiset is
// held in canonical (ascending handle) order, so two genotypes built from
// the same handles in any order compare equal and index identically.
type Genotype struct {
	handles []haplotype.Handle
}

// New builds a genotype from ploidy-many handles.  The input is copied and
// canonicalized; the empty genotype (ploidy 0) is valid.
func New(handles ...haplotype.Handle) Genotype {
	h := make([]haplotype.Handle, len(handles))
	copy(h, handles)
	sort.Slice(h, func(i, j int) bool { return h[i] < h[j] })
	return Genotype{handles: h}
}

// Ploidy returns the number of handles, duplicates included.
func (g Genotype) Ploidy() int { return len(g.handles) }

// Zygosity returns the number of distinct handles.
func (g Genotype) Zygosity() int {
	z := 0
	for i, h := range g.handles {
		if i == 0 || h != g.handles[i-1] {
			z++
		}
	}
	return z
}

// IsHomozygous reports whether the genotype carries exactly one distinct
// handle.  The empty genotype is not homozygous.
func (g Genotype) IsHomozygous() bool {
	return len(g.handles) >= 1 && g.Zygosity() == 1
}

// Count returns the multiplicity of h.
func (g Genotype) Count(h haplotype.Handle) int {
	n := 0
	for _, x := range g.handles {
		if x == h {
			n++
		}
	}
	return n
}

// At returns the i-th handle in canonical order, i in [0, Ploidy()).
func (g Genotype) At(i int) haplotype.Handle {
	if i < 0 || i >= len(g.handles) {
		panic(fmt.Sprintf("genotype.At: index %d out of range [0, %d)", i, len(g.handles)))
	}
	return g.handles[i]
}

// Handles returns the canonical-ordered handles, duplicates included.  The
// returned slice is the genotype's backing storage; callers must not modify
// it.
func (g Genotype) Handles() []haplotype.Handle { return g.handles }

// Unique returns the distinct handles in ascending order.
func (g Genotype) Unique() []haplotype.Handle {
	out := make([]haplotype.Handle, 0, len(g.handles))
	for i, h := range g.handles {
		if i == 0 || h != g.handles[i-1] {
			out = append(out, h)
		}
	}
	return out
}

// Equal is multiset equality.
func (g Genotype) Equal(o Genotype) bool {
	if len(g.handles) != len(o.handles) {
		return false
	}
	for i, h := range g.handles {
		if h != o.handles[i] {
			return false
		}
	}
	return true
}

// Hash returns an order-invariant hash of the multiset (computed over the
// canonical form).
func (g Genotype) Hash() uint64 {
	buf := make([]byte, 4*len(g.handles))
	for i, h := range g.handles {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(h))
	}
	return farm.Hash64(buf)
}

// String renders the genotype as "{h0, h1, ...}" for log lines.
func (g Genotype) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, h := range g.handles {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", h)
	}
	sb.WriteByte('}')
	return sb.String()
}
