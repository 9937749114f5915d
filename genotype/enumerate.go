package genotype

import (
	"sort"

	"github.com/grailbio/varcall/haplotype"
)

// NumGenotypes returns the number of ploidy-sized multisets drawn with
// replacement from n haplotypes: C(n+k-1, k).
func NumGenotypes(n, ploidy int) int {
	if n <= 0 {
		if ploidy == 0 {
			return 1
		}
		return 0
	}
	// Multiplicative binomial; each partial product is an exact binomial so
	// the division is exact.
	res := 1
	for i := 1; i <= ploidy; i++ {
		res = res * (n - 1 + i) / i
	}
	return res
}

// Enumerate returns all multisets of size ploidy drawn with replacement
// from handles, in colexicographic order over the sorted handle indices:
// for n=3, k=2 the index tuples come out (0,0), (0,1), (1,1), (0,2), (1,2),
// (2,2).  The order is part of the contract; callers index genotype
// log-likelihood vectors by enumeration position.
func Enumerate(handles []haplotype.Handle, ploidy int) []Genotype {
	n := len(handles)
	if n == 0 && ploidy > 0 {
		return nil
	}
	sorted := make([]haplotype.Handle, n)
	copy(sorted, handles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]Genotype, 0, NumGenotypes(n, ploidy))
	// idx is a nondecreasing tuple of indices into sorted.
	idx := make([]int, ploidy)
	for {
		g := make([]haplotype.Handle, ploidy)
		for i, j := range idx {
			g[i] = sorted[j]
		}
		// idx is nondecreasing and sorted is ascending, so g is already
		// canonical.
		out = append(out, Genotype{handles: g})

		// Colex successor: bump the smallest position that can grow, zero
		// everything below it.
		j := 0
		for ; j < ploidy; j++ {
			limit := n - 1
			if j+1 < ploidy {
				limit = idx[j+1]
			}
			if idx[j] < limit {
				break
			}
		}
		if j == ploidy {
			return out
		}
		idx[j]++
		for l := 0; l < j; l++ {
			idx[l] = 0
		}
	}
}
