package genotype_test

import (
	"testing"

	"github.com/grailbio/varcall/genotype"
	"github.com/grailbio/varcall/haplotype"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalOrder(t *testing.T) {
	perms := [][]haplotype.Handle{
		{0, 1, 2},
		{2, 1, 0},
		{1, 0, 2},
		{2, 0, 1},
	}
	base := genotype.New(perms[0]...)
	for _, p := range perms {
		g := genotype.New(p...)
		assert.True(t, g.Equal(base), "permutation %v not equal to canonical", p)
		assert.Equal(t, base.Hash(), g.Hash(), "hash differs for permutation %v", p)
		for i := 0; i < g.Ploidy(); i++ {
			assert.Equal(t, haplotype.Handle(i), g.At(i))
		}
	}
}

func TestZygosityQueries(t *testing.T) {
	tests := []struct {
		handles      []haplotype.Handle
		ploidy       int
		zygosity     int
		isHomozygous bool
	}{
		{nil, 0, 0, false},
		{[]haplotype.Handle{3}, 1, 1, true},
		{[]haplotype.Handle{3, 3}, 2, 1, true},
		{[]haplotype.Handle{3, 5}, 2, 2, false},
		{[]haplotype.Handle{5, 3, 5}, 3, 2, false},
		{[]haplotype.Handle{1, 1, 1, 1}, 4, 1, true},
		{[]haplotype.Handle{4, 2, 4, 2}, 4, 2, false},
		{[]haplotype.Handle{0, 1, 2, 3, 4}, 5, 5, false},
	}
	for _, tc := range tests {
		g := genotype.New(tc.handles...)
		assert.Equal(t, tc.ploidy, g.Ploidy(), "handles %v", tc.handles)
		assert.Equal(t, tc.zygosity, g.Zygosity(), "handles %v", tc.handles)
		assert.Equal(t, tc.isHomozygous, g.IsHomozygous(), "handles %v", tc.handles)
	}
}

func TestCountAndUnique(t *testing.T) {
	g := genotype.New(5, 3, 5, 5)
	assert.Equal(t, 3, g.Count(5))
	assert.Equal(t, 1, g.Count(3))
	assert.Equal(t, 0, g.Count(7))
	assert.Equal(t, []haplotype.Handle{3, 5}, g.Unique())
	assert.Equal(t, []haplotype.Handle{3, 5, 5, 5}, g.Handles())
}

func TestMultisetEquality(t *testing.T) {
	assert.True(t, genotype.New(1, 2).Equal(genotype.New(2, 1)))
	assert.False(t, genotype.New(1, 2).Equal(genotype.New(1, 1)))
	assert.False(t, genotype.New(1, 2).Equal(genotype.New(1, 2, 2)))
	assert.True(t, genotype.New().Equal(genotype.New()))
}

func TestEnumerateCountsAndOrder(t *testing.T) {
	handles := []haplotype.Handle{0, 1, 2}
	gs := genotype.Enumerate(handles, 2)
	want := [][]haplotype.Handle{
		{0, 0}, {0, 1}, {1, 1}, {0, 2}, {1, 2}, {2, 2},
	}
	assert.Equal(t, len(want), len(gs))
	for i, w := range want {
		assert.True(t, gs[i].Equal(genotype.New(w...)), "position %d: got %v want %v", i, gs[i], w)
	}

	// Enumeration order must not depend on input handle order.
	shuffled := genotype.Enumerate([]haplotype.Handle{2, 0, 1}, 2)
	for i := range gs {
		assert.True(t, gs[i].Equal(shuffled[i]), "position %d differs after shuffle", i)
	}
}

func TestEnumerateSizes(t *testing.T) {
	for _, tc := range []struct{ n, k, want int }{
		{1, 1, 1},
		{1, 4, 1},
		{3, 1, 3},
		{3, 3, 10},
		{4, 2, 10},
		{5, 4, 70},
		{2, 0, 1},
		{0, 0, 1},
		{0, 2, 0},
	} {
		assert.Equal(t, tc.want, genotype.NumGenotypes(tc.n, tc.k), "NumGenotypes(%d, %d)", tc.n, tc.k)
		handles := make([]haplotype.Handle, tc.n)
		for i := range handles {
			handles[i] = haplotype.Handle(i)
		}
		gs := genotype.Enumerate(handles, tc.k)
		assert.Equal(t, tc.want, len(gs), "Enumerate(%d, %d)", tc.n, tc.k)
		// All results distinct.
		seen := make(map[uint64]bool)
		for _, g := range gs {
			h := g.Hash()
			assert.False(t, seen[h], "duplicate genotype %v", g)
			seen[h] = true
			assert.Equal(t, tc.k, g.Ploidy())
		}
	}
}
