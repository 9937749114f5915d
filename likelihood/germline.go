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
package likelihood

import (
	"math"

	"github.com/grailbio/base/log"
	"github.com/grailbio/varcall/genotype"
	"github.com/grailbio/varcall/haplotype"
	"github.com/grailbio/varcall/logspace"
)

// GermlineModel computes ln P(reads | genotype) for one sample under the
// uniform haplotype-mixture model: each read is drawn from one of the
// genotype's ploidy positions with equal probability, and reads are
// conditionally independent, so
//
//	ln P(R | G) = sum_r ln( (1/k) * sum_i P(r | h_i) )
//
// All arithmetic stays in log space.  The ploidy-specialized paths below
// exist for speed only (this is the innermost loop of the caller); the
// general mixed-multiplicity path is authoritative and every
// specialization must agree with it.
//
// Per-read summation always runs in read index order, so results are
// bit-reproducible for fixed inputs.
type GermlineModel struct {
	cache *Cache
	// scratch holds ln(m_j) + L_j[r] terms for the general path; sized to
	// the genotype's zygosity on demand.
	scratch []float64
	// scratchLn caches ln(m_j) per distinct haplotype for the current
	// genotype evaluation.
	scratchLn []float64
	// scratchVecs holds the distinct likelihood vectors for the current
	// genotype evaluation.
	scratchVecs [][]float64
	nanWarned   bool
}

// NewGermlineModel returns a model reading from cache.  The cache must be
// primed for a sample before Evaluate is called for it.
func NewGermlineModel(cache *Cache) *GermlineModel {
	return &GermlineModel{cache: cache}
}

// Evaluate returns ln P(reads | g) for the given sample.  The empty
// genotype returns 0 by convention, as does any genotype over an empty read
// set.  -Inf entries in the likelihood vectors (reads incompatible with a
// haplotype) propagate correctly; a read incompatible with every haplotype
// in g drives the total to -Inf.
func (m *GermlineModel) Evaluate(g genotype.Genotype, sample string) float64 {
	k := g.Ploidy()
	if k == 0 {
		return 0.0
	}
	m.cache.SetSample(sample)
	var total float64
	switch k {
	case 1:
		total = sumVec(m.cache.Get(g.At(0)))
	case 2:
		total = m.evaluateDiploid(g)
	case 3:
		total = m.evaluateTriploid(g)
	default:
		total = m.evaluatePolyploid(g)
	}
	if math.IsNaN(total) {
		// Stabilized log-sum-exp cannot produce NaN from finite or -Inf
		// inputs, so a NaN here means the aligner emitted one (or +Inf).
		// Treat the genotype as impossible rather than poisoning the
		// posterior normalization.
		if !m.nanWarned {
			log.Error.Printf("GermlineModel.Evaluate: non-finite result for genotype %v, sample %q; clamping to -Inf", g, sample)
			m.nanWarned = true
		}
		return logspace.NegInf
	}
	return total
}

func (m *GermlineModel) evaluateDiploid(g genotype.Genotype) float64 {
	h1, h2 := g.At(0), g.At(1)
	l1 := m.cache.Get(h1)
	if h1 == h2 {
		return sumVec(l1)
	}
	l2 := m.cache.Get(h2)
	ln2 := logspace.LnSmall(2)
	total := 0.0
	for r, a := range l1 {
		total += logspace.LogSumExp2(a, l2[r]) - ln2
	}
	return total
}

func (m *GermlineModel) evaluateTriploid(g genotype.Genotype) float64 {
	ln3 := logspace.LnSmall(3)
	switch g.Zygosity() {
	case 1:
		return sumVec(m.cache.Get(g.At(0)))
	case 3:
		l1 := m.cache.Get(g.At(0))
		l2 := m.cache.Get(g.At(1))
		l3 := m.cache.Get(g.At(2))
		total := 0.0
		for r, a := range l1 {
			total += logspace.LogSumExp3(a, l2[r], l3[r]) - ln3
		}
		return total
	default:
		// One haplotype occurs twice, the other once.  Canonical order
		// doesn't say which, so key off the multiplicity; both layouts
		// must land on the same arithmetic.
		var dbl, sgl haplotype.Handle
		if g.At(0) == g.At(1) {
			dbl, sgl = g.At(0), g.At(2)
		} else {
			dbl, sgl = g.At(1), g.At(0)
		}
		lDbl := m.cache.Get(dbl)
		lSgl := m.cache.Get(sgl)
		ln2 := logspace.LnSmall(2)
		total := 0.0
		for r, a := range lSgl {
			total += logspace.LogSumExp2(a, ln2+lDbl[r]) - ln3
		}
		return total
	}
}

func (m *GermlineModel) evaluatePolyploid(g genotype.Genotype) float64 {
	k := g.Ploidy()
	lnK := logspace.LnSmall(uint32(k))
	unique := g.Unique()
	z := len(unique)
	switch z {
	case 1:
		return sumVec(m.cache.Get(unique[0]))
	case 2:
		ma, mb := g.Count(unique[0]), g.Count(unique[1])
		la := m.cache.Get(unique[0])
		lb := m.cache.Get(unique[1])
		lnMa := logspace.LnSmall(uint32(ma))
		lnMb := logspace.LnSmall(uint32(mb))
		total := 0.0
		for r, a := range la {
			total += logspace.LogSumExp2(lnMa+a, lnMb+lb[r]) - lnK
		}
		return total
	default:
		return m.evaluateGeneral(g, unique, lnK)
	}
}

// evaluateGeneral is the ground-truth mixed-multiplicity path: for each
// read, log-sum-exp over ln(m_j) + L_j[r] across the z distinct
// haplotypes, minus ln(k).  Works for any genotype with ploidy >= 1; the
// specialized paths are checked against it in tests.
func (m *GermlineModel) evaluateGeneral(g genotype.Genotype, unique []haplotype.Handle, lnK float64) float64 {
	z := len(unique)
	if cap(m.scratch) < z {
		m.scratch = make([]float64, z)
		m.scratchLn = make([]float64, z)
		m.scratchVecs = make([][]float64, z)
	}
	scratch := m.scratch[:z]
	lnMult := m.scratchLn[:z]
	vecs := m.scratchVecs[:z]
	for j, h := range unique {
		lnMult[j] = logspace.LnSmall(uint32(g.Count(h)))
		vecs[j] = m.cache.Get(h)
	}
	nReads := len(vecs[0])
	total := 0.0
	for r := 0; r < nReads; r++ {
		for j := range vecs {
			scratch[j] = lnMult[j] + vecs[j][r]
		}
		total += logspace.LogSumExp(scratch) - lnK
	}
	return total
}

func sumVec(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}
