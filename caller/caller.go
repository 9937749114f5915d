// Package caller turns genotype log-likelihoods into genotype calls with
// posterior probabilities, and hosts the closed registries of caller and
// measure kinds.
package caller

import (
	"fmt"
	"math"

	"github.com/grailbio/varcall/genotype"
	"github.com/grailbio/varcall/haplotype"
	"github.com/grailbio/varcall/likelihood"
	"github.com/grailbio/varcall/logspace"
)

// maxQual caps the phred-scaled call quality; posteriors within one ulp of
// 1 would otherwise produce +Inf.
const maxQual = 3000.0

// GenotypeLogLikelihoods maps each enumerated genotype to its
// ln P(reads | genotype) for one sample.  Genotypes and LogLik are indexed
// by enumeration position.
type GenotypeLogLikelihoods struct {
	Sample    string
	Genotypes []genotype.Genotype
	LogLik    []float64
}

// Call is the winning genotype for one sample with its posterior under a
// flat genotype prior.
type Call struct {
	Genotype  genotype.Genotype
	LogLik    float64
	Posterior float64
	// Qual is -10*log10(1 - Posterior), capped at maxQual.
	Qual float64
}

// Config parameterizes caller construction.
type Config struct {
	Ploidy int
}

// Caller evaluates and calls genotypes for single samples.
type Caller struct {
	kind   CallerKind
	ploidy int
}

// New constructs a caller of the given kind.  Kinds that need capabilities
// this build does not have (population calling needs joint samples) return
// an error at construction, before any work starts.
func New(kind CallerKind, cfg Config) (*Caller, error) {
	switch kind {
	case CallerIndividual:
	case CallerPopulation:
		return nil, fmt.Errorf("caller.New: population calling requires joint sample support, which is not available yet")
	default:
		return nil, fmt.Errorf("caller.New: unknown caller kind %d", kind)
	}
	if cfg.Ploidy < 0 {
		return nil, fmt.Errorf("caller.New: negative ploidy %d", cfg.Ploidy)
	}
	return &Caller{kind: kind, ploidy: cfg.Ploidy}, nil
}

// Ploidy returns the configured ploidy.
func (c *Caller) Ploidy() int { return c.ploidy }

// Evaluate computes the genotype log-likelihood vector for one sample over
// all genotypes of the configured ploidy drawn from handles.  The
// likelihood cache behind model must be primed for the sample.
func (c *Caller) Evaluate(model *likelihood.GermlineModel, handles []haplotype.Handle, sample string) GenotypeLogLikelihoods {
	gs := genotype.Enumerate(handles, c.ploidy)
	ll := make([]float64, len(gs))
	for i, g := range gs {
		ll[i] = model.Evaluate(g, sample)
	}
	return GenotypeLogLikelihoods{Sample: sample, Genotypes: gs, LogLik: ll}
}

// CallGenotypes picks the maximum-posterior genotype under a flat prior.
// Ties break toward the earlier enumeration position.  If every genotype
// is impossible (all -Inf), the first genotype is returned with posterior
// and quality 0 so the caller above can record the site as uncallable.
func CallGenotypes(gll GenotypeLogLikelihoods) Call {
	if len(gll.Genotypes) == 0 {
		panic("caller.CallGenotypes: empty genotype set")
	}
	if len(gll.Genotypes) != len(gll.LogLik) {
		panic(fmt.Sprintf("caller.CallGenotypes: %d genotypes vs %d likelihoods",
			len(gll.Genotypes), len(gll.LogLik)))
	}
	best := 0
	for i, ll := range gll.LogLik {
		if ll > gll.LogLik[best] {
			best = i
		}
	}
	norm := logspace.LogSumExp(gll.LogLik)
	if math.IsInf(norm, -1) {
		return Call{Genotype: gll.Genotypes[best], LogLik: gll.LogLik[best]}
	}
	posterior := math.Exp(gll.LogLik[best] - norm)
	qual := -10.0 * math.Log1p(-posterior) / math.Ln10
	if math.IsInf(qual, 1) || qual > maxQual {
		qual = maxQual
	}
	return Call{
		Genotype:  gll.Genotypes[best],
		LogLik:    gll.LogLik[best],
		Posterior: posterior,
		Qual:      qual,
	}
}
