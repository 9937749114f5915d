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

// Package likelihood holds the per-read/per-haplotype log-likelihood cache
// and the germline genotype likelihood model built on top of it.
package likelihood

import (
	"fmt"

	"github.com/grailbio/varcall/haplotype"
)

// Cache stores, per (sample, haplotype), the vector of per-read
// log-likelihoods produced by the pairwise aligner.  It is primed at the
// start of region processing and cleared at region end; each worker owns
// one, so there is no locking.
//
// Invariants: for a fixed sample all vectors have the same length (the
// sample's read count), and every haplotype in the region's working set has
// an entry for every primed sample.  Querying before priming, or for an
// unknown handle, is a programmer error and panics.
type Cache struct {
	samples map[string]*sampleLikelihoods
	// current is the sample selected by SetSample, for the single-sample
	// Get fast path used inside the genotype evaluation loop.
	current     *sampleLikelihoods
	currentName string
}

type sampleLikelihoods struct {
	readCount int
	vecs      map[haplotype.Handle][]float64
}

// NewCache returns an unprimed cache.
func NewCache() *Cache {
	return &Cache{samples: make(map[string]*sampleLikelihoods)}
}

// IsPrimed reports whether any sample has been primed since the last Clear.
func (c *Cache) IsPrimed() bool { return len(c.samples) > 0 }

// Prime installs the (haplotype, vector) pairs for one sample.  All vectors
// must have identical length; entries must be nonempty.  Slices are
// retained, not copied; the caller must not mutate them until Clear.
// Re-priming a sample replaces its previous entries.
func (c *Cache) Prime(sample string, entries map[haplotype.Handle][]float64) {
	if len(entries) == 0 {
		panic("likelihood.Cache.Prime: no haplotype entries")
	}
	readCount := -1
	for h, vec := range entries {
		if readCount == -1 {
			readCount = len(vec)
		} else if len(vec) != readCount {
			panic(fmt.Sprintf("likelihood.Cache.Prime: vector length mismatch for haplotype %d: %d vs %d",
				h, len(vec), readCount))
		}
	}
	sl := &sampleLikelihoods{readCount: readCount, vecs: entries}
	c.samples[sample] = sl
	if c.current == nil || c.currentName == sample {
		c.current = sl
		c.currentName = sample
	}
}

// SetSample selects the implicit sample used by Get.
func (c *Cache) SetSample(sample string) {
	sl, ok := c.samples[sample]
	if !ok {
		panic(fmt.Sprintf("likelihood.Cache.SetSample: sample %q not primed", sample))
	}
	c.current = sl
	c.currentName = sample
}

// ReadCount returns the read count of a primed sample.
func (c *Cache) ReadCount(sample string) int {
	sl, ok := c.samples[sample]
	if !ok {
		panic(fmt.Sprintf("likelihood.Cache.ReadCount: sample %q not primed", sample))
	}
	return sl.readCount
}

// Get returns the log-likelihood vector for h in the current sample.  The
// slice stays valid until the next Prime or Clear; callers must not retain
// it across cache mutation, and must not write through it.
func (c *Cache) Get(h haplotype.Handle) []float64 {
	if c.current == nil {
		panic("likelihood.Cache.Get: cache not primed")
	}
	vec, ok := c.current.vecs[h]
	if !ok {
		panic(fmt.Sprintf("likelihood.Cache.Get: unknown haplotype %d for sample %q", h, c.currentName))
	}
	return vec
}

// GetSample is Get with an explicit sample.
func (c *Cache) GetSample(sample string, h haplotype.Handle) []float64 {
	sl, ok := c.samples[sample]
	if !ok {
		panic(fmt.Sprintf("likelihood.Cache.GetSample: sample %q not primed", sample))
	}
	vec, ok := sl.vecs[h]
	if !ok {
		panic(fmt.Sprintf("likelihood.Cache.GetSample: unknown haplotype %d for sample %q", h, sample))
	}
	return vec
}

// Contains reports whether (sample, h) has an entry.
func (c *Cache) Contains(sample string, h haplotype.Handle) bool {
	sl, ok := c.samples[sample]
	if !ok {
		return false
	}
	_, ok = sl.vecs[h]
	return ok
}

// Clear drops all state; IsPrimed reports false afterwards.
func (c *Cache) Clear() {
	c.samples = make(map[string]*sampleLikelihoods)
	c.current = nil
	c.currentName = ""
}
