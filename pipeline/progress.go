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
package pipeline

import (
	"sync"
	"time"

	"github.com/grailbio/base/log"
	"gonum.org/v1/gonum/stat"
)

// etaWindow is how many recent region completions feed the ETA estimate.
const etaWindow = 32

// Progress is one completion event's view of the run.
type Progress struct {
	Region          Region
	Elapsed         time.Duration
	PercentComplete float64
	ETA             time.Duration
}

// Meter tracks completed base pairs against the total target size.  It is
// shared by all workers; every mutation holds the mutex (one event per
// completed region, so contention is negligible).  One log line is emitted
// per 1% completion block.
type Meter struct {
	mu            sync.Mutex
	totalBP       int64
	doneBP        int64
	totalRegions  int
	doneRegions   int
	start         time.Time
	lastComplete  time.Time
	window        [etaWindow]float64 // per-region wall seconds, ring buffer
	windowLen     int
	windowNext    int
	lastPctLogged int
	// now is replaceable for tests.
	now func() time.Time
}

// NewMeter returns a meter for a run over the given regions.
func NewMeter(regions []Region) *Meter {
	return newMeterAt(regions, time.Now)
}

func newMeterAt(regions []Region, now func() time.Time) *Meter {
	m := &Meter{now: now, lastPctLogged: -1}
	for _, r := range regions {
		m.totalBP += int64(r.Size())
	}
	m.totalRegions = len(regions)
	t := m.now()
	m.start = t
	m.lastComplete = t
	return m
}

// Completed records a finished (or skipped) region and returns the updated
// progress snapshot.
func (m *Meter) Completed(r Region) Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now()
	m.doneBP += int64(r.Size())
	m.doneRegions++
	m.window[m.windowNext] = t.Sub(m.lastComplete).Seconds()
	m.windowNext = (m.windowNext + 1) % etaWindow
	if m.windowLen < etaWindow {
		m.windowLen++
	}
	m.lastComplete = t

	p := Progress{
		Region:  r,
		Elapsed: t.Sub(m.start),
	}
	if m.totalBP > 0 {
		p.PercentComplete = 100.0 * float64(m.doneBP) / float64(m.totalBP)
	} else {
		p.PercentComplete = 100.0
	}
	p.ETA = m.etaLocked()

	if pct := int(p.PercentComplete); pct > m.lastPctLogged {
		m.lastPctLogged = pct
		log.Printf("pipeline: %d%% complete (%d/%d regions), elapsed %s, ETA %s",
			pct, m.doneRegions, m.totalRegions, p.Elapsed.Round(time.Second), p.ETA.Round(time.Second))
	}
	return p
}

// etaLocked estimates remaining wall time from the completion window.
// Trivially small regions complete near-instantly and would drag a plain
// mean toward zero, so samples more than 2 sigma from the window mean are
// trimmed before averaging.
func (m *Meter) etaLocked() time.Duration {
	remaining := m.totalRegions - m.doneRegions
	if remaining <= 0 || m.windowLen == 0 {
		return 0
	}
	samples := m.window[:m.windowLen]
	mean := stat.Mean(samples, nil)
	sigma := stat.StdDev(samples, nil)
	trimmed := make([]float64, 0, m.windowLen)
	for _, s := range samples {
		if sigma == 0 || (s >= mean-2*sigma && s <= mean+2*sigma) {
			trimmed = append(trimmed, s)
		}
	}
	perRegion := mean
	if len(trimmed) > 0 {
		perRegion = stat.Mean(trimmed, nil)
	}
	return time.Duration(perRegion * float64(remaining) * float64(time.Second))
}
