// Package refseq provides a process-wide cache of reference contig
// sequences backed by a FASTA file.  Entries are immutable after insert and
// evicted LRU against a byte cap, so concurrent region workers share one
// cache without blocking each other once a contig is resident.
package refseq

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/grailbio/base/file"
	"v.io/x/lib/vlog"
)

// DefaultCapBytes is the default cache footprint cap.
const DefaultCapBytes = 500 << 20

// Cache is an LRU contig-sequence cache.  The index is guarded by a
// RW-mutex; loads on miss hold the write lock (misses are rare after
// warmup, and a duplicate concurrent load would waste more than the
// stall).
type Cache struct {
	path     string
	capBytes int64

	mu         sync.RWMutex
	entries    map[string]*entry
	totalBytes int64
	useSeq     int64
}

type entry struct {
	seq     []byte
	lastUse int64
}

// NewCache returns a cache reading contigs from the FASTA at path.
// capBytes <= 0 means DefaultCapBytes.
func NewCache(path string, capBytes int64) *Cache {
	if capBytes <= 0 {
		capBytes = DefaultCapBytes
	}
	return &Cache{
		path:     path,
		capBytes: capBytes,
		entries:  make(map[string]*entry),
	}
}

// Get returns the upcased sequence of the named contig, loading it on
// miss.  The returned slice is shared and immutable; callers must not
// modify it.
func (c *Cache) Get(ctx context.Context, contig string) ([]byte, error) {
	c.mu.RLock()
	if e, ok := c.entries[contig]; ok {
		c.touch(e)
		seq := e.seq
		c.mu.RUnlock()
		return seq, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another worker may have loaded it while we waited.
	if e, ok := c.entries[contig]; ok {
		c.useSeq++
		e.lastUse = c.useSeq
		return e.seq, nil
	}
	seq, err := c.load(ctx, contig)
	if err != nil {
		return nil, err
	}
	c.useSeq++
	c.entries[contig] = &entry{seq: seq, lastUse: c.useSeq}
	c.totalBytes += int64(len(seq))
	c.evictLocked(contig)
	return seq, nil
}

// touch records a use of e for LRU ordering.  It runs under the read lock,
// so the counters are updated atomically; the write-locked paths access
// them while no reader is active.
func (c *Cache) touch(e *entry) {
	atomic.StoreInt64(&e.lastUse, atomic.AddInt64(&c.useSeq, 1))
}

// evictLocked drops least-recently-used entries until the footprint fits
// the cap.  keep is never evicted, even if it alone exceeds the cap.
func (c *Cache) evictLocked(keep string) {
	for c.totalBytes > c.capBytes && len(c.entries) > 1 {
		victim := ""
		oldest := int64(1<<63 - 1)
		for name, e := range c.entries {
			if name != keep && e.lastUse < oldest {
				oldest = e.lastUse
				victim = name
			}
		}
		if victim == "" {
			return
		}
		vlog.Infof("refseq: evicting %s (%d bytes, cache at %d/%d)",
			victim, len(c.entries[victim].seq), c.totalBytes, c.capBytes)
		c.totalBytes -= int64(len(c.entries[victim].seq))
		delete(c.entries, victim)
	}
}

// load scans the FASTA for the named contig.  Sequential scan per miss is
// acceptable because misses are bounded by contig count per run.
func (c *Cache) load(ctx context.Context, contig string) ([]byte, error) {
	infile, err := file.Open(ctx, c.path)
	if err != nil {
		return nil, err
	}
	defer infile.Close(ctx) // nolint: errcheck
	reader := io.Reader(infile.Reader(ctx))
	sc := seqio.NewScanner(fasta.NewReader(reader, linear.NewSeq("", nil, alphabet.DNAredundant)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		if s.ID != contig {
			continue
		}
		vlog.Infof("refseq: loaded %s (%d bases)", contig, s.Len())
		return upcaseLetters(s.Seq), nil
	}
	if err := sc.Error(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("refseq.Cache.Get: contig %q not in %s", contig, c.path)
}

func upcaseLetters(letters alphabet.Letters) []byte {
	out := make([]byte, len(letters))
	for i, l := range letters {
		b := byte(l)
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return out
}
