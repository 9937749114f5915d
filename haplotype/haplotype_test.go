package haplotype

import "testing"

func TestHasNs(t *testing.T) {
	tests := []struct {
		seq  string
		want bool
	}{
		{"", false},
		{"ACGT", false},
		{"N", true},
		{"ACGNT", true},
		{"NNNN", true},
		{"ACGTN", true},
	}
	for _, tc := range tests {
		if got := HasNs([]byte(tc.seq)); got != tc.want {
			t.Fatalf("HasNs(%q) = %v, want %v", tc.seq, got, tc.want)
		}
	}
}

func TestSetDedup(t *testing.T) {
	s := NewSet()
	a := s.Add(Haplotype{Contig: "chr1", Start: 100, End: 104, Seq: []byte("ACGT")})
	b := s.Add(Haplotype{Contig: "chr1", Start: 100, End: 104, Seq: []byte("ACCT")})
	if a == b {
		t.Fatalf("distinct sequences share handle %d", a)
	}
	// Same bases, same anchor: dedup.
	c := s.Add(Haplotype{Contig: "chr1", Start: 100, End: 104, Seq: []byte("ACGT")})
	if c != a {
		t.Fatalf("duplicate add returned %d, want %d", c, a)
	}
	// Same bases, different anchor: distinct.
	d := s.Add(Haplotype{Contig: "chr1", Start: 200, End: 204, Seq: []byte("ACGT")})
	if d == a {
		t.Fatalf("different anchors share handle %d", d)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if got := s.Find(Haplotype{Contig: "chr1", Start: 100, End: 104, Seq: []byte("ACGT")}); got != a {
		t.Fatalf("Find returned %d, want %d", got, a)
	}
	if got := s.Find(Haplotype{Contig: "chr1", Start: 100, End: 104, Seq: []byte("TTTT")}); got != InvalidHandle {
		t.Fatalf("Find of absent sequence returned %d", got)
	}
}

func TestSetHandlesOrder(t *testing.T) {
	s := NewSet()
	for i, seq := range []string{"A", "C", "G", "T"} {
		if got := s.Add(Haplotype{Contig: "chr1", Start: i, End: i + 1, Seq: []byte(seq)}); got != Handle(i) {
			t.Fatalf("Add #%d returned handle %d", i, got)
		}
	}
	for i, h := range s.Handles() {
		if h != Handle(i) {
			t.Fatalf("Handles()[%d] = %d", i, h)
		}
	}
}
