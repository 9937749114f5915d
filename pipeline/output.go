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
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/caller"
)

// CallRow is the per-variant call record spilled to per-worker temp files
// during the main loop and merged into the final VCF afterwards.
type CallRow struct {
	RefID     int32
	Pos       int32 // 0-based
	Ref       []byte
	Alt       []byte
	Qual      float64
	Posterior float64
	Depth     int32
	GT        []byte // e.g. "0/1"
}

// Serialized format: the fixed-width fields, then length-prefixed Ref,
// Alt and GT.  Simplest thing that round-trips; the zstd transformer takes
// care of the redundancy.
func marshalCallRow(scratch []byte, v interface{}) ([]byte, error) {
	row := v.(*CallRow)
	bytesReq := 4 + 4 + 4 + 8 + 8 + 4 + len(row.Ref) + 4 + len(row.Alt) + 4 + len(row.GT)
	t := scratch
	if len(t) < bytesReq {
		t = make([]byte, bytesReq)
	}
	binary.LittleEndian.PutUint32(t[0:4], uint32(row.RefID))
	binary.LittleEndian.PutUint32(t[4:8], uint32(row.Pos))
	binary.LittleEndian.PutUint32(t[8:12], uint32(row.Depth))
	binary.LittleEndian.PutUint64(t[12:20], floatBits(row.Qual))
	binary.LittleEndian.PutUint64(t[20:28], floatBits(row.Posterior))
	offset := 28
	for _, field := range [][]byte{row.Ref, row.Alt, row.GT} {
		binary.LittleEndian.PutUint32(t[offset:offset+4], uint32(len(field)))
		offset += 4
		copy(t[offset:], field)
		offset += len(field)
	}
	return t[:bytesReq], nil
}

func unmarshalCallRow(in []byte) (interface{}, error) {
	if len(in) < 28 {
		return nil, fmt.Errorf("pipeline.unmarshalCallRow: truncated record (%d bytes)", len(in))
	}
	row := &CallRow{
		RefID:     int32(binary.LittleEndian.Uint32(in[0:4])),
		Pos:       int32(binary.LittleEndian.Uint32(in[4:8])),
		Depth:     int32(binary.LittleEndian.Uint32(in[8:12])),
		Qual:      floatFromBits(binary.LittleEndian.Uint64(in[12:20])),
		Posterior: floatFromBits(binary.LittleEndian.Uint64(in[20:28])),
	}
	offset := 28
	for _, dst := range []*[]byte{&row.Ref, &row.Alt, &row.GT} {
		if offset+4 > len(in) {
			return nil, fmt.Errorf("pipeline.unmarshalCallRow: truncated length prefix")
		}
		n := int(binary.LittleEndian.Uint32(in[offset : offset+4]))
		offset += 4
		if offset+n > len(in) {
			return nil, fmt.Errorf("pipeline.unmarshalCallRow: truncated field (%d bytes)", n)
		}
		*dst = append([]byte(nil), in[offset:offset+n]...)
		offset += n
	}
	return row, nil
}

// OutputOrder selects the contig order of the final VCF.  Output order is
// a property of the merge, never of region completion order.
type OutputOrder int

const (
	// OrderRefIndex follows the reference index (BAM header) order.
	OrderRefIndex OutputOrder = iota
	// OrderLexAsc and OrderLexDesc sort contigs by name.
	OrderLexAsc
	OrderLexDesc
	// OrderContigSize sorts contigs largest first.
	OrderContigSize
)

var orderNames = map[string]OutputOrder{
	"ref-index":   OrderRefIndex,
	"lex-asc":     OrderLexAsc,
	"lex-desc":    OrderLexDesc,
	"contig-size": OrderContigSize,
}

// ParseOutputOrder resolves a user-supplied order name, suggesting the
// nearest valid name on a miss.
func ParseOutputOrder(name string) (OutputOrder, error) {
	if o, ok := orderNames[name]; ok {
		return o, nil
	}
	valid := make([]string, 0, len(orderNames))
	for n := range orderNames {
		valid = append(valid, n)
	}
	sort.Strings(valid)
	best := ""
	bestDist := len(name) + 1
	for _, v := range valid {
		if d := matchr.Levenshtein(name, v); d < bestDist {
			bestDist = d
			best = v
		}
	}
	msg := fmt.Sprintf("unknown output order %q; valid orders are %s", name, strings.Join(valid, ", "))
	if best != "" && bestDist <= len(best)/2+1 {
		msg += fmt.Sprintf(" (did you mean %q?)", best)
	}
	return 0, fmt.Errorf("%s", msg)
}

// contigRanks returns each refID's emission rank under the order.
func contigRanks(refs []*sam.Reference, order OutputOrder) []int {
	perm := make([]int, len(refs))
	for i := range perm {
		perm[i] = i
	}
	switch order {
	case OrderRefIndex:
	case OrderLexAsc:
		sort.Slice(perm, func(i, j int) bool { return refs[perm[i]].Name() < refs[perm[j]].Name() })
	case OrderLexDesc:
		sort.Slice(perm, func(i, j int) bool { return refs[perm[i]].Name() > refs[perm[j]].Name() })
	case OrderContigSize:
		sort.Slice(perm, func(i, j int) bool {
			if refs[perm[i]].Len() != refs[perm[j]].Len() {
				return refs[perm[i]].Len() > refs[perm[j]].Len()
			}
			return perm[i] < perm[j]
		})
	}
	ranks := make([]int, len(refs))
	for rank, refID := range perm {
		ranks[refID] = rank
	}
	return ranks
}

// mergeItem keys one call row in the ordered-merge tree.
type mergeItem struct {
	rank int
	pos  int32
	seq  int
	row  *CallRow
}

func (m *mergeItem) Compare(c llrb.Comparable) int {
	o := c.(*mergeItem)
	if m.rank != o.rank {
		return m.rank - o.rank
	}
	if m.pos != o.pos {
		return int(m.pos - o.pos)
	}
	return m.seq - o.seq
}

// writeCalls merges the per-worker spill files and emits the final VCF in
// the configured contig order.  minQual drives the FILTER column through
// the quality measure.
func writeCalls(ctx context.Context, outPath string, refs []*sam.Reference, order OutputOrder,
	sample string, minQual float64, tmpFiles []*os.File) (err error) {
	ranks := contigRanks(refs, order)
	tree := llrb.Tree{}
	seq := 0
	for _, f := range tmpFiles {
		if _, err = f.Seek(0, 0); err != nil {
			return err
		}
		scanner := recordio.NewScanner(f, recordio.ScannerOpts{Unmarshal: unmarshalCallRow})
		for scanner.Scan() {
			row := scanner.Get().(*CallRow)
			if int(row.RefID) >= len(ranks) {
				return fmt.Errorf("pipeline.writeCalls: refID %d out of range", row.RefID)
			}
			tree.Insert(&mergeItem{rank: ranks[row.RefID], pos: row.Pos, seq: seq, row: row})
			seq++
		}
		if err = scanner.Err(); err != nil {
			return err
		}
	}

	dst, err := file.Create(ctx, outPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, dst, &err)
	w := bufio.NewWriter(dst.Writer(ctx))

	fmt.Fprintf(w, "##fileformat=VCFv4.2\n")
	fmt.Fprintf(w, "##source=varcall\n")
	fmt.Fprintf(w, "##FILTER=<ID=LowQual,Description=\"Call quality below %g\">\n", minQual)
	fmt.Fprintf(w, "##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Read depth\">\n")
	fmt.Fprintf(w, "##INFO=<ID=PP,Number=1,Type=Float,Description=\"Genotype posterior\">\n")
	fmt.Fprintf(w, "##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n")
	for _, refID := range rankedRefIDs(ranks) {
		ref := refs[refID]
		fmt.Fprintf(w, "##contig=<ID=%s,length=%d>\n", ref.Name(), ref.Len())
	}
	fmt.Fprintf(w, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t%s\n", sample)

	var emitErr error
	tree.Do(func(item llrb.Comparable) bool {
		row := item.(*mergeItem).row
		filter := "PASS"
		rec := caller.Record{Depth: int(row.Depth), Qual: row.Qual, Posterior: row.Posterior}
		if caller.MeasureQuality.Evaluate(rec) < minQual {
			filter = "LowQual"
		}
		_, emitErr = fmt.Fprintf(w, "%s\t%d\t.\t%s\t%s\t%.2f\t%s\tDP=%d;PP=%.4g\tGT\t%s\n",
			refs[row.RefID].Name(), row.Pos+1, allele(row.Ref), allele(row.Alt),
			row.Qual, filter, row.Depth, row.Posterior, row.GT)
		return emitErr != nil
	})
	if emitErr != nil {
		return emitErr
	}
	return w.Flush()
}

// rankedRefIDs returns refIDs in emission order.
func rankedRefIDs(ranks []int) []int {
	out := make([]int, len(ranks))
	for refID, rank := range ranks {
		out[rank] = refID
	}
	return out
}

func allele(a []byte) string {
	if len(a) == 0 {
		return "."
	}
	return string(a)
}

func floatBits(f float64) uint64     { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }
