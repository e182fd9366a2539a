package segpool

import (
	"testing"

	"segsearch/codec"
)

func TestForwardRoundTripNonPositional(t *testing.T) {
	p := New(4096, false, false, 0, 0)
	docids := []int32{2, 4, 6, 8, 10}
	ptr, err := p.AppendNonPositional(docids, Undefined)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	out := make([]int32, len(docids))
	n, err := p.DecompressDocids(ptr, out)
	if err != nil {
		t.Fatalf("DecompressDocids: %v", err)
	}
	if n != len(docids) {
		t.Fatalf("got n=%d, want %d", n, len(docids))
	}
	for i, v := range docids {
		if out[i] != v {
			t.Fatalf("index %d: got %d want %d", i, out[i], v)
		}
	}
	if p.MaxDocid(ptr) != 10 {
		t.Fatalf("MaxDocid = %d, want 10", p.MaxDocid(ptr))
	}
	if p.Next(ptr) != Undefined {
		t.Fatalf("single-block chain should terminate with next==Undefined")
	}
}

func TestForwardRoundTripTfOnly(t *testing.T) {
	p := New(4096, false, false, 0, 0)
	docids := []int32{1, 2, 3}
	tf := []int32{1, 5, 2}
	ptr, err := p.AppendTfOnly(docids, tf, Undefined)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	outTf := make([]int32, len(tf))
	n, err := p.DecompressTf(ptr, outTf)
	if err != nil {
		t.Fatalf("DecompressTf: %v", err)
	}
	if n != len(tf) {
		t.Fatalf("got n=%d want %d", n, len(tf))
	}
	for i, v := range tf {
		if outTf[i] != v {
			t.Fatalf("tf index %d: got %d want %d", i, outTf[i], v)
		}
	}
}

func TestPositionalRoundTripAndPerDocSlice(t *testing.T) {
	p := New(4096, false, false, 0, 0)
	docids := []int32{1, 2, 3}
	tf := []int32{2, 1, 3}
	positions := [][]int32{
		{1, 4}, // gaps -> absolute [1, 5]
		{10},
		{2, 2, 2}, // absolute [2, 4, 6]
	}
	ptr, err := p.AppendPositional(docids, tf, positions, Undefined)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	outTf := make([]int32, len(tf))
	if _, err := p.DecompressTf(ptr, outTf); err != nil {
		t.Fatalf("DecompressTf: %v", err)
	}

	want := [][]int32{{1, 5}, {10}, {2, 4, 6}}
	for i := range docids {
		out := make([]int32, outTf[i])
		n, err := p.DecompressPositionsFor(ptr, outTf, i, out)
		if err != nil {
			t.Fatalf("DecompressPositionsFor(%d): %v", i, err)
		}
		if n != len(want[i]) {
			t.Fatalf("doc %d: got %d positions, want %d", i, n, len(want[i]))
		}
		for j, v := range want[i] {
			if out[j] != v {
				t.Fatalf("doc %d position %d: got %d want %d", i, j, out[j], v)
			}
		}
	}
}

func TestChainMonotonicityForwardMode(t *testing.T) {
	p := New(64, false, false, 0, 0)
	var head, tail Pointer = Undefined, Undefined
	for i := 0; i < 5; i++ {
		ptr, err := p.AppendNonPositional([]int32{int32(i)}, tail)
		if err != nil {
			t.Fatalf("Append block %d: %v", i, err)
		}
		tail = ptr
		if head.IsUndefined() {
			head = ptr
		}
	}

	cur := head
	prev := int32(-1)
	count := 0
	terminators := 0
	for !cur.IsUndefined() {
		got := p.MaxDocid(cur)
		if got <= prev {
			t.Fatalf("max_docid not strictly increasing: %d after %d", got, prev)
		}
		prev = got
		if p.Next(cur) == Undefined {
			terminators++
		}
		count++
		cur = p.Next(cur)
	}
	if count != 5 {
		t.Fatalf("walked %d blocks, want 5", count)
	}
	if terminators != 1 {
		t.Fatalf("expected exactly one chain terminator, got %d", terminators)
	}
}

func TestReverseModeRoundTripS5(t *testing.T) {
	p := New(8192, true, false, 0, 0)
	var head, tail Pointer = Undefined, Undefined
	for docid := 100; docid >= 1; docid-- {
		ptr, err := p.AppendNonPositional([]int32{int32(docid)}, tail)
		if err != nil {
			t.Fatalf("Append docid %d: %v", docid, err)
		}
		tail = ptr
		if head.IsUndefined() {
			head = ptr
		}
	}

	// head is the first block appended (docid 100, the largest under
	// descending ingestion order); walking via Next visits blocks in
	// chronological append order, so docids 100, 99, ..., 1 with max_docid
	// strictly decreasing.
	cur := head
	prev := int32(101)
	count := 0
	for !cur.IsUndefined() {
		got := p.MaxDocid(cur)
		if got >= prev {
			t.Fatalf("max_docid not strictly decreasing: %d after %d", got, prev)
		}
		prev = got
		out := make([]int32, 1)
		if _, err := p.DecompressDocids(cur, out); err != nil {
			t.Fatalf("DecompressDocids: %v", err)
		}
		if out[0] != got {
			t.Fatalf("decoded docid %d does not match max_docid %d for a singleton block", out[0], got)
		}
		count++
		cur = p.Next(cur)
	}
	if count != 100 {
		t.Fatalf("walked %d blocks, want 100", count)
	}
}

func TestBlockFullExactlyB(t *testing.T) {
	docids := make([]int32, codec.B)
	for i := range docids {
		docids[i] = int32(i + 1)
	}
	p := New(4096, false, false, 0, 0)
	ptr, err := p.AppendNonPositional(docids, Undefined)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if p.Len(ptr) != codec.B {
		t.Fatalf("Len = %d, want %d", p.Len(ptr), codec.B)
	}
	out := make([]int32, codec.B)
	n, err := p.DecompressDocids(ptr, out)
	if err != nil {
		t.Fatalf("DecompressDocids: %v", err)
	}
	if n != codec.B || out[codec.B-1] != int32(codec.B) {
		t.Fatalf("unexpected decode result n=%d last=%d", n, out[n-1])
	}
}

func TestAppendRejectsOversizedBlock(t *testing.T) {
	docids := make([]int32, codec.B+1)
	p := New(4096, false, false, 0, 0)
	if _, err := p.AppendNonPositional(docids, Undefined); err == nil {
		t.Fatalf("expected error for block exceeding B")
	}
}

func TestArenaRollOnCapacityBoundary(t *testing.T) {
	p := New(16, false, false, 0, 0) // tiny arena forces a roll after a couple of blocks
	var tail Pointer = Undefined
	var err error
	for i := 0; i < 4; i++ {
		tail, err = p.AppendNonPositional([]int32{int32(i + 1)}, tail)
		if err != nil {
			t.Fatalf("Append block %d: %v", i, err)
		}
	}
	if p.NumArenas() < 2 {
		t.Fatalf("expected the tiny arena to roll at least once, got %d arenas", p.NumArenas())
	}
	if p.MaxDocid(tail) != 4 {
		t.Fatalf("MaxDocid(tail) = %d, want 4", p.MaxDocid(tail))
	}
}

func TestContainsDocidBloomGated(t *testing.T) {
	p := New(4096, false, true, 4, 10)
	docids := []int32{10, 20, 30, 40, 50}
	head, err := p.AppendNonPositional(docids, Undefined)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	for _, d := range docids {
		ptr := head
		ok, err := p.ContainsDocid(d, &ptr)
		if err != nil {
			t.Fatalf("ContainsDocid(%d): %v", d, err)
		}
		if !ok {
			t.Fatalf("expected docid %d to be found", d)
		}
	}

	ptr := head
	ok, err := p.ContainsDocid(9999, &ptr)
	if err != nil {
		t.Fatalf("ContainsDocid(9999): %v", err)
	}
	if ok {
		t.Fatalf("docid 9999 is past every block's max_docid and must not be found")
	}
}

func TestContainsDocidRejectsNonMaxDocidWithoutBloom(t *testing.T) {
	p := New(4096, false, false, 0, 0)
	head, err := p.AppendNonPositional([]int32{5, 15, 25}, Undefined)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	ptr := head
	ok, err := p.ContainsDocid(16, &ptr)
	if err != nil {
		t.Fatalf("ContainsDocid: %v", err)
	}
	if ok {
		t.Fatalf("16 was never indexed and must not be reported present")
	}
}
