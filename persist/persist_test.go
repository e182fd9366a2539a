package persist

import (
	"os"
	"testing"

	"segsearch/dictionary"
	"segsearch/docvector"
	"segsearch/pointers"
	"segsearch/segpool"
)

func buildSamplePool(t *testing.T) (*segpool.Pool, *pointers.Table, *dictionary.Dictionary) {
	t.Helper()
	pool := segpool.New(1<<16, false, true, 4, 10)
	pt := pointers.New()
	dict := dictionary.New()

	id := dict.SetTermId("alpha", 0)
	docids := []int32{1, 2, 3, 4, 5}
	tf := []int32{1, 2, 1, 3, 1}
	ptr, err := pool.AppendTfOnly(docids, tf, segpool.Undefined)
	if err != nil {
		t.Fatalf("AppendTfOnly: %v", err)
	}
	pt.SetHeadPointer(id, ptr)
	pt.SetTailPointer(id, ptr)
	pt.SetDf(id, int32(len(docids)))
	for _, d := range docids {
		pt.SetDocLen(d, 3)
	}
	return pool, pt, dict
}

func TestWriteLoadIndexRoundTrip(t *testing.T) {
	pool, pt, dict := buildSamplePool(t)
	vecs := docvector.New()
	if err := vecs.Add(1, []int32{0, 0}); err != nil {
		t.Fatalf("vecs.Add: %v", err)
	}

	dir := t.TempDir()
	if err := WriteIndex(dir, pool, pt, dict, vecs); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}

	rPool, rPt, rDict, rVecs, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}

	if rPool.Capacity() != pool.Capacity() || rPool.Reverse() != pool.Reverse() || rPool.BloomEnabled() != pool.BloomEnabled() {
		t.Fatalf("pool header mismatch: got capacity=%d reverse=%v bloom=%v", rPool.Capacity(), rPool.Reverse(), rPool.BloomEnabled())
	}

	id := dict.GetTermId("alpha")
	if rDict.GetTermId("alpha") != id {
		t.Fatalf("dictionary round-trip: got id %d, want %d", rDict.GetTermId("alpha"), id)
	}

	head := rPt.GetHeadPointer(id)
	if head.IsUndefined() {
		t.Fatal("restored pointers table has no head pointer for alpha")
	}

	out := make([]int32, 5)
	n, err := rPool.DecompressDocids(head, out)
	if err != nil {
		t.Fatalf("DecompressDocids: %v", err)
	}
	want := []int32{1, 2, 3, 4, 5}
	if n != len(want) {
		t.Fatalf("decoded %d docids, want %d", n, len(want))
	}
	for i, v := range want {
		if out[i] != v {
			t.Errorf("docid[%d] = %d, want %d", i, out[i], v)
		}
	}

	if rPt.TotalDocs() != pt.TotalDocs() || rPt.TotalDocLen() != pt.TotalDocLen() {
		t.Fatalf("totals mismatch: got docs=%d len=%d, want docs=%d len=%d",
			rPt.TotalDocs(), rPt.TotalDocLen(), pt.TotalDocs(), pt.TotalDocLen())
	}

	vecOut := make([]int32, 2)
	if _, err := rVecs.Get(1, vecOut); err != nil {
		t.Fatalf("restored vector Get: %v", err)
	}
}

func TestLoadIndexWithoutVectors(t *testing.T) {
	pool, pt, dict := buildSamplePool(t)
	dir := t.TempDir()
	if err := WriteIndex(dir, pool, pt, dict, nil); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	_, _, _, vecs, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if vecs != nil {
		t.Fatal("expected nil vectors when none were written")
	}
}

func TestLoadIndexRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	pool, pt, dict := buildSamplePool(t)
	if err := WriteIndex(dir, pool, pt, dict, nil); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	// Corrupt the first four bytes of the index header.
	path := dir + "/" + indexFile
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if _, _, _, _, err := LoadIndex(dir); err == nil {
		t.Fatal("expected a bad-magic error")
	}
}

func TestExtractChain(t *testing.T) {
	pool := segpool.New(1<<16, false, false, 0, 0)
	var head, tail segpool.Pointer = segpool.Undefined, segpool.Undefined
	for i := 0; i < 3; i++ {
		docids := []int32{int32(i*10 + 1), int32(i*10 + 2)}
		ptr, err := pool.AppendNonPositional(docids, tail)
		if err != nil {
			t.Fatalf("AppendNonPositional: %v", err)
		}
		if head.IsUndefined() {
			head = ptr
		}
		tail = ptr
	}

	dst, newHead, err := ExtractChain(pool, head)
	if err != nil {
		t.Fatalf("ExtractChain: %v", err)
	}

	var got []int32
	buf := make([]int32, 8)
	for ptr := newHead; !ptr.IsUndefined(); ptr = dst.Next(ptr) {
		n, err := dst.DecompressDocids(ptr, buf)
		if err != nil {
			t.Fatalf("DecompressDocids: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	want := []int32{1, 2, 11, 12, 21, 22}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("docid[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
