// Package persist implements bulk read/write of a built index's four
// on-disk artifacts (§4.10): the pool ("index"), the pointers table
// ("pointers"), the dictionary ("dictionary"), and the optional document
// vector store ("vectors"). It also implements the partial-chain loader
// that copies a single term's chain out of an in-memory pool into a fresh
// pool holding only that chain.
//
// The on-disk layout follows the teacher's storage.go convention (a fixed
// header written with encoding/binary, immediately followed by payload
// sections) but streams the pool's arena words through a zstd writer: pool
// arenas are raw int32 words and compress well, and klauspost/compress is
// already exercised elsewhere in this module for gzip corpus input.
package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"segsearch/dictionary"
	"segsearch/docvector"
	"segsearch/pointers"
	"segsearch/segpool"
)

const (
	indexFile      = "index"
	pointersFile   = "pointers"
	dictionaryFile = "dictionary"
	vectorsFile    = "vectors"

	poolMagic = 0x5347504C // "SGPL"
)

// WriteIndex persists pool, pt, and dict into dir, creating it if needed.
// vecs may be nil if document vectors were not built.
func WriteIndex(dir string, pool *segpool.Pool, pt *pointers.Table, dict *dictionary.Dictionary, vecs *docvector.Store) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: creating directory %s: %w", dir, err)
	}
	if err := writePool(filepath.Join(dir, indexFile), pool); err != nil {
		return err
	}
	if err := writePointers(filepath.Join(dir, pointersFile), pt); err != nil {
		return err
	}
	if err := writeDictionary(filepath.Join(dir, dictionaryFile), dict); err != nil {
		return err
	}
	if vecs != nil {
		if err := writeVectors(filepath.Join(dir, vectorsFile), vecs); err != nil {
			return err
		}
	}
	return nil
}

// LoadIndex reads back everything WriteIndex wrote under dir. vecs is nil
// if dir has no vectors file.
func LoadIndex(dir string) (pool *segpool.Pool, pt *pointers.Table, dict *dictionary.Dictionary, vecs *docvector.Store, err error) {
	pool, err = readPool(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pt, err = readPointers(filepath.Join(dir, pointersFile))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	dict, err = readDictionary(filepath.Join(dir, dictionaryFile))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if _, statErr := os.Stat(filepath.Join(dir, vectorsFile)); statErr == nil {
		vecs, err = readVectors(filepath.Join(dir, vectorsFile))
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return pool, pt, dict, vecs, nil
}

func writePool(path string, pool *segpool.Pool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: creating %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	hdr := []int32{
		poolMagic,
		pool.Capacity(),
		pool.Segment(),
		pool.Offset(),
		boolToInt32(pool.Reverse()),
		boolToInt32(pool.BloomEnabled()),
		int32(pool.NbHash()),
		int32(pool.NumArenas()),
	}
	for _, v := range hdr {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("persist: writing pool header: %w", err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, pool.BitsPerElement()); err != nil {
		return fmt.Errorf("persist: writing pool header: %w", err)
	}

	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return fmt.Errorf("persist: opening zstd writer for %s: %w", path, err)
	}
	numArenas := pool.NumArenas()
	for i := int32(0); i < int32(numArenas); i++ {
		words := pool.ArenaWords(i)
		n := pool.Capacity()
		if i == pool.Segment() {
			n = pool.Offset()
		}
		if err := writeInt32s(zw, words[:n]); err != nil {
			zw.Close()
			return fmt.Errorf("persist: writing arena %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("persist: closing zstd writer for %s: %w", path, err)
	}
	return bw.Flush()
}

func readPool(path string) (*segpool.Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var magic, capacity, segment, offset, reverseWord, bloomWord, nbHash, numArenas int32
	for _, field := range []*int32{&magic, &capacity, &segment, &offset, &reverseWord, &bloomWord, &nbHash, &numArenas} {
		if err := binary.Read(br, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("persist: reading pool header: %w", err)
		}
	}
	if magic != poolMagic {
		return nil, fmt.Errorf("persist: %s: bad magic %#x, not a segsearch index file", path, uint32(magic))
	}
	var bitsPerElement float64
	if err := binary.Read(br, binary.LittleEndian, &bitsPerElement); err != nil {
		return nil, fmt.Errorf("persist: reading pool header: %w", err)
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("persist: opening zstd reader for %s: %w", path, err)
	}
	defer zr.Close()

	arenas := make([][]int32, numArenas)
	for i := int32(0); i < numArenas; i++ {
		n := capacity
		if i == segment {
			n = offset
		}
		words := make([]int32, capacity)
		if err := readInt32s(zr, words[:n]); err != nil {
			return nil, fmt.Errorf("persist: reading arena %d: %w", i, err)
		}
		arenas[i] = words
	}

	return segpool.Restore(capacity, segment, offset, reverseWord != 0, bloomWord != 0, int(nbHash), bitsPerElement, arenas), nil
}

func writeInt32s(w io.Writer, words []int32) error {
	buf := make([]byte, 4*len(words))
	for i, v := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	_, err := w.Write(buf)
	return err
}

func readInt32s(r io.Reader, out []int32) error {
	buf := make([]byte, 4*len(out))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}

func writePointers(path string, pt *pointers.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: creating %s: %w", path, err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	if err := binary.Write(bw, binary.LittleEndian, pt.TotalDocs()); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, pt.TotalDocLen()); err != nil {
		return err
	}

	numTerms := int32(pt.NumTerms())
	if err := binary.Write(bw, binary.LittleEndian, numTerms); err != nil {
		return err
	}
	for id := int32(0); id < numTerms; id++ {
		r := pt.Record(id)
		fields := []interface{}{r.Df, r.Cf, int64(r.Head), int64(r.Tail), r.MaxTf, r.MaxTfDocLen}
		for _, v := range fields {
			if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
				return fmt.Errorf("persist: writing record %d: %w", id, err)
			}
		}
	}

	docLen := pt.DocLens()
	if err := binary.Write(bw, binary.LittleEndian, int32(len(docLen))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, docLen); err != nil {
		return fmt.Errorf("persist: writing doc lengths: %w", err)
	}
	return bw.Flush()
}

func readPointers(path string) (*pointers.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: opening %s: %w", path, err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var totalDocs int32
	var totalDocLen int64
	if err := binary.Read(br, binary.LittleEndian, &totalDocs); err != nil {
		return nil, err
	}
	if err := binary.Read(br, binary.LittleEndian, &totalDocLen); err != nil {
		return nil, err
	}

	var numTerms int32
	if err := binary.Read(br, binary.LittleEndian, &numTerms); err != nil {
		return nil, err
	}
	records := make([]pointers.Record, numTerms)
	for id := int32(0); id < numTerms; id++ {
		var r pointers.Record
		var head, tail int64
		if err := binary.Read(br, binary.LittleEndian, &r.Df); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &r.Cf); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &head); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &tail); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &r.MaxTf); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &r.MaxTfDocLen); err != nil {
			return nil, err
		}
		r.Head = segpool.Pointer(head)
		r.Tail = segpool.Pointer(tail)
		records[id] = r
	}

	var numDocLen int32
	if err := binary.Read(br, binary.LittleEndian, &numDocLen); err != nil {
		return nil, err
	}
	docLen := make([]int32, numDocLen)
	if err := binary.Read(br, binary.LittleEndian, docLen); err != nil {
		return nil, fmt.Errorf("persist: reading doc lengths: %w", err)
	}

	return pointers.Restore(records, docLen, totalDocs, totalDocLen), nil
}

func writeDictionary(path string, dict *dictionary.Dictionary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: creating %s: %w", path, err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	entries := dict.Entries()
	if err := binary.Write(bw, binary.LittleEndian, int32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(e.Term))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.Term); err != nil {
			return fmt.Errorf("persist: writing term %q: %w", e.Term, err)
		}
		if err := binary.Write(bw, binary.LittleEndian, e.Id); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readDictionary(path string) (*dictionary.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: opening %s: %w", path, err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var count int32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	entries := make([]dictionary.Entry, count)
	for i := int32(0); i < count; i++ {
		var termLen uint16
		if err := binary.Read(br, binary.LittleEndian, &termLen); err != nil {
			return nil, err
		}
		termBytes := make([]byte, termLen)
		if _, err := io.ReadFull(br, termBytes); err != nil {
			return nil, fmt.Errorf("persist: reading term %d: %w", i, err)
		}
		var id int32
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		entries[i] = dictionary.Entry{Term: string(termBytes), Id: id}
	}
	return dictionary.Load(entries), nil
}

func writeVectors(path string, vecs *docvector.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: creating %s: %w", path, err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	capacity := int32(vecs.Capacity())
	if err := binary.Write(bw, binary.LittleEndian, capacity); err != nil {
		return err
	}
	for docid := int32(0); docid < capacity; docid++ {
		words, ok := vecs.Words(docid)
		if err := binary.Write(bw, binary.LittleEndian, boolToInt32(ok)); err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := binary.Write(bw, binary.LittleEndian, int32(len(words))); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, words); err != nil {
			return fmt.Errorf("persist: writing vector for doc %d: %w", docid, err)
		}
	}
	return bw.Flush()
}

func readVectors(path string) (*docvector.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: opening %s: %w", path, err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var capacity int32
	if err := binary.Read(br, binary.LittleEndian, &capacity); err != nil {
		return nil, err
	}
	store := docvector.New()
	for docid := int32(0); docid < capacity; docid++ {
		var present int32
		if err := binary.Read(br, binary.LittleEndian, &present); err != nil {
			return nil, err
		}
		if present == 0 {
			continue
		}
		var n int32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		words := make([]int32, n)
		if err := binary.Read(br, binary.LittleEndian, words); err != nil {
			return nil, fmt.Errorf("persist: reading vector for doc %d: %w", docid, err)
		}
		store.Restore(docid, words)
	}
	return store, nil
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// ExtractChain copies the chain rooted at head out of src into a fresh
// pool holding only that chain, rewriting next_segment/next_offset to the
// relocated addresses as each block is appended. The fresh pool uses
// src's arena capacity. src is an already loaded pool: ExtractChain does
// not read from an index directory, so the whole pool is loaded first.
func ExtractChain(src *segpool.Pool, head segpool.Pointer) (*segpool.Pool, segpool.Pointer, error) {
	if head.IsUndefined() {
		return segpool.New(src.Capacity(), src.Reverse(), src.BloomEnabled(), src.NbHash(), src.BitsPerElement()), segpool.Undefined, nil
	}

	dst := segpool.New(src.Capacity(), src.Reverse(), src.BloomEnabled(), src.NbHash(), src.BitsPerElement())

	var blocks [][]int32
	for ptr := head; !ptr.IsUndefined(); ptr = src.Next(ptr) {
		blocks = append(blocks, append([]int32(nil), src.RawBlockWords(ptr)...))
	}

	// Copy tail-to-head: at the point each block is appended, the new
	// pointer of its successor is already known, so AppendRaw can write
	// the relocated next-link directly rather than patching it in later.
	next := segpool.Undefined
	for i := len(blocks) - 1; i >= 0; i-- {
		ptr, err := dst.AppendRaw(blocks[i], next)
		if err != nil {
			return nil, segpool.Undefined, fmt.Errorf("persist: relocating chain block: %w", err)
		}
		next = ptr
	}
	return dst, next, nil
}
