// Package bloomfilter implements the membership-test primitive used by the
// BWAND intersection algorithms (see the rank package). A filter is sized by
// bits-per-element and uses k independent hash seeds derived from a single
// fast hash via Kirsch-Mitzenmacher double hashing, the same construction
// bits-and-blooms/bloom/v3 uses internally.
//
// Filters here are never kept as a standalone object: a filter's bit words
// are built once (at block-flush time) and then stored inline inside a
// postings block (segpool's bloom_base region), so Contains operates
// directly on a raw []uint64 slice decoded back out of the pool rather than
// on a reconstructed bitset.BitSet.
package bloomfilter

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// NumWords returns the number of uint64 words a filter sized for n elements
// at bitsPerElement needs.
func NumWords(bitsPerElement float64, n int) int {
	bits := NumBits(bitsPerElement, n)
	return (bits + 63) / 64
}

// NumBits returns ceil(bitsPerElement * n), with n < 1 treated as 1 and a
// floor of 64 bits (one filter word).
func NumBits(bitsPerElement float64, n int) int {
	if n <= 0 {
		n = 1
	}
	bits := int(bitsPerElement*float64(n) + 0.999999)
	if bits < 64 {
		bits = 64
	}
	return bits
}

// Build constructs the filter words for docids, sized for bitsPerElement
// and using k hash functions.
func Build(bitsPerElement float64, docids []uint32, k int) []uint64 {
	totalBits := NumWords(bitsPerElement, len(docids)) * 64
	bs := bitset.New(uint(totalBits))
	for _, docid := range docids {
		insert(bs, uint(totalBits), docid, k)
	}
	return bs.Bytes()
}

// Insert sets the k bit positions for docid into an existing filter,
// reconstructing a bitset view over words, mutating in place, and handing
// the updated backing words back to the caller.
func Insert(words []uint64, docid uint32, k int) []uint64 {
	totalBits := uint(len(words) * 64)
	bs := bitset.From(words)
	insert(bs, totalBits, docid, k)
	return bs.Bytes()
}

func insert(bs *bitset.BitSet, totalBits uint, docid uint32, k int) {
	h1, h2 := seeds(docid)
	for i := 0; i < k; i++ {
		pos := (h1 + uint64(i)*h2) % uint64(totalBits)
		bs.Set(uint(pos))
	}
}

// Contains tests docid against the raw filter words decoded from a
// postings block's bloom sub-header. It never allocates a bitset.BitSet:
// the bit test is the same arithmetic segpool uses to decode any other
// packed field.
func Contains(words []uint64, k int, docid uint32) bool {
	totalBits := uint64(len(words) * 64)
	if totalBits == 0 {
		return false
	}
	h1, h2 := seeds(docid)
	for i := 0; i < k; i++ {
		pos := (h1 + uint64(i)*h2) % totalBits
		word := words[pos/64]
		bit := pos % 64
		if word&(1<<bit) == 0 {
			return false
		}
	}
	return true
}

// seeds derives two independent 64-bit hashes of docid from xxhash by
// hashing its big-endian byte form under two distinct seeds.
func seeds(docid uint32) (uint64, uint64) {
	var buf [4]byte
	buf[0] = byte(docid >> 24)
	buf[1] = byte(docid >> 16)
	buf[2] = byte(docid >> 8)
	buf[3] = byte(docid)

	d1 := xxhash.NewWithSeed(0)
	d1.Write(buf[:])
	h1 := d1.Sum64()

	d2 := xxhash.NewWithSeed(1)
	d2.Write(buf[:])
	h2 := d2.Sum64()

	return h1, h2
}
