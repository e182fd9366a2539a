// Package docvector implements the optional per-docid compressed termid
// stream external feature extractors read back (§4.9). It reuses the
// block codec with delta coding disabled, same as position sub-blocks.
package docvector

import (
	"fmt"

	"segsearch/codec"
)

// Store holds one compressed termid stream per docid, sparsely indexed.
type Store struct {
	vectors []entry
}

type entry struct {
	present bool
	words   []int32 // [num_subblocks, sb0_size, sb0..., sb1_size, sb1..., ...]
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Add compresses termids and stores it under docid, overwriting any
// previous vector for that docid.
func (s *Store) Add(docid int32, termids []int32) error {
	if int(docid) >= len(s.vectors) {
		grown := make([]entry, docid+1)
		copy(grown, s.vectors)
		s.vectors = grown
	}

	n := len(termids)
	nb := (n + codec.B - 1) / codec.B
	words := []int32{int32(nb)}
	for i := 0; i < nb; i++ {
		start := i * codec.B
		end := start + codec.B
		if end > n {
			end = n
		}
		chunk := termids[start:end]
		buf := make([]int32, codec.EncodedLen(len(chunk))+2*len(chunk))
		w, err := codec.Encode(chunk, buf, false)
		if err != nil {
			return fmt.Errorf("docvector: encoding subblock %d of doc %d: %w", i, docid, err)
		}
		words = append(words, int32(w))
		words = append(words, buf[:w]...)
	}

	s.vectors[docid] = entry{present: true, words: words}
	return nil
}

// Get decodes docid's stored vector into out, which must have capacity for
// at least n values (the original termid count), and returns the count
// decoded. It returns an error if docid has no stored vector.
func (s *Store) Get(docid int32, out []int32) (int, error) {
	if int(docid) >= len(s.vectors) || !s.vectors[docid].present {
		return 0, fmt.Errorf("docvector: no vector stored for docid %d", docid)
	}
	words := s.vectors[docid].words
	nb := int(words[0])
	cursor := 1
	total := 0
	buf := make([]int32, codec.B)
	for i := 0; i < nb; i++ {
		wc := int(words[cursor])
		cursor++
		sub := words[cursor : cursor+wc]
		cursor += wc
		n, err := codec.Decode(sub, buf, false, false)
		if err != nil {
			return 0, fmt.Errorf("docvector: decoding subblock %d of doc %d: %w", i, docid, err)
		}
		copy(out[total:], buf[:n])
		total += n
	}
	return total, nil
}

// Capacity returns one past the highest docid ever passed to Add or
// Restore, the span the persist package iterates when writing the store.
func (s *Store) Capacity() int {
	return len(s.vectors)
}

// Words returns docid's raw persisted word stream, for the persist
// package.
func (s *Store) Words(docid int32) ([]int32, bool) {
	if int(docid) >= len(s.vectors) || !s.vectors[docid].present {
		return nil, false
	}
	return s.vectors[docid].words, true
}

// Restore installs a previously persisted word stream for docid, as read
// back by the persist package.
func (s *Store) Restore(docid int32, words []int32) {
	if int(docid) >= len(s.vectors) {
		grown := make([]entry, docid+1)
		copy(grown, s.vectors)
		s.vectors = grown
	}
	s.vectors[docid] = entry{present: true, words: words}
}
