// Package segpool implements the arena-backed postings store: fixed-size
// int32 arenas holding codec-compressed docid/tf/position blocks linked
// into per-term chains via opaque Pointer values.
package segpool

import (
	"fmt"

	"segsearch/bloomfilter"
	"segsearch/codec"
)

// Pool owns a growable list of fixed-capacity arenas and appends postings
// blocks into them, one term-chain-link at a time.
type Pool struct {
	arenas         [][]int32
	capacity       int32
	segment        int32
	offset         int32
	reverse        bool
	bloomEnabled   bool
	nbHash         int
	bitsPerElement float64
}

// New creates an empty pool. capacity is the word count of each arena;
// reverse selects reverse-chain mode (see Append); bloomEnabled attaches
// a Bloom filter to every block, sized by bitsPerElement and nbHash.
func New(capacity int32, reverse, bloomEnabled bool, nbHash int, bitsPerElement float64) *Pool {
	return &Pool{
		arenas:         [][]int32{make([]int32, capacity)},
		capacity:       capacity,
		reverse:        reverse,
		bloomEnabled:   bloomEnabled,
		nbHash:         nbHash,
		bitsPerElement: bitsPerElement,
	}
}

// Restore rebuilds a Pool from parts previously read back by the persist
// package, without re-running any append logic.
func Restore(capacity, segment, offset int32, reverse, bloomEnabled bool, nbHash int, bitsPerElement float64, arenas [][]int32) *Pool {
	return &Pool{
		arenas:         arenas,
		capacity:       capacity,
		segment:        segment,
		offset:         offset,
		reverse:        reverse,
		bloomEnabled:   bloomEnabled,
		nbHash:         nbHash,
		bitsPerElement: bitsPerElement,
	}
}

// AppendBlock is one flush's worth of postings for a single term: a run of
// at most codec.B docids, plus optional parallel tf/positions.
type AppendBlock struct {
	Docids    []int32
	Tf        []int32
	Positions [][]int32 // Positions[i] is the gap-encoded position list for Docids[i]
}

// Capacity, Segment, Offset, Reverse, BloomEnabled, NbHash, BitsPerElement
// and ArenaWords/NumArenas expose the pool's internal layout for persist.
func (p *Pool) Capacity() int32         { return p.capacity }
func (p *Pool) Segment() int32          { return p.segment }
func (p *Pool) Offset() int32           { return p.offset }
func (p *Pool) Reverse() bool           { return p.reverse }
func (p *Pool) BloomEnabled() bool      { return p.bloomEnabled }
func (p *Pool) NbHash() int             { return p.nbHash }
func (p *Pool) BitsPerElement() float64 { return p.bitsPerElement }
func (p *Pool) NumArenas() int          { return len(p.arenas) }
func (p *Pool) ArenaWords(i int32) []int32 {
	return p.arenas[i]
}

// AppendNonPositional flushes a docid-only block.
func (p *Pool) AppendNonPositional(docids []int32, tail Pointer) (Pointer, error) {
	return p.Append(AppendBlock{Docids: docids}, tail)
}

// AppendTfOnly flushes a docid+tf block.
func (p *Pool) AppendTfOnly(docids, tf []int32, tail Pointer) (Pointer, error) {
	return p.Append(AppendBlock{Docids: docids, Tf: tf}, tail)
}

// AppendPositional flushes a docid+tf+positions block.
func (p *Pool) AppendPositional(docids, tf []int32, positions [][]int32, tail Pointer) (Pointer, error) {
	return p.Append(AppendBlock{Docids: docids, Tf: tf, Positions: positions}, tail)
}

// Append compresses block and writes it into the pool, linking it to tail
// (the previous block appended for this term, or Undefined if this is the
// term's first block). It returns a Pointer to the new block.
//
// The previous block's next fields are patched to point at the new block,
// in both forward and reverse mode: a chain is always walked in chronological
// append order, from the term's first block to its most recent. Forward and
// reverse mode differ only in how docids are ordered and delta-coded within
// each individual block (see the reverse-mode handling below), not in how
// blocks link to each other.
func (p *Pool) Append(block AppendBlock, tail Pointer) (Pointer, error) {
	n := len(block.Docids)
	if n == 0 {
		return Undefined, fmt.Errorf("segpool: empty block")
	}
	if n > codec.B {
		return Undefined, fmt.Errorf("segpool: block of %d docids exceeds max block size %d", n, codec.B)
	}

	mode := ModeNonPositional
	if block.Positions != nil {
		mode = ModePositional
	} else if block.Tf != nil {
		mode = ModeTfOnly
	}

	docids := append([]int32(nil), block.Docids...)
	var tf []int32
	if block.Tf != nil {
		tf = append([]int32(nil), block.Tf...)
	}
	var perDoc [][]int32
	if block.Positions != nil {
		perDoc = append([][]int32(nil), block.Positions...)
	}

	maxDocid := docids[n-1]
	if p.reverse {
		maxDocid = docids[0]
	}

	var filterWords []uint64
	if p.bloomEnabled {
		filterWords = bloomfilter.Build(p.bitsPerElement, toUint32(docids), p.nbHash)
	}

	if p.reverse {
		reverseInt32(docids)
		if tf != nil {
			reverseInt32(tf)
		}
		if perDoc != nil {
			rebuilt := make([][]int32, len(perDoc))
			for i, src := range perDoc {
				rebuilt[len(perDoc)-1-i] = src
			}
			perDoc = rebuilt
		}
	}

	docBuf := make([]int32, codec.EncodedLen(n)+2*n)
	dcsize, err := codec.Encode(docids, docBuf, true)
	if err != nil {
		return Undefined, fmt.Errorf("segpool: encoding docids: %w", err)
	}

	var tfBuf []int32
	var tfsize int
	if mode >= ModeTfOnly {
		tfBuf = make([]int32, codec.EncodedLen(n)+2*n)
		tfsize, err = codec.Encode(tf, tfBuf, false)
		if err != nil {
			return Undefined, fmt.Errorf("segpool: encoding tf: %w", err)
		}
	}

	var posSubblocks [][]int32
	var plen int
	if mode == ModePositional {
		var flat []int32
		for _, pos := range perDoc {
			flat = append(flat, pos...)
		}
		plen = len(flat)
		pnb := (plen + codec.B - 1) / codec.B
		for i := 0; i < pnb; i++ {
			start := i * codec.B
			end := start + codec.B
			if end > plen {
				end = plen
			}
			chunk := flat[start:end]
			buf := make([]int32, codec.EncodedLen(len(chunk))+2*len(chunk))
			w, err := codec.Encode(chunk, buf, false)
			if err != nil {
				return Undefined, fmt.Errorf("segpool: encoding positions: %w", err)
			}
			posSubblocks = append(posSubblocks, buf[:w])
		}
	}

	reqspace := headerWords + dcsize
	if mode >= ModeTfOnly {
		reqspace += 1 + tfsize
	}
	if mode == ModePositional {
		reqspace += 2 // plen, pnb
		for _, sb := range posSubblocks {
			reqspace += 1 + len(sb)
		}
	}
	bloomBaseRel := reqspace
	if p.bloomEnabled {
		reqspace += 1 + len(filterWords)*wordsPerFilter
	}

	if int32(reqspace) > p.capacity {
		return Undefined, fmt.Errorf("segpool: block requires %d words, exceeds arena capacity %d", reqspace, p.capacity)
	}
	if p.capacity-p.offset < int32(reqspace) {
		p.segment++
		p.arenas = append(p.arenas, make([]int32, p.capacity))
		p.offset = 0
	}

	segIdx := p.segment
	base := p.offset
	arena := p.arenas[segIdx]

	arena[base+offReqspace] = int32(reqspace)
	arena[base+offNextSegment] = unknownSegment
	arena[base+offNextOffset] = 0
	arena[base+offMaxDocid] = maxDocid
	arena[base+offBloomBase] = int32(bloomBaseRel)
	arena[base+offLen] = int32(n)
	arena[base+offMode] = int32(mode)
	arena[base+offDcsize] = int32(dcsize)
	copy(arena[int(base)+headerWords:], docBuf[:dcsize])

	cursor := int(base) + headerWords + dcsize
	if mode >= ModeTfOnly {
		arena[cursor] = int32(tfsize)
		cursor++
		copy(arena[cursor:], tfBuf[:tfsize])
		cursor += tfsize
	}
	if mode == ModePositional {
		arena[cursor] = int32(plen)
		cursor++
		arena[cursor] = int32(len(posSubblocks))
		cursor++
		for _, sb := range posSubblocks {
			arena[cursor] = int32(len(sb))
			cursor++
			copy(arena[cursor:], sb)
			cursor += len(sb)
		}
	}
	if p.bloomEnabled {
		arena[cursor] = int32(len(filterWords))
		cursor++
		for _, w := range filterWords {
			arena[cursor] = int32(uint32(w))
			cursor++
			arena[cursor] = int32(uint32(w >> 32))
			cursor++
		}
	}

	if !tail.IsUndefined() {
		tArena := p.arenas[tail.Segment()]
		tArena[tail.Offset()+offNextSegment] = segIdx
		tArena[tail.Offset()+offNextOffset] = base
	}

	newPtr := Encode(segIdx, base)
	p.offset = base + int32(reqspace)
	return newPtr, nil
}

// AppendRaw copies a block's verbatim words (as returned by RawBlockWords,
// typically from another pool) into p, relinking its next fields to next.
// Used by the partial-chain loader to relocate a single term's chain into a
// fresh pool.
func (p *Pool) AppendRaw(words []int32, next Pointer) (Pointer, error) {
	reqspace := int32(len(words))
	if reqspace > p.capacity {
		return Undefined, fmt.Errorf("segpool: raw block of %d words exceeds arena capacity %d", reqspace, p.capacity)
	}
	if p.capacity-p.offset < reqspace {
		p.segment++
		p.arenas = append(p.arenas, make([]int32, p.capacity))
		p.offset = 0
	}
	base := p.offset
	arena := p.arenas[p.segment]
	copy(arena[base:], words)
	if next.IsUndefined() {
		arena[base+offNextSegment] = unknownSegment
		arena[base+offNextOffset] = 0
	} else {
		arena[base+offNextSegment] = next.Segment()
		arena[base+offNextOffset] = next.Offset()
	}
	ptr := Encode(p.segment, base)
	p.offset = base + reqspace
	return ptr, nil
}

// RawBlockWords returns the verbatim words of the block at ptr, suitable
// for copying into another pool via AppendRaw.
func (p *Pool) RawBlockWords(ptr Pointer) []int32 {
	arena := p.arenas[ptr.Segment()]
	base := int(ptr.Offset())
	reqspace := int(arena[base+offReqspace])
	return arena[base : base+reqspace]
}

// Next follows ptr's next-link, returning Undefined at the end of a chain.
func (p *Pool) Next(ptr Pointer) Pointer {
	arena := p.arenas[ptr.Segment()]
	base := ptr.Offset()
	nextSeg := arena[base+offNextSegment]
	if nextSeg == unknownSegment {
		return Undefined
	}
	return Encode(nextSeg, arena[base+offNextOffset])
}

// MaxDocid returns the block's stored max_docid field.
func (p *Pool) MaxDocid(ptr Pointer) int32 {
	return p.arenas[ptr.Segment()][ptr.Offset()+offMaxDocid]
}

// Len returns the number of docids in the block.
func (p *Pool) Len(ptr Pointer) int {
	return int(p.arenas[ptr.Segment()][ptr.Offset()+offLen])
}

// BlockMode returns the block's stored mode.
func (p *Pool) BlockMode(ptr Pointer) Mode {
	return Mode(p.arenas[ptr.Segment()][ptr.Offset()+offMode])
}

func (p *Pool) docidWords(ptr Pointer) []int32 {
	arena := p.arenas[ptr.Segment()]
	base := int(ptr.Offset())
	dcsize := int(arena[base+offDcsize])
	start := base + headerWords
	return arena[start : start+dcsize]
}

func (p *Pool) tfWords(ptr Pointer) []int32 {
	arena := p.arenas[ptr.Segment()]
	base := int(ptr.Offset())
	dcsize := int(arena[base+offDcsize])
	sizePos := base + headerWords + dcsize
	tfsize := int(arena[sizePos])
	start := sizePos + 1
	return arena[start : start+tfsize]
}

// DecompressDocids decodes ptr's docid block into out, returning the count
// decoded. out must have capacity for at least Len(ptr) values.
func (p *Pool) DecompressDocids(ptr Pointer, out []int32) (int, error) {
	return codec.Decode(p.docidWords(ptr), out, true, p.reverse)
}

// DecompressTf decodes ptr's tf block into out. Returns an error if the
// block carries no tf sub-block.
func (p *Pool) DecompressTf(ptr Pointer, out []int32) (int, error) {
	if p.BlockMode(ptr) == ModeNonPositional {
		return 0, fmt.Errorf("segpool: block has no tf sub-block")
	}
	return codec.Decode(p.tfWords(ptr), out, false, p.reverse)
}

func (p *Pool) storageOrderTf(ptr Pointer) ([]int32, error) {
	words := p.tfWords(ptr)
	out := make([]int32, codec.B)
	n, err := codec.Decode(words, out, false, false)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (p *Pool) positionsHeader(ptr Pointer) (plenPos, plen, pnb int, err error) {
	if p.BlockMode(ptr) != ModePositional {
		return 0, 0, 0, fmt.Errorf("segpool: block has no positions")
	}
	arena := p.arenas[ptr.Segment()]
	base := int(ptr.Offset())
	dcsize := int(arena[base+offDcsize])
	sizePos := base + headerWords + dcsize
	tfsize := int(arena[sizePos])
	plenPos = sizePos + 1 + tfsize
	return plenPos, int(arena[plenPos]), int(arena[plenPos+1]), nil
}

// NumPositionSubblocks returns the number of codec sub-blocks the position
// stream is split into.
func (p *Pool) NumPositionSubblocks(ptr Pointer) (int, error) {
	_, _, pnb, err := p.positionsHeader(ptr)
	return pnb, err
}

// DecompressPositions decodes the full (storage-order, still per-doc
// gap-encoded) flat position stream of ptr's block into out.
func (p *Pool) DecompressPositions(ptr Pointer, out []int32) (int, error) {
	plenPos, plen, pnb, err := p.positionsHeader(ptr)
	if err != nil {
		return 0, err
	}
	arena := p.arenas[ptr.Segment()]
	cursor := plenPos + 2
	total := 0
	buf := make([]int32, codec.B)
	for i := 0; i < pnb; i++ {
		wc := int(arena[cursor])
		cursor++
		sub := arena[cursor : cursor+wc]
		cursor += wc
		n, err := codec.Decode(sub, buf, false, false)
		if err != nil {
			return 0, err
		}
		copy(out[total:], buf[:n])
		total += n
	}
	if total != plen {
		return 0, fmt.Errorf("segpool: decoded %d position values, expected %d", total, plen)
	}
	return total, nil
}

// DecompressPositionsFor decodes just the positions belonging to the i-th
// docid (in native decode order, matching DecompressDocids/DecompressTf)
// within ptr's block, given that block's already-decoded tf array. It
// returns the number of positions written to out.
func (p *Pool) DecompressPositionsFor(ptr Pointer, nativeTf []int32, i int, out []int32) (int, error) {
	n := p.Len(ptr)
	if i < 0 || i >= n {
		return 0, fmt.Errorf("segpool: docid index %d out of range [0,%d)", i, n)
	}
	var offset int32
	if p.reverse {
		for j := i + 1; j < n; j++ {
			offset += nativeTf[j]
		}
	} else {
		for j := 0; j < i; j++ {
			offset += nativeTf[j]
		}
	}
	length := nativeTf[i]

	_, plen, _, err := p.positionsHeader(ptr)
	if err != nil {
		return 0, err
	}
	flat := make([]int32, plen)
	if _, err := p.DecompressPositions(ptr, flat); err != nil {
		return 0, err
	}
	if int(offset)+int(length) > len(flat) {
		return 0, fmt.Errorf("segpool: position slice [%d,%d) out of range for stream of length %d", offset, int(offset)+int(length), len(flat))
	}
	slice := flat[offset : int(offset)+int(length)]
	var prev int32
	for idx, gap := range slice {
		prev += gap
		out[idx] = prev
	}
	return len(slice), nil
}

func (p *Pool) filterWords(ptr Pointer) ([]uint64, error) {
	arena := p.arenas[ptr.Segment()]
	base := int(ptr.Offset())
	bloomBase := int(arena[base+offBloomBase])
	pos := base + bloomBase
	numWords := int(arena[pos])
	pos++
	words := make([]uint64, numWords)
	for i := 0; i < numWords; i++ {
		lo := uint32(arena[pos])
		hi := uint32(arena[pos+1])
		words[i] = uint64(lo) | uint64(hi)<<32
		pos += 2
	}
	return words, nil
}

// ContainsDocid advances ptr forward through the chain while the block's
// max_docid precedes docid (ascending order in forward mode, descending in
// reverse mode), then tests membership: exact max_docid match returns true
// immediately, otherwise the block's Bloom filter (if any) is consulted.
// *ptr is updated to the last block inspected so a caller scanning many
// docids against the same chain can resume from there.
func (p *Pool) ContainsDocid(docid int32, ptr *Pointer) (bool, error) {
	cur := *ptr
	for !cur.IsUndefined() {
		maxD := p.MaxDocid(cur)
		if p.precedes(maxD, docid) {
			cur = p.Next(cur)
			continue
		}
		*ptr = cur
		if maxD == docid {
			return true, nil
		}
		if !p.bloomEnabled {
			return false, nil
		}
		words, err := p.filterWords(cur)
		if err != nil {
			return false, err
		}
		return bloomfilter.Contains(words, p.nbHash, uint32(docid)), nil
	}
	*ptr = Undefined
	return false, nil
}

func (p *Pool) precedes(a, b int32) bool {
	if p.reverse {
		return a > b
	}
	return a < b
}

func reverseInt32(s []int32) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func toUint32(s []int32) []uint32 {
	out := make([]uint32, len(s))
	for i, v := range s {
		out[i] = uint32(v)
	}
	return out
}
