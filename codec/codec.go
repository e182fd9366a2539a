// Package codec implements the block integer codec used for every
// compressed sub-block in the segment pool: a frame-of-reference variant of
// PForDelta. Up to B values are bit-packed at a single frame width, with
// outliers recorded as an exception list rather than widening the frame for
// everybody.
//
// # Features
//
// - Fixed block size B = 128, the unit every postings/position sub-block
//   uses.
// - Optional delta coding for monotone sequences (docids); term frequencies
//   and positions are encoded without delta.
// - Reverse-aware decode: a block stored over a reversed input re-applies
//   deltas in the stored direction and then un-reverses the result.
//
// # TODOs
//
// - Consider a second frame width tier for blocks with a bimodal value
//   distribution instead of a single exception list.
package codec

import "fmt"

// B is the fixed block size: every codec block holds at most B integers.
const B = 128

// maxFrameWidth caps the bit-packing frame width; values are int32 so 31
// leaves room for the sign-free range this codec operates over.
const maxFrameWidth = 31

// Encode bit-packs input[0:n] (n <= B) into out, optionally delta-coding
// first. It returns the number of int32 words written to out, which must
// have room for EncodedLen(n) words plus two words per exception value;
// EncodedLen(n)+2*n always suffices.
func Encode(input []int32, out []int32, useDelta bool) (int, error) {
	n := len(input)
	if n > B {
		return 0, fmt.Errorf("codec: block of %d values exceeds B=%d", n, B)
	}
	if n == 0 {
		out[0], out[1], out[2] = 0, 0, 0
		return 3, nil
	}

	values := make([]int32, n)
	copy(values, input)
	if useDelta {
		prev := int32(0)
		for i, v := range values {
			d := v - prev
			prev = v
			values[i] = d
		}
	}

	width, exceptions := frame(values)

	need := EncodedLen(n) + len(exceptions)*2
	if len(out) < need {
		return 0, fmt.Errorf("codec: output buffer too small: need %d words, have %d", need, len(out))
	}

	out[0] = int32(width)
	out[1] = int32(n)
	out[2] = int32(len(exceptions))

	packOffset := 3
	packed := out[packOffset : packOffset+packedWords(width, n)]
	for i := range packed {
		packed[i] = 0
	}
	frameMax := frameMaxValue(width)
	for i, v := range values {
		clamped := v
		if isException(v, width) {
			clamped = frameMax
		}
		setPacked(packed, i, width, uint32(clamped))
	}

	exOffset := packOffset + packedWords(width, n)
	for i, ex := range exceptions {
		out[exOffset+2*i] = int32(ex.index)
		out[exOffset+2*i+1] = ex.value
	}

	return exOffset + len(exceptions)*2, nil
}

// EncodedLen returns header (3) + packing of n values at maxFrameWidth,
// excluding exception pairs; callers that need an exact size should use
// the word count Encode returns. It is not on its own a sufficient buffer
// size: Encode rejects a buffer shorter than EncodedLen(n) plus two words
// per exception, so callers size buffers as EncodedLen(n)+2*n.
func EncodedLen(n int) int {
	return 3 + packedWords(maxFrameWidth, n)
}

// Decode reads a block written by Encode, filling out[0:n] and returning n.
// reverse indicates the block was produced from input that Encode saw
// already-reversed (see segpool's reverse-mode append contract): deltas are
// un-done in the stored order, then the result is reversed back.
func Decode(in []int32, out []int32, useDelta bool, reverse bool) (int, error) {
	if len(in) < 3 {
		return 0, fmt.Errorf("codec: truncated block header")
	}
	width := int(in[0])
	n := int(in[1])
	numExceptions := int(in[2])
	if n == 0 {
		return 0, nil
	}
	if n > len(out) {
		return 0, fmt.Errorf("codec: output buffer too small for %d values", n)
	}

	packOffset := 3
	pw := packedWords(width, n)
	if len(in) < packOffset+pw+numExceptions*2 {
		return 0, fmt.Errorf("codec: truncated block body")
	}
	packed := in[packOffset : packOffset+pw]

	for i := 0; i < n; i++ {
		out[i] = int32(getPacked(packed, i, width))
	}

	exOffset := packOffset + pw
	for i := 0; i < numExceptions; i++ {
		idx := int(in[exOffset+2*i])
		val := in[exOffset+2*i+1]
		if idx < 0 || idx >= n {
			return 0, fmt.Errorf("codec: exception index %d out of range [0,%d)", idx, n)
		}
		out[idx] = val
	}

	if useDelta {
		prev := int32(0)
		for i := 0; i < n; i++ {
			out[i] += prev
			prev = out[i]
		}
	}

	if reverse {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	return n, nil
}

type exception struct {
	index int
	value int32
}

// frame picks the smallest bit width covering at least 90% of values,
// reporting the remainder as exceptions.
func frame(values []int32) (int, []exception) {
	counts := make(map[int]int)
	for _, v := range values {
		counts[bitLength(v)]++
	}

	threshold := (len(values)*9 + 9) / 10
	width := maxFrameWidth
	cumulative := 0
	for w := 0; w <= maxFrameWidth; w++ {
		cumulative += counts[w]
		if cumulative >= threshold {
			width = w
			break
		}
	}
	if width == 0 {
		width = 1
	}

	var exceptions []exception
	for i, v := range values {
		if isException(v, width) {
			exceptions = append(exceptions, exception{index: i, value: v})
		}
	}
	return width, exceptions
}

func isException(v int32, width int) bool {
	return bitLength(v) > width
}

func bitLength(v int32) int {
	u := uint32(v)
	n := 0
	for u > 0 {
		n++
		u >>= 1
	}
	return n
}

func frameMaxValue(width int) int32 {
	if width >= 32 {
		return int32(^uint32(0) >> 1)
	}
	return int32((uint32(1) << uint(width)) - 1)
}

func packedWords(width, n int) int {
	bits := width * n
	return (bits + 31) / 32
}

func setPacked(packed []int32, index, width int, value uint32) {
	bitPos := index * width
	wordIdx := bitPos / 32
	bitOff := uint(bitPos % 32)

	mask := uint32(0)
	if width < 32 {
		mask = (uint32(1) << uint(width)) - 1
	} else {
		mask = ^uint32(0)
	}
	value &= mask

	packed[wordIdx] |= int32(value << bitOff)
	spill := 32 - int(bitOff)
	if spill < width {
		packed[wordIdx+1] |= int32(value >> uint(spill))
	}
}

func getPacked(packed []int32, index, width int) uint32 {
	bitPos := index * width
	wordIdx := bitPos / 32
	bitOff := uint(bitPos % 32)

	mask := uint32(0)
	if width < 32 {
		mask = (uint32(1) << uint(width)) - 1
	} else {
		mask = ^uint32(0)
	}

	value := uint32(packed[wordIdx]) >> bitOff
	spill := 32 - int(bitOff)
	if spill < width {
		value |= uint32(packed[wordIdx+1]) << uint(spill)
	}
	return value & mask
}
