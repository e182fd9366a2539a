// Package ingest implements the per-term scratch buffers that accumulate
// docids (and, depending on mode, tf/positions) until there is enough to
// flush a compressed block into the segment pool.
//
// The original driver manages these buffers as manually realloc'd C
// arrays addressed through running write indices; here each buffer is a
// plain growable Go slice, and "capacity" is kept only as the ceiling that
// decides when a flush is due, not as a pre-sized allocation.
package ingest

import (
	"fmt"

	"segsearch/codec"
	"segsearch/pointers"
	"segsearch/segpool"
)

// Config controls buffer growth and which payloads are tracked.
type Config struct {
	// DfCutoff is D: the document frequency at which a term's buffer is
	// promoted from the small pre-flush stage to block-sized flushing.
	DfCutoff int32
	// MaxBlocks caps a promoted buffer's capacity at MaxBlocks*codec.B
	// words; once reached, capacity stops doubling.
	MaxBlocks int32
	Mode      segpool.Mode
}

func (c Config) maxCapacity() int32 {
	max := c.MaxBlocks * int32(codec.B)
	if max <= 0 {
		max = int32(codec.B)
	}
	return max
}

// buffer is one term's scratch state.
type buffer struct {
	docids    []int32
	tf        []int32
	positions [][]int32
	capacity  int32
	promoted  bool
	curPos    int32 // last occurrence position seen for the in-progress document
}

// Buffers owns every term's buffer, indexed sparsely by termid.
type Buffers struct {
	cfg     Config
	buffers []*buffer
}

// New returns an empty set of buffers under cfg.
func New(cfg Config) *Buffers {
	return &Buffers{cfg: cfg}
}

func (b *Buffers) ensure(id int32) *buffer {
	if int(id) >= len(b.buffers) {
		grown := make([]*buffer, id+1)
		copy(grown, b.buffers)
		b.buffers = grown
	}
	if b.buffers[id] == nil {
		b.buffers[id] = &buffer{capacity: b.cfg.DfCutoff}
	}
	return b.buffers[id]
}

// RecordOccurrence records one occurrence of termid id at docid/position.
// firstInDoc must be true exactly for the term's first occurrence within
// the current document; RecordOccurrence increments id's df (via pt) on
// that occurrence and flushes full blocks to pool as the buffer fills.
func (b *Buffers) RecordOccurrence(id, docid, position int32, firstInDoc bool, pool *segpool.Pool, pt *pointers.Table) error {
	buf := b.ensure(id)

	if firstInDoc {
		df := pt.IncrDf(id)
		if !buf.promoted && df >= b.cfg.DfCutoff {
			buf.promoted = true
			buf.capacity = int32(codec.B)
			if max := b.cfg.maxCapacity(); buf.capacity > max {
				buf.capacity = max
			}
		}

		buf.docids = append(buf.docids, docid)
		if b.cfg.Mode >= segpool.ModeTfOnly {
			buf.tf = append(buf.tf, 0)
		}
		if b.cfg.Mode == segpool.ModePositional {
			buf.positions = append(buf.positions, nil)
		}
		buf.curPos = 0
	}

	if b.cfg.Mode >= segpool.ModeTfOnly {
		buf.tf[len(buf.tf)-1]++
	}
	if b.cfg.Mode == segpool.ModePositional {
		gap := position
		if buf.curPos != 0 {
			gap = position - buf.curPos
		}
		last := len(buf.positions) - 1
		buf.positions[last] = append(buf.positions[last], gap)
		buf.curPos = position
	}

	if firstInDoc && buf.promoted && int32(len(buf.docids)) >= buf.capacity {
		if err := b.flushFull(id, buf, pool, pt); err != nil {
			return fmt.Errorf("ingest: flushing term %d: %w", id, err)
		}
	}
	return nil
}

// flushFull flushes every full B-sized block currently in buf (there may
// be more than one if capacity has doubled past codec.B), links them onto
// the term's chain, then doubles capacity (capped at MaxBlocks*B).
func (b *Buffers) flushFull(id int32, buf *buffer, pool *segpool.Pool, pt *pointers.Table) error {
	nb := len(buf.docids) / codec.B
	tail := pt.GetTailPointer(id)
	for j := 0; j < nb; j++ {
		start, end := j*codec.B, (j+1)*codec.B
		ptr, err := b.appendRange(buf, start, end, pool, tail)
		if err != nil {
			return err
		}
		tail = ptr
		if pt.GetHeadPointer(id) == segpool.Undefined {
			pt.SetHeadPointer(id, ptr)
		}
	}
	pt.SetTailPointer(id, tail)

	buf.docids = buf.docids[:0]
	if b.cfg.Mode >= segpool.ModeTfOnly {
		buf.tf = buf.tf[:0]
	}
	if b.cfg.Mode == segpool.ModePositional {
		buf.positions = buf.positions[:0]
	}

	if max := b.cfg.maxCapacity(); buf.capacity < max {
		buf.capacity *= 2
		if buf.capacity > max {
			buf.capacity = max
		}
	}
	return nil
}

func (b *Buffers) appendRange(buf *buffer, start, end int, pool *segpool.Pool, tail segpool.Pointer) (segpool.Pointer, error) {
	switch b.cfg.Mode {
	case segpool.ModeNonPositional:
		return pool.AppendNonPositional(buf.docids[start:end], tail)
	case segpool.ModeTfOnly:
		return pool.AppendTfOnly(buf.docids[start:end], buf.tf[start:end], tail)
	default:
		return pool.AppendPositional(buf.docids[start:end], buf.tf[start:end], buf.positions[start:end], tail)
	}
}

// FlushAll flushes every term's remaining buffer contents at end-of-stream:
// any full blocks plus one final, possibly short, residual block.
func (b *Buffers) FlushAll(pool *segpool.Pool, pt *pointers.Table) error {
	for id, buf := range b.buffers {
		if buf == nil || len(buf.docids) == 0 {
			continue
		}
		if err := b.flushResidual(int32(id), buf, pool, pt); err != nil {
			return fmt.Errorf("ingest: final flush of term %d: %w", id, err)
		}
	}
	return nil
}

func (b *Buffers) flushResidual(id int32, buf *buffer, pool *segpool.Pool, pt *pointers.Table) error {
	n := len(buf.docids)
	full := n / codec.B
	tail := pt.GetTailPointer(id)

	flushOne := func(start, end int) error {
		ptr, err := b.appendRange(buf, start, end, pool, tail)
		if err != nil {
			return err
		}
		tail = ptr
		if pt.GetHeadPointer(id) == segpool.Undefined {
			pt.SetHeadPointer(id, ptr)
		}
		return nil
	}

	for j := 0; j < full; j++ {
		if err := flushOne(j*codec.B, (j+1)*codec.B); err != nil {
			return err
		}
	}
	if rem := n - full*codec.B; rem > 0 {
		if err := flushOne(full*codec.B, n); err != nil {
			return err
		}
	}
	pt.SetTailPointer(id, tail)

	buf.docids = nil
	buf.tf = nil
	buf.positions = nil
	return nil
}
