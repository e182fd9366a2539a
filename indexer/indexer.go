// Package indexer drives document ingestion: term resolution, per-token
// buffer updates, document-length/BM25-max bookkeeping, and (optionally)
// document-vector construction.
package indexer

import (
	"fmt"

	"segsearch/dictionary"
	"segsearch/docvector"
	"segsearch/ingest"
	"segsearch/pointers"
	"segsearch/segpool"
)

// BM25 defaults. K1 and B are exported so the rank package scores with
// the exact same formula whose maximum Indexer tracks in the Pointers
// Table — otherwise a stored "maximum" would not actually bound anything.
const (
	K1 = 0.9
	B  = 0.4
)

// Config selects postings mode, buffer growth, and optional features.
type Config struct {
	DfCutoff       int32
	MaxBlocks      int32
	Mode           segpool.Mode
	VectorsEnabled bool
}

// Indexer owns the dictionary, pointers table, ingestion buffers, pool,
// and (optionally) the document vector store for one index being built.
type Indexer struct {
	cfg        Config
	Dictionary *dictionary.Dictionary
	Pointers   *pointers.Table
	Pool       *segpool.Pool
	Vectors    *docvector.Store // nil when VectorsEnabled is false

	buffers    *ingest.Buffers
	nextTermId int32
}

// New returns an Indexer writing postings into pool.
func New(cfg Config, pool *segpool.Pool) *Indexer {
	ix := &Indexer{
		cfg:        cfg,
		Dictionary: dictionary.New(),
		Pointers:   pointers.New(),
		Pool:       pool,
		buffers: ingest.New(ingest.Config{
			DfCutoff:  cfg.DfCutoff,
			MaxBlocks: cfg.MaxBlocks,
			Mode:      cfg.Mode,
		}),
	}
	if cfg.VectorsEnabled {
		ix.Vectors = docvector.New()
	}
	return ix
}

// AddDocument indexes docid's tokens, in position order (positions are
// 1-based). docid must be unique and monotone per the pool's ordering
// (ascending in forward mode, descending in reverse mode).
func (ix *Indexer) AddDocument(docid int32, tokens []string) error {
	counts := make(map[int32]int32, len(tokens))
	order := make([]int32, 0, len(tokens))
	var vecIds []int32
	if ix.Vectors != nil {
		vecIds = make([]int32, 0, len(tokens))
	}

	for i, tok := range tokens {
		position := int32(i + 1)

		id := ix.Dictionary.SetTermId(tok, ix.nextTermId)
		if id == ix.nextTermId {
			ix.nextTermId++
		}
		ix.Pointers.IncrCf(id, 1)

		if ix.Vectors != nil {
			vecIds = append(vecIds, id)
		}

		firstInDoc := counts[id] == 0
		if firstInDoc {
			order = append(order, id)
		}
		counts[id]++

		if err := ix.buffers.RecordOccurrence(id, docid, position, firstInDoc, ix.Pool, ix.Pointers); err != nil {
			return fmt.Errorf("indexer: document %d, term %q: %w", docid, tok, err)
		}
	}

	docLen := int32(len(tokens))
	ix.Pointers.SetDocLen(docid, docLen)

	for _, id := range order {
		tf := float64(counts[id])
		ix.Pointers.SetMaxTf(id, tf, docLen)
	}

	if ix.Vectors != nil {
		if err := ix.Vectors.Add(docid, vecIds); err != nil {
			return fmt.Errorf("indexer: document %d vector: %w", docid, err)
		}
	}
	return nil
}

// Close flushes every term's remaining buffer contents. Call once after
// the last AddDocument.
func (ix *Indexer) Close() error {
	return ix.buffers.FlushAll(ix.Pool, ix.Pointers)
}

// BM25Tf computes the term-frequency component of BM25, monotone in tf
// and decreasing in docLen/avgdl.
func BM25Tf(tf, docLen, avgdl float64) float64 {
	if avgdl == 0 {
		avgdl = docLen
	}
	return (tf * (K1 + 1)) / (tf + K1*(1-B+B*docLen/avgdl))
}

// BM25TfUpperBound bounds BM25Tf(tf, docLen, avgdl) over every docLen >= 0:
// the denominator's b*docLen/avgdl term is never negative, so dropping it
// can only grow the fraction. The rank package's MBWAND cursor uses this,
// keyed off a block's locally decoded max tf, as a tighter per-block score
// bound than the term's global maximum.
func BM25TfUpperBound(tf float64) float64 {
	return (tf * (K1 + 1)) / (tf + K1*(1-B))
}
