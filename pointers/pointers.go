// Package pointers implements the Pointers Table: per-termid postings
// statistics (document/collection frequency, chain head/tail, BM25-max
// bookkeeping) plus the corpus-wide totals ranking needs, and the
// per-docid document-length array.
package pointers

import "segsearch/segpool"

// Record holds one term's postings statistics.
type Record struct {
	Df          int32
	Cf          int32
	Head        segpool.Pointer
	Tail        segpool.Pointer
	MaxTf       float64
	MaxTfDocLen int32
}

// Table is a dense vector of Records indexed by termid, grown on demand
// to fit the highest termid written,
// plus the scalar totals and per-docid length array the ranking formulas
// need.
type Table struct {
	records     []Record
	docLen      []int32
	totalDocs   int32
	totalDocLen int64
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

func (t *Table) ensure(id int32) {
	if int(id) < len(t.records) {
		return
	}
	grown := make([]Record, id+1)
	copy(grown, t.records)
	for i := len(t.records); i <= int(id); i++ {
		grown[i].Head = segpool.Undefined
		grown[i].Tail = segpool.Undefined
	}
	t.records = grown
}

// GetDf returns term id's document frequency.
func (t *Table) GetDf(id int32) int32 {
	if int(id) >= len(t.records) {
		return 0
	}
	return t.records[id].Df
}

// SetDf sets term id's document frequency.
func (t *Table) SetDf(id int32, df int32) {
	t.ensure(id)
	t.records[id].Df = df
}

// IncrDf increments term id's document frequency by one and returns the
// new value.
func (t *Table) IncrDf(id int32) int32 {
	t.ensure(id)
	t.records[id].Df++
	return t.records[id].Df
}

// GetCf returns term id's collection frequency (total occurrences).
func (t *Table) GetCf(id int32) int32 {
	if int(id) >= len(t.records) {
		return 0
	}
	return t.records[id].Cf
}

// IncrCf adds delta to term id's collection frequency.
func (t *Table) IncrCf(id int32, delta int32) {
	t.ensure(id)
	t.records[id].Cf += delta
}

// GetHeadPointer returns term id's chain head pointer, or
// segpool.Undefined if the term has no postings yet.
func (t *Table) GetHeadPointer(id int32) segpool.Pointer {
	if int(id) >= len(t.records) {
		return segpool.Undefined
	}
	return t.records[id].Head
}

// SetHeadPointer sets term id's head pointer. Per §3.3, this is called
// once per term, the first time its buffer flushes, in both forward and
// reverse mode.
func (t *Table) SetHeadPointer(id int32, ptr segpool.Pointer) {
	t.ensure(id)
	t.records[id].Head = ptr
}

// GetTailPointer returns term id's chain tail pointer (the most recently
// appended block).
func (t *Table) GetTailPointer(id int32) segpool.Pointer {
	if int(id) >= len(t.records) {
		return segpool.Undefined
	}
	return t.records[id].Tail
}

// SetTailPointer updates term id's tail pointer after every flush.
func (t *Table) SetTailPointer(id int32, ptr segpool.Pointer) {
	t.ensure(id)
	t.records[id].Tail = ptr
}

// SetMaxTf records (tf, docLen) as term id's new raw-tf maximum if tf
// exceeds the value currently stored (ties keep the smaller docLen, the
// one with the higher BM25-tf). Stores the raw pair, not
// a precomputed BM25-tf score: that depends on avgdl, which keeps moving
// as documents arrive, so a score baked in now would be stale by query
// time.
func (t *Table) SetMaxTf(id int32, tf float64, docLen int32) {
	t.ensure(id)
	r := &t.records[id]
	if tf > r.MaxTf || (tf == r.MaxTf && docLen < r.MaxTfDocLen) {
		r.MaxTf = tf
		r.MaxTfDocLen = docLen
	}
}

// GetMaxTf returns term id's stored raw-tf maximum and the document
// length observed alongside it. The doc length is not a minimum over the
// term's documents, so BM25Tf at that length does not bound shorter
// documents; the rank package bounds from the tf alone via
// indexer.BM25TfUpperBound.
func (t *Table) GetMaxTf(id int32) (float64, int32) {
	if int(id) >= len(t.records) {
		return 0, 0
	}
	return t.records[id].MaxTf, t.records[id].MaxTfDocLen
}

// SetDocLen records docid's document length, growing the length array and
// the running totals as needed. Idempotent only on first write per docid;
// callers must not call it twice for the same docid.
func (t *Table) SetDocLen(docid int32, length int32) {
	if int(docid) >= len(t.docLen) {
		grown := make([]int32, docid+1)
		copy(grown, t.docLen)
		t.docLen = grown
	}
	t.docLen[docid] = length
	t.totalDocs++
	t.totalDocLen += int64(length)
}

// DocLen returns the recorded length of docid.
func (t *Table) DocLen(docid int32) int32 {
	if int(docid) >= len(t.docLen) {
		return 0
	}
	return t.docLen[docid]
}

// TotalDocs returns the number of documents SetDocLen has been called for.
func (t *Table) TotalDocs() int32 {
	return t.totalDocs
}

// TotalDocLen returns the sum of all recorded document lengths.
func (t *Table) TotalDocLen() int64 {
	return t.totalDocLen
}

// AverageDocLen returns the corpus average document length, or 0 if no
// documents have been recorded.
func (t *Table) AverageDocLen() float64 {
	if t.totalDocs == 0 {
		return 0
	}
	return float64(t.totalDocLen) / float64(t.totalDocs)
}

// NumTerms returns the number of termids the table has records for.
func (t *Table) NumTerms() int {
	return len(t.records)
}

// Record returns a copy of term id's Record, for persistence.
func (t *Table) Record(id int32) Record {
	if int(id) >= len(t.records) {
		return Record{Head: segpool.Undefined, Tail: segpool.Undefined}
	}
	return t.records[id]
}

// DocLens returns the full per-docid length array, for persistence.
func (t *Table) DocLens() []int32 {
	return t.docLen
}

// Restore rebuilds a Table from parts read back by the persist package.
func Restore(records []Record, docLen []int32, totalDocs int32, totalDocLen int64) *Table {
	return &Table{records: records, docLen: docLen, totalDocs: totalDocs, totalDocLen: totalDocLen}
}
