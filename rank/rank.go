// Package rank implements query execution over a segment pool: conjunctive
// intersection (SvS), disjunctive threshold top-k (WAND / BlockMax-WAND),
// and Bloom-gated variants (BWAND-OR / BWAND-AND).
//
// The disjunctive algorithms are grounded on the teacher's engine package:
// a sorted set of per-term cursors, advanced and re-sorted one step at a
// time, with a bounded min-heap of scored results — the same shape as
// engine.go's minBlockHeap merge-by-docid loop, adapted from an exact
// multi-term AND/OR merge into a threshold-pruned top-k search.
package rank

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"segsearch/indexer"
	"segsearch/pointers"
	"segsearch/segpool"
)

// QueryTerm is one resolved query term: its id, chain head, and document
// frequency (read from the Pointers Table before the search begins).
type QueryTerm struct {
	TermId int32
	Head   segpool.Pointer
	Df     int32
}

// ScoredDoc is one ranked result.
type ScoredDoc struct {
	DocID int32
	Score float64
}

// Idf computes the positive-form IDF spec §6 fixes: log((N-df+0.5)/(df+0.5)).
func Idf(totalDocs, df int32) float64 {
	return math.Log((float64(totalDocs-df) + 0.5) / (float64(df) + 0.5))
}

func orderLess(reverse bool, a, b int32) bool {
	if reverse {
		return a > b
	}
	return a < b
}

// cursor walks one term's chain, decoding one block at a time.
type cursor struct {
	termId    int32
	idf       float64
	termBound float64 // idf * term's global BM25-max upper bound
	reverse   bool
	ptr       segpool.Pointer
	docids    []int32
	tf        []int32 // nil for non-positional blocks
	idx       int
	exhausted bool
}

func newCursor(pool *segpool.Pool, pt *pointers.Table, t QueryTerm, totalDocs int32) (*cursor, error) {
	c := &cursor{termId: t.TermId, reverse: pool.Reverse(), idf: Idf(totalDocs, t.Df)}
	// Bounded from the term's raw max tf alone: the stored doc length
	// belongs to the max-tf document only, and a shorter document with a
	// lower tf can out-score it, so BM25TfUpperBound (length term dropped)
	// is used rather than BM25Tf at that doc length.
	maxTf, _ := pt.GetMaxTf(t.TermId)
	c.termBound = c.idf * indexer.BM25TfUpperBound(maxTf)
	if t.Head.IsUndefined() {
		c.exhausted = true
		return c, nil
	}
	if err := c.loadBlock(pool, t.Head); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *cursor) loadBlock(pool *segpool.Pool, ptr segpool.Pointer) error {
	n := pool.Len(ptr)
	docids := make([]int32, n)
	if _, err := pool.DecompressDocids(ptr, docids); err != nil {
		return fmt.Errorf("rank: decoding docids for term %d: %w", c.termId, err)
	}
	c.ptr = ptr
	c.docids = docids
	c.idx = 0
	c.tf = nil
	if pool.BlockMode(ptr) >= segpool.ModeTfOnly {
		tf := make([]int32, n)
		if _, err := pool.DecompressTf(ptr, tf); err != nil {
			return fmt.Errorf("rank: decoding tf for term %d: %w", c.termId, err)
		}
		c.tf = tf
	}
	return nil
}

func (c *cursor) docid() int32 { return c.docids[c.idx] }

func (c *cursor) currentTf() int32 {
	if c.tf == nil {
		return 1
	}
	return c.tf[c.idx]
}

func (c *cursor) blockMaxTf() int32 {
	var max int32
	for _, v := range c.tf {
		if v > max {
			max = v
		}
	}
	return max
}

func (c *cursor) advance(pool *segpool.Pool) error {
	c.idx++
	if c.idx < len(c.docids) {
		return nil
	}
	next := pool.Next(c.ptr)
	if next.IsUndefined() {
		c.exhausted = true
		return nil
	}
	return c.loadBlock(pool, next)
}

// skipTo advances c until its docid reaches or passes target in c's
// traversal order, skipping whole blocks via max_docid where possible.
func (c *cursor) skipTo(pool *segpool.Pool, target int32) error {
	for !c.exhausted && orderLess(c.reverse, c.docid(), target) {
		if orderLess(c.reverse, pool.MaxDocid(c.ptr), target) {
			next := pool.Next(c.ptr)
			if next.IsUndefined() {
				c.exhausted = true
				return nil
			}
			if err := c.loadBlock(pool, next); err != nil {
				return err
			}
			continue
		}
		if err := c.advance(pool); err != nil {
			return err
		}
	}
	return nil
}

// containsSorted binary-searches docids (sorted ascending in forward mode,
// descending in reverse mode) for target.
func containsSorted(docids []int32, target int32, reverse bool) bool {
	lo, hi := 0, len(docids)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		v := docids[mid]
		if v == target {
			return true
		}
		if orderLess(reverse, v, target) {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return false
}

// SvS performs conjunctive intersection: terms sorted by ascending df, a
// candidate set is seeded from the lowest-df term's full posting list,
// then narrowed by probing each remaining term's chain for each surviving
// candidate; the intersection is truncated to its first min(df, k) docids
// in chain order. Pass k<=0 to default to the lowest df, per §4.8.
func SvS(pool *segpool.Pool, terms []QueryTerm, k int32) ([]int32, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	sorted := append([]QueryTerm(nil), terms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Df < sorted[j].Df })

	limit := k
	if limit <= 0 || limit > sorted[0].Df {
		limit = sorted[0].Df
	}
	if limit <= 0 {
		return nil, nil
	}

	var candidates []int32
	ptr := sorted[0].Head
	for !ptr.IsUndefined() {
		n := pool.Len(ptr)
		docids := make([]int32, n)
		if _, err := pool.DecompressDocids(ptr, docids); err != nil {
			return nil, fmt.Errorf("rank: SvS seeding from term %d: %w", sorted[0].TermId, err)
		}
		candidates = append(candidates, docids...)
		ptr = pool.Next(ptr)
	}

	reverse := pool.Reverse()
	for _, t := range sorted[1:] {
		if len(candidates) == 0 {
			break
		}
		filtered := candidates[:0]
		ptr := t.Head
		var docids []int32
		loaded := false
		for _, c := range candidates {
			for !ptr.IsUndefined() && orderLess(reverse, pool.MaxDocid(ptr), c) {
				ptr = pool.Next(ptr)
				loaded = false
			}
			if ptr.IsUndefined() {
				break
			}
			if !loaded {
				n := pool.Len(ptr)
				docids = make([]int32, n)
				if _, err := pool.DecompressDocids(ptr, docids); err != nil {
					return nil, fmt.Errorf("rank: SvS probing term %d: %w", t.TermId, err)
				}
				loaded = true
			}
			if containsSorted(docids, c, reverse) {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}
	if int32(len(candidates)) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// scoreHeap is a min-heap of ScoredDoc by Score, bounding top-k search
// results the same way the teacher's minBlockHeap bounds block entries.
type scoreHeap []ScoredDoc

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x interface{}) { *h = append(*h, x.(ScoredDoc)) }
func (h *scoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func pushTopK(h *scoreHeap, doc ScoredDoc, k int32) {
	if k <= 0 {
		return
	}
	if int32(h.Len()) < k {
		heap.Push(h, doc)
		return
	}
	if doc.Score > (*h)[0].Score {
		heap.Pop(h)
		heap.Push(h, doc)
	}
}

func sortedResult(h *scoreHeap) []ScoredDoc {
	result := append([]ScoredDoc(nil), (*h)...)
	sort.Slice(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	return result
}

// wandSearch implements both WAND and MBWAND: mbwand selects whether the
// pruning bound is the term's global BM25-max (WAND) or a tighter bound
// derived from the current block's locally decoded max tf (MBWAND).
func wandSearch(pool *segpool.Pool, pt *pointers.Table, terms []QueryTerm, k int32, mbwand bool) ([]ScoredDoc, error) {
	totalDocs := pt.TotalDocs()
	cursors := make([]*cursor, 0, len(terms))
	for _, t := range terms {
		c, err := newCursor(pool, pt, t, totalDocs)
		if err != nil {
			return nil, err
		}
		if !c.exhausted {
			cursors = append(cursors, c)
		}
	}
	if len(cursors) == 0 {
		return nil, nil
	}

	reverse := pool.Reverse()
	avgdl := pt.AverageDocLen()
	h := &scoreHeap{}
	heap.Init(h)
	theta := -math.MaxFloat64

	for {
		active := cursors[:0]
		for _, c := range cursors {
			if !c.exhausted {
				active = append(active, c)
			}
		}
		cursors = active
		if len(cursors) == 0 {
			break
		}
		sort.Slice(cursors, func(i, j int) bool {
			return orderLess(reverse, cursors[i].docid(), cursors[j].docid())
		})

		sum := 0.0
		pivot := -1
		for i, c := range cursors {
			bound := c.termBound
			if mbwand && c.tf != nil {
				bound = c.idf * indexer.BM25TfUpperBound(float64(c.blockMaxTf()))
			}
			sum += bound
			if sum >= theta {
				pivot = i
				break
			}
		}
		if pivot == -1 {
			break
		}

		pivotDocid := cursors[pivot].docid()
		if cursors[0].docid() == pivotDocid {
			score := 0.0
			matched := 0
			for _, c := range cursors {
				if c.docid() != pivotDocid {
					break
				}
				docLen := float64(pt.DocLen(pivotDocid))
				score += c.idf * indexer.BM25Tf(float64(c.currentTf()), docLen, avgdl)
				matched++
			}
			pushTopK(h, ScoredDoc{DocID: pivotDocid, Score: score}, k)
			if int32(h.Len()) >= k {
				theta = (*h)[0].Score
			}
			for i := 0; i < matched; i++ {
				if err := cursors[i].advance(pool); err != nil {
					return nil, err
				}
			}
		} else if err := cursors[0].skipTo(pool, pivotDocid); err != nil {
			return nil, err
		}
	}
	return sortedResult(h), nil
}

// WAND returns up to k disjunctive top-k results, pruning candidates via
// each term's global BM25-max upper bound.
func WAND(pool *segpool.Pool, pt *pointers.Table, terms []QueryTerm, k int32) ([]ScoredDoc, error) {
	return wandSearch(pool, pt, terms, k, false)
}

// MBWAND is WAND with per-block pruning bounds (§3.2), tighter than WAND's
// per-term bound whenever a skipped block's local max tf is below the
// term's all-time maximum.
func MBWAND(pool *segpool.Pool, pt *pointers.Table, terms []QueryTerm, k int32) ([]ScoredDoc, error) {
	return wandSearch(pool, pt, terms, k, true)
}

// BWANDOr scores candidates from the shortest posting list by an
// IDF-weighted sum of Bloom-filter membership tests against every other
// term, keeping the top k via min-heap.
func BWANDOr(pool *segpool.Pool, pt *pointers.Table, terms []QueryTerm, k int32) ([]ScoredDoc, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	sorted := append([]QueryTerm(nil), terms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Df < sorted[j].Df })
	shortest := sorted[0]
	others := sorted[1:]
	totalDocs := pt.TotalDocs()

	otherPtrs := make([]segpool.Pointer, len(others))
	for i, t := range others {
		otherPtrs[i] = t.Head
	}

	h := &scoreHeap{}
	heap.Init(h)
	ptr := shortest.Head
	for !ptr.IsUndefined() {
		n := pool.Len(ptr)
		docids := make([]int32, n)
		if _, err := pool.DecompressDocids(ptr, docids); err != nil {
			return nil, fmt.Errorf("rank: BWAND-OR scanning term %d: %w", shortest.TermId, err)
		}
		for _, d := range docids {
			score := Idf(totalDocs, shortest.Df)
			for i, t := range others {
				ok, err := pool.ContainsDocid(d, &otherPtrs[i])
				if err != nil {
					return nil, fmt.Errorf("rank: BWAND-OR testing term %d: %w", t.TermId, err)
				}
				if ok {
					score += Idf(totalDocs, t.Df)
				}
			}
			pushTopK(h, ScoredDoc{DocID: d, Score: score}, k)
		}
		ptr = pool.Next(ptr)
	}
	return sortedResult(h), nil
}

// BWANDAnd returns up to k docids present in every term's chain, using
// Bloom-filter membership tests against all but the shortest list.
func BWANDAnd(pool *segpool.Pool, terms []QueryTerm, k int32) ([]int32, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	sorted := append([]QueryTerm(nil), terms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Df < sorted[j].Df })
	shortest := sorted[0]
	others := sorted[1:]

	otherPtrs := make([]segpool.Pointer, len(others))
	for i, t := range others {
		otherPtrs[i] = t.Head
	}

	var result []int32
	ptr := shortest.Head
	for !ptr.IsUndefined() && (k <= 0 || int32(len(result)) < k) {
		n := pool.Len(ptr)
		docids := make([]int32, n)
		if _, err := pool.DecompressDocids(ptr, docids); err != nil {
			return nil, fmt.Errorf("rank: BWAND-AND scanning term %d: %w", shortest.TermId, err)
		}
		for _, d := range docids {
			if k > 0 && int32(len(result)) >= k {
				break
			}
			ok := true
			for i, t := range others {
				contains, err := pool.ContainsDocid(d, &otherPtrs[i])
				if err != nil {
					return nil, fmt.Errorf("rank: BWAND-AND testing term %d: %w", t.TermId, err)
				}
				if !contains {
					ok = false
					break
				}
			}
			if ok {
				result = append(result, d)
			}
		}
		ptr = pool.Next(ptr)
	}
	return result, nil
}
