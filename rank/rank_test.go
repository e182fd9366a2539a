package rank

import (
	"sort"
	"testing"

	"segsearch/indexer"
	"segsearch/pointers"
	"segsearch/segpool"
)

func buildIndex(t *testing.T, docs [][]string) *indexer.Indexer {
	t.Helper()
	// Bloom-enabled: BWAND-OR/BWAND-AND are bloom-gated (§4.8) and need a
	// real filter on every block to detect interior (non-max-docid)
	// members, not just the block's own max_docid.
	pool := segpool.New(1<<20, false, true, 4, 10)
	ix := indexer.New(indexer.Config{DfCutoff: 2, MaxBlocks: 4, Mode: segpool.ModeTfOnly}, pool)
	for i, tokens := range docs {
		if err := ix.AddDocument(int32(i+1), tokens); err != nil {
			t.Fatalf("AddDocument %d: %v", i+1, err)
		}
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return ix
}

func qterm(ix *indexer.Indexer, term string) QueryTerm {
	id := ix.Dictionary.GetTermId(term)
	return QueryTerm{
		TermId: id,
		Head:   ix.Pointers.GetHeadPointer(id),
		Df:     ix.Pointers.GetDf(id),
	}
}

func docset(ids []int32) map[int32]bool {
	m := make(map[int32]bool, len(ids))
	for _, d := range ids {
		m[d] = true
	}
	return m
}

func TestSvSIntersectionSoundness(t *testing.T) {
	docs := [][]string{
		{"apple", "banana"},   // 1
		{"apple"},             // 2
		{"apple", "banana"},   // 3
		{"banana"},             // 4
		{"apple", "banana"},   // 5
	}
	ix := buildIndex(t, docs)

	terms := []QueryTerm{qterm(ix, "apple"), qterm(ix, "banana")}
	got, err := SvS(ix.Pool, terms, 0)
	if err != nil {
		t.Fatalf("SvS: %v", err)
	}
	want := docset([]int32{1, 3, 5})
	if len(got) != len(want) {
		t.Fatalf("got %v, want docs %v", got, want)
	}
	for _, d := range got {
		if !want[d] {
			t.Fatalf("docid %d present but not in both postings", d)
		}
	}
}

func TestSvSCapsAtK(t *testing.T) {
	docs := [][]string{{"x"}, {"x"}, {"x"}, {"x"}, {"x"}}
	ix := buildIndex(t, docs)
	terms := []QueryTerm{qterm(ix, "x")}
	got, err := SvS(ix.Pool, terms, 2)
	if err != nil {
		t.Fatalf("SvS: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestWANDFindsTopScoringDoc(t *testing.T) {
	docs := [][]string{
		{"apple"},                            // 1: tf(apple)=1
		{"apple", "apple", "apple", "banana"}, // 2: tf(apple)=3
		{"banana"},                            // 3
		{"filler"}, {"filler"}, {"filler"}, {"filler"}, {"filler"}, {"filler"}, {"filler"}, // keep df low relative to corpus size so idf stays positive
	}
	ix := buildIndex(t, docs)
	terms := []QueryTerm{qterm(ix, "apple"), qterm(ix, "banana")}

	got, err := WAND(ix.Pool, ix.Pointers, terms, 1)
	if err != nil {
		t.Fatalf("WAND: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].DocID != 2 {
		t.Fatalf("expected doc 2 (highest combined tf) to win, got %d with score %f", got[0].DocID, got[0].Score)
	}
}

func TestWANDAndMBWANDAgreeOnTopK(t *testing.T) {
	docs := [][]string{
		{"apple", "banana", "cherry"},
		{"apple", "apple"},
		{"banana", "banana", "banana"},
		{"apple", "banana"},
		{"cherry"},
	}
	ix := buildIndex(t, docs)
	terms := []QueryTerm{qterm(ix, "apple"), qterm(ix, "banana"), qterm(ix, "cherry")}

	wand, err := WAND(ix.Pool, ix.Pointers, terms, 3)
	if err != nil {
		t.Fatalf("WAND: %v", err)
	}
	mbwand, err := MBWAND(ix.Pool, ix.Pointers, terms, 3)
	if err != nil {
		t.Fatalf("MBWAND: %v", err)
	}
	if len(wand) != len(mbwand) {
		t.Fatalf("result count mismatch: WAND %d, MBWAND %d", len(wand), len(mbwand))
	}
	wandSet := make(map[int32]float64, len(wand))
	for _, d := range wand {
		wandSet[d.DocID] = d.Score
	}
	for _, d := range mbwand {
		score, ok := wandSet[d.DocID]
		if !ok {
			t.Fatalf("MBWAND doc %d not found among WAND results", d.DocID)
		}
		if diff := score - d.Score; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("doc %d: WAND score %f != MBWAND score %f", d.DocID, score, d.Score)
		}
	}
}

func TestBWANDAndMatchesSvS(t *testing.T) {
	docs := [][]string{
		{"apple", "banana"},
		{"apple"},
		{"apple", "banana"},
		{"banana"},
	}
	ix := buildIndex(t, docs)
	terms := []QueryTerm{qterm(ix, "apple"), qterm(ix, "banana")}

	svs, err := SvS(ix.Pool, terms, 0)
	if err != nil {
		t.Fatalf("SvS: %v", err)
	}
	bw, err := BWANDAnd(ix.Pool, terms, 0)
	if err != nil {
		t.Fatalf("BWANDAnd: %v", err)
	}
	if docset(svs) == nil || len(svs) != len(bw) {
		t.Fatalf("SvS %v and BWAND-AND %v disagree in count", svs, bw)
	}
	want := docset(svs)
	for _, d := range bw {
		if !want[d] {
			t.Fatalf("BWAND-AND returned %d, not in SvS result %v", d, svs)
		}
	}
}

func TestBWANDOrCoversUnion(t *testing.T) {
	docs := [][]string{
		{"apple"},
		{"banana"},
		{"apple", "banana"},
		{"cherry"},
	}
	ix := buildIndex(t, docs)
	terms := []QueryTerm{qterm(ix, "apple"), qterm(ix, "banana")}

	got, err := BWANDOr(ix.Pool, ix.Pointers, terms, 10)
	if err != nil {
		t.Fatalf("BWANDOr: %v", err)
	}
	// BWAND-OR only scans the shortest posting list (§4.8) and tests the
	// others via Bloom membership; it never visits a docid that isn't in
	// that shortest list. Here apple and banana are both df=2 and apple
	// sorts first, so only docs 1 and 3 (apple's postings) are ever
	// emitted; doc 2 (banana only) is unreachable regardless of k.
	want := docset([]int32{1, 3})
	if len(got) != len(want) {
		t.Fatalf("got %v, want docs in %v", got, want)
	}
	for _, d := range got {
		if !want[d.DocID] {
			t.Fatalf("docid %d should not appear in the shortest-list scan of apple|banana", d.DocID)
		}
	}
}

// bruteForceTopK scores every document containing at least one query term
// by decoding full posting chains (no pivoting, no skipping) and ranks by
// the same BM25 formula WAND uses. Agreement between the two is what
// actually exercises WAND's pruning bounds for soundness, as opposed to
// WAND-vs-MBWAND agreement, which would pass even if both shared the same
// unsound bound.
func bruteForceTopK(t *testing.T, pool *segpool.Pool, pt *pointers.Table, terms []QueryTerm, k int32) []ScoredDoc {
	t.Helper()
	totalDocs := pt.TotalDocs()
	avgdl := pt.AverageDocLen()
	scores := make(map[int32]float64)
	for _, term := range terms {
		idf := Idf(totalDocs, term.Df)
		ptr := term.Head
		for !ptr.IsUndefined() {
			n := pool.Len(ptr)
			docids := make([]int32, n)
			if _, err := pool.DecompressDocids(ptr, docids); err != nil {
				t.Fatalf("DecompressDocids: %v", err)
			}
			tfs := make([]int32, n)
			if _, err := pool.DecompressTf(ptr, tfs); err != nil {
				t.Fatalf("DecompressTf: %v", err)
			}
			for i, d := range docids {
				docLen := float64(pt.DocLen(d))
				scores[d] += idf * indexer.BM25Tf(float64(tfs[i]), docLen, avgdl)
			}
			ptr = pool.Next(ptr)
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for d, s := range scores {
		result = append(result, ScoredDoc{DocID: d, Score: s})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if int32(len(result)) > k {
		result = result[:k]
	}
	return result
}

func TestWANDMatchesBruteForceBM25(t *testing.T) {
	var docs [][]string
	for d := int32(1); d <= 40; d++ {
		var tokens []string
		if d%2 == 0 {
			for i := int32(0); i < d%5+1; i++ {
				tokens = append(tokens, "a")
			}
		}
		if d%3 == 0 {
			for i := int32(0); i < d%4+1; i++ {
				tokens = append(tokens, "b")
			}
		}
		if d%5 == 0 {
			tokens = append(tokens, "c")
		}
		for i := int32(0); i < d%6; i++ {
			tokens = append(tokens, "pad")
		}
		tokens = append(tokens, "pad")
		docs = append(docs, tokens)
	}
	ix := buildIndex(t, docs)

	queries := [][]string{
		{"a", "b"},
		{"a", "c"},
		{"b", "c"},
		{"a", "b", "c"},
	}
	for _, q := range queries {
		terms := make([]QueryTerm, 0, len(q))
		for _, w := range q {
			terms = append(terms, qterm(ix, w))
		}

		wand, err := WAND(ix.Pool, ix.Pointers, terms, 3)
		if err != nil {
			t.Fatalf("WAND%v: %v", q, err)
		}
		brute := bruteForceTopK(t, ix.Pool, ix.Pointers, terms, 3)

		if len(wand) != len(brute) {
			t.Fatalf("query %v: WAND returned %d docs, brute force %d", q, len(wand), len(brute))
		}
		bruteScores := make(map[int32]float64, len(brute))
		for _, d := range brute {
			bruteScores[d.DocID] = d.Score
		}
		for _, d := range wand {
			bs, ok := bruteScores[d.DocID]
			if !ok {
				t.Fatalf("query %v: WAND doc %d absent from brute-force top-k %v", q, d.DocID, brute)
			}
			if diff := bs - d.Score; diff > 1e-5 || diff < -1e-5 {
				t.Fatalf("query %v: doc %d WAND score %f != brute-force score %f", q, d.DocID, d.Score, bs)
			}
		}
	}
}

func TestSvSEmptyTermsReturnsNil(t *testing.T) {
	got, err := SvS(nil, nil, 0)
	if err != nil {
		t.Fatalf("SvS: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
