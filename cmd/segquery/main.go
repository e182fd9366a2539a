// Command segquery runs queries against a segsearch index directory,
// producing TREC-like ranked output via one of the rank package's
// intersection/ranking algorithms.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"segsearch/dictionary"
	"segsearch/persist"
	"segsearch/pointers"
	"segsearch/rank"
	"segsearch/segpool"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if err := newRootCmd(log).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("segquery failed")
	}
}

func newRootCmd(log zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "segquery",
		Short: "Run queries against a segsearch index",
	}
	root.AddCommand(newRunCmd(log))
	return root
}

type runOptions struct {
	index     string
	queries   string
	algorithm string
	hits      int32
	out       string
	docno     string
	runTag    string
}

func newRunCmd(log zerolog.Logger) *cobra.Command {
	opts := &runOptions{
		algorithm: "svs",
		runTag:    "segsearch",
	}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a query file against an index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueries(log, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.index, "index", "", "index directory (required)")
	flags.StringVar(&opts.queries, "queries", "", "query file (required)")
	flags.StringVar(&opts.algorithm, "algorithm", opts.algorithm, "svs, wand, mbwand, bwand_or, or bwand_and")
	flags.Int32Var(&opts.hits, "hits", 0, "top-k cutoff; 0 defaults to the minimum query-term df")
	flags.StringVar(&opts.out, "out", "", "output path; stdout if omitted")
	flags.StringVar(&opts.docno, "docno", "", "optional docno mapping file: \"<docid> <docno>\" per line")
	cmd.MarkFlagRequired("index")
	cmd.MarkFlagRequired("queries")
	return cmd
}

// query is one parsed query from the §6 query file format.
type query struct {
	qid   string
	terms []string
}

func parseQueries(path string) ([]query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return nil, fmt.Errorf("query file is empty")
	}
	count, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return nil, fmt.Errorf("parsing query count: %w", err)
	}

	queries := make([]query, 0, count)
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("query file: expected %d queries, found %d", count, i)
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			return nil, fmt.Errorf("query file: malformed query line %q", sc.Text())
		}
		qlen, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("query file: malformed query length in %q: %w", sc.Text(), err)
		}
		if 2+qlen > len(fields) {
			return nil, fmt.Errorf("query file: query %s declares %d tokens but only %d present", fields[0], qlen, len(fields)-2)
		}
		queries = append(queries, query{qid: fields[0], terms: fields[2 : 2+qlen]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	return queries, nil
}

func loadDocnoMapping(path string) (map[int32]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening docno mapping: %w", err)
	}
	defer f.Close()

	mapping := make(map[int32]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		docid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			continue
		}
		mapping[int32(docid)] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading docno mapping: %w", err)
	}
	return mapping, nil
}

// resolveTerms drops unknown tokens and tokens with empty posting lists,
// per §6's "unknown or empty-posting-list tokens are dropped".
func resolveTerms(dict *dictionary.Dictionary, pt *pointers.Table, tokens []string) []rank.QueryTerm {
	var terms []rank.QueryTerm
	for _, tok := range tokens {
		id := dict.GetTermId(tok)
		if id < 0 {
			continue
		}
		df := pt.GetDf(id)
		if df == 0 {
			continue
		}
		terms = append(terms, rank.QueryTerm{TermId: id, Head: pt.GetHeadPointer(id), Df: df})
	}
	return terms
}

func minDf(terms []rank.QueryTerm) int32 {
	min := terms[0].Df
	for _, t := range terms[1:] {
		if t.Df < min {
			min = t.Df
		}
	}
	return min
}

func runQueries(log zerolog.Logger, opts *runOptions) error {
	switch opts.algorithm {
	case "svs", "wand", "mbwand", "bwand_or", "bwand_and":
	default:
		err := fmt.Errorf("unknown algorithm %q", opts.algorithm)
		log.Error().Err(err).Str("component", "config").Msg("invalid algorithm flag")
		return err
	}

	pool, pt, dict, _, err := persist.LoadIndex(opts.index)
	if err != nil {
		log.Error().Err(err).Str("component", "io").Msg("loading index")
		return err
	}

	queries, err := parseQueries(opts.queries)
	if err != nil {
		log.Error().Err(err).Str("component", "io").Msg("parsing query file")
		return err
	}

	docno, err := loadDocnoMapping(opts.docno)
	if err != nil {
		log.Error().Err(err).Str("component", "io").Msg("loading docno mapping")
		return err
	}

	out := os.Stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			log.Error().Err(err).Str("component", "io").Msg("creating output file")
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	for _, q := range queries {
		terms := resolveTerms(dict, pt, q.terms)
		if len(terms) == 0 {
			log.Warn().Str("qid", q.qid).Msg("query has no resolvable terms, skipping")
			continue
		}
		if err := executeQuery(w, pool, pt, opts, docno, q, terms); err != nil {
			log.Error().Err(err).Str("qid", q.qid).Msg("executing query")
			return err
		}
	}
	return nil
}

func executeQuery(w io.Writer, pool *segpool.Pool, pt *pointers.Table, opts *runOptions, docno map[int32]string, q query, terms []rank.QueryTerm) error {
	k := opts.hits
	if k <= 0 {
		k = minDf(terms)
	}

	var scored []rank.ScoredDoc
	switch opts.algorithm {
	case "svs":
		docids, err := rank.SvS(pool, terms, k)
		if err != nil {
			return err
		}
		for _, d := range docids {
			scored = append(scored, rank.ScoredDoc{DocID: d})
		}
	case "wand":
		var err error
		scored, err = rank.WAND(pool, pt, terms, k)
		if err != nil {
			return err
		}
	case "mbwand":
		var err error
		scored, err = rank.MBWAND(pool, pt, terms, k)
		if err != nil {
			return err
		}
	case "bwand_or":
		var err error
		scored, err = rank.BWANDOr(pool, pt, terms, k)
		if err != nil {
			return err
		}
	case "bwand_and":
		docids, err := rank.BWANDAnd(pool, terms, k)
		if err != nil {
			return err
		}
		for _, d := range docids {
			scored = append(scored, rank.ScoredDoc{DocID: d})
		}
	}

	for i, doc := range scored {
		docID := lookupDocno(docno, doc.DocID)
		if _, err := fmt.Fprintf(w, "%s Q0 %s %d %.6f %s\n", q.qid, docID, i+1, doc.Score, opts.runTag); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}
	return nil
}

func lookupDocno(mapping map[int32]string, docid int32) string {
	if mapping != nil {
		if s, ok := mapping[docid]; ok {
			return s
		}
	}
	return strconv.Itoa(int(docid))
}
