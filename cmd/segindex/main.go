// Command segindex builds a segsearch index from a tokenized-line corpus
// (see the corpus package for the input format), driving the indexer,
// ingestion buffers, and segment pool over one document at a time, then
// persisting the result to an index directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"segsearch/corpus"
	"segsearch/indexer"
	"segsearch/persist"
	"segsearch/segpool"
)

// defaultArenaWords is the word capacity of each segment pool arena; large
// enough that even a full positional block with a bloom filter fits with
// headroom, per §9's "2^24 is a reasonable smaller-than-source choice".
const defaultArenaWords = 1 << 24

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if err := newRootCmd(log).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("segindex failed")
	}
}

func newRootCmd(log zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "segindex",
		Short: "Build a segsearch index from a tokenized document corpus",
	}
	root.AddCommand(newBuildCmd(log))
	return root
}

type buildOptions struct {
	input               string
	gzip                bool
	out                 string
	mode                string
	maxBlocks           int32
	dfCutoff            int32
	reverse             bool
	vectors             bool
	bloom               bool
	bloomK              int
	bloomBitsPerElement float64
	arenaWords          int32
}

func newBuildCmd(log zerolog.Logger) *cobra.Command {
	opts := &buildOptions{
		mode:                "nonpositional",
		maxBlocks:           64,
		dfCutoff:            9,
		bloomK:              4,
		bloomBitsPerElement: 10,
		arenaWords:          defaultArenaWords,
	}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Index a tokenized corpus into an index directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(log, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.input, "input", "-", "corpus path, URL, or - for stdin")
	flags.BoolVar(&opts.gzip, "gzip", false, "force gzip decompression regardless of file extension")
	flags.StringVar(&opts.out, "out", "", "index output directory (required)")
	flags.StringVar(&opts.mode, "mode", opts.mode, "postings mode: nonpositional, tfonly, or positional")
	flags.Int32Var(&opts.maxBlocks, "max-blocks", opts.maxBlocks, "cap on per-term buffer growth, in block units")
	flags.Int32Var(&opts.dfCutoff, "df-cutoff", opts.dfCutoff, "document frequency at which a term promotes to block buffering")
	flags.BoolVar(&opts.reverse, "reverse", false, "build chains in reverse (descending docid) order")
	flags.BoolVar(&opts.vectors, "vectors", false, "build per-document compressed term-id vectors")
	flags.BoolVar(&opts.bloom, "bloom", false, "attach a Bloom filter to every postings block")
	flags.IntVar(&opts.bloomK, "bloom-k", opts.bloomK, "number of Bloom filter hash functions")
	flags.Float64Var(&opts.bloomBitsPerElement, "bloom-bits-per-element", opts.bloomBitsPerElement, "Bloom filter bits per element")
	flags.Int32Var(&opts.arenaWords, "arena-words", opts.arenaWords, "word capacity of each pool arena")
	cmd.MarkFlagRequired("out")

	return cmd
}

func parseMode(s string) (segpool.Mode, error) {
	switch s {
	case "nonpositional":
		return segpool.ModeNonPositional, nil
	case "tfonly":
		return segpool.ModeTfOnly, nil
	case "positional":
		return segpool.ModePositional, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want nonpositional, tfonly, or positional)", s)
	}
}

func runBuild(log zerolog.Logger, opts *buildOptions) error {
	mode, err := parseMode(opts.mode)
	if err != nil {
		log.Error().Err(err).Str("component", "config").Msg("invalid mode flag")
		return err
	}
	if opts.maxBlocks < 1 {
		err := fmt.Errorf("--max-blocks must be >= 1, got %d", opts.maxBlocks)
		log.Error().Err(err).Str("component", "config").Msg("invalid max-blocks flag")
		return err
	}

	reader, err := corpus.Open(opts.input, opts.gzip)
	if err != nil {
		log.Error().Err(err).Str("component", "io").Msg("opening corpus")
		return err
	}
	defer reader.Close()

	bloomK := 0
	if opts.bloom {
		bloomK = opts.bloomK
	}
	pool := segpool.New(opts.arenaWords, opts.reverse, opts.bloom, bloomK, opts.bloomBitsPerElement)
	ix := indexer.New(indexer.Config{
		DfCutoff:       opts.dfCutoff,
		MaxBlocks:      opts.maxBlocks,
		Mode:           mode,
		VectorsEnabled: opts.vectors,
	}, pool)

	var nDocs int
	for {
		doc, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Error().Err(err).Str("component", "io").Msg("reading corpus")
			return err
		}
		if err := ix.AddDocument(doc.DocID, doc.Tokens); err != nil {
			log.Error().Err(err).Str("component", "semantic").Int32("docid", doc.DocID).Msg("indexing document")
			return err
		}
		nDocs++
	}

	if err := ix.Close(); err != nil {
		log.Error().Err(err).Str("component", "capacity").Msg("flushing final blocks")
		return err
	}

	if err := persist.WriteIndex(opts.out, pool, ix.Pointers, ix.Dictionary, ix.Vectors); err != nil {
		log.Error().Err(err).Str("component", "io").Msg("writing index")
		return err
	}

	log.Info().
		Int("documents", nDocs).
		Int("terms", ix.Dictionary.Size()).
		Str("out", opts.out).
		Msg("index built")
	return nil
}
