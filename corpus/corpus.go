// Package corpus reads tokenized document lines of the form
// "<docid>\t<space-separated tokens>", the Indexer's only input format
// (spec §6). Input may come from a local file, an http(s) URL, or stdin,
// mirroring fetcher.FetchJson's path-or-URL duality, and may be gzip
// compressed (detected by a ".gz" suffix or forced via Open's forceGzip
// argument).
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// Document is one parsed corpus line.
type Document struct {
	DocID  int32
	Tokens []string
}

// Reader streams Documents from an underlying line source.
type Reader struct {
	scanner *bufio.Scanner
	closers []io.Closer
	line    int
}

// Open opens path for reading. path may be "-" for stdin, an http(s) URL,
// or a local file path; forceGzip treats the stream as gzip-compressed
// even without a ".gz" suffix.
func Open(path string, forceGzip bool) (*Reader, error) {
	var raw io.Reader
	var closers []io.Closer

	switch {
	case path == "-":
		raw = os.Stdin
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		resp, err := http.Get(path)
		if err != nil {
			return nil, fmt.Errorf("corpus: fetching %s: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("corpus: fetching %s: non-ok status %s", path, resp.Status)
		}
		raw = resp.Body
		closers = append(closers, resp.Body)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("corpus: opening %s: %w", path, err)
		}
		raw = f
		closers = append(closers, f)
	}

	if forceGzip || strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(raw)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("corpus: opening gzip stream for %s: %w", path, err)
		}
		raw = zr
		closers = append(closers, zr)
	}

	return &Reader{scanner: bufio.NewScanner(raw), closers: closers}, nil
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
}

// Next returns the next Document, or io.EOF once the source is exhausted.
// Blank lines are skipped; a malformed line (missing tab, unparsable docid)
// is a Semantic error per spec §7.
func (r *Reader) Next() (Document, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return Document{}, fmt.Errorf("corpus: line %d: missing docid/token separator", r.line)
		}
		docid, err := strconv.ParseInt(line[:tab], 10, 32)
		if err != nil {
			return Document{}, fmt.Errorf("corpus: line %d: invalid docid %q: %w", r.line, line[:tab], err)
		}
		tokens := strings.Fields(line[tab+1:])
		return Document{DocID: int32(docid), Tokens: tokens}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Document{}, fmt.Errorf("corpus: reading: %w", err)
	}
	return Document{}, io.EOF
}

// Close releases the underlying stream(s).
func (r *Reader) Close() error {
	closeAll(r.closers)
	return nil
}
