package segpool

// Mode records which optional payloads a postings block carries. Spec §9's
// first Open Question flags the original layout's reqspace-arithmetic mode
// inference as fragile; this implementation stores Mode explicitly in the
// block header instead (see headerWords below).
type Mode int32

const (
	ModeNonPositional Mode = iota
	ModeTfOnly
	ModePositional
)

// Block header field offsets, word-indexed from the start of the block.
// headerWords is the number of header words up to and including dcsize —
// i.e. the docid payload starts at offset headerWords.
const (
	offReqspace     = 0
	offNextSegment  = 1
	offNextOffset   = 2
	offMaxDocid     = 3
	offBloomBase    = 4
	offLen          = 5
	offMode         = 6
	offDcsize       = 7
	headerWords     = 8
	wordsPerFilter  = 2 // one filter uint64 word is stored as two int32 words
)
