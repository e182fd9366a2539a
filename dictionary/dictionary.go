// Package dictionary implements the bidirectional term<->termid map every
// other component addresses terms through.
package dictionary

// Dictionary maps terms to dense, insertion-ordered termids and back.
type Dictionary struct {
	ids   map[string]int32
	terms []string
}

// New returns an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{ids: make(map[string]int32)}
}

// SetTermId returns term's existing id if present; otherwise it inserts
// term with id tentativeId and returns tentativeId. Callers drive id
// assignment (typically len(terms) at call time) so the Indexer can assign
// ids without the Dictionary needing to track a counter itself.
func (d *Dictionary) SetTermId(term string, tentativeId int32) int32 {
	if id, ok := d.ids[term]; ok {
		return id
	}
	d.ids[term] = tentativeId
	if int(tentativeId) >= len(d.terms) {
		grown := make([]string, tentativeId+1)
		copy(grown, d.terms)
		d.terms = grown
	}
	d.terms[tentativeId] = term
	return tentativeId
}

// GetTermId returns term's id, or -1 if term has never been inserted.
func (d *Dictionary) GetTermId(term string) int32 {
	if id, ok := d.ids[term]; ok {
		return id
	}
	return -1
}

// GetTerm returns the term for id, or "" if id is out of range.
func (d *Dictionary) GetTerm(id int32) string {
	if id < 0 || int(id) >= len(d.terms) {
		return ""
	}
	return d.terms[id]
}

// Size returns the number of distinct terms held.
func (d *Dictionary) Size() int {
	return len(d.ids)
}

// Entries returns the (term, id) pairs in termid order, the layout the
// persist package writes as the flat on-disk dictionary table.
func (d *Dictionary) Entries() []Entry {
	entries := make([]Entry, len(d.terms))
	for id, term := range d.terms {
		entries[id] = Entry{Term: term, Id: int32(id)}
	}
	return entries
}

// Entry is one row of the flat (term, id) persisted table.
type Entry struct {
	Term string
	Id   int32
}

// Load rebuilds a Dictionary from entries previously produced by Entries,
// as read back by the persist package.
func Load(entries []Entry) *Dictionary {
	d := New()
	for _, e := range entries {
		d.SetTermId(e.Term, e.Id)
	}
	return d
}
