package listing

// Set is an insertion-ordered collection of listings keyed by ID. The zero
// value is an empty set. A Set is never modified after construction.
type Set struct {
	items []Listing
	index map[string]int
}

// NewSet builds a set from ls. When several listings share an ID the first
// one wins.
func NewSet(ls []Listing) Set {
	s := Set{
		items: make([]Listing, 0, len(ls)),
		index: make(map[string]int, len(ls)),
	}
	for _, l := range ls {
		if _, dup := s.index[l.ID]; dup {
			continue
		}
		s.index[l.ID] = len(s.items)
		s.items = append(s.items, l)
	}
	return s
}

// Len returns the number of listings.
func (s Set) Len() int { return len(s.items) }

// Contains reports whether a listing with id is present.
func (s Set) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the listing with id.
func (s Set) Get(id string) (Listing, bool) {
	i, ok := s.index[id]
	if !ok {
		return Listing{}, false
	}
	return s.items[i], true
}

// Listings returns a copy of the listings in insertion order.
func (s Set) Listings() []Listing {
	out := make([]Listing, len(s.items))
	copy(out, s.items)
	return out
}

// IDs returns the listing IDs in insertion order.
func (s Set) IDs() []string {
	out := make([]string, len(s.items))
	for i, l := range s.items {
		out[i] = l.ID
	}
	return out
}

// Equal reports whether both sets hold the same IDs, ignoring order.
func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, l := range s.items {
		if !o.Contains(l.ID) {
			return false
		}
	}
	return true
}

// Diff compares prev and next by ID. added keeps next's order, removed keeps
// prev's order.
func Diff(prev, next Set) (added, removed []Listing) {
	for _, l := range next.items {
		if !prev.Contains(l.ID) {
			added = append(added, l)
		}
	}
	for _, l := range prev.items {
		if !next.Contains(l.ID) {
			removed = append(removed, l)
		}
	}
	return added, removed
}
