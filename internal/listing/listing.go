// Package listing defines the canonical shape of one classified listing and
// the identity-based set operations the polling engine diffs with.
package listing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoIdentity is returned when a fragment cannot be given a stable ID.
var ErrNoIdentity = errors.New("listing: no identity")

// Fields is the presentation data of a listing. The engine never reads it.
type Fields struct {
	Title     string `json:"title,omitempty"`
	Price     string `json:"price,omitempty"`
	Link      string `json:"link,omitempty"`
	Available string `json:"available,omitempty"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// Listing is one classified entry extracted from a source snapshot.
// Two listings are the same listing iff their IDs are equal.
type Listing struct {
	ID       string `json:"id"`
	Locality string `json:"locality,omitempty"`
	// Region is the resolved canonical region, empty when unresolved.
	Region string `json:"region,omitempty"`
	Fields Fields `json:"fields"`
}

// New builds a listing, rejecting a blank ID.
func New(id, locality string, fields Fields) (Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Listing{}, ErrNoIdentity
	}
	return Listing{ID: id, Locality: strings.TrimSpace(locality), Fields: fields}, nil
}

// Equal reports whether l and o denote the same listing.
func (l Listing) Equal(o Listing) bool { return l.ID == o.ID }

// HasRegion reports whether region resolution succeeded.
func (l Listing) HasRegion() bool { return l.Region != "" }

// WithRegion returns a copy of l carrying region.
func (l Listing) WithRegion(region string) Listing {
	l.Region = region
	return l
}

func (l Listing) String() string {
	if l.Fields.Title != "" {
		return fmt.Sprintf("%s (%s)", l.ID, l.Fields.Title)
	}
	return l.ID
}

// FragmentError describes one raw fragment the parser had to skip.
type FragmentError struct {
	Index int
	Err   error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("fragment %d: %v", e.Index, e.Err)
}

func (e *FragmentError) Unwrap() error { return e.Err }

// Batch is the outcome of parsing one snapshot.
type Batch struct {
	Listings []Listing
	Skipped  []*FragmentError
}

// Skip records a skipped fragment.
func (b *Batch) Skip(index int, err error) {
	b.Skipped = append(b.Skipped, &FragmentError{Index: index, Err: err})
}
