// Package feed parses RSS and Atom classifieds feeds into listings.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/roomwatch/internal/listing"
)

var errEmptyFeed = errors.New("feed: empty snapshot")

// Parser decodes a feed document. It is safe for concurrent use.
type Parser struct {
	// LocationKey is the custom element carrying the locality.
	LocationKey string
	// PriceKey is the custom element carrying the price.
	PriceKey string
}

// NewParser returns a parser reading <location> and <price> elements.
func NewParser() *Parser {
	return &Parser{LocationKey: "location", PriceKey: "price"}
}

// Parse turns every feed item into a listing. Items with neither a GUID
// nor a link have no identity and are skipped.
func (p *Parser) Parse(raw []byte) (*listing.Batch, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptyFeed
	}
	f, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("feed: parse: %w", err)
	}

	batch := &listing.Batch{}
	for i, item := range f.Items {
		if item == nil {
			continue
		}
		l, err := p.item(item)
		if err != nil {
			batch.Skip(i, err)
			continue
		}
		batch.Listings = append(batch.Listings, l)
	}
	return batch, nil
}

func (p *Parser) item(item *gofeed.Item) (listing.Listing, error) {
	link := canonicalLink(item.Link)
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = link
	}

	return listing.New(id, p.locality(item), listing.Fields{
		Title:     strings.TrimSpace(item.Title),
		Price:     strings.TrimSpace(item.Custom[p.PriceKey]),
		Link:      link,
		Published: published(item),
		Summary:   strings.Join(strings.Fields(item.Description), " "),
	})
}

func (p *Parser) locality(item *gofeed.Item) string {
	if v := strings.TrimSpace(item.Custom[p.LocationKey]); v != "" {
		return v
	}
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func published(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	}
	return strings.TrimSpace(item.Published)
}

// canonicalLink drops query and fragment from an absolute link. Anything
// that does not parse is returned trimmed.
func canonicalLink(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || !u.IsAbs() {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
