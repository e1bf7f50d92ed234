package wgzimmer

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/roomwatch/internal/listing"
)

// BaseURL is the origin relative entry links are resolved against.
const BaseURL = "https://www.wgzimmer.ch"

const entrySelector = ".search-result-entry.search-mate-entry"

var errEmptySnapshot = errors.New("wgzimmer: empty snapshot")

// Parser turns a search result page into listings.
type Parser struct {
	base *url.URL
}

// NewParser returns a parser resolving links against base. An empty base
// means BaseURL.
func NewParser(base string) (*Parser, error) {
	if base == "" {
		base = BaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("wgzimmer: base url: %w", err)
	}
	return &Parser{base: u}, nil
}

// Parse extracts every result entry. An entry without a usable link has no
// identity and is recorded as skipped.
func (p *Parser) Parse(raw []byte) (*listing.Batch, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptySnapshot
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("wgzimmer: parse html: %w", err)
	}

	batch := &listing.Batch{}
	doc.Find(entrySelector).Each(func(i int, s *goquery.Selection) {
		l, err := p.entry(s)
		if err != nil {
			batch.Skip(i, err)
			return
		}
		batch.Listings = append(batch.Listings, l)
	})
	return batch, nil
}

func (p *Parser) entry(s *goquery.Selection) (listing.Listing, error) {
	href, ok := s.Find("a[href]").First().Attr("href")
	if !ok {
		href, _ = s.Attr("href")
	}
	link, err := p.canonical(href)
	if err != nil {
		return listing.Listing{}, err
	}

	state := s.Find(".state").First()
	locality := text(state.Find("strong").First())
	if locality == "" {
		locality = text(state)
	}

	return listing.New(link, locality, listing.Fields{
		Title:     text(state),
		Price:     text(s.Find(".cost strong").First()),
		Link:      link,
		Available: text(s.Find(".from-date strong").First()),
		Published: text(s.Find(".create-date strong").First()),
	})
}

// canonical resolves href to an absolute link without query or fragment.
// The link doubles as the listing ID.
func (p *Parser) canonical(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", listing.ErrNoIdentity
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", listing.ErrNoIdentity, err)
	}
	u := p.base.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""
	if u.Path == "" || u.Path == "/" {
		return "", listing.ErrNoIdentity
	}
	return u.String(), nil
}

// text returns the collapsed visible text of s.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
