package feed

import (
	"errors"
	"testing"

	"github.com/deusflow/roomwatch/internal/listing"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Rooms</title>
  <link>https://rooms.example</link>
  <description>Shared flats</description>
  <item>
    <title>Room in Oerlikon</title>
    <link>https://rooms.example/ad/17?utm_source=rss</link>
    <guid>ad-17</guid>
    <category>Zürich</category>
    <description>Bright   room,
      balcony</description>
    <pubDate>Tue, 12 Mar 2024 08:30:00 +0000</pubDate>
  </item>
  <item>
    <title>Studio near the lake</title>
    <link>https://rooms.example/ad/18#photos</link>
    <category>Genève</category>
  </item>
  <item>
    <title>No identity at all</title>
    <category>Bern</category>
  </item>
</channel>
</rss>`

func TestParseRSS(t *testing.T) {
	batch, err := NewParser().Parse([]byte(rssDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Listings) != 2 {
		t.Fatalf("listings: %d, want 2", len(batch.Listings))
	}
	if len(batch.Skipped) != 1 || !errors.Is(batch.Skipped[0], listing.ErrNoIdentity) {
		t.Fatalf("skipped: %v", batch.Skipped)
	}

	a := batch.Listings[0]
	if a.ID != "ad-17" {
		t.Errorf("guid identity: %q", a.ID)
	}
	if a.Fields.Link != "https://rooms.example/ad/17" {
		t.Errorf("link: %q", a.Fields.Link)
	}
	if a.Locality != "Zürich" {
		t.Errorf("locality: %q", a.Locality)
	}
	if a.Fields.Summary != "Bright room, balcony" {
		t.Errorf("summary: %q", a.Fields.Summary)
	}
	if a.Fields.Published != "2024-03-12T08:30:00Z" {
		t.Errorf("published: %q", a.Fields.Published)
	}

	b := batch.Listings[1]
	if b.ID != "https://rooms.example/ad/18" {
		t.Errorf("link identity: %q", b.ID)
	}
	if b.Locality != "Genève" {
		t.Errorf("locality: %q", b.Locality)
	}
}

func TestParseAtom(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Rooms</title>
  <id>urn:rooms</id>
  <updated>2024-03-12T08:30:00Z</updated>
  <entry>
    <title>Room in Winterthur</title>
    <id>urn:rooms:42</id>
    <link href="https://rooms.example/ad/42"/>
    <category term="Winterthur"/>
    <updated>2024-03-12T08:30:00Z</updated>
  </entry>
</feed>`
	batch, err := NewParser().Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Listings) != 1 {
		t.Fatalf("listings: %d", len(batch.Listings))
	}
	if l := batch.Listings[0]; l.ID != "urn:rooms:42" || l.Locality != "Winterthur" {
		t.Errorf("listing: %+v", l)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := NewParser().Parse(nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := NewParser().Parse([]byte("definitely not a feed")); err == nil {
		t.Error("expected error for non-feed input")
	}
}

func TestCanonicalLink(t *testing.T) {
	tests := map[string]string{
		"https://x.example/a?b=1#c": "https://x.example/a",
		"  https://x.example/a  ":   "https://x.example/a",
		"/relative?q=1":             "/relative?q=1",
		"":                          "",
	}
	for in, want := range tests {
		if got := canonicalLink(in); got != want {
			t.Errorf("canonicalLink(%q) = %q, want %q", in, got, want)
		}
	}
}
