package region

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// umlautFold maps the German two-letter spellings of umlauts onto their base
// letter so "Zuerich" and "Zürich" meet at "zurich".
var umlautFold = strings.NewReplacer("ae", "a", "oe", "o", "ue", "u")

// Normalize strips diacritics, folds case and umlaut spellings, and collapses
// whitespace. Table keys, table values and lookups all go through it.
func Normalize(s string) string {
	// transform chains keep state, so one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(strings.Join(strings.Fields(out), " "))
	return umlautFold.Replace(out)
}
