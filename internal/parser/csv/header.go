package csv

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CanonicalizeHeader trims, de-accents, lowercases, and underscores a raw
// header cell so that the needed-column membership check is insensitive to the
// cosmetic variation seen in real dumps ("Author ID", "author_id", BOM
// prefixes, combining accents).
func CanonicalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	if ascii, _, err := transform.String(t, s); err == nil {
		s = ascii
	}

	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
