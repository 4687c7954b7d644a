package join

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText lower-cases s, folds diacritics, turns punctuation into
// spaces and collapses whitespace. "St. Pancras  Station" and
// "st pancras station" normalize equal.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// Apostrophes join words: "St John's" -> "st johns".
		default:
			space = true
		}
	}
	return b.String()
}

// NormalizePostcode upper-cases and removes whitespace. Values shorter than
// five characters cannot be full UK postcodes and normalize to "".
func NormalizePostcode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() < 5 {
		return ""
	}
	return b.String()
}

// NormalizeReference canonicalizes a property reference. Numeric references
// lose leading zeros, and float renderings from spreadsheet exports
// ("100023336956.0") are accepted. Any other identifier ("UPRN123") is kept
// as is, upper-cased. Blank, zero and null-like placeholders normalize to "".
func NormalizeReference(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "n/a":
		return ""
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n == 0 {
			return ""
		}
		return strconv.FormatUint(n, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		switch {
		case f == 0:
			return ""
		case f > 0 && f < 1<<53 && f == float64(uint64(f)):
			return strconv.FormatUint(uint64(f), 10)
		}
	}
	return strings.ToUpper(s)
}
