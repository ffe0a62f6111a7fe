// Package citation normalizes case citations into canonical keys.
//
// The canonical form is the dedup key for merged result sets: the same
// decision reported by two sources ("2024 FC 123" vs "2024  fc 123.")
// must collapse to one key. Normalization is lossy on purpose — it keeps
// only lowercase alphanumeric tokens separated by single spaces.
package citation

import (
	"regexp"
	"strings"
)

// nonAlnum matches every run of characters that is not a letter or digit.
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize returns the canonical form of a citation: lowercased,
// punctuation stripped, whitespace collapsed to single spaces.
//
//	Normalize("2024 FC 123")    == "2024 fc 123"
//	Normalize("2024 F.C. 123.") == "2024 fc 123"
//
// Periods are removed before tokenizing so "F.C." and "FC" agree.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	// Periods inside abbreviations ("F.C.", "S.C.R.") join, they do not
	// separate.
	s = strings.ReplaceAll(s, ".", "")
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Equal reports whether two raw citations normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) != "" && Normalize(a) == Normalize(b)
}

// ContainedIn reports whether the normalized citation appears as a
// substring of the normalized text. Used for exact citation/docket match
// scoring against a query.
func ContainedIn(rawCitation, text string) bool {
	key := Normalize(rawCitation)
	if key == "" {
		return false
	}
	return strings.Contains(Normalize(text), key)
}
