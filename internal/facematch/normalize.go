package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a display name for lookup (lowercase, no
// diacritics, spaces for dashes and underscores, collapsed whitespace).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeOrgCode turns an organization code into the key used to scope
// galleries: lowercase, ASCII, underscores for dashes and spaces.
func NormalizeOrgCode(org string) string {
	org = RemoveDiacritics(strings.TrimSpace(org))
	org = strings.ToLower(org)
	return strings.NewReplacer("-", "_", " ", "_").Replace(org)
}
