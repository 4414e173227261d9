package provider

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, trims, folds accents and collapses whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// containsWord reports whether word occurs in text delimited by
// non-alphanumeric runes (or the ends of text).
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	from := 0
	for {
		idx := strings.Index(text[from:], word)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(word)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return true
		}
		from = start + 1
	}
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := rune(text[i])
	if c >= 0x80 {
		// Part of a multibyte rune: accented letters count as word chars.
		return false
	}
	return !unicode.IsLetter(c) && !unicode.IsDigit(c)
}

// slug keeps ASCII letters and digits only.
func slug(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
