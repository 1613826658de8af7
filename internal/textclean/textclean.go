// Package textclean restricts extracted text to printable ASCII before it is embedded.
package textclean

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// allowed reports whether r survives normalization: printable ASCII plus tab, newline and carriage return.
func allowed(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return true
	}
	return r >= 0x20 && r <= 0x7E
}

// Normalize drops every character outside printable ASCII, tab, LF and CR.
// Malformed UTF-8 never causes an error; the offending bytes are removed.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return !allowed(r) })),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if allowed(r) {
				return r
			}
			return -1
		}, strings.ToValidUTF8(text, ""))
	}
	return out
}
