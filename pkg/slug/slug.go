package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxLen caps generated slugs so ids stay readable in paths and logs.
const maxLen = 30

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts an arbitrary display name into a lowercase identifier
// suitable for filenames and record ids: diacritics removed, whitespace
// and dashes collapsed to underscores, everything else dropped.
func Make(text string) string {
	if folded, _, err := transform.String(stripMarks, text); err == nil {
		text = folded
	}
	text = strings.ToLower(strings.TrimSpace(text))

	var b strings.Builder
	pendingSep := false
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			pendingSep = true
		}
	}

	s := b.String()
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "_")
	}
	return s
}

// Character returns the canonical id for a character name.
func Character(name string) string { return "char_" + Make(name) }

// Location returns the canonical id for a location name.
func Location(name string) string { return "loc_" + Make(name) }
