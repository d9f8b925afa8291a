package facet

import (
	"strings"
	"unicode"
)

// Slugify normalizes a human-readable name into a stable machine key:
// lowercase ASCII letters and digits with single underscores between words.
// Deterministic, pure, and total over any printable input; runs of
// whitespace, hyphens and underscores collapse to one underscore, all other
// runes are dropped. Non-ASCII letters are dropped rather than
// transliterated. Collision detection is the attribute store's job, not
// this function's.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingSep = true
		}
	}

	return b.String()
}
