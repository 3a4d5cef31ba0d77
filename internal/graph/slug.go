package graph

import (
	"strings"
	"unicode"
)

// accentFold maps common accented Latin runes to their ASCII base letter.
// Entity names arrive in French and English, so the table covers the Latin-1
// and Latin Extended-A ranges that actually show up in conversation.
var accentFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'ç': 'c', 'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ñ': 'n', 'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ý': 'y', 'ÿ': 'y',
	'œ': 'o', 'æ': 'a',
	'š': 's', 'ž': 'z',
}

// Slugify derives the stable entity identifier from a display name:
// lower-cased, accents stripped, every non-alphanumeric run replaced with a
// single underscore. Collision handling (numeric suffix) is the store's job,
// not the slugger's.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := true // suppress a leading underscore
	for _, r := range strings.ToLower(name) {
		if folded, ok := accentFold[r]; ok {
			r = folded
		}
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "_")
	if slug == "" {
		slug = "entity"
	}
	return slug
}

// normalizeName lower-cases and accent-folds a name for comparison purposes
// (case-insensitive lookup, fuzzy-merge similarity).
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if folded, ok := accentFold[r]; ok {
			r = folded
		}
		b.WriteRune(r)
	}
	return b.String()
}
