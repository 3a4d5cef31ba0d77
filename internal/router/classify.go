package router

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// classification is the cheap, network-free triage of one request. It drives
// every enrichment-gating decision downstream.
type classification struct {
	// memoryCommand is true when the text starts with a configured memory
	// prefix; payload then holds the remainder to store verbatim.
	memoryCommand bool
	payload       string

	// question is true when the text carries a question marker.
	question bool

	// short is true when the word count is at or below the threshold.
	short bool
}

// questionWords are leading interrogatives that mark a request as
// question-shaped even without a "?" (speech transcripts rarely have one).
var questionWords = []string{
	"est-ce", "qui", "que", "quoi", "où", "ou", "quand", "comment",
	"pourquoi", "quel", "quelle", "quels", "quelles", "combien",
	"what", "who", "where", "when", "why", "how", "which",
	"do", "does", "is", "are", "can",
}

// cutPrefixFold strips prefix from s under simple case folding and reports
// whether it matched. Folding rune by rune keeps the slice aligned even for
// runes whose lowercase form has a different UTF-8 length (e.g. U+0130).
func cutPrefixFold(s, prefix string) (string, bool) {
	for _, pr := range prefix {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(pr) {
			return "", false
		}
		s = s[size:]
	}
	return s, true
}

// classify performs the fast, no-network classification of a request.
func classify(text string, memoryPrefixes []string, shortThreshold int) classification {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	var c classification

	for _, prefix := range memoryPrefixes {
		if rest, ok := cutPrefixFold(trimmed, prefix); ok {
			c.memoryCommand = true
			c.payload = strings.TrimSpace(rest)
			break
		}
	}

	words := strings.Fields(lower)
	c.short = len(words) <= shortThreshold

	if strings.Contains(trimmed, "?") {
		c.question = true
	} else if len(words) > 0 {
		first := strings.Trim(words[0], ",.!;:")
		for _, q := range questionWords {
			if first == q {
				c.question = true
				break
			}
		}
	}

	return c
}
