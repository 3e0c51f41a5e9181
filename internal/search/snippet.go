package search

import (
	"strings"
	"unicode/utf8"
)

const snippetMaxLen = 300

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "can": {}, "what": {}, "how": {}, "why": {}, "when": {},
	"where": {}, "who": {},
}

// queryTerms lowercases the query and drops stop words and short tokens.
func queryTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if len(word) <= 2 {
			continue
		}
		if _, ok := stopWords[word]; ok {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// buildSnippet extracts a window of at most maxLen characters containing as
// many of the query terms as possible. Cut edges that are not the start or
// end of the original text are marked with ellipses.
func buildSnippet(text string, terms []string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}

	lower := strings.ToLower(text)
	bestStart := 0
	bestCount := -1
	for _, start := range windowStarts(lower, terms, maxLen) {
		count := 0
		window := lower[start:min(start+maxLen, len(lower))]
		for _, term := range terms {
			if strings.Contains(window, term) {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestStart = start
		}
	}

	// Window edges must not split a multi-byte rune.
	start := bestStart
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := min(start+maxLen, len(text))
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

// windowStarts proposes candidate window offsets: the text start plus each
// term occurrence, clamped so the window never runs past the end.
func windowStarts(lower string, terms []string, maxLen int) []int {
	starts := []int{0}
	limit := len(lower) - maxLen
	for _, term := range terms {
		from := 0
		for {
			idx := strings.Index(lower[from:], term)
			if idx < 0 {
				break
			}
			at := from + idx
			starts = append(starts, min(at, limit))
			from = at + len(term)
		}
	}
	return starts
}
