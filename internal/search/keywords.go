package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true, "not": true,
	"all": true, "any": true, "about": true, "into": true, "than": true, "then": true,
	"there": true, "their": true, "our": true, "your": true, "its": true, "also": true,
	"just": true, "some": true, "such": true, "only": true, "use": true, "using": true,
}

const (
	minKeywordLen = 3
	stemLen       = 4
	minStemSource = 6
)

// Keywords lowercases text and returns its distinct terms, dropping
// stopwords and terms shorter than three characters.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '_'
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minKeywordLen || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// stem is the leading four characters of a keyword of six or more, used
// for partial matches ("authentication" matches "AuthError").
func stem(kw string) string {
	if utf8.RuneCountInString(kw) < minStemSource {
		return ""
	}
	return string([]rune(kw)[:stemLen])
}

// matchFraction scores content against keywords: a whole keyword counts
// one, a stem-only match counts half.
func matchFraction(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	var score float64
	for _, kw := range keywords {
		switch {
		case strings.Contains(lower, kw):
			score++
		case stem(kw) != "" && strings.Contains(lower, stem(kw)):
			score += 0.5
		}
	}
	return score / float64(len(keywords))
}

// candidateTerms are the substrings the store is asked to match.
func candidateTerms(keywords []string) []string {
	out := make([]string, 0, 2*len(keywords))
	seen := make(map[string]bool)
	for _, kw := range keywords {
		for _, t := range []string{kw, stem(kw)} {
			if t != "" && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
