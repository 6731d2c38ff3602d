package search

import (
	"strings"

	"github.com/fyrsmithlabs/ctxgraph/internal/compression"
)

// Highlights returns up to max sentences of content that contain a
// keyword or a keyword stem, in their original order.
func Highlights(content string, keywords []string, max int) []string {
	if len(keywords) == 0 || max <= 0 {
		return nil
	}
	terms := candidateTerms(keywords)
	var out []string
	for _, sentence := range compression.SplitSentences(content) {
		lower := strings.ToLower(sentence)
		for _, kw := range terms {
			if strings.Contains(lower, kw) {
				out = append(out, sentence)
				break
			}
		}
		if len(out) == max {
			break
		}
	}
	return out
}
