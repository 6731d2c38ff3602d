package compression

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

// DefaultMaxLines is the line budget used when none is configured.
const DefaultMaxLines = 10

// LineSummarizer keeps the first MaxLines lines of the content.
type LineSummarizer struct {
	maxLines  int
	estimator tokens.Estimator
}

var _ Summarizer = (*LineSummarizer)(nil)

// NewLineSummarizer returns a LineSummarizer. maxLines <= 0 uses DefaultMaxLines.
func NewLineSummarizer(maxLines int, est tokens.Estimator) *LineSummarizer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if est == nil {
		est = tokens.Heuristic{}
	}
	return &LineSummarizer{maxLines: maxLines, estimator: est}
}

// Summarize implements Summarizer.
func (s *LineSummarizer) Summarize(content string) (string, int, bool) {
	full := s.estimator.Count(content)
	if full <= 1 {
		return "", 0, false
	}

	lines := strings.Split(content, "\n")
	if len(lines) > s.maxLines {
		head := strings.Join(lines[:s.maxLines], "\n")
		summary := fmt.Sprintf("%s\n... (+%d more lines)", head, len(lines)-s.maxLines)
		if n := s.estimator.Count(summary); n < full {
			return summary, n, true
		}
	}

	// Few, very long lines: cut by runes instead.
	return cutRunes(content, full, s.estimator)
}

// cutRunes shortens content until its estimate is below full. The marker
// reports how many runes were dropped.
func cutRunes(content string, full int, est tokens.Estimator) (string, int, bool) {
	runes := []rune(content)
	keep := len(runes) / 2
	for keep > 0 {
		summary := fmt.Sprintf("%s ... (+%d more chars)", strings.TrimSpace(string(runes[:keep])), len(runes)-keep)
		if n := est.Count(summary); n < full {
			return summary, n, true
		}
		keep /= 2
	}
	return "", 0, false
}
