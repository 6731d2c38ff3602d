package compression

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

// ExtractiveSummarizer selects sentences by score until a token target.
type ExtractiveSummarizer struct {
	targetTokens int
	estimator    tokens.Estimator
}

var _ Summarizer = (*ExtractiveSummarizer)(nil)

// NewExtractiveSummarizer returns an ExtractiveSummarizer. targetTokens <= 0
// defaults to 120.
func NewExtractiveSummarizer(targetTokens int, est tokens.Estimator) *ExtractiveSummarizer {
	if targetTokens <= 0 {
		targetTokens = 120
	}
	if est == nil {
		est = tokens.Heuristic{}
	}
	return &ExtractiveSummarizer{targetTokens: targetTokens, estimator: est}
}

// Summarize implements Summarizer.
func (s *ExtractiveSummarizer) Summarize(content string) (string, int, bool) {
	full := s.estimator.Count(content)
	if full <= 1 {
		return "", 0, false
	}

	sentences := SplitSentences(content)
	if len(sentences) > 1 {
		target := s.targetTokens
		if target >= full {
			target = full - 1
		}
		summary := strings.Join(selectSentences(sentences, scoreSentences(sentences), target, s.estimator), " ")
		if n := s.estimator.Count(summary); summary != "" && n < full {
			return summary, n, true
		}
	}
	return cutRunes(content, full, s.estimator)
}

// SplitSentences splits text on terminal punctuation followed by space or
// end of text, and on blank lines. Fragments of ten characters or fewer are
// merged into the following sentence.
func SplitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	runes := []rune(text)
	flush := func(force bool) {
		s := strings.TrimSpace(current.String())
		if s == "" {
			current.Reset()
			return
		}
		if force || len(s) > 10 {
			sentences = append(sentences, s)
			current.Reset()
		}
	}
	for i, r := range runes {
		current.WriteRune(r)
		atEnd := i+1 == len(runes)
		switch {
		case r == '.' || r == '!' || r == '?':
			if atEnd || unicode.IsSpace(runes[i+1]) {
				flush(false)
			}
		case r == '\n' && !atEnd && runes[i+1] == '\n':
			flush(true)
		}
	}
	flush(true)
	return sentences
}

func scoreSentences(sentences []string) []float64 {
	freq := wordFrequency(sentences)
	scores := make([]float64, len(sentences))
	for i, sentence := range sentences {
		words := strings.Fields(sentence)

		score := 0.3 / (float64(i) + 1.0)

		lengthScore := math.Min(float64(len(words))/20.0, 1.0)
		if len(words) > 20 {
			lengthScore = math.Max(1.0-(float64(len(words))-20.0)/50.0, 0.1)
		}
		score += lengthScore * 0.4

		var freqScore float64
		for _, w := range words {
			if f := freq[normalizeWord(w)]; f > 1 {
				freqScore += 1.0 / float64(f)
			}
		}
		if len(words) > 0 {
			freqScore /= float64(len(words))
		}
		scores[i] = score + freqScore*0.3
	}
	return scores
}

func wordFrequency(sentences []string) map[string]int {
	freq := make(map[string]int)
	for _, s := range sentences {
		for _, w := range strings.Fields(s) {
			if w = normalizeWord(w); len(w) > 2 {
				freq[w]++
			}
		}
	}
	return freq
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}

func selectSentences(sentences []string, scores []float64, target int, est tokens.Estimator) []string {
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	chosen := make([]int, 0, len(order))
	used := 0
	for _, idx := range order {
		n := est.Count(sentences[idx]) + 1
		if used+n > target {
			continue
		}
		chosen = append(chosen, idx)
		used += n
	}
	sort.Ints(chosen)

	out := make([]string, len(chosen))
	for i, idx := range chosen {
		out[i] = sentences[idx]
	}
	return out
}
