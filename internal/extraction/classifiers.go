package extraction

import (
	"strings"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// CodeClassifier emits one candidate per non-empty fenced block.
type CodeClassifier struct{}

var _ Classifier = CodeClassifier{}

// Name implements Classifier.
func (CodeClassifier) Name() string { return string(ctxitem.TypeCode) }

// Classify implements Classifier.
func (CodeClassifier) Classify(doc *Document) []Candidate {
	var out []Candidate
	for _, f := range doc.Fences {
		body := strings.TrimRight(f.Body, "\n\r\t ")
		if strings.TrimSpace(body) == "" {
			continue
		}
		lang := strings.ToLower(f.Language)
		if lang == "" {
			lang = "plaintext"
		}
		out = append(out, Candidate{
			Type:     ctxitem.TypeCode,
			Content:  body,
			Offset:   f.Start,
			End:      f.End,
			Language: lang,
			Lines:    strings.Count(body, "\n") + 1,
			Pattern:  "fence",
		})
	}
	return out
}

// PhraseClassifier matches sentences against a phrase table and keeps those
// whose length is within [min,max] characters. Identical spans are kept once.
type PhraseClassifier struct {
	typ      ctxitem.ItemType
	patterns []compiledPattern
	min, max int
}

var _ Classifier = (*PhraseClassifier)(nil)

// NewPhraseClassifier compiles patterns for a sentence-level classifier.
func NewPhraseClassifier(typ ctxitem.ItemType, patterns []Pattern, minLen, maxLen int) *PhraseClassifier {
	return &PhraseClassifier{typ: typ, patterns: compilePatterns(patterns), min: minLen, max: maxLen}
}

// NewDecisionClassifier returns the decision classifier.
func NewDecisionClassifier(patterns []Pattern) *PhraseClassifier {
	return NewPhraseClassifier(ctxitem.TypeDecision, patterns, MinPhraseSpan, MaxPhraseSpan)
}

// NewRequirementClassifier returns the requirement classifier.
func NewRequirementClassifier(patterns []Pattern) *PhraseClassifier {
	return NewPhraseClassifier(ctxitem.TypeRequirement, patterns, MinPhraseSpan, MaxPhraseSpan)
}

// Name implements Classifier.
func (c *PhraseClassifier) Name() string { return string(c.typ) }

// Matches reports whether any phrase of the table occurs in s.
func (c *PhraseClassifier) Matches(s string) bool {
	_, ok := bestMatch(c.patterns, s)
	return ok
}

// Classify implements Classifier.
func (c *PhraseClassifier) Classify(doc *Document) []Candidate {
	return c.classifySpans(doc.Sentences, nil)
}

func (c *PhraseClassifier) classifySpans(spans []Span, skip func(Span) bool) []Candidate {
	var out []Candidate
	seen := make(map[string]struct{})
	for _, sp := range spans {
		if n := runeLen(sp.Text); n < c.min || n > c.max {
			continue
		}
		if skip != nil && skip(sp) {
			continue
		}
		p, ok := bestMatch(c.patterns, sp.Text)
		if !ok {
			continue
		}
		if _, dup := seen[sp.Text]; dup {
			continue
		}
		seen[sp.Text] = struct{}{}
		out = append(out, Candidate{
			Type:    c.typ,
			Content: sp.Text,
			Offset:  sp.Start,
			End:     sp.End,
			Lines:   1,
			Pattern: p.Name,
		})
	}
	return out
}

// ErrorClassifier finds stack-trace blocks and error-labelled sentences.
// Sentences inside a detected block are not reported separately.
type ErrorClassifier struct {
	phrases *PhraseClassifier
	frames  []compiledPattern
}

var _ Classifier = (*ErrorClassifier)(nil)

// NewErrorClassifier compiles the error phrase and stack-frame tables.
func NewErrorClassifier(phrases, frames []Pattern) *ErrorClassifier {
	return &ErrorClassifier{
		phrases: NewPhraseClassifier(ctxitem.TypeError, phrases, MinErrorSpan, MaxErrorSpan),
		frames:  compilePatterns(frames),
	}
}

// Name implements Classifier.
func (c *ErrorClassifier) Name() string { return string(ctxitem.TypeError) }

// Matches reports whether s carries an error phrase or a stack frame.
func (c *ErrorClassifier) Matches(s string) bool {
	if c.phrases.Matches(s) {
		return true
	}
	for _, line := range strings.Split(s, "\n") {
		if c.isFrame(line) {
			return true
		}
	}
	return false
}

// Classify implements Classifier.
func (c *ErrorClassifier) Classify(doc *Document) []Candidate {
	blocks := c.traceBlocks(doc)
	inBlock := func(sp Span) bool {
		for _, b := range blocks {
			if sp.Start >= b.Offset && sp.Start < b.End {
				return true
			}
		}
		return false
	}
	out := append([]Candidate(nil), blocks...)
	return append(out, c.phrases.classifySpans(doc.Sentences, inBlock)...)
}

func (c *ErrorClassifier) isFrame(line string) bool {
	_, ok := bestMatch(c.frames, line)
	return ok
}

// traceBlocks groups consecutive frame lines (and indented continuation
// lines) into blocks of at least two frames. The line before the block and
// the line after it are included when they carry an error phrase.
func (c *ErrorClassifier) traceBlocks(doc *Document) []Candidate {
	rawLines := make([]string, len(doc.Lines))
	for i, l := range doc.Lines {
		// Frame patterns look at leading indentation, so match on the raw line.
		rawLines[i] = lineAt(doc.Prose, l)
	}

	var out []Candidate
	for i := 0; i < len(doc.Lines); {
		if !c.isFrame(rawLines[i]) {
			i++
			continue
		}
		first, last, frames := i, i, 0
	scan:
		for j := i; j < len(doc.Lines); j++ {
			switch {
			case c.isFrame(rawLines[j]):
				frames++
				last = j
			case startsIndented(rawLines[j]) && j == last+1:
				last = j
			default:
				break scan
			}
		}
		i = last + 1
		if frames < 2 {
			continue
		}
		if first > 0 && c.phrases.Matches(doc.Lines[first-1].Text) && !c.isFrame(rawLines[first-1]) {
			first--
		}
		if last+1 < len(doc.Lines) && c.phrases.Matches(doc.Lines[last+1].Text) {
			last++
			i = last + 1
		}
		if cand, ok := c.blockCandidate(doc, first, last); ok {
			out = append(out, cand)
		}
	}
	return out
}

// blockCandidate builds a candidate from lines [first,last], dropping
// trailing lines until the block fits MaxErrorSpan.
func (c *ErrorClassifier) blockCandidate(doc *Document, first, last int) (Candidate, bool) {
	for ; last >= first; last-- {
		start, end := doc.Lines[first].Start, doc.Lines[last].End
		text := doc.Text[start:end]
		n := runeLen(text)
		if n > MaxErrorSpan {
			continue
		}
		if n < MinErrorSpan {
			return Candidate{}, false
		}
		return Candidate{
			Type:    ctxitem.TypeError,
			Content: text,
			Offset:  start,
			End:     end,
			Lines:   last - first + 1,
			Pattern: "stack_trace",
		}, true
	}
	return Candidate{}, false
}

// lineAt returns the untrimmed line containing sp.
func lineAt(text string, sp Span) string {
	start := strings.LastIndexByte(text[:sp.Start], '\n') + 1
	return text[start:sp.End]
}

func startsIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// DiscussionClassifier emits paragraphs that look like conversation but
// carry none of the signals checked by Signals.
type DiscussionClassifier struct {
	// Signals reports whether text matches another classifier family.
	Signals func(text string) bool
}

var _ Classifier = (*DiscussionClassifier)(nil)

// Name implements Classifier.
func (c *DiscussionClassifier) Name() string { return string(ctxitem.TypeDiscussion) }

// Classify implements Classifier.
func (c *DiscussionClassifier) Classify(doc *Document) []Candidate {
	var out []Candidate
	for _, p := range doc.Paragraphs {
		n := runeLen(p.Text)
		if n < MinDiscussionChars || n > MaxDiscussionChars {
			continue
		}
		if len(strings.Fields(p.Text)) <= MinDiscussionWords {
			continue
		}
		if c.Signals != nil && c.Signals(p.Text) {
			continue
		}
		out = append(out, Candidate{
			Type:    ctxitem.TypeDiscussion,
			Content: p.Text,
			Offset:  p.Start,
			End:     p.End,
			Lines:   strings.Count(p.Text, "\n") + 1,
			Pattern: "paragraph",
		})
	}
	return out
}

// DefaultClassifiers builds the five classifiers from cfg.
func DefaultClassifiers(cfg Config) []Classifier {
	decision := NewDecisionClassifier(cfg.DecisionPatterns)
	requirement := NewRequirementClassifier(cfg.RequirementPatterns)
	errs := NewErrorClassifier(cfg.ErrorPatterns, cfg.StackFramePatterns)
	discussion := &DiscussionClassifier{
		Signals: func(text string) bool {
			return strings.Contains(text, "```") ||
				decision.Matches(text) ||
				requirement.Matches(text) ||
				errs.Matches(text)
		},
	}
	return []Classifier{CodeClassifier{}, decision, requirement, errs, discussion}
}
