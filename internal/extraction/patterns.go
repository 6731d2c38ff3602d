package extraction

import (
	"regexp"
)

// Span length bounds, in characters.
const (
	MinPhraseSpan = 20
	MaxPhraseSpan = 500
	MinErrorSpan  = 30
	MaxErrorSpan  = 1000

	MinDiscussionChars = 100
	MaxDiscussionChars = 1000
	MinDiscussionWords = 20
)

// DefaultDecisionPatterns returns the phrases that mark a decision.
func DefaultDecisionPatterns() []Pattern {
	return []Pattern{
		{Name: "decided_to", Regex: `(?i)\bdecided? to\b`, Weight: 0.9},
		{Name: "approach_is", Regex: `(?i)\bthe approach (is|will be)\b`, Weight: 0.8},
		{Name: "plan_is", Regex: `(?i)\bthe plan (is|will be)\b`, Weight: 0.8},
		{Name: "we_will", Regex: `(?i)\bwe(?:'ll|’ll| will)\b`, Weight: 0.6},
		{Name: "recommend", Regex: `(?i)\bI (?:would |strongly )?recommend\b`, Weight: 0.7},
		{Name: "lets_use", Regex: `(?i)\blet'?s (go with|use|choose|pick|stick with)\b`, Weight: 0.9},
		{Name: "going_with", Regex: `(?i)\b(going|went) with\b`, Weight: 0.7},
		{Name: "opted_for", Regex: `(?i)\bopted (for|to)\b`, Weight: 0.9},
		{Name: "chose", Regex: `(?i)\b(chose|choosing) (to|\S+ over)\b`, Weight: 0.8},
	}
}

// DefaultRequirementPatterns returns modal obligations and explicit labels.
func DefaultRequirementPatterns() []Pattern {
	return []Pattern{
		{Name: "label", Regex: `(?i)^(requirement|constraint|acceptance criteria)s?\s*:`, Weight: 1.0},
		{Name: "must", Regex: `(?i)\b(must|shall)\b`, Weight: 0.9},
		{Name: "required_to", Regex: `(?i)\b(required to|is required|are required)\b`, Weight: 0.9},
		{Name: "need_to", Regex: `(?i)\bneeds? to\b`, Weight: 0.7},
		{Name: "has_to", Regex: `(?i)\b(has|have) to\b`, Weight: 0.6},
		{Name: "should", Regex: `(?i)\bshould\b`, Weight: 0.6},
	}
}

// DefaultErrorPatterns returns the phrases that mark an error report.
func DefaultErrorPatterns() []Pattern {
	return []Pattern{
		{Name: "typed_error", Regex: `\b[A-Z][A-Za-z0-9]*(Error|Exception)\b`, Weight: 1.0},
		{Name: "panic", Regex: `(?i)\b(panic|segfault|segmentation fault|traceback)\b`, Weight: 1.0},
		{Name: "error_label", Regex: `(?i)\b(error|exception)s?\b`, Weight: 0.8},
		{Name: "failure", Regex: `(?i)\b(fail|fails|failed|failing|failure|crash(es|ed)?)\b`, Weight: 0.7},
		{Name: "bug", Regex: `(?i)\bbugs?\b`, Weight: 0.6},
	}
}

// DefaultStackFramePatterns returns line patterns for stack-trace frames.
func DefaultStackFramePatterns() []Pattern {
	return []Pattern{
		{Name: "python_header", Regex: `^Traceback \(most recent call last\):`, Weight: 1.0},
		{Name: "python_frame", Regex: `^\s*File "[^"]+", line \d+`, Weight: 1.0},
		{Name: "js_java_frame", Regex: `^\s*at \S.*[(:]\S*:\d+\)?\s*$`, Weight: 1.0},
		{Name: "go_goroutine", Regex: `^goroutine \d+ \[`, Weight: 1.0},
		{Name: "go_frame", Regex: `^\s+\S+\.go:\d+`, Weight: 1.0},
		{Name: "go_panic", Regex: `^panic: `, Weight: 1.0},
	}
}

// DefaultKeywordBoosts returns the risk and urgency keywords used by the scorer.
func DefaultKeywordBoosts() []KeywordBoost {
	return []KeywordBoost{
		{Term: "critical", Bonus: 0.2},
		{Term: "security", Bonus: 0.2},
		{Term: "vulnerability", Bonus: 0.2},
		{Term: "breaking change", Bonus: 0.2},
		{Term: "urgent", Bonus: 0.15},
		{Term: "important", Bonus: 0.1},
		{Term: "deprecated", Bonus: 0.1},
		{Term: "FIXME", Bonus: 0.1},
		{Term: "HACK", Bonus: 0.1},
		{Term: "bug", Bonus: 0.1},
		{Term: "TODO", Bonus: 0.05},
		{Term: "performance", Bonus: 0.05},
	}
}

type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

// compilePatterns compiles the table, skipping invalid expressions.
func compilePatterns(patterns []Pattern) []compiledPattern {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledPattern{Pattern: p, regex: re})
	}
	return compiled
}

// bestMatch returns the highest weighted pattern matching s.
func bestMatch(patterns []compiledPattern, s string) (compiledPattern, bool) {
	var (
		best  compiledPattern
		found bool
	)
	for _, p := range patterns {
		if p.regex.MatchString(s) && (!found || p.Weight > best.Weight) {
			best, found = p, true
		}
	}
	return best, found
}
