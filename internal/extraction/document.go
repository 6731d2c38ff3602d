package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	fenceRegex     = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)[^\n]*\n(.*?)```")
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
)

// Span is a trimmed region of the transcript.
type Span struct {
	Text  string
	Start int
	End   int
}

// Fence is a fenced code block.
type Fence struct {
	Language string
	Body     string
	Start    int
	End      int
}

// Document is a transcript prepared for classification. All offsets refer to
// the original text.
type Document struct {
	Text string

	// Prose is Text with fenced code replaced by spaces (newlines kept).
	Prose string

	Fences     []Fence
	Sentences  []Span
	Lines      []Span
	Paragraphs []Span
}

// NewDocument segments text into fences, sentences, lines and paragraphs.
func NewDocument(text string) *Document {
	doc := &Document{Text: text}

	prose := []byte(text)
	for _, m := range fenceRegex.FindAllStringSubmatchIndex(text, -1) {
		lang := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		doc.Fences = append(doc.Fences, Fence{Language: lang, Body: body, Start: m[0], End: m[1]})
		for i := m[0]; i < m[1]; i++ {
			if prose[i] != '\n' {
				prose[i] = ' '
			}
		}
	}
	doc.Prose = string(prose)

	doc.Lines = splitLines(doc.Prose)
	doc.Sentences = splitSentences(doc.Prose)
	doc.Paragraphs = splitParagraphs(doc.Prose)
	return doc
}

func trimSpan(s string, start int) (Span, bool) {
	left := len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
	s = strings.TrimSpace(s)
	if s == "" {
		return Span{}, false
	}
	return Span{Text: s, Start: start + left, End: start + left + len(s)}, true
}

func splitLines(text string) []Span {
	var spans []Span
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			if sp, ok := trimSpan(text[start:i], start); ok {
				spans = append(spans, sp)
			}
			start = i + 1
		}
	}
	return spans
}

// splitSentences breaks on terminal punctuation followed by whitespace.
// Wrapped lines are joined with a space; see sentenceBreak for the newlines
// that end a sentence. Leading list markers are dropped.
func splitSentences(text string) []Span {
	var spans []Span
	start := 0
	emit := func(end int) {
		sp, ok := trimSpan(text[start:end], start)
		start = end
		if !ok {
			return
		}
		if m := listMarker(sp.Text); m > 0 {
			sp.Text = strings.TrimSpace(sp.Text[m:])
			sp.Start = sp.End - len(sp.Text)
		}
		// Same-width replacement keeps Text aligned with Start and End.
		sp.Text = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, sp.Text)
		if sp.Text != "" {
			spans = append(spans, sp)
		}
	}
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\n':
			if sentenceBreak(text, i) {
				emit(i)
			}
		case c == '.' || c == '!' || c == '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n' {
				emit(i + 1)
			}
		}
	}
	emit(len(text))
	return spans
}

// sentenceBreak reports whether the newline at nl ends a sentence. It does
// after a heading or a line ending in terminal punctuation or a colon, and
// before a blank line, an indented line, a list item or a heading.
func sentenceBreak(text string, nl int) bool {
	prev := strings.TrimRight(text[:nl], " \t\r")
	if prev == "" || strings.IndexByte(".!?:\n", prev[len(prev)-1]) >= 0 {
		return true
	}
	if line := prev[strings.LastIndexByte(prev, '\n')+1:]; strings.HasPrefix(strings.TrimSpace(line), "#") {
		return true
	}
	next := text[nl+1:]
	if i := strings.IndexByte(next, '\n'); i >= 0 {
		next = next[:i]
	}
	trimmed := strings.TrimSpace(next)
	switch {
	case trimmed == "":
		return true
	case next[0] == ' ' || next[0] == '\t':
		return true
	case strings.HasPrefix(trimmed, "#") || listMarker(trimmed) > 0:
		return true
	}
	return false
}

func splitParagraphs(text string) []Span {
	var spans []Span
	start := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		if sp, ok := trimSpan(text[start:loc[0]], start); ok {
			spans = append(spans, sp)
		}
		start = loc[1]
	}
	if sp, ok := trimSpan(text[start:], start); ok {
		spans = append(spans, sp)
	}
	return spans
}

// listMarker returns the byte length of a leading "- ", "* ", "• " or "12. " marker.
func listMarker(s string) int {
	switch {
	case strings.HasPrefix(s, "- "), strings.HasPrefix(s, "* "):
		return 2
	case strings.HasPrefix(s, "• "):
		return len("• ")
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(s) && (s[i] == '.' || s[i] == ')') && s[i+1] == ' ' {
		return i + 2
	}
	return 0
}

// runeLen counts characters, not bytes.
func runeLen(s string) int {
	return len([]rune(s))
}
