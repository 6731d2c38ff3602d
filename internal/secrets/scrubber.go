package secrets

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Finding is one detected secret. The matched value is never retained.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Line     int      `json:"line"`
}

// Result is the outcome of Scrub.
type Result struct {
	Text     string         `json:"-"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`

	spans []span
	repl  int
}

// Redacted reports whether any secret was replaced.
func (r Result) Redacted() bool { return len(r.Findings) > 0 }

// Offset maps a byte offset in the original text to the scrubbed text.
// Offsets inside a redacted span map to the start of its replacement.
func (r Result) Offset(orig int) int {
	delta := 0
	for _, sp := range r.spans {
		if orig < sp.start {
			break
		}
		if orig < sp.end {
			return sp.start + delta
		}
		delta += r.repl - (sp.end - sp.start)
	}
	return orig + delta
}

// Scrubber redacts secrets. It is immutable after construction and safe for
// concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []compiledRule
	allow     []*regexp.Regexp
	gitleaks  *gitleaksSource
	logger    *zap.Logger
}

// New compiles cfg into a Scrubber.
func New(cfg Config, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction, logger: logger}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	if !cfg.Enabled {
		return s, nil
	}
	rules, allow, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	s.rules, s.allow = rules, allow
	if cfg.Gitleaks {
		g, err := newGitleaksSource()
		if err != nil {
			return nil, err
		}
		s.gitleaks = g
	}
	return s, nil
}

// Enabled reports whether Scrub changes anything.
func (s *Scrubber) Enabled() bool { return s != nil && s.enabled }

type span struct{ start, end int }

// Scrub replaces every match of every rule, and every gitleaks finding, with
// the redaction string. Overlapping matches are merged into one redaction; a
// gitleaks finding inside a rule match is not reported again.
func (s *Scrubber) Scrub(text string) Result {
	res := Result{Text: text}
	if !s.Enabled() || text == "" {
		return res
	}

	var spans []span
	for _, rule := range s.rules {
		if !rule.applies(text) {
			continue
		}
		for _, m := range rule.re.FindAllStringIndex(text, -1) {
			if s.allowed(text[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Start:    m[0],
				End:      m[1],
				Line:     strings.Count(text[:m[0]], "\n") + 1,
			})
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if s.gitleaks != nil {
		for _, f := range s.gitleaks.findings(text) {
			sp := span{f.Start, f.End}
			if covered(sp, spans) || s.allowed(text[f.Start:f.End]) {
				continue
			}
			res.Findings = append(res.Findings, f)
			spans = append(spans, sp)
		}
	}
	if len(spans) == 0 {
		return res
	}

	sort.Slice(res.Findings, func(i, j int) bool { return res.Findings[i].Start < res.Findings[j].Start })
	res.ByRule = make(map[string]int)
	for _, f := range res.Findings {
		res.ByRule[f.RuleID]++
	}

	res.spans, res.repl = merge(spans), len(s.redaction)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range res.spans {
		b.WriteString(text[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(text[last:])
	res.Text = b.String()

	s.logger.Debug("secrets redacted",
		zap.Int("findings", len(res.Findings)),
		zap.Any("by_rule", res.ByRule),
	)
	return res
}

func (r compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// merge sorts spans and folds overlapping or touching ones together.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}
