package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures the scrubber.
type Config struct {
	Enabled   bool     `koanf:"enabled"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`
	// Gitleaks adds the gitleaks default rule set on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`
	// Rules replaces DefaultRules when non-empty.
	Rules []Rule `koanf:"rules"`
}

// Rule is one detection pattern. When Keywords is set, at least one must
// appear in the text (case-insensitive) for the rule to run.
type Rule struct {
	ID       string   `koanf:"id"`
	Pattern  string   `koanf:"pattern"`
	Keywords []string `koanf:"keywords"`
	Severity Severity `koanf:"severity"`
}

// Severity ranks findings.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// DefaultConfig enables scrubbing with DefaultRules and gitleaks.
func DefaultConfig() Config {
	return Config{Enabled: true, Redaction: DefaultRedaction, Gitleaks: true}
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []*regexp.Regexp
}

func compile(cfg Config) ([]compiledRule, []*regexp.Regexp, error) {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return nil, nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if r.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		if r.Severity == "" {
			r.Severity = SeverityHigh
		}
		cr := compiledRule{Rule: r, re: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		compiled = append(compiled, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(cfg.AllowList))
	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("allow_list %d: %w", i, err)
		}
		allow = append(allow, re)
	}
	return compiled, allow, nil
}
