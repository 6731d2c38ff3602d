// Package injection selects and formats stored context for a new session
// under a token budget.
package injection

import (
	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// Format is how much of an item is injected.
type Format string

const (
	FormatFull      Format = "full"
	FormatSummary   Format = "summary"
	FormatReference Format = "reference"
)

// ParseFormat converts s into a Format; empty means full.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatFull, nil
	case FormatFull, FormatSummary, FormatReference:
		return f, nil
	}
	return "", ctxitem.Invalidf("unknown format %q", s)
}

// ladder is the degradation order starting from the preferred format.
func ladder(preferred Format) []Format {
	switch preferred {
	case FormatSummary:
		return []Format{FormatSummary, FormatReference}
	case FormatReference:
		return []Format{FormatReference}
	default:
		return []Format{FormatFull, FormatSummary, FormatReference}
	}
}

// Strategy labels how a selection ended.
type Strategy string

const (
	// StrategyComplete means every candidate was included.
	StrategyComplete Strategy = "complete"
	// StrategyBudgetExhausted means some candidates did not fit.
	StrategyBudgetExhausted Strategy = "budget_exhausted"
	// StrategyForcedSummary means only a synthesized summary of the top
	// candidate fit.
	StrategyForcedSummary Strategy = "forced_summary"
	// StrategyNoResults means the query matched nothing.
	StrategyNoResults Strategy = "no_results"
	// StrategyTokenLimitReached means candidates existed but none fit.
	StrategyTokenLimitReached Strategy = "token_limit_reached"
)

// Entry is one selected item.
type Entry struct {
	Item   *ctxitem.Item `json:"item"`
	Score  float64       `json:"score"`
	Format Format        `json:"format"`
	Text   string        `json:"text"`
	Tokens int           `json:"tokens"`
}

// Selection is the outcome of Prepare.
type Selection struct {
	Query      string   `json:"query"`
	Entries    []Entry  `json:"entries"`
	TokensUsed int      `json:"tokens_used"`
	MaxTokens  int      `json:"max_tokens"`
	Strategy   Strategy `json:"strategy"`
	Candidates int      `json:"candidates"`
}

// Config holds the selection weights.
type Config struct {
	// CandidateLimit is how many search results are considered.
	CandidateLimit int `koanf:"candidate_limit"`

	RelevanceWeight  float64 `koanf:"relevance_weight"`
	RecencyWeight    float64 `koanf:"recency_weight"`
	ImportanceWeight float64 `koanf:"importance_weight"`

	// RecencyDays is the decay constant: recency = exp(-ageDays/RecencyDays).
	RecencyDays float64 `koanf:"recency_days"`

	// CriticalThreshold splits the critical tier from the regular tier.
	CriticalThreshold float64 `koanf:"critical_threshold"`

	// RegularBudgetShare stops the regular tier once this share of the
	// budget is used.
	RegularBudgetShare float64 `koanf:"regular_budget_share"`

	// ReferenceChars caps the excerpt in a reference entry.
	ReferenceChars int `koanf:"reference_chars"`

	TypeMultipliers map[ctxitem.ItemType]float64 `koanf:"type_multipliers"`
}

// DefaultTypeMultipliers favour operational risk over discussion.
var DefaultTypeMultipliers = map[ctxitem.ItemType]float64{
	ctxitem.TypeError:       1.3,
	ctxitem.TypeRequirement: 1.2,
	ctxitem.TypeDecision:    1.1,
	ctxitem.TypeCode:        1.0,
	ctxitem.TypeDiscussion:  0.8,
}

// DefaultConfig returns the standard weights.
func DefaultConfig() Config {
	return Config{
		CandidateLimit:     50,
		RelevanceWeight:    0.5,
		RecencyWeight:      0.2,
		ImportanceWeight:   0.3,
		RecencyDays:        30,
		CriticalThreshold:  0.8,
		RegularBudgetShare: 0.9,
		ReferenceChars:     80,
		TypeMultipliers:    DefaultTypeMultipliers,
	}
}

// ApplyDefaults fills unset fields. Weights are only defaulted together,
// so an explicit zero weight survives when another weight is set.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.RelevanceWeight == 0 && c.RecencyWeight == 0 && c.ImportanceWeight == 0 {
		c.RelevanceWeight, c.RecencyWeight, c.ImportanceWeight = d.RelevanceWeight, d.RecencyWeight, d.ImportanceWeight
	}
	if c.RecencyDays <= 0 {
		c.RecencyDays = d.RecencyDays
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = d.CriticalThreshold
	}
	if c.RegularBudgetShare <= 0 || c.RegularBudgetShare > 1 {
		c.RegularBudgetShare = d.RegularBudgetShare
	}
	if c.ReferenceChars <= 0 {
		c.ReferenceChars = d.ReferenceChars
	}
	if c.TypeMultipliers == nil {
		c.TypeMultipliers = d.TypeMultipliers
	}
}
