package extraction

import (
	"regexp"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// BaseScores are the starting importance per type, ordered by operational risk.
var BaseScores = map[ctxitem.ItemType]float64{
	ctxitem.TypeError:       0.8,
	ctxitem.TypeRequirement: 0.7,
	ctxitem.TypeDecision:    0.6,
	ctxitem.TypeCode:        0.5,
	ctxitem.TypeDiscussion:  0.3,
}

// Size bonus thresholds, in tokens.
const (
	SizeBonusSmall     = 100
	SizeBonusLarge     = 500
	SizeBonusIncrement = 0.1
)

// Scorer assigns importance from type, size and keywords.
type Scorer struct {
	boosts []compiledBoost
}

type compiledBoost struct {
	KeywordBoost
	regex *regexp.Regexp
}

// NewScorer compiles the keyword table. Terms match case-insensitively on
// word boundaries.
func NewScorer(boosts []KeywordBoost) *Scorer {
	if len(boosts) == 0 {
		boosts = DefaultKeywordBoosts()
	}
	s := &Scorer{boosts: make([]compiledBoost, 0, len(boosts))}
	for _, b := range boosts {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(b.Term) + `\b`)
		if err != nil {
			continue
		}
		s.boosts = append(s.boosts, compiledBoost{KeywordBoost: b, regex: re})
	}
	return s
}

// Score returns the importance of content of the given type and size,
// clamped to [0,1].
func (s *Scorer) Score(typ ctxitem.ItemType, content string, tokenCount int) float64 {
	score := BaseScores[typ]
	if tokenCount > SizeBonusSmall {
		score += SizeBonusIncrement
	}
	if tokenCount > SizeBonusLarge {
		score += SizeBonusIncrement
	}
	for _, b := range s.boosts {
		if b.regex.MatchString(content) {
			score += b.Bonus
		}
	}
	return ctxitem.Clamp01(score)
}

// Apply raises the item's importance to its computed score.
func (s *Scorer) Apply(item *ctxitem.Item) {
	item.RaiseImportance(s.Score(item.Type, item.Content, item.TokenCount))
}
