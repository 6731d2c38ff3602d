package extraction

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

func TestScorer_Score(t *testing.T) {
	s := NewScorer(nil)
	tests := []struct {
		name    string
		typ     ctxitem.ItemType
		content string
		tokens  int
		want    float64
	}{
		{"error base", ctxitem.TypeError, "plain", 10, 0.8},
		{"requirement base", ctxitem.TypeRequirement, "plain", 10, 0.7},
		{"decision base", ctxitem.TypeDecision, "plain", 10, 0.6},
		{"code base", ctxitem.TypeCode, "plain", 10, 0.5},
		{"discussion base", ctxitem.TypeDiscussion, "plain", 10, 0.3},
		{"small size bonus", ctxitem.TypeCode, "plain", 101, 0.6},
		{"large size bonus", ctxitem.TypeCode, "plain", 501, 0.7},
		{"keyword bonus", ctxitem.TypeDiscussion, "this is a Critical path", 10, 0.5},
		{"keywords add up", ctxitem.TypeDiscussion, "critical security TODO", 10, 0.75},
		{"keyword counted once", ctxitem.TypeDiscussion, "critical critical critical", 10, 0.5},
		{"word boundary", ctxitem.TypeDiscussion, "debugging the buggy code", 10, 0.3},
		{"clamped", ctxitem.TypeError, "critical security vulnerability urgent", 600, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Score(tt.typ, tt.content, tt.tokens), 1e-9)
		})
	}
}

func TestScorer_AlwaysInUnitRange(t *testing.T) {
	s := NewScorer(nil)
	boosts := DefaultKeywordBoosts()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		var words []string
		for _, b := range boosts {
			if rng.Intn(2) == 0 {
				words = append(words, b.Term)
			}
		}
		typ := ctxitem.AllTypes[rng.Intn(len(ctxitem.AllTypes))]
		score := s.Score(typ, strings.Join(words, " "), rng.Intn(2000))
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScorer_ApplyNeverLowers(t *testing.T) {
	s := NewScorer(nil)
	it := &ctxitem.Item{Type: ctxitem.TypeDiscussion, Content: "plain", TokenCount: 5, ImportanceScore: 0.9}
	s.Apply(it)
	assert.InDelta(t, 0.9, it.ImportanceScore, 1e-9)
}

func TestKeywordTagger(t *testing.T) {
	tagger := NewKeywordTagger(nil)
	assert.Equal(t, []string{"database", "golang"}, tagger.ExtractTags("Connect to the postgres database from golang"))
	assert.Empty(t, tagger.ExtractTags("Hello, how are you?"))
}
