package injection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

type searcherFunc func(ctx context.Context, query string, opts search.Options) ([]search.Result, error)

func (f searcherFunc) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return f(ctx, query, opts)
}

func staticSearcher(results ...search.Result) Searcher {
	return searcherFunc(func(context.Context, string, search.Options) ([]search.Result, error) {
		return results, nil
	})
}

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func result(id string, typ ctxitem.ItemType, score, importance float64, age time.Duration, content string) search.Result {
	return search.Result{
		Item: &ctxitem.Item{
			ID:              id,
			Type:            typ,
			Content:         content,
			ImportanceScore: importance,
			Timestamp:       now.Add(-age),
			TokenCount:      tokens.Heuristic{}.Count(content),
		},
		Score: score,
	}
}

func newInjector(s Searcher) *Injector {
	return NewInjector(s, tokens.Heuristic{}, Config{}, zap.NewNop(), WithClock(func() time.Time { return now }))
}

func TestPrepare_SummaryFitsWhenFullDoesNot(t *testing.T) {
	r := result("big", ctxitem.TypeDecision, 0.9, 0.6, time.Hour, strings.Repeat("a", 600))
	r.Item.Summary = strings.Repeat("b", 160)
	r.Item.IsSummarized = true

	sel, err := newInjector(staticSearcher(r)).Prepare(context.Background(), "storage", 100, FormatFull, "")
	require.NoError(t, err)

	require.Len(t, sel.Entries, 1)
	assert.Equal(t, FormatSummary, sel.Entries[0].Format)
	assert.Equal(t, 40, sel.TokensUsed)
	assert.LessOrEqual(t, sel.TokensUsed, 100)
	assert.Equal(t, StrategyComplete, sel.Strategy)
}

func TestPrepare_TierOrderAndRegularStop(t *testing.T) {
	a := result("a", ctxitem.TypeDiscussion, 0.2, 0.1, 300*24*time.Hour, strings.Repeat("x", 340))
	b := result("b", ctxitem.TypeDiscussion, 0.1, 0.1, 300*24*time.Hour, strings.Repeat("y", 20))
	c := result("c", ctxitem.TypeError, 1.0, 1.0, 0, strings.Repeat("z", 20))

	sel, err := newInjector(staticSearcher(a, b, c)).Prepare(context.Background(), "q", 100, FormatFull, "")
	require.NoError(t, err)

	require.Len(t, sel.Entries, 2)
	assert.Equal(t, "c", sel.Entries[0].Item.ID, "critical tier goes first")
	assert.Equal(t, "a", sel.Entries[1].Item.ID)
	assert.Equal(t, 90, sel.TokensUsed)
	assert.Equal(t, StrategyBudgetExhausted, sel.Strategy, "regular tier stops at 90%")
	assert.InDelta(t, 0.5+0.2+0.3*1.3, sel.Entries[0].Score, 1e-9)
}

func TestPrepare_LadderSkipsMissingSummary(t *testing.T) {
	r := result("r", ctxitem.TypeRequirement, 0.9, 0.7, time.Hour, "The API must reject requests without a tenant header.\n"+strings.Repeat("detail ", 100))

	sel, err := newInjector(staticSearcher(r)).Prepare(context.Background(), "tenant", 40, FormatSummary, "")
	require.NoError(t, err)
	require.Len(t, sel.Entries, 1)
	assert.Equal(t, FormatReference, sel.Entries[0].Format)
	assert.Equal(t, "[requirement r] The API must reject requests without a tenant header.", sel.Entries[0].Text)
}

func TestPrepare_ForcedSummary(t *testing.T) {
	content := "Use Redis for sessions. " + strings.Repeat("Another long sentence about unrelated infrastructure choices. ", 5)
	r := result("f", ctxitem.TypeDecision, 0.9, 0.6, time.Hour, content)

	sel, err := newInjector(staticSearcher(r)).Prepare(context.Background(), "redis", 10, FormatFull, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyForcedSummary, sel.Strategy)
	require.Len(t, sel.Entries, 1)
	assert.Equal(t, "Use Redis for sessions.", sel.Entries[0].Text)
	assert.LessOrEqual(t, sel.TokensUsed, 10)
}

func TestPrepare_TokenLimitReached(t *testing.T) {
	r := result("huge", ctxitem.TypeCode, 0.9, 0.5, time.Hour, strings.Repeat("q", 400))

	sel, err := newInjector(staticSearcher(r)).Prepare(context.Background(), "q", 1, FormatFull, "")
	require.NoError(t, err)
	assert.Empty(t, sel.Entries)
	assert.Zero(t, sel.TokensUsed)
	assert.Equal(t, StrategyTokenLimitReached, sel.Strategy)
}

func TestPrepare_NoResults(t *testing.T) {
	var gotOpts search.Options
	s := searcherFunc(func(_ context.Context, _ string, opts search.Options) ([]search.Result, error) {
		gotOpts = opts
		return nil, nil
	})
	sel, err := newInjector(s).Prepare(context.Background(), "anything", 100, "", "proj")
	require.NoError(t, err)
	assert.Equal(t, StrategyNoResults, sel.Strategy)
	assert.Empty(t, sel.Entries)
	assert.Equal(t, search.Options{Limit: 50, ProjectID: "proj", UseSemantic: true}, gotOpts)
}

func TestPrepare_InvalidInput(t *testing.T) {
	in := newInjector(staticSearcher())
	tests := []struct {
		name   string
		query  string
		max    int
		format Format
	}{
		{name: "empty query", query: " ", max: 10},
		{name: "zero budget", query: "q", max: 0},
		{name: "bad format", query: "q", max: 10, format: "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Prepare(context.Background(), tt.query, tt.max, tt.format, "")
			assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
		})
	}
}

func TestPrepare_SearchError(t *testing.T) {
	s := searcherFunc(func(context.Context, string, search.Options) ([]search.Result, error) {
		return nil, fmt.Errorf("%w: db down", ctxitem.ErrPersistenceUnavailable)
	})
	_, err := newInjector(s).Prepare(context.Background(), "q", 10, FormatFull, "")
	assert.ErrorIs(t, err, ctxitem.ErrPersistenceUnavailable)
}

func randomResults(rng *rand.Rand, n int) []search.Result {
	types := ctxitem.AllTypes
	out := make([]search.Result, n)
	for i := range out {
		r := result(
			fmt.Sprintf("item-%d", i),
			types[rng.Intn(len(types))],
			rng.Float64(),
			rng.Float64(),
			time.Duration(rng.Intn(90*24))*time.Hour,
			strings.Repeat("w ", 1+rng.Intn(400)),
		)
		if rng.Intn(2) == 0 {
			r.Item.Summary = strings.Repeat("s", 1+rng.Intn(80))
			r.Item.IsSummarized = true
		}
		out[i] = r
	}
	return out
}

func TestPrepare_NeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	formats := []Format{FormatFull, FormatSummary, FormatReference}
	for trial := 0; trial < 200; trial++ {
		results := randomResults(rng, 1+rng.Intn(30))
		max := 1 + rng.Intn(600)
		f := formats[rng.Intn(len(formats))]

		sel, err := newInjector(staticSearcher(results...)).Prepare(context.Background(), "q", max, f, "")
		require.NoError(t, err)

		sum := 0
		for _, e := range sel.Entries {
			sum += e.Tokens
		}
		assert.Equal(t, sum, sel.TokensUsed)
		assert.LessOrEqual(t, sel.TokensUsed, max, "trial %d", trial)
	}
}

func TestPrepare_Deterministic(t *testing.T) {
	results := randomResults(rand.New(rand.NewSource(42)), 25)
	in := newInjector(staticSearcher(results...))

	first, err := in.Prepare(context.Background(), "q", 300, FormatFull, "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := in.Prepare(context.Background(), "q", 300, FormatFull, "")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRender(t *testing.T) {
	code := result("c1", ctxitem.TypeCode, 0.9, 0.5, 0, "print('hi')")
	code.Item.Metadata.Language = "python"
	sel, err := newInjector(staticSearcher(code)).Prepare(context.Background(), "greeting", 100, FormatFull, "")
	require.NoError(t, err)

	out := Render(sel)
	assert.Contains(t, out, "## Context for: greeting")
	assert.Contains(t, out, "```python\nprint('hi')\n```")
	assert.Contains(t, out, "(full, score")
	assert.Contains(t, out, string(StrategyComplete))

	empty := Render(&Selection{Query: "x", Strategy: StrategyNoResults})
	assert.Contains(t, empty, "no_results")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatFull, f)

	_, err = ParseFormat("verbose")
	assert.True(t, errors.Is(err, ctxitem.ErrInvalidInput))
}
