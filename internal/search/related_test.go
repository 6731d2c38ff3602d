package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

func TestFindRelated_Weights(t *testing.T) {
	f := newFixture(t)
	f.add(t, "x", ctxitem.TypeCode, "p1", "func Login() {}", 0.5, 5*time.Hour)
	f.add(t, "evolved", ctxitem.TypeCode, "p1", "func Login(ctx context.Context) {}", 0.5, 4*time.Hour)
	f.add(t, "err", ctxitem.TypeError, "p1", "Login panicked", 0.8, 3*time.Hour)
	f.add(t, "similar", ctxitem.TypeCode, "p1", "func Logout() {}", 0.5, 2*time.Hour)
	f.add(t, "dep", ctxitem.TypeCode, "p1", "func main() { Login() }", 0.5, time.Hour)

	f.link(t, "x", "chat-1", ctxitem.RelBelongsTo, nil)
	f.link(t, "x", "evolved", ctxitem.RelEvolvesTo, nil)
	f.link(t, "err", "x", ctxitem.RelReferences, nil)
	f.link(t, "x", "similar", ctxitem.RelRelatedTo, ctxitem.Float(0.75))
	f.link(t, "dep", "x", ctxitem.RelDependsOn, nil)
	f.link(t, "x", "err", ctxitem.RelRelatedTo, ctxitem.Float(0.72))

	e := NewEngine(f.store, nil, Config{}, zap.NewNop())
	results, err := e.FindRelated(context.Background(), "x", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"evolved", "err", "similar", "dep"}, resultIDs(results))
	assert.Equal(t, []float64{0.9, 0.8, 0.75, 0.7}, []float64{results[0].Score, results[1].Score, results[2].Score, results[3].Score})
	for _, r := range results {
		assert.Equal(t, MatchGraph, r.MatchType)
	}

	limited, err := e.FindRelated(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"evolved", "err"}, resultIDs(limited))
}

func TestFindRelated_NearestFallback(t *testing.T) {
	f := newFixture(t)
	f.add(t, "lonely", ctxitem.TypeDecision, "p1", "We decided to cache sessions in Redis.", 0.5, time.Hour)
	f.add(t, "close", ctxitem.TypeDecision, "p1", "We decided to cache sessions in Redis too.", 0.5, time.Hour)
	f.link(t, "lonely", "chat-1", ctxitem.RelBelongsTo, nil)

	e := NewEngine(f.store, nil, Config{}, zap.NewNop())
	results, err := e.FindRelated(context.Background(), "lonely", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotContains(t, resultIDs(results), "lonely")
	assert.Equal(t, "close", results[0].Item.ID)
	assert.Equal(t, MatchSemantic, results[0].MatchType)
}

func TestFindRelated_Unknown(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.store, nil, Config{}, zap.NewNop())
	results, err := e.FindRelated(context.Background(), "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvolutionChain(t *testing.T) {
	f := newFixture(t)
	f.add(t, "v1", ctxitem.TypeCode, "p1", "func Parse() {}", 0.5, 3*time.Hour)
	f.add(t, "v2", ctxitem.TypeCode, "p1", "func Parse(s string) {}", 0.5, 2*time.Hour)
	f.add(t, "v3", ctxitem.TypeCode, "p1", "func Parse(s string) error {}", 0.5, time.Hour)
	f.add(t, "solo", ctxitem.TypeCode, "p1", "func Other() {}", 0.5, time.Hour)
	f.link(t, "v1", "v2", ctxitem.RelEvolvesTo, nil)
	f.link(t, "v2", "v3", ctxitem.RelEvolvesTo, nil)
	f.link(t, "v1", "solo", ctxitem.RelReferences, nil)

	e := NewEngine(f.store, nil, Config{}, zap.NewNop())
	tests := []struct {
		name  string
		id    string
		depth int
		want  []string
	}{
		{name: "from middle", id: "v2", depth: 1, want: []string{"v1", "v2", "v3"}},
		{name: "depth bound", id: "v3", depth: 1, want: []string{"v2", "v3"}},
		{name: "default depth", id: "v3", depth: 0, want: []string{"v1", "v2", "v3"}},
		{name: "singleton", id: "solo", depth: 3, want: []string{"solo"}},
		{name: "unknown", id: "nope", depth: 3, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := e.EvolutionChain(context.Background(), tt.id, tt.depth)
			require.NoError(t, err)
			got := make([]string, len(chain))
			for i, it := range chain {
				got[i] = it.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
