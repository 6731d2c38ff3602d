package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/embeddings"
	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
	"github.com/fyrsmithlabs/ctxgraph/internal/graphstore"
	"github.com/fyrsmithlabs/ctxgraph/internal/injection"
	"github.com/fyrsmithlabs/ctxgraph/internal/relationship"
	"github.com/fyrsmithlabs/ctxgraph/internal/sanitize"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
	"github.com/fyrsmithlabs/ctxgraph/internal/secrets"
	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const scenarioOne = "```python\n" +
	"def store(x):\n" +
	"    db.save(x)\n" +
	"    return x\n" +
	"def load():\n" +
	"    return db.get()\n" +
	"```\n\n" +
	"We decided to use PostgreSQL for storage."

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) EmbedForItems(ctx context.Context, items []*ctxitem.Item) (map[string][]float32, error) {
	args := m.Called(ctx, items)
	vecs, _ := args.Get(0).(map[string][]float32)
	return vecs, args.Error(1)
}

// brokenStore fails every write.
type brokenStore struct {
	graphstore.Store
}

func (brokenStore) UpsertChat(context.Context, ctxitem.Chat) error {
	return fmt.Errorf("%w: connection refused", ctxitem.ErrPersistenceUnavailable)
}

type fixture struct {
	svc   *Service
	store *graphstore.MemoryStore
}

type fixtureOpt func(*Options)

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	store, err := graphstore.NewMemoryStore(graphstore.MemoryConfig{}, zap.NewNop())
	require.NoError(t, err)

	n := 0
	ex, err := extraction.NewExtractor(extraction.DefaultConfig(), extraction.Deps{
		Linker: relationship.NewDetector(relationship.DefaultConfig(), nil),
		Clock:  func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("item-%03d", n)
		},
	})
	require.NoError(t, err)

	emb := embeddings.NewService(embeddings.NewHashProvider(64), embeddings.DefaultServiceConfig(), nil)
	engine := search.NewEngine(store, emb, search.DefaultConfig(), nil)
	scrubber, err := secrets.New(secrets.DefaultConfig(), nil)
	require.NoError(t, err)

	o := Options{
		Store:     store,
		Extractor: ex,
		Embedder:  emb,
		Retriever: engine,
		Injector: injection.NewInjector(engine, tokens.Heuristic{}, injection.DefaultConfig(), nil,
			injection.WithClock(func() time.Time { return fixedNow })),
		Scrubber: scrubber,
		Clock:    func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&o)
	}
	svc, err := NewService(o)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Options{})
	assert.ErrorContains(t, err, "store is required")
}

func TestExtractContext_StoresItemsAndEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.ExtractContext(ctx, ExtractRequest{
		Text:      scenarioOne,
		ChatID:    "chat-1",
		ProjectID: "proj-1",
		ChatTitle: "Storage design",
	})
	require.NoError(t, err)

	assert.Equal(t, map[ctxitem.ItemType]int{ctxitem.TypeCode: 1, ctxitem.TypeDecision: 1}, resp.ByType)
	assert.Equal(t, 2, resp.Relationships[string(ctxitem.RelBelongsTo)])
	assert.Equal(t, 2, resp.Embedded)
	assert.Zero(t, resp.Redactions)
	require.Len(t, resp.Items, 2)

	total := 0
	for _, b := range resp.Items {
		total += b.TokenCount
	}
	assert.Equal(t, resp.TotalTokens, total)

	chat, err := f.store.GetChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Storage design", chat.Title)
	assert.Equal(t, fixedNow, chat.CreatedAt)

	stored, err := f.store.ListItems(ctx, graphstore.ItemFilter{ChatID: "chat-1"})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, it := range stored {
		assert.Len(t, it.Embedding, 64)
	}
}

func TestExtractContext_NoMatchesStillSucceeds(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.ExtractContext(context.Background(), ExtractRequest{
		Text:   "hello there, how are you today",
		ChatID: "chat-2",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Zero(t, resp.TotalTokens)

	_, err = f.store.GetChat(context.Background(), "chat-2")
	assert.NoError(t, err)
}

func TestExtractContext_InvalidInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  ExtractRequest
	}{
		{"empty text", ExtractRequest{Text: "  ", ChatID: "c"}},
		{"missing chat", ExtractRequest{Text: scenarioOne}},
		{"negative max items", ExtractRequest{Text: scenarioOne, ChatID: "c", MaxItems: -1}},
		{"binary", ExtractRequest{Text: "a\x00b", ChatID: "c"}},
		{"unsafe chat id", ExtractRequest{Text: scenarioOne, ChatID: "../c"}},
		{"unsafe project id", ExtractRequest{Text: scenarioOne, ChatID: "c", ProjectID: "a b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ExtractContext(context.Background(), tt.req)
			assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
		})
	}
}

func TestExtractContext_MaxItems(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.ExtractContext(context.Background(), ExtractRequest{
		Text: scenarioOne, ChatID: "chat-1", MaxItems: 1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Relationships[string(ctxitem.RelBelongsTo)])
}

func TestExtractContext_RedactsSecrets(t *testing.T) {
	f := newFixture(t)
	text := "We decided to use postgres://app:hunter2secret@db:5432/app for storage.\n\n" + scenarioOne

	resp, err := f.svc.ExtractContext(context.Background(), ExtractRequest{Text: text, ChatID: "chat-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Redactions)
	require.NotEmpty(t, resp.Items)

	stored, err := f.store.ListItems(context.Background(), graphstore.ItemFilter{})
	require.NoError(t, err)
	for _, it := range stored {
		assert.NotContains(t, it.Content, "hunter2secret")
	}
}

func TestExtractContext_EmbeddingFailureStillStores(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("EmbedForItems", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: model down", ctxitem.ErrEmbeddingUnavailable))

	f := newFixture(t, func(o *Options) { o.Embedder = emb })
	resp, err := f.svc.ExtractContext(context.Background(), ExtractRequest{Text: scenarioOne, ChatID: "chat-1"})
	require.NoError(t, err)
	assert.Zero(t, resp.Embedded)
	assert.Len(t, resp.Items, 2)
	emb.AssertExpectations(t)

	results, err := f.svc.SearchContext(context.Background(), SearchRequest{Query: "PostgreSQL storage", UseSemantic: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, search.MatchKeyword, results[0].MatchType)
}

func TestReembedPending(t *testing.T) {
	down := new(mockEmbedder)
	down.On("EmbedForItems", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: model down", ctxitem.ErrEmbeddingUnavailable))

	f := newFixture(t, func(o *Options) { o.Embedder = down })
	ctx := context.Background()
	_, err := f.svc.ExtractContext(ctx, ExtractRequest{Text: scenarioOne, ChatID: "chat-1", ProjectID: "p1"})
	require.NoError(t, err)

	stored, err := f.store.ListItems(ctx, graphstore.ItemFilter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, it := range stored {
		assert.Empty(t, it.Embedding)
		assert.Equal(t, EmbeddingPending, it.Metadata.Extra[EmbeddingStateKey])
	}

	_, err = f.svc.ReembedPending(ctx, "p1")
	assert.ErrorIs(t, err, ctxitem.ErrEmbeddingUnavailable)

	f.svc.embedder = embeddings.NewService(embeddings.NewHashProvider(64), embeddings.DefaultServiceConfig(), nil)
	n, err := f.svc.ReembedPending(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err = f.store.ListItems(ctx, graphstore.ItemFilter{ProjectID: "p1"})
	require.NoError(t, err)
	for _, it := range stored {
		assert.Len(t, it.Embedding, 64)
		assert.NotContains(t, it.Metadata.Extra, EmbeddingStateKey)
	}

	n, err = f.svc.ReembedPending(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExtractContext_PersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.store = brokenStore{}
	_, err := f.svc.ExtractContext(context.Background(), ExtractRequest{Text: scenarioOne, ChatID: "chat-1"})
	assert.ErrorIs(t, err, ctxitem.ErrPersistenceUnavailable)
}

func TestSearchContext_StripsEmbeddings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ExtractContext(ctx, ExtractRequest{Text: scenarioOne, ChatID: "chat-1", ChatTitle: "Storage"})
	require.NoError(t, err)

	results, err := f.svc.SearchContext(ctx, SearchRequest{
		Query: "PostgreSQL storage",
		Types: []ctxitem.ItemType{ctxitem.TypeDecision},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ctxitem.TypeDecision, results[0].Item.Type)
	assert.Equal(t, "Storage", results[0].ChatTitle)
	assert.Nil(t, results[0].Item.Embedding)

	_, err = f.svc.SearchContext(ctx, SearchRequest{Query: " "})
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestInjectContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ExtractContext(ctx, ExtractRequest{Text: scenarioOne, ChatID: "chat-1"})
	require.NoError(t, err)

	resp, err := f.svc.InjectContext(ctx, InjectRequest{Query: "PostgreSQL storage", MaxTokens: 500})
	require.NoError(t, err)
	assert.Contains(t, resp.Formatted, "PostgreSQL storage")
	assert.LessOrEqual(t, resp.TokensUsed, resp.MaxTokens)
	assert.Equal(t, resp.Selection.Strategy, resp.Strategy)
	require.NotEmpty(t, resp.Selection.Entries)
	for _, e := range resp.Selection.Entries {
		assert.Nil(t, e.Item.Embedding)
	}

	empty, err := f.svc.InjectContext(ctx, InjectRequest{Query: "PostgreSQL storage", MaxTokens: 500, ProjectID: "other"})
	require.NoError(t, err)
	assert.Equal(t, injection.StrategyNoResults, empty.Strategy)

	_, err = f.svc.InjectContext(ctx, InjectRequest{Query: "x", MaxTokens: 100, Format: "verbose"})
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestRelationships_CreateDeleteAndRelated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp, err := f.svc.ExtractContext(ctx, ExtractRequest{Text: scenarioOne, ChatID: "chat-1"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	a, b := resp.Items[0].ID, resp.Items[1].ID

	err = f.svc.CreateRelationship(ctx, ctxitem.Relationship{FromID: a, ToID: "missing", Type: ctxitem.RelReferences})
	assert.ErrorIs(t, err, ctxitem.ErrNotFound)

	err = f.svc.CreateRelationship(ctx, ctxitem.Relationship{FromID: a, ToID: b, Type: "LIKES"})
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)

	require.NoError(t, f.svc.CreateRelationship(ctx, ctxitem.Relationship{FromID: a, ToID: b, Type: ctxitem.RelDependsOn}))

	related, err := f.svc.FindRelated(ctx, a, 5)
	require.NoError(t, err)
	require.NotEmpty(t, related)
	assert.Equal(t, b, related[0].Item.ID)
	assert.Equal(t, search.MatchGraph, related[0].MatchType)

	key := ctxitem.EdgeKey{From: a, To: b, Type: ctxitem.RelDependsOn}
	require.NoError(t, f.svc.DeleteRelationship(ctx, key))
	assert.ErrorIs(t, f.svc.DeleteRelationship(ctx, key), ctxitem.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteRelationship(ctx, ctxitem.EdgeKey{From: a}), ctxitem.ErrInvalidInput)

	_, err = f.svc.FindRelated(ctx, "", 5)
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestGetEvolutionChain_Singleton(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp, err := f.svc.ExtractContext(ctx, ExtractRequest{Text: scenarioOne, ChatID: "chat-1"})
	require.NoError(t, err)

	chain, err := f.svc.GetEvolutionChain(ctx, resp.Items[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, resp.Items[0].ID, chain[0].ID)
	assert.Nil(t, chain[0].Embedding)

	_, err = f.svc.GetEvolutionChain(ctx, " ", 3)
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestExtractConversationFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lines := []string{
		`{"type":"summary","summary":"Persistence choice"}`,
		`{"type":"user","message":{"role":"user","content":"Which database fits our workload?"},"timestamp":"2025-06-01T09:00:00Z","sessionId":"sess-9"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"We decided to use PostgreSQL for storage."}]},"timestamp":"2025-06-01T09:05:00Z"}`,
	}
	path := filepath.Join(t.TempDir(), "sess-9.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))

	resp, err := f.svc.ExtractConversationFile(ctx, ConversationRequest{Path: path, ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-9", resp.ChatID)
	require.Equal(t, 1, resp.ByType[ctxitem.TypeDecision])

	item, err := f.store.GetItem(ctx, resp.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC), item.Timestamp)

	chat, err := f.store.GetChat(ctx, "sess-9")
	require.NoError(t, err)
	assert.Equal(t, "Persistence choice", chat.Title)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), chat.CreatedAt)

	_, err = f.svc.ExtractConversationFile(ctx, ConversationRequest{Path: filepath.Join(t.TempDir(), "nope.jsonl")})
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
	_, err = f.svc.ExtractConversationFile(ctx, ConversationRequest{})
	assert.True(t, errors.Is(err, ctxitem.ErrInvalidInput))
}

func TestExtractConversationFile_TranscriptRoot(t *testing.T) {
	root := t.TempDir()
	f := newFixture(t, func(o *Options) { o.TranscriptRoot = root })
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "sess.jsonl")
	require.NoError(t, os.WriteFile(outside, []byte(`{"type":"user","message":{"role":"user","content":"hi"}}`), 0o600))

	_, err := f.svc.ExtractConversationFile(ctx, ConversationRequest{Path: outside})
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
	assert.ErrorIs(t, err, sanitize.ErrPathTraversal)

	_, err = f.svc.ExtractConversationFile(ctx, ConversationRequest{Path: root + "/../etc/passwd"})
	assert.ErrorIs(t, err, sanitize.ErrPathTraversal)
}
