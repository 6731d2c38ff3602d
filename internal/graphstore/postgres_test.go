package graphstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// newTestPostgresStore connects to CTXGRAPH_TEST_POSTGRES_DSN and scopes
// every test to a fresh project and chat id.
func newTestPostgresStore(t *testing.T) (*PostgresStore, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	dsn := os.Getenv("CTXGRAPH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CTXGRAPH_TEST_POSTGRES_DSN not set, skipping postgres test")
	}
	s, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn}, zap.NewNop())
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, uuid.NewString()
}

func TestNewPostgresStore_InvalidDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), PostgresConfig{}, nil)
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s, scope := newTestPostgresStore(t)
	ctx := context.Background()

	chatID := "chat-" + scope
	require.NoError(t, s.UpsertChat(ctx, ctxitem.Chat{ID: chatID, ProjectID: scope, Title: "pg", CreatedAt: base}))

	a := newItem("a-"+scope, ctxitem.TypeDecision, "We decided to use PostgreSQL for storage.", 0, 1, 0, 0)
	b := newItem("b-"+scope, ctxitem.TypeCode, "func Connect() error { return nil }", 0, 0.9, 0.1, 0)
	a.ChatID, b.ChatID = chatID, chatID
	a.ProjectID, b.ProjectID = scope, scope
	a.Metadata.Tags = []string{"database"}
	require.NoError(t, s.UpsertItems(ctx, []*ctxitem.Item{a, b}))

	got, err := s.GetItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Content, got.Content)
	assert.Equal(t, []string{"database"}, got.Metadata.Tags)
	assert.Len(t, got.Embedding, 3)

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 5, 0.7, ItemFilter{ProjectID: scope})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a.ID, hits[0].Item.ID)

	kw, err := s.KeywordCandidates(ctx, []string{"postgresql"}, ItemFilter{ProjectID: scope})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(kw))

	require.NoError(t, s.UpsertRelationships(ctx, []ctxitem.Relationship{
		{FromID: a.ID, ToID: chatID, Type: ctxitem.RelBelongsTo},
		{FromID: a.ID, ToID: b.ID, Type: ctxitem.RelRelatedTo, Properties: ctxitem.Properties{Similarity: ctxitem.Float(0.75)}},
	}))
	ns, err := s.Neighbors(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, 0.75, *ns[0].Relationship.Properties.Similarity)

	err = s.UpsertRelationships(ctx, []ctxitem.Relationship{{FromID: a.ID, ToID: "ghost-" + scope, Type: ctxitem.RelReferences}})
	assert.ErrorIs(t, err, ctxitem.ErrNotFound)

	require.NoError(t, s.DeleteRelationship(ctx, ctxitem.EdgeKey{From: a.ID, To: b.ID, Type: ctxitem.RelRelatedTo}))
	_, err = s.GetItem(ctx, "missing-"+scope)
	assert.ErrorIs(t, err, ctxitem.ErrNotFound)
}
