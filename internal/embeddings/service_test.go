package embeddings

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// countingProvider wraps HashProvider and counts provider calls.
type countingProvider struct {
	*HashProvider
	docCalls   atomic.Int32
	queryCalls atomic.Int32
	docTexts   atomic.Int32
	fail       error
}

func (p *countingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.docCalls.Add(1)
	p.docTexts.Add(int32(len(texts)))
	if p.fail != nil {
		return nil, p.fail
	}
	return p.HashProvider.EmbedDocuments(ctx, texts)
}

func (p *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.queryCalls.Add(1)
	if p.fail != nil {
		return nil, p.fail
	}
	return p.HashProvider.EmbedQuery(ctx, text)
}

func newCounting(fail error) *countingProvider {
	return &countingProvider{HashProvider: NewHashProvider(32), fail: fail}
}

func TestService_EmbedCaches(t *testing.T) {
	p := newCounting(nil)
	s := NewService(p, ServiceConfig{}, zap.NewNop())

	a, err := s.Embed(context.Background(), "database schema")
	require.NoError(t, err)
	b, err := s.Embed(context.Background(), "database schema")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), p.queryCalls.Load())
	assert.Equal(t, "hash-32", s.Model())
	assert.Equal(t, 32, s.Dimension())
}

func TestService_EmbedEmpty(t *testing.T) {
	s := NewService(newCounting(nil), ServiceConfig{}, nil)
	_, err := s.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_EmbedBatch(t *testing.T) {
	p := newCounting(nil)
	s := NewService(p, ServiceConfig{BatchSize: 2, MaxConcurrentBatches: 2}, zap.NewNop())

	texts := []string{"one", "two", "", "three", "four", "five"}
	vecs, err := s.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	assert.Nil(t, vecs[2])
	for i, text := range texts {
		if text == "" {
			continue
		}
		assert.Equal(t, p.Vector(text), vecs[i], "order must follow input for %q", text)
	}
	assert.Equal(t, int32(3), p.docCalls.Load(), "five texts in chunks of two")

	_, err = s.EmbedBatch(context.Background(), []string{"one", "six"})
	require.NoError(t, err)
	assert.Equal(t, int32(6), p.docTexts.Load(), "cached texts are not re-sent")
}

func TestService_Unavailable(t *testing.T) {
	s := NewService(newCounting(errors.New("connection refused")), ServiceConfig{}, zap.NewNop())

	_, err := s.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ctxitem.ErrEmbeddingUnavailable)

	items := []*ctxitem.Item{{ID: "a", Content: "alpha"}, {ID: "b", Content: "beta"}}
	got, err := s.EmbedForItems(context.Background(), items)
	assert.ErrorIs(t, err, ctxitem.ErrEmbeddingUnavailable)
	assert.Empty(t, got)
}

func TestService_EmbedForItems(t *testing.T) {
	p := newCounting(nil)
	s := NewService(p, ServiceConfig{}, zap.NewNop())

	items := []*ctxitem.Item{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
		{ID: "c", Content: ""},
	}
	got, err := s.EmbedForItems(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, p.Vector("alpha"), got["a"])
	assert.NotContains(t, got, "c")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		max   int
		check func(t *testing.T, out string)
	}{
		{
			name: "short text unchanged",
			text: "hello",
			max:  10,
			check: func(t *testing.T, out string) {
				assert.Equal(t, "hello", out)
			},
		},
		{
			name: "keeps head and tail",
			text: "HEAD" + strings.Repeat("x", 100) + "TAIL",
			max:  30,
			check: func(t *testing.T, out string) {
				assert.Equal(t, 30, utf8.RuneCountInString(out))
				assert.True(t, strings.HasPrefix(out, "HEAD"))
				assert.True(t, strings.HasSuffix(out, "TAIL"))
				assert.Contains(t, out, "...")
			},
		},
		{
			name: "multibyte runes",
			text: strings.Repeat("é", 50),
			max:  20,
			check: func(t *testing.T, out string) {
				assert.True(t, utf8.ValidString(out))
				assert.Equal(t, 20, utf8.RuneCountInString(out))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Truncate(tt.text, tt.max))
		})
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("m", "text"), CacheKey("m", "text"))
	assert.NotEqual(t, CacheKey("m1", "text"), CacheKey("m2", "text"))
	assert.NotEqual(t, CacheKey("m", "text"), CacheKey("m", "text2"))
}
