package ctxitem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemType_Valid(t *testing.T) {
	for _, typ := range AllTypes {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, ItemType("note").Valid())

	_, err := ParseItemType("note")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	got, err := ParseItemType("error")
	require.NoError(t, err)
	assert.Equal(t, TypeError, got)
}

func TestItem_RaiseImportance(t *testing.T) {
	tests := []struct {
		name    string
		initial float64
		raise   float64
		want    float64
	}{
		{"raises", 0.3, 0.6, 0.6},
		{"never lowers", 0.6, 0.3, 0.6},
		{"clamps high", 0.5, 1.7, 1.0},
		{"negative ignored", 0.2, -1, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &Item{ImportanceScore: tt.initial}
			it.RaiseImportance(tt.raise)
			assert.InDelta(t, tt.want, it.ImportanceScore, 1e-9)
		})
	}
}

func TestItem_SetSummary(t *testing.T) {
	it := &Item{Content: "long content", TokenCount: 10}

	assert.False(t, it.SetSummary("same size", 10), "summary must be strictly shorter")
	assert.False(t, it.IsSummarized)

	assert.True(t, it.SetSummary("short", 2))
	assert.True(t, it.IsSummarized)
	assert.Equal(t, "short", it.Brief())

	assert.False(t, it.SetSummary("again", 1), "summary is set once")
	assert.Equal(t, "short", it.Summary)
}

func TestItem_Clone(t *testing.T) {
	orig := &Item{
		ID:        "a",
		Embedding: []float32{1, 2},
		Metadata:  Metadata{Tags: []string{"x"}, Extra: map[string]string{"k": "v"}},
	}
	c := orig.Clone()
	c.Embedding[0] = 9
	c.Metadata.Tags[0] = "y"
	c.Metadata.Extra["k"] = "w"

	assert.Equal(t, float32(1), orig.Embedding[0])
	assert.Equal(t, "x", orig.Metadata.Tags[0])
	assert.Equal(t, "v", orig.Metadata.Extra["k"])
}

func TestRelationship_Key(t *testing.T) {
	a := Relationship{FromID: "a", ToID: "b", Type: RelRelatedTo, Properties: Properties{Similarity: Float(0.8)}}
	b := Relationship{FromID: "a", ToID: "b", Type: RelRelatedTo}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), Relationship{FromID: "b", ToID: "a", Type: RelRelatedTo}.Key())
}
