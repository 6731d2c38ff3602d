package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension matches the width of the small BGE models so stores
// can switch providers without changing their schema.
const DefaultHashDimension = 384

// HashProvider embeds text by hashing word and character-trigram features
// into a signed, L2-normalized vector. Identical text always maps to the
// identical vector.
type HashProvider struct {
	dim int
}

var _ Provider = (*HashProvider)(nil)

// NewHashProvider returns a HashProvider of width dim (DefaultHashDimension when <= 0).
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashProvider{dim: dim}
}

// EmbedDocuments implements Provider.
func (h *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.Vector(t)
	}
	return out, nil
}

// EmbedQuery implements Provider.
func (h *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.Vector(text), nil
}

// Dimension implements Provider.
func (h *HashProvider) Dimension() int { return h.dim }

// Model implements Provider.
func (h *HashProvider) Model() string { return fmt.Sprintf("hash-%d", h.dim) }

// Close implements Provider.
func (h *HashProvider) Close() error { return nil }

// Vector computes the embedding of text. Words weigh twice as much as
// character trigrams.
func (h *HashProvider) Vector(text string) []float32 {
	vec := make([]float64, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h.add(vec, "w:"+w, 2.0)
		padded := []rune(" " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(vec, "t:"+string(padded[i:i+3]), 1.0)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *HashProvider) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
