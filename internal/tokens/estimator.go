// Package tokens approximates token counts for budget accounting.
package tokens

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// CharsPerToken is the divisor used by the heuristic estimator.
const CharsPerToken = 4

// Estimator counts tokens in text.
type Estimator interface {
	Count(text string) int
}

// Heuristic estimates one token per four characters, rounded up.
type Heuristic struct{}

// Count implements Estimator.
func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

var _ Estimator = Heuristic{}

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var _ Estimator = (*Tiktoken)(nil)

// NewTiktoken loads the named encoding (e.g. "cl100k_base").
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Estimator.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// New returns the estimator named by kind: "heuristic" (default) or
// "tiktoken". A tiktoken estimator that cannot load its encoding falls back
// to the heuristic.
func New(kind, encoding string, logger *zap.Logger) Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(kind) {
	case "tiktoken":
		if encoding == "" {
			encoding = "cl100k_base"
		}
		t, err := NewTiktoken(encoding)
		if err != nil {
			logger.Warn("tiktoken unavailable, using heuristic estimator", zap.Error(err))
			return Heuristic{}
		}
		return t
	default:
		return Heuristic{}
	}
}
