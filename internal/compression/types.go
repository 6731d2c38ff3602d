package compression

import (
	"fmt"

	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

// Algorithm names a summarization strategy.
type Algorithm string

const (
	// AlgorithmLines truncates to a fixed number of lines.
	AlgorithmLines Algorithm = "lines"
	// AlgorithmExtractive selects sentences.
	AlgorithmExtractive Algorithm = "extractive"
)

// Summarizer condenses content.
type Summarizer interface {
	// Summarize returns a summary estimated at strictly fewer tokens than
	// content, with its token count. ok is false when no shorter form exists.
	Summarize(content string) (summary string, summaryTokens int, ok bool)
}

// Config configures summarizer construction.
type Config struct {
	Algorithm Algorithm

	// MaxLines is the line budget for AlgorithmLines.
	MaxLines int

	// TargetTokens is the token budget for AlgorithmExtractive.
	TargetTokens int
}

// New builds the summarizer selected by cfg.
func New(cfg Config, est tokens.Estimator) (Summarizer, error) {
	if est == nil {
		est = tokens.Heuristic{}
	}
	switch cfg.Algorithm {
	case "", AlgorithmLines:
		return NewLineSummarizer(cfg.MaxLines, est), nil
	case AlgorithmExtractive:
		return NewExtractiveSummarizer(cfg.TargetTokens, est), nil
	default:
		return nil, fmt.Errorf("unknown summary algorithm %q", cfg.Algorithm)
	}
}
