package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
)

// detector is the part of the gitleaks detector Scrub uses.
type detector interface {
	DetectString(content string) []report.Finding
}

// gitleaksSource runs the gitleaks default rule set over in-memory text.
type gitleaksSource struct {
	mu sync.Mutex
	d  detector
}

func newGitleaksSource() (*gitleaksSource, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &gitleaksSource{d: d}, nil
}

// findings maps gitleaks results to byte spans. Gitleaks reports line and
// column positions, so every occurrence of the reported secret is located
// in text instead.
func (g *gitleaksSource) findings(text string) []Finding {
	g.mu.Lock()
	raw := g.d.DetectString(text)
	g.mu.Unlock()

	var out []Finding
	seen := make(map[span]bool)
	for _, f := range raw {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if strings.TrimSpace(secret) == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(text[from:], secret)
			if i < 0 {
				break
			}
			sp := span{from + i, from + i + len(secret)}
			from = sp.end
			if seen[sp] {
				continue
			}
			seen[sp] = true
			out = append(out, Finding{
				RuleID:   f.RuleID,
				Severity: SeverityHigh,
				Start:    sp.start,
				End:      sp.end,
				Line:     strings.Count(text[:sp.start], "\n") + 1,
			})
		}
	}
	return out
}

// covered reports whether sp lies inside one of spans.
func covered(sp span, spans []span) bool {
	for _, o := range spans {
		if o.start <= sp.start && sp.end <= o.end {
			return true
		}
	}
	return false
}
