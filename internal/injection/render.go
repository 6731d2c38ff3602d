package injection

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// Render formats a selection as a markdown block for a new session.
func Render(sel *Selection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Context for: %s\n\n", sel.Query)
	if len(sel.Entries) == 0 {
		fmt.Fprintf(&b, "_No stored context fits (%s)._\n", sel.Strategy)
		return b.String()
	}
	for i, e := range sel.Entries {
		fmt.Fprintf(&b, "### %d. %s (%s, score %.2f)\n\n", i+1, e.Item.Type, e.Format, e.Score)
		if e.Format == FormatFull && e.Item.Metadata.Language != "" && e.Item.Type == ctxitem.TypeCode {
			fmt.Fprintf(&b, "```%s\n%s\n```\n\n", e.Item.Metadata.Language, e.Text)
			continue
		}
		b.WriteString(e.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "_%d/%d tokens, %s_\n", sel.TokensUsed, sel.MaxTokens, sel.Strategy)
	return b.String()
}
