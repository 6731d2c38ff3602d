package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Span
	}{
		{
			name: "wrapped line is joined",
			text: "We decided to\nuse PostgreSQL.",
			want: []Span{{Text: "We decided to use PostgreSQL.", Start: 0, End: 29}},
		},
		{
			name: "list items",
			text: "Plan:\n- add cache\n- drop index",
			want: []Span{
				{Text: "Plan:", Start: 0, End: 5},
				{Text: "add cache", Start: 8, End: 17},
				{Text: "drop index", Start: 20, End: 30},
			},
		},
		{
			name: "blank line",
			text: "Done\n\nNext step",
			want: []Span{{Text: "Done", Start: 0, End: 4}, {Text: "Next step", Start: 6, End: 15}},
		},
		{
			name: "indented line",
			text: "It failed:\n  at main.go:12",
			want: []Span{{Text: "It failed:", Start: 0, End: 10}, {Text: "at main.go:12", Start: 13, End: 26}},
		},
		{
			name: "heading",
			text: "Intro line\n# Heading\nbody",
			want: []Span{
				{Text: "Intro line", Start: 0, End: 10},
				{Text: "# Heading", Start: 11, End: 20},
				{Text: "body", Start: 21, End: 25},
			},
		},
		{
			name: "punctuation mid line",
			text: "First. Second\nline! Third?",
			want: []Span{
				{Text: "First.", Start: 0, End: 6},
				{Text: "Second line!", Start: 7, End: 19},
				{Text: "Third?", Start: 20, End: 26},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			assert.Equal(t, tt.want, got)
			for _, sp := range got {
				assert.Equal(t, len(sp.Text), sp.End-sp.Start)
			}
		})
	}
}
