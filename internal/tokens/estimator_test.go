package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic_Count(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Heuristic{}.Count(tt.text), tt.text)
	}
}

func TestNew_DefaultsToHeuristic(t *testing.T) {
	_, ok := New("", "", nil).(Heuristic)
	assert.True(t, ok)

	_, ok = New("tiktoken", "no_such_encoding", nil).(Heuristic)
	assert.True(t, ok, "unknown encoding falls back")
}
