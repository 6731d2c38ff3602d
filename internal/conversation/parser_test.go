package conversation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const session = `{"type":"summary","summary":"Session store migration"}
{"type":"user","message":{"role":"user","content":[{"type":"text","text":"We decided to use Redis for sessions."}]},"timestamp":"2025-01-01T10:00:00Z","uuid":"u1","sessionId":"s-1"}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Updating the store now."},{"type":"tool_use","id":"t1","name":"Edit","input":{"file_path":"internal/session/store.go"}}]},"timestamp":"2025-01-01T10:01:00Z","uuid":"u2"}
{"type":"system","message":"ignored"}
not json
{"type":"user","message":"plain string turn","timestamp":"2025-01-01T10:02:00Z","uuid":"u3"}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_result","content":"ok"}]},"uuid":"u4"}
`

func TestParser_Parse(t *testing.T) {
	p := NewParser()
	tr, err := p.Parse(strings.NewReader(session), "")
	require.NoError(t, err)

	assert.Equal(t, "s-1", tr.SessionID)
	assert.Equal(t, "Session store migration", tr.Title)
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, RoleUser, tr.Messages[0].Role)
	assert.Equal(t, []ToolCall{{Name: "Edit", Path: "internal/session/store.go"}}, tr.Messages[1].ToolCalls)
	assert.Equal(t, "plain string turn", tr.Messages[2].Content)

	assert.Equal(t, 1, tr.Skipped)
	require.Len(t, tr.Errors, 1)
	assert.Equal(t, 5, tr.Errors[0].Line)

	want := "User: We decided to use Redis for sessions.\n\n" +
		"Assistant: Updating the store now.\n(Edit internal/session/store.go)\n\n" +
		"User: plain string turn"
	assert.Equal(t, want, tr.Text)

	require.Len(t, tr.Marks, 3)
	for i, m := range tr.Marks {
		assert.Equal(t, tr.Messages[i].Timestamp, m.Time)
		assert.True(t, strings.HasPrefix(tr.Text[m.Offset:], tr.Messages[i].Role.Label()+": "))
	}
}

func TestParser_TitleFallsBackToFirstUserLine(t *testing.T) {
	in := `{"type":"user","message":{"role":"user","content":"Fix the login bug\nsecond line"},"uuid":"u1"}`
	tr, err := NewParser().Parse(strings.NewReader(in), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", tr.SessionID)
	assert.Equal(t, "Fix the login bug", tr.Title)
}

func TestParser_MissingTimestampUsesNow(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &Parser{Now: func() time.Time { return fixed }}
	tr, err := p.Parse(strings.NewReader(`{"type":"user","message":"hi there"}`), "s")
	require.NoError(t, err)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, fixed, tr.Messages[0].Timestamp)
}

func TestParser_Empty(t *testing.T) {
	tr, err := NewParser().Parse(strings.NewReader("\n\n"), "s")
	require.NoError(t, err)
	assert.Empty(t, tr.Messages)
	assert.Empty(t, tr.Text)
	assert.Empty(t, tr.Marks)
}

func TestParser_ErrorsCapped(t *testing.T) {
	in := strings.Repeat("{broken\n", maxErrors+5)
	tr, err := NewParser().Parse(strings.NewReader(in), "s")
	require.NoError(t, err)
	assert.Equal(t, maxErrors+5, tr.Skipped)
	assert.Len(t, tr.Errors, maxErrors)
}

func TestParser_ParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc-123.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"user","message":"hello world"}`), 0o600))

	tr, err := NewParser().ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", tr.SessionID)
	assert.Equal(t, "User: hello world", tr.Text)

	_, err = NewParser().ParseFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestParser_MarksTimestampExtractedItems(t *testing.T) {
	in := `{"type":"user","message":"We decided to use Redis for sessions.","timestamp":"2025-01-01T10:00:00Z"}
{"type":"assistant","message":"We decided to move sessions to Postgres.","timestamp":"2025-01-01T11:30:00Z"}`
	tr, err := NewParser().Parse(strings.NewReader(in), "s")
	require.NoError(t, err)
	require.Len(t, tr.Marks, 2)

	ex, err := extraction.NewExtractor(extraction.DefaultConfig(), extraction.Deps{})
	require.NoError(t, err)
	res, err := ex.Extract(context.Background(), tr.Text, tr.SessionID, "", extraction.WithTimeline(tr.Marks))
	require.NoError(t, err)

	got := map[string]time.Time{}
	for _, it := range res.Items {
		switch {
		case strings.Contains(it.Content, "Redis"):
			got["redis"] = it.Timestamp
		case strings.Contains(it.Content, "Postgres"):
			got["postgres"] = it.Timestamp
		}
	}
	assert.Equal(t, map[string]time.Time{
		"redis":    tr.Messages[0].Timestamp,
		"postgres": tr.Messages[1].Timestamp,
	}, got)
}
