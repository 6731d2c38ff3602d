package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
)

// setupEnv isolates config lookup and shares one snapshot across invocations.
func setupEnv(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CTXGRAPH_STORE_MEMORY_SNAPSHOT_PATH", filepath.Join(home, "graph.json"))
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "http", "extract", "search", "related", "chain", "inject", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Short, name)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestExtractSearchInject(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "extract", "--chat", "c1", "--project", "app",
		"We decided to use PostgreSQL for storage.")
	require.NoError(t, err)
	var extracted memory.ExtractResponse
	require.NoError(t, json.Unmarshal([]byte(out), &extracted))
	require.NotEmpty(t, extracted.Items)
	assert.Equal(t, "c1", extracted.ChatID)
	assert.Equal(t, 1, extracted.ByType[ctxitem.TypeDecision])

	out, err = execute(t, "We must support SSO login for all users.", "extract", "--chat", "c2", "--project", "app", "-")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &extracted))
	assert.Equal(t, 1, extracted.ByType[ctxitem.TypeRequirement])

	out, err = execute(t, "", "search", "--keyword", "--type", "decision", "PostgreSQL")
	require.NoError(t, err)
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, ctxitem.TypeDecision, results[0].Item.Type)
	id := results[0].Item.ID

	out, err = execute(t, "", "chain", id)
	require.NoError(t, err)
	var chain []*ctxitem.Item
	require.NoError(t, json.Unmarshal([]byte(out), &chain))
	require.NotEmpty(t, chain)

	_, err = execute(t, "", "related", id)
	require.NoError(t, err)

	out, err = execute(t, "", "inject", "--max-tokens", "300", "PostgreSQL storage")
	require.NoError(t, err)
	assert.Contains(t, out, "PostgreSQL")
}

func TestExtractCmd_Errors(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "extract", "--transcript", "/tmp/a.jsonl", "some text")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = execute(t, "", "extract", "--chat", "c1", "-")
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestSearchCmd_UnknownType(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "search", "--type", "poem", "anything")
	assert.ErrorIs(t, err, ctxitem.ErrInvalidInput)
}

func TestBootstrap_InvalidLogLevel(t *testing.T) {
	setupEnv(t)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "search", "x"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "failed to initialize logger")
}
