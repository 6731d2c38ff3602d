package sanitize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "sessions", "a.jsonl")
	sibling := root + "-other/a.jsonl"

	tests := []struct {
		name    string
		path    string
		root    string
		want    string
		wantErr error
	}{
		{name: "empty", path: "  ", wantErr: ErrEmptyPath},
		{name: "traversal", path: "/tmp/../etc/passwd", wantErr: ErrPathTraversal},
		{name: "no root", path: inside, want: inside},
		{name: "inside root", path: inside, root: root, want: inside},
		{name: "root itself", path: root, root: root, want: root},
		{name: "outside root", path: "/etc/passwd", root: root, wantErr: ErrPathTraversal},
		{name: "sibling prefix", path: sibling, root: root, wantErr: ErrPathTraversal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, tt.root)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePath_Relative(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := ValidatePath("testdata/a.jsonl", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "testdata", "a.jsonl"), got)
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"chat-1", true},
		{"3f2b8c1e-9d4a-4c1b-8e2f-0a1b2c3d4e5f", true},
		{"team:proj.api", true},
		{"user@host", true},
		{"", false},
		{"-leading", false},
		{"has space", false},
		{"a/b", false},
		{"a..b", false},
		{"semi;colon", false},
		{strings.Repeat("x", MaxIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID("chat id", tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidID)
			}
		})
	}
}

func TestValidateOptionalID(t *testing.T) {
	assert.NoError(t, ValidateOptionalID("project id", ""))
	assert.ErrorIs(t, ValidateOptionalID("project id", "a b"), ErrInvalidID)
}
