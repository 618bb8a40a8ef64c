package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltaServer/backend/internal/ot/delta"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func parseOut(t *testing.T, out string) delta.Delta {
	t.Helper()
	d, err := delta.Parse([]byte(out))
	require.NoError(t, err, out)
	return d
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"ops":[{"insert":"Hello"}]}`), 0o644))

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  delta.Delta
	}{
		{
			name: "compose file and inline",
			args: []string{"compose", docPath, `[{"retain":5},{"insert":" world"}]`},
			want: delta.New().Insert("Hello world", nil),
		},
		{
			name:  "compose from stdin",
			stdin: `[{"delete":1}]`,
			args:  []string{"compose", docPath, "-"},
			want:  delta.New().Insert("ello", nil),
		},
		{
			name: "diff",
			args: []string{"diff", docPath, `[{"insert":"Hello!"}]`},
			want: delta.New().Retain(5, nil).Insert("!", nil),
		},
		{
			name: "transform with priority",
			args: []string{"transform", `[{"insert":"A"}]`, `[{"insert":"B"}]`, "--priority"},
			want: delta.New().Retain(1, nil).Insert("B", nil),
		},
		{
			name: "transform without priority",
			args: []string{"transform", `[{"insert":"A"}]`, `[{"insert":"B"}]`},
			want: delta.New().Insert("B", nil),
		},
		{
			name: "invert",
			args: []string{"invert", `[{"retain":1},{"delete":2}]`, docPath},
			want: delta.New().Retain(1, nil).Insert("el", nil),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			got := parseOut(t, out)
			assert.True(t, got.Equal(tt.want), "got %s", out)
		})
	}
}

func TestPositionAndStat(t *testing.T) {
	out, err := runCmd(t, "", "position", `[{"insert":"ab"}]`, "0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":2}`, out)

	out, err = runCmd(t, "", "position", `[{"insert":"ab"}]`, "0", "--priority")
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":0}`, out)

	out, err = runCmd(t, "", "stat", `[{"insert":"héllo"},{"insert":{"image":"x.png"}}]`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":2,"length":6,"changeLength":6,"baseLength":0,"document":true,"text":"héllo"}`, out)
}

func TestErrors(t *testing.T) {
	_, err := runCmd(t, "", "compose", `[{"delete":-1}]`, `[]`)
	assert.True(t, errors.Is(err, delta.ErrInvalidOperation), "err = %v", err)

	_, err = runCmd(t, "", "diff", `[{"retain":1}]`, `[]`)
	assert.True(t, errors.Is(err, delta.ErrInvalidOperation), "err = %v", err)

	_, err = runCmd(t, "", "position", `[]`, "abc")
	assert.Error(t, err)

	_, err = runCmd(t, "", "compose", filepath.Join(t.TempDir(), "missing.json"), `[]`)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = runCmd(t, "", "compose", `[]`)
	assert.Error(t, err)
}

func TestFmtAndAppend(t *testing.T) {
	out, err := runCmd(t, "", "fmt", `[{"insert":"a"},{"insert":"b"},{"retain":0}]`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":[{"insert":"ab"}]}`, out)

	out, err = runCmd(t, "", "append", `{"ops":[{"insert":"Hello"}]}`, " world")
	require.NoError(t, err)
	var body struct {
		Document delta.Delta `json:"document"`
		Change   delta.Delta `json:"change"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body), out)
	assert.True(t, body.Document.Equal(delta.New().Insert("Hello world", nil)))
	assert.True(t, body.Change.Equal(delta.New().Retain(5, nil).Insert(" world", nil)))

	_, err = runCmd(t, "", "append", `[{"retain":1}]`, "x")
	assert.ErrorIs(t, err, delta.ErrInvalidOperation)
}
