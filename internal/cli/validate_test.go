package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/compiler"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func runValidateCmd(t *testing.T, format, dir string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format, Schema: "."})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidSchema(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "schema.cue", testSchema)

	out, err := runValidateCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid (2 tables)")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "schema.cue", testSchema)

	out, err := runValidateCmd(t, "json", dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"people", "items"}, resp.Data.Tables)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := runValidateCmd(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := runValidateCmd(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

const invalidSchema = `
package schema

table: people: columns: [
	{name: "name", type: "text", role: "primary"},
	{name: "age", type: "integer"},
]
table: pets: columns: []
`

func TestValidateInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "bad.cue", invalidSchema)

	out, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrInvalidColumn)
	assert.Contains(t, out, compiler.ErrTableNoColumns)
	assert.Contains(t, out, "integer")
}

func TestValidateInvalidSchemaJSON(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "bad.cue", invalidSchema)

	out, err := runValidateCmd(t, "json", dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, compiler.ErrInvalidColumn, resp.Error.Code)
	assert.Equal(t, "table.people.columns[1]", resp.Data.Errors[0].Field)
	assert.Positive(t, resp.Data.Errors[0].Line)
}

func TestValidateDefaultsToSchemaFlag(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "schema.cue", testSchema)

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", dir, "validate"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Schema valid")
}
