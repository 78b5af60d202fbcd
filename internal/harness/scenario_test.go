package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: valid
description: "A valid scenario"
schema:
  - schema/tables.cue
  - /abs/other.cue
cache_capacity: 4
setup:
  - table: people
    rows:
      - { name: Link, age: 125 }
flow:
  - query: people
    where: "age > 18"
    order: [-age, name]
    limit: 2
    expect:
      count: 1
      cached: false
assertions:
  - type: row_count
    table: people
    count: 1
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, 4, s.CacheCapacity)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "schema/tables.cue"), s.Schema[0])
	assert.Equal(t, "/abs/other.cue", s.Schema[1])
	require.Len(t, s.Setup, 1)
	assert.Equal(t, "Link", s.Setup[0].Rows[0]["name"])

	require.Len(t, s.Flow, 1)
	op, table := s.Flow[0].Op()
	assert.Equal(t, OpQuery, op)
	assert.Equal(t, "people", table)
	assert.Equal(t, []string{"-age", "name"}, s.Flow[0].Order)
	require.NotNil(t, s.Flow[0].Limit)
	assert.Equal(t, int64(2), *s.Flow[0].Limit)
	require.NotNil(t, s.Flow[0].Expect.Cached)
	assert.False(t, *s.Flow[0].Expect.Cached)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
schema: [a.cue]
flow:
  - query: people
assertion:
  - type: row_count
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no name", "schema: [a.cue]\nflow: [{query: t}]", "name is required"},
		{"no schema", "name: x\nflow: [{query: t}]", "schema is required"},
		{"no flow", "name: x\nschema: [a.cue]", "flow is required"},
		{"negative cache", "name: x\nschema: [a.cue]\ncache_capacity: -1\nflow: [{query: t}]", "cache_capacity"},
		{"setup without table", "name: x\nschema: [a.cue]\nsetup: [{rows: []}]\nflow: [{query: t}]", "setup[0]: table is required"},
		{"two ops", "name: x\nschema: [a.cue]\nflow: [{query: t, delete: t}]", "exactly one of"},
		{"no op", "name: x\nschema: [a.cue]\nflow: [{where: 'a = 1'}]", "exactly one of"},
		{"insert without rows", "name: x\nschema: [a.cue]\nflow: [{insert: t}]", "insert needs rows"},
		{"update without set", "name: x\nschema: [a.cue]\nflow: [{update: t}]", "update needs set"},
		{"set on delete", "name: x\nschema: [a.cue]\nflow: [{delete: t, set: {a: 1}}]", "set only applies to update"},
		{"order on delete", "name: x\nschema: [a.cue]\nflow: [{delete: t, order: [a]}]", "only apply to query"},
		{"rows expect on insert", "name: x\nschema: [a.cue]\nflow: [{insert: t, rows: [{a: 1}], expect: {count: 1}}]", "only apply to query"},
		{"affected on query", "name: x\nschema: [a.cue]\nflow: [{query: t, expect: {affected: 1}}]", "affected does not apply"},
		{"unknown assertion", "name: x\nschema: [a.cue]\nflow: [{query: t}]\nassertions: [{type: bogus}]", "unknown assertion type"},
		{"row_count without count", "name: x\nschema: [a.cue]\nflow: [{query: t}]\nassertions: [{type: row_count, table: t}]", "row_count requires"},
		{"cache without counters", "name: x\nschema: [a.cue]\nflow: [{query: t}]\nassertions: [{type: cache}]", "cache requires"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		s, err := LoadScenario(f)
		require.NoError(t, err, f)
		for _, p := range s.Schema {
			assert.FileExists(t, p)
		}
	}
}
