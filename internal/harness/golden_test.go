package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/people_lifecycle.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_IsStable(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{Step: 1, Op: OpDelete, Table: "items", Affected: 2})
	result.State["people"] = [][]any{{"Link", int64(125)}}
	result.State["items"] = [][]any{}

	first, err := Snapshot("stable", result)
	require.NoError(t, err)
	second, err := Snapshot("stable", result)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.JSONEq(t, `{
		"scenario": "stable",
		"trace": [{"step": 1, "op": "delete", "table": "items", "affected": 2}],
		"state": {"items": [], "people": [["Link", 125]]}
	}`, string(first))
}
