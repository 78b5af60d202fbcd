package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/cache"
	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
)

func ptr[T any](v T) *T { return &v }

func TestAssertTraceCount(t *testing.T) {
	trace := []TraceEvent{
		{Step: 1, Op: OpQuery, Table: "people"},
		{Step: 2, Op: OpInsert, Table: "people", Error: "constraint:unique"},
		{Step: 3, Op: OpInsert, Table: "people", Affected: 1},
		{Step: 4, Op: OpDelete, Table: "people", Error: "schema:bad_row"},
	}
	tests := []struct {
		name string
		a    Assertion
		ok   bool
	}{
		{"all events", Assertion{Count: ptr(4)}, true},
		{"by op", Assertion{Op: OpInsert, Count: ptr(2)}, true},
		{"by error category", Assertion{Error: "constraint", Count: ptr(1)}, true},
		{"by op and error", Assertion{Op: OpInsert, Error: "schema", Count: ptr(0)}, true},
		{"wrong count", Assertion{Op: OpQuery, Count: ptr(2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(trace, tt.a)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceCount, ae.Type)
			assert.Contains(t, err.Error(), "[2] insert people -> constraint:unique")
		})
	}
}

func TestAssertCache(t *testing.T) {
	st := cache.Stats{Hits: 3, Misses: 1}
	assert.NoError(t, assertCache(st, Assertion{Hits: ptr(uint64(3))}))
	assert.NoError(t, assertCache(st, Assertion{Hits: ptr(uint64(3)), Misses: ptr(uint64(1))}))
	assert.ErrorContains(t, assertCache(st, Assertion{Hits: ptr(uint64(2))}), "Expected: 2 hits")
	assert.ErrorContains(t, assertCache(st, Assertion{Misses: ptr(uint64(0))}), "Actual: 1 misses")
}

func TestCheckExpect(t *testing.T) {
	cols := []queryir.OutputColumn{{Name: "name", Type: ir.TText}, {Name: "age", Type: ir.TInt}, {Name: "pet", Type: ir.TText, Nullable: true}}
	res := &engine.Result{
		Columns: cols,
		Rows:    []ir.Row{{ir.Text("Link"), ir.Int(125), ir.Null{}}},
		Cached:  true,
	}
	tests := []struct {
		name   string
		expect *ExpectClause
		ev     TraceEvent
		res    *engine.Result
		err    error
		want   []string
	}{
		{"no clause success", nil, TraceEvent{}, nil, nil, nil},
		{"no clause failure", nil, TraceEvent{Error: "error"}, nil, assert.AnError, []string{"unexpected error"}},
		{"expected error matched", &ExpectClause{Error: "constraint"}, TraceEvent{Error: "constraint:unique"}, nil, assert.AnError, nil},
		{"expected error mismatched", &ExpectClause{Error: "schema"}, TraceEvent{Error: "constraint:unique"}, nil, assert.AnError, []string{"expected error schema, got constraint:unique"}},
		{"expected error missing", &ExpectClause{Error: "schema"}, TraceEvent{}, nil, nil, []string{"step succeeded"}},
		{"affected", &ExpectClause{Affected: ptr(int64(2))}, TraceEvent{Affected: 1}, nil, nil, []string{"affected: expected 2, got 1"}},
		{"rows match", &ExpectClause{Rows: [][]any{{"Link", 125, nil}}, Cached: ptr(true), Count: ptr(1)}, TraceEvent{}, res, nil, nil},
		{"rows match after coercion", &ExpectClause{Rows: [][]any{{"Link", "125", nil}}}, TraceEvent{}, res, nil, nil},
		{"row value differs", &ExpectClause{Rows: [][]any{{"Link", 124, nil}}}, TraceEvent{}, res, nil, []string{"row 0 column age: expected 124, got 125"}},
		{"null differs", &ExpectClause{Rows: [][]any{{"Link", 125, "horse"}}}, TraceEvent{}, res, nil, []string{"row 0 column pet"}},
		{"row count differs", &ExpectClause{Rows: [][]any{}}, TraceEvent{}, res, nil, []string{"rows: expected 0, got 1"}},
		{"cached differs", &ExpectClause{Cached: ptr(false)}, TraceEvent{}, res, nil, []string{"cached: expected false, got true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkExpect(tt.expect, tt.ev, tt.res, tt.err)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Contains(t, got[i], w)
			}
		})
	}
}

func TestMatchValue(t *testing.T) {
	intCol := queryir.OutputColumn{Name: "n", Type: ir.TInt}
	floatCol := queryir.OutputColumn{Name: "f", Type: ir.TFloat}
	boolCol := queryir.OutputColumn{Name: "b", Type: ir.TBool}

	assert.True(t, matchValue(3, ir.Int(3), intCol))
	assert.True(t, matchValue(2, ir.Float(2), floatCol))
	assert.True(t, matchValue(true, ir.Bool(true), boolCol))
	assert.True(t, matchValue(nil, ir.Null{}, intCol))
	assert.False(t, matchValue(nil, ir.Int(0), intCol))
	assert.False(t, matchValue(0, ir.Null{}, intCol))
	assert.False(t, matchValue("three", ir.Int(3), intCol))
	assert.False(t, matchValue(struct{}{}, ir.Int(3), intCol))
}
