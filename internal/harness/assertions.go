package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jchia/selda/internal/cache"
	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/filter"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Step, ev.Op, ev.Table)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " -> %s", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. Cache assertions see the counters as they were at the end of
// the flow.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	stats := h.engine.CacheStats()
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = h.assertRowCount(ctx, a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertCache:
			err = assertCache(stats, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) selectWhere(ctx context.Context, table, where string) (*engine.Result, error) {
	t, err := h.table(table)
	if err != nil {
		return nil, err
	}
	q, err := filter.Selection{Where: where, Limit: -1}.Query(t)
	if err != nil {
		return nil, err
	}
	return h.engine.Query(ctx, q)
}

func (h *Harness) assertRowCount(ctx context.Context, a Assertion) error {
	res, err := h.selectWhere(ctx, a.Table, a.Where)
	if err != nil {
		return fmt.Errorf("row_count: %w", err)
	}
	if len(res.Rows) != *a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %q", *a.Count, a.Table, a.Where),
			Actual:   fmt.Sprintf("%d rows", len(res.Rows)),
		}
	}
	return nil
}

// assertFinalState requires at least one matching row, and every
// matching row to carry the expected values.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	res, err := h.selectWhere(ctx, a.Table, a.Where)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if len(res.Rows) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("rows in %s where %q", a.Table, a.Where),
			Actual:   "no rows",
		}
	}
	index := make(map[string]int, len(res.Columns))
	for i, c := range res.Columns {
		index[c.Name] = i
	}
	for _, name := range sortedKeys(a.Expect) {
		i, ok := index[name]
		if !ok {
			return fmt.Errorf("final_state: table %s has no column %q", a.Table, name)
		}
		for _, row := range res.Rows {
			if !matchValue(a.Expect[name], row[i], res.Columns[i]) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s.%s = %v", a.Table, name, a.Expect[name]),
					Actual:   ir.Format(row[i]),
				}
			}
		}
	}
	return nil
}

// assertTraceCount counts trace events matching Op and Error. An empty
// field matches any event.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if a.Op != "" && ev.Op != a.Op {
			continue
		}
		if a.Error != "" && !matchClass(ev.Error, a.Error) {
			continue
		}
		n++
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events (op=%q error=%q)", *a.Count, a.Op, a.Error),
			Actual:   fmt.Sprintf("%d events", n),
			Trace:    trace,
		}
	}
	return nil
}

func assertCache(st cache.Stats, a Assertion) error {
	if a.Hits != nil && st.Hits != *a.Hits {
		return &AssertionError{Type: AssertCache, Expected: fmt.Sprintf("%d hits", *a.Hits), Actual: fmt.Sprintf("%d hits", st.Hits)}
	}
	if a.Misses != nil && st.Misses != *a.Misses {
		return &AssertionError{Type: AssertCache, Expected: fmt.Sprintf("%d misses", *a.Misses), Actual: fmt.Sprintf("%d misses", st.Misses)}
	}
	return nil
}

// checkExpect compares a step outcome with its expect clause. A step
// without a clause must succeed.
func checkExpect(e *ExpectClause, ev TraceEvent, res *engine.Result, err error) []string {
	if e == nil || e.Error == "" {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
	}
	if e == nil {
		return nil
	}
	if e.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, step succeeded", e.Error)}
		}
		if !matchClass(ev.Error, e.Error) {
			return []string{fmt.Sprintf("expected error %s, got %s: %v", e.Error, ev.Error, err)}
		}
		return nil
	}

	var msgs []string
	if e.Affected != nil && ev.Affected != *e.Affected {
		msgs = append(msgs, fmt.Sprintf("affected: expected %d, got %d", *e.Affected, ev.Affected))
	}
	if res == nil {
		return msgs
	}
	if e.Count != nil && len(res.Rows) != *e.Count {
		msgs = append(msgs, fmt.Sprintf("count: expected %d, got %d", *e.Count, len(res.Rows)))
	}
	if e.Cached != nil && res.Cached != *e.Cached {
		msgs = append(msgs, fmt.Sprintf("cached: expected %t, got %t", *e.Cached, res.Cached))
	}
	if e.Rows != nil {
		if msg := matchRows(e.Rows, res); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func matchRows(want [][]any, res *engine.Result) string {
	if len(want) != len(res.Rows) {
		return fmt.Sprintf("rows: expected %d, got %d", len(want), len(res.Rows))
	}
	for i, row := range res.Rows {
		if len(want[i]) != len(row) {
			return fmt.Sprintf("row %d: expected %d values, got %d", i, len(want[i]), len(row))
		}
		for j, v := range row {
			if !matchValue(want[i][j], v, res.Columns[j]) {
				return fmt.Sprintf("row %d column %s: expected %v, got %s", i, res.Columns[j].Name, want[i][j], ir.Format(v))
			}
		}
	}
	return ""
}

// matchValue compares a scenario value with a result value after
// coercing it to the column type.
func matchValue(want any, got ir.Value, col queryir.OutputColumn) bool {
	wv, err := ir.FromGo(want)
	if err != nil {
		return false
	}
	if ir.IsNull(wv) || ir.IsNull(got) {
		return ir.IsNull(wv) && ir.IsNull(got)
	}
	cv, err := ir.Coerce(wv, col.Type)
	if err != nil {
		return false
	}
	return ir.Format(cv) == ir.Format(got)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
