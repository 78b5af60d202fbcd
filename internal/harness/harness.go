package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/jchia/selda/internal/compiler"
	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/filter"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
	"github.com/jchia/selda/internal/store"
)

// Harness runs one scenario against a private engine.
type Harness struct {
	engine *engine.Engine
	tables map[string]*schema.Table
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh in-memory SQLite database and sequential
// transaction tokens, so traces are reproducible. Failed expectations
// are reported in the result; an error means the scenario could not run
// at all (bad schema, failing setup).
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	tables, err := loadTables(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	st, err := store.Open(":memory:", store.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(st,
		engine.WithCacheCapacity(scenario.CacheCapacity),
		engine.WithLogger(logger),
		engine.WithTokenGenerator(engine.NewSequenceGenerator("scenario")),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	defer eng.Close()

	h := &Harness{engine: eng, tables: make(map[string]*schema.Table), logger: logger}
	for _, t := range tables {
		h.tables[t.Name()] = t
	}

	err = eng.Transaction(ctx, func(tx *engine.Tx) error {
		for _, t := range tables {
			if err := tx.TryCreateTable(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i+1, step, result)
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	if err := h.captureState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	return result, nil
}

// loadTables builds the CUE files as one instance and compiles every
// declared table.
func loadTables(files []string) ([]*schema.Table, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no schema files")
	}
	instances := load.Instances(files, &load.Config{Dir: filepath.Dir(files[0])})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded")
	}
	if err := instances[0].Err; err != nil {
		return nil, err
	}
	value := cuecontext.New().BuildInstance(instances[0])
	if errs := compiler.Validate(value); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %s: %s", errs[0].Code, errs[0].Field, errs[0].Message)
	}
	return compiler.CompileTables(value)
}

func (h *Harness) table(name string) (*schema.Table, error) {
	t, ok := h.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q is not declared", name)
	}
	return t, nil
}

func (h *Harness) executeSetup(ctx context.Context, steps []InsertStep) error {
	for i, step := range steps {
		t, err := h.table(step.Table)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		rows, err := buildRows(t, step.Rows)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if _, err := h.engine.Insert(ctx, t, rows...); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return nil
}

// executeStep runs one flow step, appends it to the trace and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, n int, step FlowStep, result *Result) {
	op, name := step.Op()
	event := TraceEvent{Step: n, Op: op, Table: name}

	var (
		res *engine.Result
		err error
	)
	t, err := h.table(name)
	if err == nil {
		switch op {
		case OpInsert:
			event.Affected, err = h.insert(ctx, t, step.Rows)
		case OpUpdate:
			event.Affected, err = h.update(ctx, t, step.Where, step.Set)
		case OpDelete:
			event.Affected, err = h.delete(ctx, t, step.Where)
		case OpQuery:
			res, err = h.query(ctx, t, step)
		}
	}
	if err != nil {
		event.Error = ErrorClass(err)
		h.logger.Debug("step failed", "step", n, "op", op, "error", err)
	}
	if res != nil {
		event.Columns = make([]string, len(res.Columns))
		for i, c := range res.Columns {
			event.Columns[i] = c.Name
		}
		event.Rows = toGoRows(res.Rows)
		event.Cached = res.Cached
	}
	result.Trace = append(result.Trace, event)

	for _, msg := range checkExpect(step.Expect, event, res, err) {
		result.AddError(fmt.Sprintf("step %d (%s %s): %s", n, op, name, msg))
	}
}

func (h *Harness) insert(ctx context.Context, t *schema.Table, values []map[string]any) (int64, error) {
	rows, err := buildRows(t, values)
	if err != nil {
		return 0, err
	}
	return h.engine.Insert(ctx, t, rows...)
}

func (h *Harness) update(ctx context.Context, t *schema.Table, where string, set map[string]any) (int64, error) {
	return h.engine.Update(ctx, t, predicate(where), func(r *queryir.Target) []queryir.Assignment {
		out := make([]queryir.Assignment, 0, len(set))
		for _, name := range sortedKeys(set) {
			out = append(out, queryir.Set(name, literal(t, name, set[name])))
		}
		return out
	})
}

func (h *Harness) delete(ctx context.Context, t *schema.Table, where string) (int64, error) {
	return h.engine.Delete(ctx, t, predicate(where))
}

func (h *Harness) query(ctx context.Context, t *schema.Table, step FlowStep) (*engine.Result, error) {
	sel := filter.Selection{
		Where:   step.Where,
		Order:   step.Order,
		Columns: step.Columns,
		Limit:   -1,
	}
	if step.Limit != nil {
		sel.Limit = *step.Limit
	}
	q, err := sel.Query(t)
	if err != nil {
		return nil, err
	}
	return h.engine.Query(ctx, q)
}

// predicate parses where against the target row. A parse failure is
// carried as an Invalid expression and returned by the compiler.
func predicate(where string) engine.Predicate {
	return func(r *queryir.Target) queryir.Expr {
		e, err := filter.Predicate(where, r)
		if err != nil {
			return &queryir.Invalid{Err: err}
		}
		return e
	}
}

// literal converts a scenario value for column name of t. Problems are
// carried as an Invalid expression and reported by the compiler.
func literal(t *schema.Table, name string, raw any) queryir.Expr {
	v, err := ir.FromGo(raw)
	if err != nil {
		return &queryir.Invalid{Err: err}
	}
	if c, ok := t.Column(name); ok {
		if v, err = ir.Coerce(v, c.Type); err != nil {
			return &queryir.Invalid{Err: err}
		}
	}
	return queryir.Lit(v)
}

func buildRows(t *schema.Table, values []map[string]any) ([]ir.Row, error) {
	rows := make([]ir.Row, len(values))
	for i, m := range values {
		vals := make(map[string]ir.Value, len(m))
		for k, raw := range m {
			v, err := ir.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, k, err)
			}
			vals[k] = v
		}
		row, err := t.RowFromMap(vals)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// captureState reads every table ordered by all of its columns.
func (h *Harness) captureState(ctx context.Context, result *Result) error {
	for name, t := range h.tables {
		q := queryir.From(t)
		cols := t.Columns()
		for i := len(cols) - 1; i >= 0; i-- {
			q = q.OrderBy(q.Col(cols[i].Name), queryir.Asc)
		}
		res, err := h.engine.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
		result.State[name] = toGoRows(res.Rows)
	}
	return nil
}

func toGoRows(rows []ir.Row) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, v := range row {
			out[i][j] = ir.ToGo(v)
		}
	}
	return out
}
