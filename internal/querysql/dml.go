package querysql

import (
	"fmt"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
)

// Insert returns the INSERT statements for rows, split so no statement
// exceeds the dialect's parameter limit.
//
// Rows must already be validated against t. An ir.Default on the
// auto-increment key asks the backend for the next key; on any other
// column it is replaced by the column's default value.
func (c *SQLCompiler) Insert(t *schema.Table, rows []ir.Row) ([]Statement, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot insert into nil table")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	perStmt := c.dialect.MaxParams / t.Len()
	if perStmt < 1 {
		return nil, fmt.Errorf("table %q has more columns than the %s parameter limit", t.Name(), c.dialect.Name)
	}

	var stmts []Statement
	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		stmt, err := c.insertChunk(t, rows[start:end])
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// InsertReturning returns a single-row INSERT that yields the generated
// auto-increment key.
func (c *SQLCompiler) InsertReturning(t *schema.Table, row ir.Row) (Statement, error) {
	if t == nil {
		return Statement{}, fmt.Errorf("cannot insert into nil table")
	}
	key := t.AutoKey()
	if key < 0 {
		return Statement{}, fmt.Errorf("table %q has no auto-increment key", t.Name())
	}
	stmt, err := c.insertChunk(t, []ir.Row{row})
	if err != nil {
		return Statement{}, err
	}
	stmt.SQL += " RETURNING " + QuoteIdent(t.ColumnAt(key).Name)
	return stmt, nil
}

func (c *SQLCompiler) insertChunk(t *schema.Table, rows []ir.Row) (Statement, error) {
	w := newWriter(c.dialect)
	cols := t.Columns()
	auto := t.AutoKey()

	w.WriteString("INSERT INTO ")
	w.ident(t.Name())
	w.WriteString(" (")
	for i, col := range cols {
		if i > 0 {
			w.WriteString(", ")
		}
		w.ident(col.Name)
	}
	w.WriteString(") VALUES ")

	for r, row := range rows {
		if len(row) != len(cols) {
			return Statement{}, fmt.Errorf("row %d has %d values, table %q has %d columns", r, len(row), t.Name(), len(cols))
		}
		if r > 0 {
			w.WriteString(", ")
		}
		w.WriteByte('(')
		for i, v := range row {
			if i > 0 {
				w.WriteString(", ")
			}
			switch {
			case ir.IsDefault(v) && i == auto:
				w.WriteString(c.dialect.AutoKeyDefault)
			case ir.IsDefault(v):
				w.param(cols[i].DefaultValue())
			default:
				w.param(v)
			}
		}
		w.WriteByte(')')
	}

	args, err := w.args()
	if err != nil {
		return Statement{}, fmt.Errorf("insert into %q: %w", t.Name(), err)
	}
	return Statement{SQL: w.String(), Args: args, Tables: []string{t.Name()}}, nil
}

// Update returns the UPDATE statement setting assignments on every row
// of the target matching pred.
func (c *SQLCompiler) Update(target *queryir.Target, pred queryir.Expr, assignments []queryir.Assignment) (Statement, error) {
	const op = "Update"
	if target == nil || target.Table() == nil {
		return Statement{}, fmt.Errorf("update: invalid target")
	}
	t := target.Table()
	if len(assignments) == 0 {
		return Statement{}, fmt.Errorf("update %q: no assignments", t.Name())
	}
	if err := checkPredicate(op, target, pred); err != nil {
		return Statement{}, fmt.Errorf("update %q: %w", t.Name(), err)
	}

	seen := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		col, ok := t.Column(a.Column)
		if !ok {
			return Statement{}, fmt.Errorf("update %q: unknown column %q", t.Name(), a.Column)
		}
		if seen[a.Column] {
			return Statement{}, fmt.Errorf("update %q: column %q assigned twice", t.Name(), a.Column)
		}
		seen[a.Column] = true
		if err := target.Check(op, a.Value); err != nil {
			return Statement{}, fmt.Errorf("update %q: %w", t.Name(), err)
		}
		if !queryir.Assignable(a.Value, col.Type) {
			return Statement{}, fmt.Errorf("update %q: cannot assign %s to column %q of type %s",
				t.Name(), a.Value.Type(), col.Name, col.Type)
		}
		if lit, ok := a.Value.(*queryir.Literal); ok && ir.IsNull(lit.Value) && !col.Nullable {
			return Statement{}, fmt.Errorf("update %q: column %q is NOT NULL", t.Name(), col.Name)
		}
	}

	w := newWriter(c.dialect)
	ctx := &compileCtx{dialect: c.dialect}
	resolve := targetResolver(target)

	w.WriteString("UPDATE ")
	w.ident(t.Name())
	w.WriteString(" SET ")
	for i, a := range assignments {
		if i > 0 {
			w.WriteString(", ")
		}
		w.ident(a.Column)
		w.WriteString(" = ")
		if err := ctx.expr(w, a.Value, resolve); err != nil {
			return Statement{}, fmt.Errorf("update %q: %w", t.Name(), err)
		}
	}
	w.WriteString(" WHERE ")
	if err := ctx.expr(w, pred, resolve); err != nil {
		return Statement{}, fmt.Errorf("update %q: %w", t.Name(), err)
	}

	args, err := w.args()
	if err != nil {
		return Statement{}, fmt.Errorf("update %q: %w", t.Name(), err)
	}
	return Statement{SQL: w.String(), Args: args, Tables: []string{t.Name()}}, nil
}

// Delete returns the DELETE statement removing every row of the target
// matching pred.
func (c *SQLCompiler) Delete(target *queryir.Target, pred queryir.Expr) (Statement, error) {
	if target == nil || target.Table() == nil {
		return Statement{}, fmt.Errorf("delete: invalid target")
	}
	t := target.Table()
	if err := checkPredicate("Delete", target, pred); err != nil {
		return Statement{}, fmt.Errorf("delete from %q: %w", t.Name(), err)
	}

	w := newWriter(c.dialect)
	ctx := &compileCtx{dialect: c.dialect}
	w.WriteString("DELETE FROM ")
	w.ident(t.Name())
	w.WriteString(" WHERE ")
	if err := ctx.expr(w, pred, targetResolver(target)); err != nil {
		return Statement{}, fmt.Errorf("delete from %q: %w", t.Name(), err)
	}

	args, err := w.args()
	if err != nil {
		return Statement{}, fmt.Errorf("delete from %q: %w", t.Name(), err)
	}
	return Statement{SQL: w.String(), Args: args, Tables: []string{t.Name()}}, nil
}

// ResyncSequence returns the statement that moves the key generator of
// t past the largest stored key. ok is false when the dialect keeps its
// generator in step on its own or t has no auto-increment key.
func (c *SQLCompiler) ResyncSequence(t *schema.Table) (stmt Statement, ok bool) {
	if t == nil || !c.dialect.NeedsResync || t.AutoKey() < 0 {
		return Statement{}, false
	}
	key := QuoteIdent(t.ColumnAt(t.AutoKey()).Name)
	sql := "SELECT setval(seq, GREATEST(COALESCE(pg_sequence_last_value(seq), 1), " +
		"(SELECT COALESCE(MAX(" + key + "), 1) FROM " + QuoteIdent(t.Name()) + "))) " +
		"FROM (SELECT pg_get_serial_sequence(" + c.dialect.Placeholder(1) + ", " +
		c.dialect.Placeholder(2) + ")::regclass AS seq) AS s"
	return Statement{
		SQL:    sql,
		Args:   []any{QuoteIdent(t.Name()), t.ColumnAt(t.AutoKey()).Name},
		Tables: []string{t.Name()},
	}, true
}

func checkPredicate(op string, target *queryir.Target, pred queryir.Expr) error {
	if err := target.Check(op, pred); err != nil {
		return err
	}
	if pred.Type() != ir.TBool {
		return fmt.Errorf("predicate has type %s, want %s", pred.Type(), ir.TBool)
	}
	return nil
}

func targetResolver(target *queryir.Target) resolver {
	t := target.Table()
	return func(w *writer, e queryir.Expr) bool {
		i, ok := target.Locate(e)
		if !ok {
			return false
		}
		w.ident(t.ColumnAt(i).Name)
		return true
	}
}
