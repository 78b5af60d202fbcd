package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
)

// SQLCompiler compiles queries, DDL and DML to parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated). Literal
// values, LIMIT and OFFSET are all passed out of band.
// CRITICAL: Compilation is deterministic. Aliases are numbered in
// traversal order per Compile call, never from shared counters, so the
// same query always yields the same text and parameters.
type SQLCompiler struct {
	dialect *Dialect
}

// Option configures a SQLCompiler.
type Option func(*SQLCompiler)

// WithDialect selects the SQL dialect. Defaults to SQLite.
func WithDialect(d *Dialect) Option {
	return func(c *SQLCompiler) {
		if d != nil {
			c.dialect = d
		}
	}
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler(opts ...Option) *SQLCompiler {
	c := &SQLCompiler{dialect: SQLite}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the compiler's dialect.
func (c *SQLCompiler) Dialect() *Dialect { return c.dialect }

// Compiled is a query ready for execution and caching.
type Compiled struct {
	// SQL is the statement text with dialect placeholders.
	SQL string

	// Args are the driver values for database/sql, in placeholder order.
	Args []any

	// Params are the same values as ir.Value, used for fingerprinting.
	Params []ir.Value

	// Columns describes each result column by position.
	Columns []queryir.OutputColumn

	// Tables is the sorted set of tables the query reads.
	Tables []string
}

// Fingerprint returns the cache key of the compiled query.
func (c *Compiled) Fingerprint() (ir.Fingerprint, error) {
	return ir.QueryFingerprint(c.SQL, c.Params, c.Tables)
}

// Compile converts a query to parameterized SQL.
// Construction errors recorded on q are returned before any SQL is built.
func (c *SQLCompiler) Compile(q *queryir.Query) (*Compiled, error) {
	if q == nil {
		return nil, fmt.Errorf("cannot compile nil query")
	}
	if err := q.Err(); err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	w := newWriter(c.dialect)
	ctx := &compileCtx{dialect: c.dialect, aliases: make(map[*queryir.Source]string)}
	if err := ctx.level(w, q, true); err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	args, err := w.args()
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return &Compiled{
		SQL:     w.String(),
		Args:    args,
		Params:  w.params,
		Columns: q.Columns(),
		Tables:  q.Tables(),
	}, nil
}

// writer accumulates SQL text and its parameters in textual order.
type writer struct {
	strings.Builder
	dialect *Dialect
	params  []ir.Value
}

func newWriter(d *Dialect) *writer {
	return &writer{dialect: d}
}

func (w *writer) param(v ir.Value) {
	w.params = append(w.params, v)
	w.WriteString(w.dialect.Placeholder(len(w.params)))
}

func (w *writer) ident(name string) {
	w.WriteString(QuoteIdent(name))
}

func (w *writer) args() ([]any, error) {
	args := make([]any, len(w.params))
	for i, p := range w.params {
		a, err := ir.ToDriver(p)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i+1, err)
		}
		args[i] = a
	}
	return args, nil
}

// compileCtx carries per-Compile state.
type compileCtx struct {
	dialect *Dialect
	aliases map[*queryir.Source]string
	next    int
}

// resolver renders a column reference, or reports that e is not one.
type resolver func(w *writer, e queryir.Expr) bool

// level renders one query level. Nested levels name their outputs
// c0, c1, ... so duplicate user names never collide; the top level uses
// the user's names.
func (ctx *compileCtx) level(w *writer, q *queryir.Query, top bool) error {
	sources := q.Sources()
	for _, s := range sources {
		ctx.aliases[s] = "t" + strconv.Itoa(ctx.next)
		ctx.next++
	}
	resolve := ctx.levelResolver(q)

	w.WriteString("SELECT ")
	if q.IsDistinct() {
		w.WriteString("DISTINCT ")
	}
	for i, o := range q.Outputs() {
		if i > 0 {
			w.WriteString(", ")
		}
		if err := ctx.expr(w, o.Expr, resolve); err != nil {
			return err
		}
		w.WriteString(" AS ")
		if top {
			w.ident(o.Name)
		} else {
			w.ident(subColumn(i))
		}
	}

	w.WriteString(" FROM ")
	for i, s := range sources {
		if i > 0 {
			if s.Join == queryir.JoinLeft {
				w.WriteString(" LEFT JOIN ")
			} else {
				w.WriteString(" CROSS JOIN ")
			}
		}
		if err := ctx.source(w, s); err != nil {
			return err
		}
		if s.Join == queryir.JoinLeft {
			w.WriteString(" ON ")
			if err := ctx.expr(w, s.On, resolve); err != nil {
				return err
			}
		}
	}

	if filters := q.Filters(); len(filters) > 0 {
		w.WriteString(" WHERE ")
		for i, f := range filters {
			if i > 0 {
				w.WriteString(" AND ")
			}
			if err := ctx.expr(w, f, resolve); err != nil {
				return err
			}
		}
	}

	if q.Grouped() && q.GroupKeys() > 0 {
		// Ordinals avoid repeating key expressions and their parameters.
		w.WriteString(" GROUP BY ")
		for i := 0; i < q.GroupKeys(); i++ {
			if i > 0 {
				w.WriteString(", ")
			}
			w.WriteString(strconv.Itoa(i + 1))
		}
	}
	if q.EmptyGuard() {
		w.WriteString(" HAVING COUNT(*) > 0")
	}

	if orders := q.Orders(); len(orders) > 0 {
		w.WriteString(" ORDER BY ")
		for i, o := range orders {
			if i > 0 {
				w.WriteString(", ")
			}
			if err := ctx.expr(w, o.Expr, resolve); err != nil {
				return err
			}
			w.WriteString(" " + o.Dir.String())
		}
	}

	if lim, ok := q.LimitClause(); ok {
		w.WriteString(" LIMIT ")
		w.param(ir.Int(lim.Count))
		w.WriteString(" OFFSET ")
		w.param(ir.Int(lim.Offset))
	}
	return nil
}

func (ctx *compileCtx) levelResolver(q *queryir.Query) resolver {
	return func(w *writer, e queryir.Expr) bool {
		s, i, ok := q.Locate(e)
		if !ok {
			return false
		}
		w.ident(ctx.aliases[s])
		w.WriteByte('.')
		if s.Kind == queryir.SourceQuery {
			w.ident(subColumn(i))
		} else {
			w.ident(s.Columns[i].Name)
		}
		return true
	}
}

func (ctx *compileCtx) source(w *writer, s *queryir.Source) error {
	switch s.Kind {
	case queryir.SourceTable:
		w.ident(s.Table.Name())
	case queryir.SourceValues:
		w.WriteByte('(')
		ctx.values(w, s)
		w.WriteByte(')')
	case queryir.SourceQuery:
		w.WriteByte('(')
		if err := ctx.level(w, s.Query, false); err != nil {
			return err
		}
		w.WriteByte(')')
	default:
		return fmt.Errorf("unsupported source kind: %d", s.Kind)
	}
	w.WriteString(" AS ")
	w.ident(ctx.aliases[s])
	return nil
}

// values renders an inline row set as a UNION ALL of SELECTs with typed
// casts. An empty set becomes a typed single SELECT of NULLs with LIMIT 0,
// which is valid SQL and yields no rows.
func (ctx *compileCtx) values(w *writer, s *queryir.Source) {
	if len(s.Rows) == 0 {
		w.WriteString("SELECT ")
		for j, c := range s.Columns {
			if j > 0 {
				w.WriteString(", ")
			}
			w.WriteString("CAST(NULL AS " + ctx.dialect.CastName(c.Type) + ") AS ")
			w.ident(c.Name)
		}
		w.WriteString(" LIMIT 0")
		return
	}
	for i, row := range s.Rows {
		if i > 0 {
			w.WriteString(" UNION ALL ")
		}
		w.WriteString("SELECT ")
		for j, c := range s.Columns {
			if j > 0 {
				w.WriteString(", ")
			}
			w.WriteString("CAST(")
			w.param(row[j])
			w.WriteString(" AS " + ctx.dialect.CastName(c.Type) + ")")
			if i == 0 {
				w.WriteString(" AS ")
				w.ident(c.Name)
			}
		}
	}
}

// expr renders an expression. Every composite is parenthesized, so
// operator precedence never depends on the backend.
func (ctx *compileCtx) expr(w *writer, e queryir.Expr, resolve resolver) error {
	if e == nil {
		return fmt.Errorf("nil expression")
	}
	if resolve(w, e) {
		return nil
	}
	switch x := e.(type) {
	case *queryir.ColumnRef:
		return fmt.Errorf("column %q is not in scope", x.Name)
	case *queryir.Invalid:
		return x.Err
	case *queryir.Literal:
		if ir.IsDefault(x.Value) {
			return fmt.Errorf("default marker is not a query literal")
		}
		w.param(x.Value)
	case *queryir.Binary:
		w.WriteByte('(')
		if err := ctx.expr(w, x.Left, resolve); err != nil {
			return err
		}
		w.WriteString(" " + x.Op.SQL() + " ")
		if err := ctx.expr(w, x.Right, resolve); err != nil {
			return err
		}
		w.WriteByte(')')
	case *queryir.Unary:
		w.WriteByte('(')
		if x.Op == queryir.OpNot {
			w.WriteString("NOT ")
		}
		if err := ctx.expr(w, x.Arg, resolve); err != nil {
			return err
		}
		switch x.Op {
		case queryir.OpIsNull:
			w.WriteString(" IS NULL")
		case queryir.OpIsNotNull:
			w.WriteString(" IS NOT NULL")
		}
		w.WriteByte(')')
	case *queryir.InList:
		if len(x.List) == 0 {
			w.WriteString("(1 = 0)")
			return nil
		}
		w.WriteByte('(')
		if err := ctx.expr(w, x.Arg, resolve); err != nil {
			return err
		}
		w.WriteString(" IN (")
		for i, item := range x.List {
			if i > 0 {
				w.WriteString(", ")
			}
			if err := ctx.expr(w, item, resolve); err != nil {
				return err
			}
		}
		w.WriteString("))")
	case *queryir.Call:
		switch x.Fn {
		case queryir.FuncCoalesce:
			w.WriteString("COALESCE(")
		default:
			return fmt.Errorf("unsupported function: %d", x.Fn)
		}
		for i, a := range x.Args {
			if i > 0 {
				w.WriteString(", ")
			}
			if err := ctx.expr(w, a, resolve); err != nil {
				return err
			}
		}
		w.WriteByte(')')
	case *queryir.AggExpr:
		if x.Fn == queryir.AggCountRows {
			w.WriteString("COUNT(*)")
			return nil
		}
		w.WriteString(x.Fn.SQL() + "(")
		if err := ctx.expr(w, x.Arg, resolve); err != nil {
			return err
		}
		w.WriteByte(')')
	default:
		return fmt.Errorf("unsupported expression type: %T", e)
	}
	return nil
}

func subColumn(i int) string {
	return "c" + strconv.Itoa(i)
}
