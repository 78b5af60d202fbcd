package queryir

import (
	"strings"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/schema"
)

// SourceKind distinguishes FROM items.
type SourceKind int

const (
	// SourceTable reads a table.
	SourceTable SourceKind = iota
	// SourceValues reads an inline literal row set.
	SourceValues
	// SourceQuery reads a nested query.
	SourceQuery
)

// JoinKind is how a source attaches to the sources before it.
type JoinKind int

const (
	// JoinCross is a cross product; filters turn it into an inner join.
	JoinCross JoinKind = iota
	// JoinLeft keeps every row on the left and null-pads unmatched rows.
	JoinLeft
)

// Source is one FROM item. Sources are never modified after a builder
// publishes them, and each call to From, Values or a nesting builder
// creates a new one.
type Source struct {
	Kind SourceKind

	// Table is set for SourceTable.
	Table *schema.Table

	// Columns describes table and values sources.
	Columns []schema.Column

	// Rows holds the literal rows of a values source.
	Rows []ir.Row

	// Query is set for SourceQuery.
	Query *Query

	Join JoinKind

	// On is the match predicate of a JoinLeft source.
	On Expr
}

// Output is one projected column.
type Output struct {
	Name string
	Expr Expr
}

// Named pairs an output name with an expression for Select and Aggregate.
type Named = Output

// As names an expression.
func As(name string, e Expr) Named { return Named{Name: name, Expr: e} }

// OutputColumn describes a result column.
type OutputColumn struct {
	Name     string
	Type     ir.Type
	Nullable bool
}

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Order is one ORDER BY term.
type Order struct {
	Expr Expr
	Dir  Direction
}

// LimitClause is LIMIT count OFFSET offset.
type LimitClause struct {
	Offset int64
	Count  int64
}

// EmptyPolicy selects what an aggregate without group keys yields when
// its scope reads an empty literal row set.
type EmptyPolicy int

const (
	// EmptyLiteralNoRows yields zero rows when the scope contains an empty
	// Values source, and one row (count 0) for any other empty input.
	EmptyLiteralNoRows EmptyPolicy = iota
	// EmptyAlwaysOneRow is plain SQL: always exactly one row.
	EmptyAlwaysOneRow
)

// Query is an immutable relational query. The zero value is not usable;
// start from From or Values.
type Query struct {
	sources    []*Source
	filters    []Expr
	outputs    []Output
	orders     []Order
	limit      *LimitClause
	groupKeys  int
	grouped    bool
	distinct   bool
	emptyGuard bool
	err        error
}

// From selects every column of a table. Each call mints a fresh source,
// so two From calls on one table can be joined with each other.
func From(t *schema.Table) *Query {
	if t == nil {
		return failed(scopeErr(ErrCodeUnknownColumn, "From", "nil table"))
	}
	src := &Source{Kind: SourceTable, Table: t, Columns: t.Columns()}
	return &Query{sources: []*Source{src}, outputs: sourceOutputs(src)}
}

// Values selects from an inline literal row set. Zero rows is valid and
// compiles to a query that returns nothing.
func Values(cols []schema.Column, rows []ir.Row) *Query {
	const op = "Values"
	if len(cols) == 0 {
		return failed(scopeErr(ErrCodeEmptyProjection, op, "no columns"))
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if err := checkName(op, c.Name); err != nil {
			return failed(err)
		}
		if seen[c.Name] {
			return failed(scopeErr(ErrCodeBadValues, op, "duplicate column %q", c.Name))
		}
		seen[c.Name] = true
	}

	copied := make([]ir.Row, len(rows))
	for i, row := range rows {
		if len(row) != len(cols) {
			return failed(scopeErr(ErrCodeBadValues, op, "row %d has %d values, want %d", i, len(row), len(cols)))
		}
		out := make(ir.Row, len(row))
		for j, v := range row {
			c := cols[j]
			if ir.IsNull(v) && !c.Nullable {
				return failed(scopeErr(ErrCodeBadValues, op, "row %d: NULL in NOT NULL column %q", i, c.Name))
			}
			cv, err := ir.Coerce(v, c.Type)
			if err != nil || ir.IsDefault(v) {
				return failed(scopeErr(ErrCodeBadValues, op, "row %d: column %q: value %s does not fit %s",
					i, c.Name, ir.Format(v), c.Type))
			}
			out[j] = cv
		}
		copied[i] = out
	}

	src := &Source{Kind: SourceValues, Columns: append([]schema.Column(nil), cols...), Rows: copied}
	return &Query{sources: []*Source{src}, outputs: sourceOutputs(src)}
}

func sourceOutputs(src *Source) []Output {
	outs := make([]Output, len(src.Columns))
	for i, c := range src.Columns {
		outs[i] = Output{Name: c.Name, Expr: &ColumnRef{Source: src, Index: i, Name: c.Name, typ: c.Type}}
	}
	return outs
}

// Where keeps the rows for which pred is true. NULL counts as false.
func (q *Query) Where(pred Expr) *Query {
	const op = "Where"
	if q.err != nil {
		return q
	}
	base := q.open()
	if err := base.check(op, pred, false); err != nil {
		return failed(err)
	}
	if !compatible(pred, ir.TBool) {
		return failed(scopeErr(ErrCodeTypeMismatch, op, "predicate is %s, want bool", pred.Type()))
	}
	out := base.derive()
	out.filters = appendExprs(base.filters, pred)
	return out
}

// Product is the cross product of its operands. Restricting it with
// Where is an inner join. Operands must not share a source.
func Product(qs ...*Query) *Query {
	const op = "Product"
	if len(qs) == 0 {
		return failed(scopeErr(ErrCodeEmptyProjection, op, "no operands"))
	}
	for _, q := range qs {
		if q == nil {
			return failed(scopeErr(ErrCodeUnknownColumn, op, "nil query"))
		}
		if q.err != nil {
			return q
		}
	}

	out := &Query{}
	seen := make(map[*Source]bool)
	for _, q := range qs {
		base := q.open()
		if err := claimSources(op, base, seen); err != nil {
			return failed(err)
		}
		out.sources = append(out.sources, base.sources...)
		out.filters = append(out.filters, base.filters...)
		out.outputs = append(out.outputs, base.outputs...)
		out.orders = append(out.orders, base.orders...)
	}
	return out
}

// InnerJoin is Product(a, b).Where(on).
func InnerJoin(a, b *Query, on Expr) *Query {
	return Product(a, b).Where(on)
}

// LeftJoin keeps every row of q and attaches the rows of inner that
// satisfy on. Rows of q without a match get NULL for every inner output.
// inner is always nested as a subquery, so it may itself be grouped,
// limited or another left join.
func (q *Query) LeftJoin(inner *Query, on Expr) *Query {
	const op = "LeftJoin"
	if q.err != nil {
		return q
	}
	if inner == nil {
		return failed(scopeErr(ErrCodeUnknownColumn, op, "nil query"))
	}
	if inner.err != nil {
		return inner
	}
	base := q.open()
	seen := make(map[*Source]bool)
	if err := claimSources(op, base, seen); err != nil {
		return failed(err)
	}
	if err := claimSources(op, inner, seen); err != nil {
		return failed(err)
	}

	src := &Source{Kind: SourceQuery, Query: inner, Join: JoinLeft}
	out := base.derive()
	out.sources = append(append([]*Source(nil), base.sources...), src)
	if err := out.check(op, on, false); err != nil {
		return failed(err)
	}
	if !compatible(on, ir.TBool) {
		return failed(scopeErr(ErrCodeTypeMismatch, op, "predicate is %s, want bool", on.Type()))
	}
	src.On = on
	out.outputs = append(append([]Output(nil), base.outputs...), inner.outputs...)
	return out
}

// Aggregate groups q by keys and projects keys followed by aggs, using
// the EmptyLiteralNoRows policy.
func (q *Query) Aggregate(keys []Named, aggs ...Named) *Query {
	return q.AggregateWith(EmptyLiteralNoRows, keys, aggs...)
}

// AggregateWith is Aggregate with an explicit empty-input policy.
// With no keys the result has exactly one row, except under
// EmptyLiteralNoRows when the scope reads an empty Values source.
func (q *Query) AggregateWith(policy EmptyPolicy, keys []Named, aggs ...Named) *Query {
	const op = "Aggregate"
	if q.err != nil {
		return q
	}
	if len(keys)+len(aggs) == 0 {
		return failed(scopeErr(ErrCodeEmptyProjection, op, "no keys and no aggregates"))
	}
	base := q.open()

	keyExprs := make([]Expr, len(keys))
	for i, k := range keys {
		if err := checkName(op, k.Name); err != nil {
			return failed(err)
		}
		if err := base.check(op, k.Expr, false); err != nil {
			return failed(err)
		}
		keyExprs[i] = k.Expr
	}
	for _, a := range aggs {
		if err := checkName(op, a.Name); err != nil {
			return failed(err)
		}
		if err := base.check(op, a.Expr, true); err != nil {
			return failed(err)
		}
		if base.bareColumn(a.Expr, keyExprs) {
			return failed(scopeErr(ErrCodeMisplacedAggregate, op,
				"output %q uses a column that is neither grouped nor aggregated", a.Name))
		}
	}

	out := base.derive()
	out.orders = nil
	out.outputs = append(append([]Output(nil), keys...), aggs...)
	out.grouped = true
	out.groupKeys = len(keys)
	out.emptyGuard = len(keys) == 0 && policy == EmptyLiteralNoRows && base.hasEmptyValues()
	return out
}

// OrderBy sorts by e. Later calls take precedence over earlier ones
// without cancelling them.
func (q *Query) OrderBy(e Expr, dir Direction) *Query {
	const op = "OrderBy"
	if q.err != nil {
		return q
	}
	base := q.open()
	if err := base.check(op, e, false); err != nil {
		return failed(err)
	}
	out := base.derive()
	out.orders = append([]Order{{Expr: e, Dir: dir}}, base.orders...)
	return out
}

// Limit skips offset rows and keeps at most count. Ordering applied
// before Limit decides which rows survive.
func (q *Query) Limit(offset, count int64) *Query {
	const op = "Limit"
	if q.err != nil {
		return q
	}
	if offset < 0 || count < 0 {
		return failed(scopeErr(ErrCodeBadValues, op, "negative offset or count (%d, %d)", offset, count))
	}
	base := q
	if q.limit != nil {
		base = wrap(q)
	}
	out := base.derive()
	out.limit = &LimitClause{Offset: offset, Count: count}
	return out
}

// Select replaces the projection.
func (q *Query) Select(cols ...Named) *Query {
	const op = "Select"
	if q.err != nil {
		return q
	}
	if len(cols) == 0 {
		return failed(scopeErr(ErrCodeEmptyProjection, op, "no columns"))
	}
	base := q.open()
	for _, c := range cols {
		if err := checkName(op, c.Name); err != nil {
			return failed(err)
		}
		if err := base.check(op, c.Expr, false); err != nil {
			return failed(err)
		}
	}
	out := base.derive()
	out.outputs = append([]Output(nil), cols...)
	return out
}

// Distinct removes duplicate result rows.
func (q *Query) Distinct() *Query {
	if q.err != nil {
		return q
	}
	if q.distinct && q.limit == nil {
		return q
	}
	base := q
	if q.limit != nil {
		base = wrap(q)
	}
	out := base.derive()
	out.distinct = true
	return out
}

// Col returns the output named name. A missing or ambiguous name yields
// an *Invalid expression that poisons whatever query uses it.
func (q *Query) Col(name string) Expr {
	e, err := q.Lookup(name)
	if err != nil {
		return &Invalid{Err: err}
	}
	return e
}

// Lookup returns the output named name.
func (q *Query) Lookup(name string) (Expr, error) {
	if q.err != nil {
		return nil, q.err
	}
	var found Expr
	for _, o := range q.outputs {
		if o.Name != name {
			continue
		}
		if found != nil && found != o.Expr {
			return nil, scopeErr(ErrCodeAmbiguousColumn, "Col", "%q matches several outputs", name)
		}
		found = o.Expr
	}
	if found == nil {
		return nil, scopeErr(ErrCodeUnknownColumn, "Col", "no output named %q", name)
	}
	return found, nil
}

// At returns the output produced by a table column selector. It works
// across products where column names repeat.
func (q *Query) At(sel schema.Selector) Expr {
	if q.err != nil {
		return &Invalid{Err: q.err}
	}
	var found Expr
	for _, o := range q.outputs {
		ref, ok := o.Expr.(*ColumnRef)
		if !ok || ref.Source.Kind != SourceTable || ref.Index != sel.Index() || ref.Source.Table.Name() != sel.Table() {
			continue
		}
		if found != nil && found != o.Expr {
			return &Invalid{Err: scopeErr(ErrCodeAmbiguousColumn, "At",
				"%s.%s is produced by several sources", sel.Table(), sel.Name())}
		}
		found = o.Expr
	}
	if found == nil {
		return &Invalid{Err: scopeErr(ErrCodeUnknownColumn, "At", "no output for %s.%s", sel.Table(), sel.Name())}
	}
	return found
}

// Err returns the first construction error, or nil.
func (q *Query) Err() error { return q.err }

// Sources returns the FROM items of the outermost level.
func (q *Query) Sources() []*Source { return append([]*Source(nil), q.sources...) }

// Filters returns the WHERE conjuncts of the outermost level.
func (q *Query) Filters() []Expr { return append([]Expr(nil), q.filters...) }

// Outputs returns the projection of the outermost level.
func (q *Query) Outputs() []Output { return append([]Output(nil), q.outputs...) }

// Orders returns the ORDER BY terms, highest precedence first.
func (q *Query) Orders() []Order { return append([]Order(nil), q.orders...) }

// LimitClause returns the limit of the outermost level, if any.
func (q *Query) LimitClause() (LimitClause, bool) {
	if q.limit == nil {
		return LimitClause{}, false
	}
	return *q.limit, true
}

// Grouped reports whether the outermost level is an aggregate.
func (q *Query) Grouped() bool { return q.grouped }

// GroupKeys returns how many leading outputs are group keys.
func (q *Query) GroupKeys() int { return q.groupKeys }

// IsDistinct reports whether duplicate rows are removed.
func (q *Query) IsDistinct() bool { return q.distinct }

// EmptyGuard reports whether a keyless aggregate must yield no row for
// empty input.
func (q *Query) EmptyGuard() bool { return q.emptyGuard }

// Columns describes the result columns.
func (q *Query) Columns() []OutputColumn {
	cols := make([]OutputColumn, len(q.outputs))
	for i, o := range q.outputs {
		cols[i] = OutputColumn{Name: o.Name, Type: o.Expr.Type(), Nullable: q.Nullable(o.Expr)}
	}
	return cols
}

// Tables returns the sorted set of tables the query reads.
func (q *Query) Tables() []string {
	var names []string
	var walk func(*Query)
	walk = func(q *Query) {
		for _, s := range q.sources {
			switch s.Kind {
			case SourceTable:
				names = append(names, s.Table.Name())
			case SourceQuery:
				walk(s.Query)
			}
		}
	}
	walk(q)
	return ir.SortedTables(names)
}

func failed(err error) *Query { return &Query{err: err} }

func (q *Query) derive() *Query {
	c := *q
	return &c
}

func (q *Query) closed() bool {
	return q.grouped || q.limit != nil || q.distinct
}

// open returns q, or q nested as a subquery when q is closed.
func (q *Query) open() *Query {
	if q.closed() {
		return wrap(q)
	}
	return q
}

// wrap nests q as the only source of a new level with the same outputs.
func wrap(q *Query) *Query {
	src := &Source{Kind: SourceQuery, Query: q}
	return &Query{sources: []*Source{src}, outputs: append([]Output(nil), q.outputs...)}
}

func (q *Query) hasEmptyValues() bool {
	for _, s := range q.sources {
		switch {
		case s.Join == JoinLeft:
			continue
		case s.Kind == SourceValues && len(s.Rows) == 0:
			return true
		case s.Kind == SourceQuery && !s.Query.grouped && s.Query.hasEmptyValues():
			return true
		}
	}
	return false
}

func appendExprs(base []Expr, es ...Expr) []Expr {
	return append(append([]Expr(nil), base...), es...)
}

func checkName(op, name string) error {
	if name == "" {
		return scopeErr(ErrCodeBadName, op, "empty name")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return scopeErr(ErrCodeBadName, op, "name %q contains NUL byte", name)
	}
	return nil
}
