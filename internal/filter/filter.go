// Package filter parses textual predicates into query expressions.
//
// The syntax is a small SQL-like subset used by the CLI:
//
//	age >= 18 and (pet is null or pet in ('cat', 'dog'))
//	name like 'K%' and not coalesce(score, 0) * 2 > 10
//
// Column names resolve against a query or an update target; text
// literals compared with a non-text column are converted to its type.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
)

// Resolver maps a column name to an expression.
type Resolver func(name string) (queryir.Expr, error)

// QueryResolver resolves names against the outputs of q.
func QueryResolver(q *queryir.Query) Resolver {
	return q.Lookup
}

// TargetResolver resolves names against the columns of an update or
// delete target.
func TargetResolver(r *queryir.Target) Resolver {
	return func(name string) (queryir.Expr, error) {
		e := r.Col(name)
		if inv, ok := e.(*queryir.Invalid); ok {
			return nil, inv.Err
		}
		return e, nil
	}
}

// Error reports a filter that cannot be parsed or typed.
type Error struct {
	Source string
	Offset int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("filter %q at offset %d: %v", e.Source, e.Offset, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Parse parses src and resolves its columns against q.
func Parse(src string, q *queryir.Query) (queryir.Expr, error) {
	return ParseWith(src, QueryResolver(q))
}

// ParseWith parses src with an arbitrary resolver. The result is a
// well-typed expression; a type error is reported as *Error.
func ParseWith(src string, resolve Resolver) (queryir.Expr, error) {
	tree, err := parser.ParseString("filter", src)
	if err != nil {
		offset := 0
		if pe, ok := err.(participle.Error); ok {
			offset = pe.Position().Offset
		}
		return nil, &Error{Source: src, Offset: offset, Err: err}
	}

	b := &builder{src: src, resolve: resolve}
	e, err := b.or(tree)
	if err != nil {
		return nil, err
	}
	if inv, ok := e.(*queryir.Invalid); ok {
		return nil, &Error{Source: src, Err: inv.Err}
	}
	return e, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests.
func MustParse(src string, q *queryir.Query) queryir.Expr {
	e, err := Parse(src, q)
	if err != nil {
		panic(err)
	}
	return e
}

type builder struct {
	src     string
	resolve Resolver
}

func (b *builder) fail(offset int, format string, args ...any) error {
	return &Error{Source: b.src, Offset: offset, Err: fmt.Errorf(format, args...)}
}

func (b *builder) or(n *orExpr) (queryir.Expr, error) {
	left, err := b.and(n.Left)
	if err != nil {
		return nil, err
	}
	if len(n.Right) == 0 {
		return left, nil
	}
	rest := make([]queryir.Expr, len(n.Right))
	for i, r := range n.Right {
		if rest[i], err = b.and(r); err != nil {
			return nil, err
		}
	}
	return queryir.Or(left, rest...), nil
}

func (b *builder) and(n *andExpr) (queryir.Expr, error) {
	left, err := b.not(n.Left)
	if err != nil {
		return nil, err
	}
	if len(n.Right) == 0 {
		return left, nil
	}
	rest := make([]queryir.Expr, len(n.Right))
	for i, r := range n.Right {
		if rest[i], err = b.not(r); err != nil {
			return nil, err
		}
	}
	return queryir.And(left, rest...), nil
}

func (b *builder) not(n *notExpr) (queryir.Expr, error) {
	e, err := b.comparison(n.Cmp)
	if err != nil {
		return nil, err
	}
	if n.Negated {
		return queryir.Not(e), nil
	}
	return e, nil
}

func (b *builder) comparison(n *comparison) (queryir.Expr, error) {
	left, err := b.sum(n.Left)
	if err != nil {
		return nil, err
	}
	tail := n.Tail
	switch {
	case tail == nil:
		return left, nil
	case tail.Binary != nil:
		right, err := b.sum(tail.Binary.Right)
		if err != nil {
			return nil, err
		}
		left, right = convertText(left, right), convertText(right, left)
		switch tail.Binary.Op {
		case "=":
			return queryir.Eq(left, right), nil
		case "!=", "<>":
			return queryir.Neq(left, right), nil
		case "<":
			return queryir.Lt(left, right), nil
		case "<=":
			return queryir.Le(left, right), nil
		case ">":
			return queryir.Gt(left, right), nil
		default:
			return queryir.Ge(left, right), nil
		}
	case tail.Null != nil:
		if tail.Null.Not {
			return queryir.IsNotNull(left), nil
		}
		return queryir.IsNull(left), nil
	case tail.Like != nil:
		pattern, err := b.sum(tail.Like)
		if err != nil {
			return nil, err
		}
		return queryir.Like(left, pattern), nil
	default:
		items := make([]queryir.Expr, len(tail.In.Items))
		for i, it := range tail.In.Items {
			item, err := b.sum(it)
			if err != nil {
				return nil, err
			}
			items[i] = convertText(item, left)
		}
		return queryir.In(left, items...), nil
	}
}

func (b *builder) sum(n *sum) (queryir.Expr, error) {
	e, err := b.product(n.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range n.Rest {
		right, err := b.product(op.Right)
		if err != nil {
			return nil, err
		}
		if op.Op == "+" {
			e = queryir.Add(e, right)
		} else {
			e = queryir.Sub(e, right)
		}
	}
	return e, nil
}

func (b *builder) product(n *product) (queryir.Expr, error) {
	e, err := b.atom(n.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range n.Rest {
		right, err := b.atom(op.Right)
		if err != nil {
			return nil, err
		}
		if op.Op == "*" {
			e = queryir.Mul(e, right)
		} else {
			e = queryir.Div(e, right)
		}
	}
	return e, nil
}

func (b *builder) atom(n *atom) (queryir.Expr, error) {
	switch {
	case n.Number != nil:
		return b.number(n.Pos.Offset, *n.Number)
	case n.String != nil:
		return queryir.Text(unquote(*n.String, '\'')), nil
	case n.Bool != nil:
		return queryir.Bool(strings.EqualFold(*n.Bool, "true")), nil
	case n.Null:
		return queryir.Lit(ir.Null{}), nil
	case n.Call != nil:
		return b.call(n.Pos.Offset, n.Call)
	case n.Column != nil:
		name := *n.Column
		if strings.HasPrefix(name, `"`) {
			name = unquote(name, '"')
		}
		e, err := b.resolve(name)
		if err != nil {
			return nil, &Error{Source: b.src, Offset: n.Pos.Offset, Err: err}
		}
		return e, nil
	default:
		return b.or(n.Sub)
	}
}

func (b *builder) number(offset int, s string) (queryir.Expr, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, b.fail(offset, "bad number %q", s)
		}
		return queryir.Float(f), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, b.fail(offset, "integer %s out of range", s)
	}
	return queryir.Int(n), nil
}

func (b *builder) call(offset int, c *call) (queryir.Expr, error) {
	args := make([]queryir.Expr, len(c.Args))
	for i, a := range c.Args {
		e, err := b.or(a)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	switch strings.ToLower(c.Name) {
	case "coalesce":
		for i := range args {
			args[i] = convertText(args[i], args[0])
		}
		return queryir.Coalesce(args[0], args[1:]...), nil
	default:
		return nil, b.fail(offset, "unknown function %q", c.Name)
	}
}

// convertText turns a text literal into a literal of other's type when
// other is not text, e.g. a date string compared with a date column.
// Anything that does not convert is returned unchanged.
func convertText(e, other queryir.Expr) queryir.Expr {
	lit, ok := e.(*queryir.Literal)
	if !ok || other.Type() == ir.TText {
		return e
	}
	if _, isText := lit.Value.(ir.Text); !isText {
		return e
	}
	v, err := ir.Coerce(lit.Value, other.Type())
	if err != nil {
		return e
	}
	return queryir.Lit(v)
}

// unquote strips the quote character q and undoubles embedded quotes.
func unquote(s string, q byte) string {
	if len(s) >= 2 && s[0] == q && s[len(s)-1] == q {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, string([]byte{q, q}), string(q))
}
