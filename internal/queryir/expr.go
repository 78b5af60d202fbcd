package queryir

import (
	"time"

	"github.com/jchia/selda/internal/ir"
)

// Expr is a scalar or aggregate expression.
//
// This is a sealed interface - only types in this package implement it.
// Expressions are always pointers; a query recognises its own outputs by
// pointer identity.
type Expr interface {
	// Type returns the static type of the expression.
	Type() ir.Type

	exprNode() // Marker method - seals interface to this package
}

// ColumnRef references column Index of a table or values source.
type ColumnRef struct {
	Source *Source
	Index  int
	Name   string

	typ ir.Type
}

func (c *ColumnRef) Type() ir.Type { return c.typ }
func (*ColumnRef) exprNode()       {}

// Literal is a constant passed to the backend as a parameter.
type Literal struct {
	Value ir.Value

	typ ir.Type
}

func (l *Literal) Type() ir.Type { return l.typ }
func (*Literal) exprNode()       {}

// BinaryOp is an infix operator.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpLike
	OpAdd
	OpSub
	OpMul
	OpDiv
)

var binaryOpSQL = [...]string{
	OpEq:   "=",
	OpNeq:  "<>",
	OpLt:   "<",
	OpLe:   "<=",
	OpGt:   ">",
	OpGe:   ">=",
	OpAnd:  "AND",
	OpOr:   "OR",
	OpLike: "LIKE",
	OpAdd:  "+",
	OpSub:  "-",
	OpMul:  "*",
	OpDiv:  "/",
}

// SQL returns the operator's SQL spelling.
func (op BinaryOp) SQL() string { return binaryOpSQL[op] }

// Binary is an infix expression.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr

	typ ir.Type
}

func (b *Binary) Type() ir.Type { return b.typ }
func (*Binary) exprNode()       {}

// UnaryOp is a prefix or postfix operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpIsNull
	OpIsNotNull
)

// Unary is a single-operand expression.
type Unary struct {
	Op  UnaryOp
	Arg Expr
}

func (*Unary) Type() ir.Type { return ir.TBool }
func (*Unary) exprNode()     {}

// InList is arg IN (list...). An empty list is always false.
type InList struct {
	Arg  Expr
	List []Expr
}

func (*InList) Type() ir.Type { return ir.TBool }
func (*InList) exprNode()     {}

// Func is a scalar SQL function.
type Func int

const (
	FuncCoalesce Func = iota
)

// Call is a scalar function application.
type Call struct {
	Fn   Func
	Args []Expr

	typ ir.Type
}

func (c *Call) Type() ir.Type { return c.typ }
func (*Call) exprNode()       {}

// AggFunc is an aggregate function.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggCountRows
	AggSum
	AggAvg
	AggMin
	AggMax
)

var aggFuncSQL = [...]string{
	AggCount:     "COUNT",
	AggCountRows: "COUNT",
	AggSum:       "SUM",
	AggAvg:       "AVG",
	AggMin:       "MIN",
	AggMax:       "MAX",
}

// SQL returns the function name.
func (f AggFunc) SQL() string { return aggFuncSQL[f] }

// AggExpr is an aggregate application. Arg is nil for AggCountRows.
// Aggregates are only valid in the projections of Aggregate.
type AggExpr struct {
	Fn  AggFunc
	Arg Expr

	typ ir.Type
}

func (a *AggExpr) Type() ir.Type { return a.typ }
func (*AggExpr) exprNode()       {}

// Invalid carries a construction error in expression position.
// Any builder that receives it records Err on the resulting query.
type Invalid struct {
	Err error
}

func (*Invalid) Type() ir.Type { return ir.TText }
func (*Invalid) exprNode()     {}

// Lit wraps a literal value. NULL literals are typed as text and are
// compatible with every type; use NullOf for an explicitly typed NULL.
func Lit(v ir.Value) Expr {
	if v == nil {
		v = ir.Null{}
	}
	if ir.IsDefault(v) {
		return &Invalid{Err: scopeErr(ErrCodeTypeMismatch, "Lit", "default marker is not a query literal")}
	}
	t, ok := ir.TypeOf(v)
	if !ok {
		t = ir.TText
	}
	return &Literal{Value: v, typ: t}
}

// NullOf is a NULL literal of type t.
func NullOf(t ir.Type) Expr { return &Literal{Value: ir.Null{}, typ: t} }

// Int is an integer literal.
func Int(n int64) Expr { return &Literal{Value: ir.Int(n), typ: ir.TInt} }

// Text is a text literal.
func Text(s string) Expr { return &Literal{Value: ir.Text(s), typ: ir.TText} }

// Float is a floating point literal.
func Float(f float64) Expr { return &Literal{Value: ir.Float(f), typ: ir.TFloat} }

// Bool is a boolean literal.
func Bool(b bool) Expr { return &Literal{Value: ir.Bool(b), typ: ir.TBool} }

// Time is a datetime literal.
func Time(t time.Time) Expr { return &Literal{Value: ir.NewTime(t), typ: ir.TDateTime} }

// Comparisons. Both operands must have compatible types; the result is
// NULL (and filtered out) when either side is NULL.

func Eq(a, b Expr) Expr  { return compare(OpEq, a, b) }
func Neq(a, b Expr) Expr { return compare(OpNeq, a, b) }
func Lt(a, b Expr) Expr  { return compare(OpLt, a, b) }
func Le(a, b Expr) Expr  { return compare(OpLe, a, b) }
func Gt(a, b Expr) Expr  { return compare(OpGt, a, b) }
func Ge(a, b Expr) Expr  { return compare(OpGe, a, b) }

// And is the conjunction of one or more predicates.
func And(first Expr, rest ...Expr) Expr { return logical(OpAnd, first, rest) }

// Or is the disjunction of one or more predicates.
func Or(first Expr, rest ...Expr) Expr { return logical(OpOr, first, rest) }

// Not negates a predicate.
func Not(e Expr) Expr {
	if bad := firstInvalid(e); bad != nil {
		return bad
	}
	if !compatible(e, ir.TBool) {
		return mismatch("Not", "operand is %s, want bool", e.Type())
	}
	return &Unary{Op: OpNot, Arg: e}
}

// IsNull tests nullness directly.
func IsNull(e Expr) Expr {
	if bad := firstInvalid(e); bad != nil {
		return bad
	}
	return &Unary{Op: OpIsNull, Arg: e}
}

// IsNotNull is the negation of IsNull.
func IsNotNull(e Expr) Expr {
	if bad := firstInvalid(e); bad != nil {
		return bad
	}
	return &Unary{Op: OpIsNotNull, Arg: e}
}

// Like matches text against a SQL LIKE pattern.
func Like(e, pattern Expr) Expr {
	if bad := firstInvalid(e, pattern); bad != nil {
		return bad
	}
	if !compatible(e, ir.TText) || !compatible(pattern, ir.TText) {
		return mismatch("Like", "operands are %s and %s, want text", e.Type(), pattern.Type())
	}
	return &Binary{Op: OpLike, Left: e, Right: pattern, typ: ir.TBool}
}

// In tests membership in a list of expressions.
func In(e Expr, list ...Expr) Expr {
	if bad := firstInvalid(append([]Expr{e}, list...)...); bad != nil {
		return bad
	}
	for _, item := range list {
		if !canCompare(e, item) {
			return mismatch("In", "cannot compare %s with %s", e.Type(), item.Type())
		}
	}
	return &InList{Arg: e, List: append([]Expr(nil), list...)}
}

// Arithmetic. Operands must be numeric; mixing int and float yields float.

func Add(a, b Expr) Expr { return arith(OpAdd, a, b) }
func Sub(a, b Expr) Expr { return arith(OpSub, a, b) }
func Mul(a, b Expr) Expr { return arith(OpMul, a, b) }
func Div(a, b Expr) Expr { return arith(OpDiv, a, b) }

// Coalesce returns the first non-NULL argument.
func Coalesce(first Expr, rest ...Expr) Expr {
	args := append([]Expr{first}, rest...)
	if bad := firstInvalid(args...); bad != nil {
		return bad
	}
	t := first.Type()
	for _, a := range args {
		if !isNullLiteral(a) {
			t = a.Type()
			break
		}
	}
	for _, a := range args {
		if !compatible(a, t) {
			return mismatch("Coalesce", "argument is %s, want %s", a.Type(), t)
		}
	}
	return &Call{Fn: FuncCoalesce, Args: args, typ: t}
}

// Count counts non-NULL values of e.
func Count(e Expr) Expr { return aggregate(AggCount, e) }

// CountRows counts rows, NULLs included.
func CountRows() Expr { return &AggExpr{Fn: AggCountRows, typ: ir.TInt} }

// Sum adds the non-NULL values of a numeric expression; NULL over no rows.
func Sum(e Expr) Expr { return aggregate(AggSum, e) }

// Avg averages the non-NULL values of a numeric expression as float.
func Avg(e Expr) Expr { return aggregate(AggAvg, e) }

// Min is the smallest non-NULL value.
func Min(e Expr) Expr { return aggregate(AggMin, e) }

// Max is the largest non-NULL value.
func Max(e Expr) Expr { return aggregate(AggMax, e) }

func compare(op BinaryOp, a, b Expr) Expr {
	if bad := firstInvalid(a, b); bad != nil {
		return bad
	}
	if !canCompare(a, b) {
		return mismatch(op.SQL(), "cannot compare %s with %s", a.Type(), b.Type())
	}
	return &Binary{Op: op, Left: a, Right: b, typ: ir.TBool}
}

func logical(op BinaryOp, first Expr, rest []Expr) Expr {
	all := append([]Expr{first}, rest...)
	if bad := firstInvalid(all...); bad != nil {
		return bad
	}
	for _, e := range all {
		if !compatible(e, ir.TBool) {
			return mismatch(op.SQL(), "operand is %s, want bool", e.Type())
		}
	}
	out := first
	for _, e := range rest {
		out = &Binary{Op: op, Left: out, Right: e, typ: ir.TBool}
	}
	return out
}

func arith(op BinaryOp, a, b Expr) Expr {
	if bad := firstInvalid(a, b); bad != nil {
		return bad
	}
	if !numeric(a) || !numeric(b) {
		return mismatch(op.SQL(), "operands are %s and %s, want numbers", a.Type(), b.Type())
	}
	t := ir.TInt
	if a.Type() == ir.TFloat || b.Type() == ir.TFloat {
		t = ir.TFloat
	}
	return &Binary{Op: op, Left: a, Right: b, typ: t}
}

func aggregate(fn AggFunc, e Expr) Expr {
	if bad := firstInvalid(e); bad != nil {
		return bad
	}
	if containsAggregate(e) {
		return &Invalid{Err: scopeErr(ErrCodeMisplacedAggregate, fn.SQL(), "aggregates cannot be nested")}
	}
	switch fn {
	case AggCount:
		return &AggExpr{Fn: fn, Arg: e, typ: ir.TInt}
	case AggSum:
		if !numeric(e) {
			return mismatch("SUM", "operand is %s, want number", e.Type())
		}
		return &AggExpr{Fn: fn, Arg: e, typ: e.Type()}
	case AggAvg:
		if !numeric(e) {
			return mismatch("AVG", "operand is %s, want number", e.Type())
		}
		return &AggExpr{Fn: fn, Arg: e, typ: ir.TFloat}
	default:
		return &AggExpr{Fn: fn, Arg: e, typ: e.Type()}
	}
}

func mismatch(op, format string, args ...any) Expr {
	return &Invalid{Err: scopeErr(ErrCodeTypeMismatch, op, format, args...)}
}

func isNullLiteral(e Expr) bool {
	l, ok := e.(*Literal)
	return ok && ir.IsNull(l.Value)
}

func numeric(e Expr) bool {
	return isNullLiteral(e) || e.Type().IsNumeric()
}

// compatible reports whether e can stand where type t is expected.
func compatible(e Expr, t ir.Type) bool {
	if isNullLiteral(e) || e.Type() == t {
		return true
	}
	if e.Type().IsNumeric() && t.IsNumeric() {
		return true
	}
	return e.Type().IsTemporal() && t.IsTemporal()
}

func canCompare(a, b Expr) bool {
	return isNullLiteral(b) || compatible(a, b.Type())
}

func firstInvalid(es ...Expr) *Invalid {
	for _, e := range es {
		if e == nil {
			return &Invalid{Err: scopeErr(ErrCodeUnknownColumn, "", "nil expression")}
		}
		if bad, ok := e.(*Invalid); ok {
			return bad
		}
	}
	return nil
}

// children returns the direct subexpressions of e.
func children(e Expr) []Expr {
	switch x := e.(type) {
	case *Binary:
		return []Expr{x.Left, x.Right}
	case *Unary:
		return []Expr{x.Arg}
	case *InList:
		return append([]Expr{x.Arg}, x.List...)
	case *Call:
		return x.Args
	case *AggExpr:
		if x.Arg != nil {
			return []Expr{x.Arg}
		}
	}
	return nil
}

func containsAggregate(e Expr) bool {
	if _, ok := e.(*AggExpr); ok {
		return true
	}
	for _, c := range children(e) {
		if containsAggregate(c) {
			return true
		}
	}
	return false
}

// Assignable reports whether e can be stored in a column of type t.
// Floats never narrow into int columns.
func Assignable(e Expr, t ir.Type) bool {
	if e.Type() == ir.TFloat && t == ir.TInt && !isNullLiteral(e) {
		return false
	}
	return compatible(e, t)
}
