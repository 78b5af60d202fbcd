// Package queryir provides the relational query algebra.
//
// A *Query is an immutable value. Every builder (From, Values, Where,
// Product, InnerJoin, LeftJoin, Aggregate, OrderBy, Limit, Select,
// Distinct) returns a new *Query and never touches its receiver, so an
// intermediate query can be reused, compiled repeatedly and cached.
//
// ARCHITECTURE:
//
//	[builders] → [*Query tree] → querysql.SQLCompiler → [SQL + params]
//
// A query level is a list of sources (FROM items), filters, outputs,
// ordering, an optional limit, an optional grouping and a distinct flag.
// Once a level is grouped, limited or distinct it is closed: the next
// builder nests it as a subquery source and keeps its output expressions,
// so references taken before the nesting still resolve.
//
// SCOPES:
//
// Expressions are pointers and identity matters. From(t) mints fresh
// column references; q.Col(name) hands out the very expressions that
// q produces. An expression resolves in a level when it is one of the
// level's own column references, or when it is an output of a nested
// subquery source. Anything else is out of scope.
//
// Scope violations are recorded when the query is built, not when it
// runs. The error is sticky: every later builder propagates it, and
// Err() (and the compiler) report it before any SQL exists.
//
// SEALED INTERFACES:
//
// Expr is sealed with a marker method, so the compiler can switch over
// every node type exhaustively:
//
//	switch e := expr.(type) {
//	case *ColumnRef:
//	case *Literal:
//	case *Binary:
//	case *Unary:
//	case *InList:
//	case *Call:
//	case *AggExpr:
//	case *Invalid:
//	}
//
// NULL SEMANTICS:
//
// Comparisons follow SQL three-valued logic. Eq against a NULL operand
// is neither true nor false, so Where drops the row; use IsNull to test
// nullness. The left side of a LeftJoin is preserved and the inner
// outputs become nullable.
package queryir
