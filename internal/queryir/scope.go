package queryir

import "github.com/jchia/selda/internal/ir"

// Locate finds how e is reached from the outermost level of q: either as
// output index of a nested subquery source, or as column index of one of
// the level's own table or values sources. Subquery outputs win, so an
// expression produced by a nested level always reads the nested column.
func (q *Query) Locate(e Expr) (*Source, int, bool) {
	for _, s := range q.sources {
		if s.Kind != SourceQuery {
			continue
		}
		for i, o := range s.Query.outputs {
			if o.Expr == e {
				return s, i, true
			}
		}
	}
	if ref, ok := e.(*ColumnRef); ok {
		for _, s := range q.sources {
			if s == ref.Source && s.Kind != SourceQuery {
				return s, ref.Index, true
			}
		}
	}
	return nil, 0, false
}

// check verifies that e resolves in q. Aggregates are accepted only when
// allowAgg is set and only at the level being grouped.
func (q *Query) check(op string, e Expr, allowAgg bool) error {
	if e == nil {
		return scopeErr(ErrCodeUnknownColumn, op, "nil expression")
	}
	if bad, ok := e.(*Invalid); ok {
		return bad.Err
	}
	if _, _, ok := q.Locate(e); ok {
		return nil
	}
	switch x := e.(type) {
	case *ColumnRef:
		return scopeErr(ErrCodeOutOfScope, op, "column %q is not in scope", x.Name)
	case *Literal:
		return nil
	case *AggExpr:
		if !allowAgg {
			return scopeErr(ErrCodeMisplacedAggregate, op, "%s is only valid in Aggregate", x.Fn.SQL())
		}
	}
	for _, c := range children(e) {
		if err := q.check(op, c, allowAgg); err != nil {
			return err
		}
	}
	return nil
}

// bareColumn reports whether e reads a column outside any aggregate
// that is not one of the group keys.
func (q *Query) bareColumn(e Expr, keys []Expr) bool {
	for _, k := range keys {
		if k == e {
			return false
		}
	}
	switch e.(type) {
	case *AggExpr, *Literal:
		return false
	}
	if _, _, ok := q.Locate(e); ok {
		return true
	}
	for _, c := range children(e) {
		if q.bareColumn(c, keys) {
			return true
		}
	}
	return false
}

// Nullable reports whether e may evaluate to NULL in q. Outputs of a
// left-joined source are always nullable.
func (q *Query) Nullable(e Expr) bool {
	if s, i, ok := q.Locate(e); ok {
		if s.Kind == SourceQuery {
			return s.Join == JoinLeft || s.Query.Nullable(s.Query.outputs[i].Expr)
		}
		return s.Columns[i].Nullable
	}
	switch x := e.(type) {
	case *Literal:
		return ir.IsNull(x.Value)
	case *Unary:
		if x.Op != OpNot {
			return false
		}
	case *AggExpr:
		return x.Fn != AggCount && x.Fn != AggCountRows
	case *Call:
		for _, a := range x.Args {
			if !q.Nullable(a) {
				return false
			}
		}
		return true
	}
	for _, c := range children(e) {
		if q.Nullable(c) {
			return true
		}
	}
	return false
}

// claimSources records every source reachable from q in seen and fails
// when one was already claimed by another operand.
func claimSources(op string, q *Query, seen map[*Source]bool) error {
	for _, s := range q.sources {
		if seen[s] {
			return scopeErr(ErrCodeReusedSource, op,
				"the same source appears twice in one scope; build each operand with its own From")
		}
		seen[s] = true
		if s.Kind == SourceQuery {
			if err := claimSources(op, s.Query, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
