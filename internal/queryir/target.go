package queryir

import (
	"github.com/jchia/selda/internal/schema"
)

// Target is a row handle for UPDATE and DELETE. Predicates and
// assignments built from its columns compile to unqualified column
// names of the target table.
type Target struct {
	query *Query
}

// NewTarget returns a row handle on t.
func NewTarget(t *schema.Table) *Target {
	return &Target{query: From(t)}
}

// Table returns the target table.
func (r *Target) Table() *schema.Table {
	if r.query.err != nil {
		return nil
	}
	return r.query.sources[0].Table
}

// Col returns the named column of the target row.
func (r *Target) Col(name string) Expr { return r.query.Col(name) }

// At returns the column addressed by a selector.
func (r *Target) At(sel schema.Selector) Expr { return r.query.At(sel) }

// Locate returns the column index of e when e is a column of the target
// row.
func (r *Target) Locate(e Expr) (int, bool) {
	if r.query.err != nil {
		return 0, false
	}
	_, i, ok := r.query.Locate(e)
	return i, ok
}

// Check verifies that e only reads the target row and contains no
// aggregate.
func (r *Target) Check(op string, e Expr) error {
	if r.query.err != nil {
		return r.query.err
	}
	return r.query.check(op, e, false)
}

// Assignment sets Column to Value in an UPDATE. Value is evaluated
// against the row before any assignment of the same statement.
type Assignment struct {
	Column string
	Value  Expr
}

// Set builds an Assignment.
func Set(column string, value Expr) Assignment {
	return Assignment{Column: column, Value: value}
}
