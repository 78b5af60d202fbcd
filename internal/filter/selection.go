package filter

import (
	"math"
	"strings"

	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
)

// Selection is a single-table query described by text: a filter, sort
// columns, a projection and a window.
type Selection struct {
	Where string

	// Order lists sort columns, most significant first. A leading "-"
	// sorts that column descending.
	Order []string

	// Columns is the projection; empty keeps every column.
	Columns []string

	Distinct bool

	// Limit caps the row count; negative means no cap.
	Limit  int64
	Offset int64
}

// Query builds the selection over t. Filter problems are reported as
// *Error, unknown names in Order or Columns as *queryir.ScopeError.
func (s Selection) Query(t *schema.Table) (*queryir.Query, error) {
	q := queryir.From(t)
	if s.Where != "" {
		pred, err := Parse(s.Where, q)
		if err != nil {
			return nil, err
		}
		q = q.Where(pred)
	}
	// OrderBy gives the latest call precedence, so apply in reverse.
	for i := len(s.Order) - 1; i >= 0; i-- {
		name, dir := s.Order[i], queryir.Asc
		if rest, ok := strings.CutPrefix(name, "-"); ok {
			name, dir = rest, queryir.Desc
		}
		q = q.OrderBy(q.Col(name), dir)
	}
	if len(s.Columns) > 0 {
		cols := make([]queryir.Named, len(s.Columns))
		for i, name := range s.Columns {
			cols[i] = queryir.As(name, q.Col(name))
		}
		q = q.Select(cols...)
	}
	if s.Distinct {
		q = q.Distinct()
	}
	if s.Limit >= 0 || s.Offset > 0 {
		count := s.Limit
		if count < 0 {
			count = math.MaxInt64
		}
		q = q.Limit(s.Offset, count)
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

// Predicate parses where against an update or delete target. An empty
// string matches every row.
func Predicate(where string, r *queryir.Target) (queryir.Expr, error) {
	if strings.TrimSpace(where) == "" {
		return queryir.Bool(true), nil
	}
	return ParseWith(where, TargetResolver(r))
}
