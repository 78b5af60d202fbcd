package engine

import (
	"context"
	"fmt"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
)

// Tuple is a record that flattens to a row in column order.
type Tuple interface {
	ToTuple() ir.Row
}

// FromTuple is implemented by a pointer to a record that can be filled
// from a row. For every record r, decoding r.ToTuple() must yield r.
type FromTuple[T any] interface {
	*T
	FromTuple(row ir.Row) error
}

// Executor runs queries and inserts. *Engine and *Tx both satisfy it.
type Executor interface {
	Query(ctx context.Context, q *queryir.Query) (*Result, error)
	Insert(ctx context.Context, t *schema.Table, rows ...ir.Row) (int64, error)
}

var (
	_ Executor = (*Engine)(nil)
	_ Executor = (*Tx)(nil)
)

// InsertRecords flattens records and inserts them into t.
func InsertRecords[R Tuple](ctx context.Context, x Executor, t *schema.Table, records ...R) (int64, error) {
	rows := make([]ir.Row, len(records))
	for i, r := range records {
		rows[i] = r.ToTuple()
	}
	return x.Insert(ctx, t, rows...)
}

// QueryRecords runs q and decodes every result row into a T.
func QueryRecords[T any, PT FromTuple[T]](ctx context.Context, x Executor, q *queryir.Query) ([]T, error) {
	res, err := x.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(res.Rows))
	for i, row := range res.Rows {
		if err := PT(&out[i]).FromTuple(row); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
	}
	return out, nil
}

// Decode fills a record from row. It is the single-row form of
// QueryRecords.
func Decode[T any, PT FromTuple[T]](row ir.Row) (T, error) {
	var v T
	err := PT(&v).FromTuple(row)
	return v, err
}
