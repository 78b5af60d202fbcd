// Package selda is a typed relational query layer over SQLite and
// PostgreSQL.
//
// Tables are declared with Define (or in CUE, see internal/compiler),
// queries are built with From and the methods of Query, and an Engine
// compiles them to parameterised SQL, serving repeated reads from a
// result cache that commits invalidate.
//
//	e, err := selda.Open(ctx, cfg, logger)
//	people := selda.MustDefine("people",
//		schema.Primary("name", ir.TText),
//		schema.Required("age", ir.TInt),
//	)
//	q := selda.From(people)
//	q = q.Where(queryir.Gt(q.Col("age"), queryir.Int(18)))
//	res, err := e.Query(ctx, q)
package selda

import (
	"context"
	"log/slog"

	"github.com/jchia/selda/internal/config"
	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
	"github.com/jchia/selda/internal/store"
)

type (
	Engine = engine.Engine
	Tx     = engine.Tx
	Result = engine.Result
	Config = config.Config

	Table  = schema.Table
	Column = schema.Column
	Query  = queryir.Query
	Expr   = queryir.Expr
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = engine.ErrTxDone

// Open connects to the backend named by cfg and returns an engine with
// the configured cache capacity. A nil logger uses slog.Default().
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Engine, error) {
	st, err := store.OpenDriver(ctx, cfg.Driver, cfg.DSN, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	e, err := engine.New(st,
		engine.WithCacheCapacity(cfg.CacheCapacity),
		engine.WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	return e, nil
}

// Define declares a table. See schema.Define for the rules it checks.
func Define(name string, cols ...Column) (*Table, error) {
	return schema.Define(name, cols...)
}

// MustDefine is like Define but panics on error.
func MustDefine(name string, cols ...Column) *Table {
	return schema.MustDefine(name, cols...)
}

// From starts a query over every row of t.
func From(t *Table) *Query { return queryir.From(t) }

// IsValidationError reports whether err is a schema or row validation
// failure raised before the backend was contacted.
func IsValidationError(err error) bool { return schema.IsValidationError(err) }

// IsConstraintError reports whether err is a backend integrity violation.
func IsConstraintError(err error) bool { return store.IsConstraintError(err) }
