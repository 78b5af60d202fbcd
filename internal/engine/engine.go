package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jchia/selda/internal/cache"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/querysql"
	"github.com/jchia/selda/internal/store"
)

// Engine is the runtime context shared by every query and mutation.
//
// Thread-safety model:
//   - Query, mutations and Transaction: safe from any goroutine
//   - a Tx: safe from any goroutine, statements are serialised
//   - Close: call once, after all other use has finished
type Engine struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
	cache    *cache.Cache
	tokens   TokenGenerator
	logger   *slog.Logger

	closeOnce sync.Once
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithCacheCapacity sets the result cache capacity.
//
// Default: 0 (caching disabled).
func WithCacheCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.cache.SetCapacity(n)
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTokenGenerator sets the transaction token source.
// Default: UUIDv7Generator. Use NewFixedGenerator in tests.
func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.tokens = g
		}
	}
}

// New creates an Engine over an open store. The SQL dialect follows the
// store's driver.
func New(s *store.Store, opts ...EngineOption) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: nil store")
	}
	dialect, err := querysql.DialectByName(s.Driver())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		store:    s,
		compiler: querysql.NewSQLCompiler(querysql.WithDialect(dialect)),
		cache:    cache.New(0),
		tokens:   UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close drops the cache and closes the store.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cache.SetCapacity(0)
		err = e.store.Close()
	})
	return err
}

// Store returns the backend handle.
func (e *Engine) Store() *store.Store { return e.store }

// Compiler returns the SQL compiler for the store's dialect.
func (e *Engine) Compiler() *querysql.SQLCompiler { return e.compiler }

// SetCacheCapacity resizes the result cache. 0 disables it and drops
// every entry; shrinking evicts the oldest entries first.
func (e *Engine) SetCacheCapacity(n int) {
	e.cache.SetCapacity(n)
	e.logger.Debug("cache capacity set", "capacity", n)
}

// CacheStats returns a snapshot of the cache counters.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// Result is the outcome of a query.
type Result struct {
	Columns []queryir.OutputColumn
	Rows    []ir.Row

	// Cached reports whether the rows came from the cache.
	Cached bool
}

// Explain compiles q without running it.
func (e *Engine) Explain(q *queryir.Query) (*querysql.Compiled, error) {
	return e.compiler.Compile(q)
}

// Query runs q, serving it from the cache when possible. The returned
// rows are owned by the caller.
func (e *Engine) Query(ctx context.Context, q *queryir.Query) (*Result, error) {
	compiled, err := e.compiler.Compile(q)
	if err != nil {
		return nil, err
	}

	if e.cache.Capacity() == 0 {
		rows, err := e.run(ctx, e.store.DB(), compiled)
		if err != nil {
			return nil, err
		}
		return &Result{Columns: compiled.Columns, Rows: rows}, nil
	}

	key, err := compiled.Fingerprint()
	if err != nil {
		// unencodable parameters cannot be keyed; run uncached
		e.logger.Debug("query not cacheable", "error", err)
		rows, err := e.run(ctx, e.store.DB(), compiled)
		if err != nil {
			return nil, err
		}
		return &Result{Columns: compiled.Columns, Rows: rows}, nil
	}

	if entry, ok := e.cache.Lookup(key); ok {
		e.logger.Debug("cache hit", "key", string(key)[:12])
		return &Result{Columns: entry.Columns, Rows: entry.Rows, Cached: true}, nil
	}

	ticket := e.cache.Ticket(compiled.Tables)
	rows, err := e.run(ctx, e.store.DB(), compiled)
	if err != nil {
		return nil, err
	}
	stored := e.cache.StoreIfCurrent(ticket, key, cache.Entry{
		Rows:    rows,
		Columns: compiled.Columns,
		Tables:  compiled.Tables,
	})
	e.logger.Debug("cache miss", "key", string(key)[:12], "stored", stored)
	return &Result{Columns: compiled.Columns, Rows: rows}, nil
}

func (e *Engine) run(ctx context.Context, q store.Querier, compiled *querysql.Compiled) ([]ir.Row, error) {
	e.logger.Debug("query", "sql", compiled.SQL, "params", len(compiled.Args))

	types := make([]ir.Type, len(compiled.Columns))
	for i, c := range compiled.Columns {
		types[i] = c.Type
	}
	rows, err := store.Query(ctx, q, compiled.SQL, types, compiled.Args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}
