package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/querysql"
	"github.com/jchia/selda/internal/store"
)

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

// Tx is an open transaction.
//
// Statements are sent to the backend as they are issued; the tables they
// write accumulate in a pending set that invalidates the cache only when
// the outermost transaction commits. A Tx is only valid inside the body
// passed to Transaction; afterwards every method returns ErrTxDone.
type Tx struct {
	engine *Engine
	sqlTx  *sql.Tx
	logger *slog.Logger
	token  string

	// mu is shared by a transaction and all of its nested transactions.
	mu *sync.Mutex

	parent    *Tx
	savepoint string
	state     txState
	pending   map[string]struct{}
}

// Transaction runs fn inside a backend transaction.
//
// When fn returns nil the transaction commits: the written tables are
// fenced in the cache, the backend commits, the tables are invalidated
// and the fence is lifted. When fn returns an error or panics, the
// transaction rolls back, the cache is left untouched and the error (or
// panic) is passed on.
func (e *Engine) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	token := e.tokens.Generate()
	sqlTx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	tx := &Tx{
		engine:  e,
		sqlTx:   sqlTx,
		logger:  e.logger.With("tx", token),
		token:   token,
		mu:      &sync.Mutex{},
		pending: make(map[string]struct{}),
	}
	tx.logger.Debug("transaction begin")

	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			tx.logger.Warn("transaction rolled back", "panic", p)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.rollback(); rbErr != nil {
			tx.logger.Error("rollback failed", "error", rbErr)
		}
		tx.logger.Info("transaction rolled back", "error", err)
		return err
	}
	return tx.commit()
}

// Transaction runs fn in a nested transaction backed by a savepoint.
// On success its pending tables join the parent's; on error only the
// nested work is undone and the error is returned to the parent body.
func (tx *Tx) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx.mu.Lock()
	if err := tx.activeLocked(); err != nil {
		tx.mu.Unlock()
		return err
	}
	token := tx.engine.tokens.Generate()
	child := &Tx{
		engine:    tx.engine,
		sqlTx:     tx.sqlTx,
		logger:    tx.logger.With("savepoint", token),
		token:     token,
		mu:        tx.mu,
		parent:    tx,
		savepoint: savepointName(token),
		pending:   make(map[string]struct{}),
	}
	_, err = tx.sqlTx.ExecContext(ctx, "SAVEPOINT "+querysql.QuoteIdent(child.savepoint))
	tx.mu.Unlock()
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	child.logger.Debug("savepoint begin")

	defer func() {
		if p := recover(); p != nil {
			child.rollbackSavepoint(ctx)
			panic(p)
		}
	}()

	if err := fn(child); err != nil {
		if rbErr := child.rollbackSavepoint(ctx); rbErr != nil {
			child.logger.Error("rollback to savepoint failed", "error", rbErr)
		}
		child.logger.Debug("savepoint rolled back", "error", err)
		return err
	}
	return child.release(ctx)
}

// Token returns the transaction token used in logs.
func (tx *Tx) Token() string { return tx.token }

// Query runs q inside the transaction. It sees the transaction's own
// uncommitted writes and never touches the cache.
func (tx *Tx) Query(ctx context.Context, q *queryir.Query) (*Result, error) {
	compiled, err := tx.engine.compiler.Compile(q)
	if err != nil {
		return nil, err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.activeLocked(); err != nil {
		return nil, err
	}
	rows, err := tx.engine.run(ctx, tx.sqlTx, compiled)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: compiled.Columns, Rows: rows}, nil
}

// exec runs one write statement and records the tables it wrote.
func (tx *Tx) exec(ctx context.Context, stmt querysql.Statement) (int64, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.activeLocked(); err != nil {
		return 0, err
	}
	tx.logger.Debug("exec", "sql", stmt.SQL, "params", len(stmt.Args))
	n, err := store.Exec(ctx, tx.sqlTx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err
	}
	tx.markLocked(stmt.Tables)
	return n, nil
}

// queryStmt runs a write statement that returns rows (RETURNING, setval).
func (tx *Tx) queryStmt(ctx context.Context, stmt querysql.Statement, types []ir.Type) ([]ir.Row, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.activeLocked(); err != nil {
		return nil, err
	}
	tx.logger.Debug("exec", "sql", stmt.SQL, "params", len(stmt.Args))
	rows, err := store.Query(ctx, tx.sqlTx, stmt.SQL, types, stmt.Args...)
	if err != nil {
		return nil, err
	}
	tx.markLocked(stmt.Tables)
	return rows, nil
}

func (tx *Tx) markLocked(tables []string) {
	for _, name := range tables {
		tx.pending[name] = struct{}{}
	}
}

// activeLocked fails when tx or any enclosing transaction has finished.
func (tx *Tx) activeLocked() error {
	for t := tx; t != nil; t = t.parent {
		if t.state != txActive {
			return ErrTxDone
		}
	}
	return nil
}

func (tx *Tx) pendingTables() []string {
	tables := make([]string, 0, len(tx.pending))
	for name := range tx.pending {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

func (tx *Tx) commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.activeLocked(); err != nil {
		return err
	}

	tables := tx.pendingTables()
	c := tx.engine.cache
	c.BeginWrite(tables)
	err := tx.sqlTx.Commit()
	// a failed commit may still have reached the backend; invalidate anyway
	c.EndWrite(tables, true)
	tx.state = txCommitted
	tx.pending = nil

	if err != nil {
		return fmt.Errorf("commit: %w", store.Classify(err))
	}
	tx.logger.Debug("transaction committed", "tables", tables)
	return nil
}

func (tx *Tx) rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != txActive {
		return ErrTxDone
	}
	tx.state = txRolledBack
	tx.pending = nil
	return tx.sqlTx.Rollback()
}

func (tx *Tx) release(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.activeLocked(); err != nil {
		return err
	}
	if _, err := tx.sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+querysql.QuoteIdent(tx.savepoint)); err != nil {
		tx.state = txRolledBack
		return fmt.Errorf("release savepoint: %w", store.Classify(err))
	}
	for name := range tx.pending {
		tx.parent.pending[name] = struct{}{}
	}
	tx.state = txCommitted
	tx.pending = nil
	tx.logger.Debug("savepoint released")
	return nil
}

func (tx *Tx) rollbackSavepoint(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != txActive {
		return ErrTxDone
	}
	tx.state = txRolledBack
	tx.pending = nil

	// cleanup must run even when the body failed on a cancelled context
	ctx = context.WithoutCancel(ctx)
	name := querysql.QuoteIdent(tx.savepoint)
	if _, err := tx.sqlTx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return err
	}
	_, err := tx.sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}
