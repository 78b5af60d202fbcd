package engine

import (
	"context"
	"fmt"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
)

// Predicate builds a row filter from the target row.
type Predicate func(r *queryir.Target) queryir.Expr

// Assigner builds the assignments of an UPDATE from the target row.
type Assigner func(r *queryir.Target) []queryir.Assignment

// CreateTable creates t. It fails if the table already exists.
func (tx *Tx) CreateTable(ctx context.Context, t *schema.Table) error {
	return tx.createTable(ctx, t, false)
}

// TryCreateTable creates t unless it already exists.
func (tx *Tx) TryCreateTable(ctx context.Context, t *schema.Table) error {
	return tx.createTable(ctx, t, true)
}

func (tx *Tx) createTable(ctx context.Context, t *schema.Table, ifNotExists bool) error {
	stmt, err := tx.engine.compiler.CreateTable(t, ifNotExists)
	if err != nil {
		return err
	}
	if _, err := tx.exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %q: %w", t.Name(), err)
	}
	tx.logger.Info("table created", "table", t.Name())
	return nil
}

// DropTable drops t. It fails if the table does not exist.
func (tx *Tx) DropTable(ctx context.Context, t *schema.Table) error {
	return tx.dropTable(ctx, t, false)
}

// TryDropTable drops t if it exists.
func (tx *Tx) TryDropTable(ctx context.Context, t *schema.Table) error {
	return tx.dropTable(ctx, t, true)
}

func (tx *Tx) dropTable(ctx context.Context, t *schema.Table, ifExists bool) error {
	stmt, err := tx.engine.compiler.DropTable(t, ifExists)
	if err != nil {
		return err
	}
	if _, err := tx.exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop table %q: %w", t.Name(), err)
	}
	tx.logger.Info("table dropped", "table", t.Name())
	return nil
}

// Insert validates and inserts rows, returning the number inserted.
// Pass ir.Default{} for an auto-increment key or a column declared
// WithDefault to let the database or the declared default fill it in.
func (tx *Tx) Insert(ctx context.Context, t *schema.Table, rows ...ir.Row) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("insert: nil table")
	}
	checked, err := t.CheckRows(rows)
	if err != nil {
		return 0, err
	}
	stmts, err := tx.engine.compiler.Insert(t, checked)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, stmt := range stmts {
		n, err := tx.exec(ctx, stmt)
		if err != nil {
			return 0, fmt.Errorf("insert into %q: %w", t.Name(), err)
		}
		total += n
	}
	if explicitKey(t, checked) {
		if err := tx.resync(ctx, t); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// InsertReturningKey inserts one row and returns its auto-increment key.
// An explicit key is stored as given and moves the generator past it.
func (tx *Tx) InsertReturningKey(ctx context.Context, t *schema.Table, row ir.Row) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("insert: nil table")
	}
	if t.AutoKey() < 0 {
		return 0, fmt.Errorf("insert into %q: %w", t.Name(), ErrNoAutoKey)
	}
	checked, err := t.CheckRow(row)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.engine.compiler.InsertReturning(t, checked)
	if err != nil {
		return 0, err
	}

	rows, err := tx.queryStmt(ctx, stmt, []ir.Type{ir.TInt})
	if err != nil {
		return 0, fmt.Errorf("insert into %q: %w", t.Name(), err)
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("insert into %q: expected one generated key, got %d rows", t.Name(), len(rows))
	}
	if explicitKey(t, []ir.Row{checked}) {
		if err := tx.resync(ctx, t); err != nil {
			return 0, err
		}
	}
	key, ok := rows[0][0].(ir.Int)
	if !ok {
		return 0, fmt.Errorf("insert into %q: generated key is %s", t.Name(), ir.Format(rows[0][0]))
	}
	return int64(key), nil
}

// Update sets columns on every row matching where and returns the number
// of rows changed. Assigned expressions read the row as it was before
// the update.
func (tx *Tx) Update(ctx context.Context, t *schema.Table, where Predicate, set Assigner) (int64, error) {
	if t == nil || where == nil || set == nil {
		return 0, fmt.Errorf("update: nil table, predicate or assigner")
	}
	target := queryir.NewTarget(t)
	stmt, err := tx.engine.compiler.Update(target, where(target), set(target))
	if err != nil {
		return 0, err
	}
	n, err := tx.exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("update %q: %w", t.Name(), err)
	}
	return n, nil
}

// Delete removes every row matching where and returns how many were
// removed.
func (tx *Tx) Delete(ctx context.Context, t *schema.Table, where Predicate) (int64, error) {
	if t == nil || where == nil {
		return 0, fmt.Errorf("delete: nil table or predicate")
	}
	target := queryir.NewTarget(t)
	stmt, err := tx.engine.compiler.Delete(target, where(target))
	if err != nil {
		return 0, err
	}
	n, err := tx.exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("delete from %q: %w", t.Name(), err)
	}
	return n, nil
}

// resync moves the backend key generator past explicit keys where the
// dialect does not do so itself.
func (tx *Tx) resync(ctx context.Context, t *schema.Table) error {
	stmt, ok := tx.engine.compiler.ResyncSequence(t)
	if !ok {
		return nil
	}
	if _, err := tx.queryStmt(ctx, stmt, []ir.Type{ir.TInt}); err != nil {
		return fmt.Errorf("resync key of %q: %w", t.Name(), err)
	}
	return nil
}

func explicitKey(t *schema.Table, rows []ir.Row) bool {
	key := t.AutoKey()
	if key < 0 {
		return false
	}
	for _, row := range rows {
		if !ir.IsDefault(row[key]) {
			return true
		}
	}
	return false
}

// Engine mutations run in a transaction of their own.

// CreateTable creates t. It fails if the table already exists.
func (e *Engine) CreateTable(ctx context.Context, t *schema.Table) error {
	return e.Transaction(ctx, func(tx *Tx) error { return tx.CreateTable(ctx, t) })
}

// TryCreateTable creates t unless it already exists.
func (e *Engine) TryCreateTable(ctx context.Context, t *schema.Table) error {
	return e.Transaction(ctx, func(tx *Tx) error { return tx.TryCreateTable(ctx, t) })
}

// DropTable drops t. It fails if the table does not exist.
func (e *Engine) DropTable(ctx context.Context, t *schema.Table) error {
	return e.Transaction(ctx, func(tx *Tx) error { return tx.DropTable(ctx, t) })
}

// TryDropTable drops t if it exists.
func (e *Engine) TryDropTable(ctx context.Context, t *schema.Table) error {
	return e.Transaction(ctx, func(tx *Tx) error { return tx.TryDropTable(ctx, t) })
}

// Insert validates and inserts rows atomically, returning the number
// inserted.
func (e *Engine) Insert(ctx context.Context, t *schema.Table, rows ...ir.Row) (int64, error) {
	var n int64
	err := e.Transaction(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.Insert(ctx, t, rows...)
		return err
	})
	return n, err
}

// InsertReturningKey inserts one row and returns its auto-increment key.
func (e *Engine) InsertReturningKey(ctx context.Context, t *schema.Table, row ir.Row) (int64, error) {
	var key int64
	err := e.Transaction(ctx, func(tx *Tx) error {
		var err error
		key, err = tx.InsertReturningKey(ctx, t, row)
		return err
	})
	return key, err
}

// Update sets columns on every row matching where.
func (e *Engine) Update(ctx context.Context, t *schema.Table, where Predicate, set Assigner) (int64, error) {
	var n int64
	err := e.Transaction(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.Update(ctx, t, where, set)
		return err
	})
	return n, err
}

// Delete removes every row matching where.
func (e *Engine) Delete(ctx context.Context, t *schema.Table, where Predicate) (int64, error) {
	var n int64
	err := e.Transaction(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.Delete(ctx, t, where)
		return err
	})
	return n, err
}
