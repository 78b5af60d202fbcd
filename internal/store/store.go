package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jchia/selda/internal/ir"
)

// Driver names reported by Store.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultBusyTimeout is how long SQLite waits for a lock before failing.
const DefaultBusyTimeout = 5 * time.Second

// Querier is the subset of *sql.DB and *sql.Tx used to run statements.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is an open database handle.
type Store struct {
	db     *sql.DB
	driver string
}

// Options tunes how a store is opened.
type Options struct {
	// BusyTimeout applies to SQLite only. Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration

	// MaxOpenConns limits the connection pool. Zero leaves the driver default.
	MaxOpenConns int
}

// Open creates or opens a SQLite database at the given path.
// ":memory:" opens a private in-memory database.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts Options) (*Store, error) {
	memory := path == ":memory:" || path == ""
	db, err := sql.Open("sqlite3", sqliteDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db, driver: DriverSQLite}, nil
}

// OpenPostgres connects to PostgreSQL with a lib/pq connection string.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db, driver: DriverPostgres}, nil
}

// OpenDriver opens a store by driver name ("sqlite" or "postgres").
func OpenDriver(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return Open(dsn, opts)
	case DriverPostgres, "postgresql", "pq":
		return OpenPostgres(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func sqliteDSN(path string, opts Options) string {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_txlock", "immediate")

	if path == "" || path == ":memory:" {
		return "file::memory:?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns DriverSQLite or DriverPostgres.
func (s *Store) Driver() string {
	return s.driver
}

// BeginTx starts a write transaction.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// Exec runs a statement outside any transaction.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return Exec(ctx, s.db, query, args...)
}

// Query runs a query outside any transaction and decodes every row.
func (s *Store) Query(ctx context.Context, query string, types []ir.Type, args ...any) ([]ir.Row, error) {
	return Query(ctx, s.db, query, types, args...)
}

// Exec runs a statement and returns the number of affected rows.
// Integrity violations are returned as *ConstraintError.
func Exec(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Query runs a query and decodes each row into values of the given
// column types. Returns an empty slice (not nil) when no rows match.
func Query(ctx context.Context, q Querier, query string, types []ir.Type, args ...any) ([]ir.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	result, err := scanRows(rows, types)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", Classify(err))
	}
	return result, nil
}

// scanRows decodes rows positionally. The driver's loose typing is
// normalized by ir.FromDriver.
func scanRows(rows *sql.Rows, types []ir.Type) ([]ir.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if len(cols) != len(types) {
		return nil, fmt.Errorf("query returned %d columns, expected %d", len(cols), len(types))
	}

	result := []ir.Row{}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(ir.Row, len(types))
		for i, t := range types {
			v, err := ir.FromDriver(raw[i], t)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", cols[i], err)
			}
			row[i] = v
		}
		result = append(result, row)
	}
	return result, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if !strings.EqualFold(value, expected) {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
