// Package store provides the database/sql backend handle for selda.
//
// Two drivers are supported:
//   - SQLite via github.com/mattn/go-sqlite3 (Open)
//   - PostgreSQL via github.com/lib/pq (OpenPostgres)
//
// # SQLite Configuration
//
// Connection settings are part of the DSN so every pooled connection
// gets them, not only the first:
//   - WAL mode: readers proceed while a write transaction is open
//   - synchronous=NORMAL: balance durability/performance
//   - busy timeout: wait for locks instead of failing with SQLITE_BUSY
//   - foreign_keys=on: enforce referential integrity
//   - _txlock=immediate: write transactions take the write lock at BEGIN
//
// In-memory databases are limited to one connection because each
// connection would otherwise see its own empty database.
//
// # Errors
//
// Exec and Query classify integrity violations of either driver as
// *ConstraintError. Other driver errors are wrapped unchanged.
package store
