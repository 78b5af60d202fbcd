// Package schema defines tables and columns and validates them.
//
// Tables are immutable once Define returns them and are shared read-only
// by the query algebra, the compiler and the mutation engine. Every
// structural check runs inside Define, so an invalid table never reaches
// a backend.
//
// Checks performed by Define:
//   - table and column names are non-empty and contain no NUL byte
//   - column names are unique after Unicode case folding
//   - no column shares the table's name
//   - at most one primary key designation (plain or auto-increment)
//   - declared defaults fit the column type
package schema
