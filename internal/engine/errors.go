package engine

import (
	"errors"
)

// ErrTxDone is returned when a committed or rolled back transaction is
// used again, including from inside a nested body after it finished.
var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// ErrNoAutoKey is returned by InsertReturningKey for tables without an
// auto-increment primary key.
var ErrNoAutoKey = errors.New("table has no auto-increment primary key")

// IsTxDone returns true if err is or wraps ErrTxDone.
func IsTxDone(err error) bool {
	return errors.Is(err, ErrTxDone)
}
