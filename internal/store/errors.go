package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ConstraintKind identifies which integrity rule a statement violated.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "UNIQUE"
	ConstraintPrimaryKey ConstraintKind = "PRIMARY_KEY"
	ConstraintNotNull    ConstraintKind = "NOT_NULL"
	ConstraintCheck      ConstraintKind = "CHECK"
	ConstraintForeignKey ConstraintKind = "FOREIGN_KEY"
	ConstraintOther      ConstraintKind = "OTHER"
)

// ConstraintError reports a backend integrity violation. It is distinct
// from schema validation errors, which are raised before the backend is
// contacted.
type ConstraintError struct {
	Kind ConstraintKind

	// Constraint is the backend's constraint name, when it reports one.
	Constraint string

	// Err is the driver error.
	Err error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("[%s] constraint %q violated: %v", e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("[%s] constraint violated: %v", e.Kind, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraintError checks if an error is a ConstraintError.
func IsConstraintError(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// HasKind checks if an error is a ConstraintError of the given kind.
func HasKind(err error, kind ConstraintKind) bool {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Classify converts driver integrity errors to *ConstraintError and
// returns any other error unchanged. Exec and Query apply it already;
// callers use it for errors from Commit.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &ConstraintError{Kind: sqliteKind(se.ExtendedCode), Err: err}
	}

	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code.Class() == "23" {
		return &ConstraintError{Kind: postgresKind(pe), Constraint: pe.Constraint, Err: err}
	}
	return err
}

func sqliteKind(code sqlite3.ErrNoExtended) ConstraintKind {
	switch code {
	case sqlite3.ErrConstraintUnique:
		return ConstraintUnique
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintRowID:
		return ConstraintPrimaryKey
	case sqlite3.ErrConstraintNotNull:
		return ConstraintNotNull
	case sqlite3.ErrConstraintCheck:
		return ConstraintCheck
	case sqlite3.ErrConstraintForeignKey:
		return ConstraintForeignKey
	default:
		return ConstraintOther
	}
}

func postgresKind(e *pq.Error) ConstraintKind {
	switch e.Code {
	case "23505":
		// Postgres names primary key constraints <table>_pkey by default.
		if strings.HasSuffix(e.Constraint, "_pkey") {
			return ConstraintPrimaryKey
		}
		return ConstraintUnique
	case "23502":
		return ConstraintNotNull
	case "23514":
		return ConstraintCheck
	case "23503":
		return ConstraintForeignKey
	default:
		return ConstraintOther
	}
}
