package schema

import (
	"errors"
	"fmt"
)

// ValidationErrorCode categorizes schema validation failures.
type ValidationErrorCode string

const (
	// ErrCodeEmptyName indicates an empty table or column name.
	ErrCodeEmptyName ValidationErrorCode = "EMPTY_NAME"

	// ErrCodeNoColumns indicates a table declared without columns.
	ErrCodeNoColumns ValidationErrorCode = "NO_COLUMNS"

	// ErrCodeNulInName indicates a NUL byte inside a table or column name.
	ErrCodeNulInName ValidationErrorCode = "NUL_IN_NAME"

	// ErrCodeDuplicateColumn indicates two columns whose names fold to the same key.
	ErrCodeDuplicateColumn ValidationErrorCode = "DUPLICATE_COLUMN"

	// ErrCodeNameCollision indicates a column named like its table.
	ErrCodeNameCollision ValidationErrorCode = "NAME_COLLISION"

	// ErrCodeMultiplePrimary indicates more than one primary key designation.
	ErrCodeMultiplePrimary ValidationErrorCode = "MULTIPLE_PRIMARY"

	// ErrCodeBadDefault indicates a declared default that does not fit its column.
	ErrCodeBadDefault ValidationErrorCode = "BAD_DEFAULT"

	// ErrCodeBadType indicates a role that the column type cannot carry.
	ErrCodeBadType ValidationErrorCode = "BAD_TYPE"

	// ErrCodeBadRow indicates a row that does not match its table.
	ErrCodeBadRow ValidationErrorCode = "BAD_ROW"
)

// ValidationError reports a schema that was rejected before any backend call.
// It is a programmer error: retrying never helps.
type ValidationError struct {
	// Code identifies the error category.
	Code ValidationErrorCode

	// Table is the table being defined.
	Table string

	// Column is the offending column, empty for table-level problems.
	Column string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: %s (table=%q, column=%q)", e.Code, e.Message, e.Table, e.Column)
	}
	return fmt.Sprintf("%s: %s (table=%q)", e.Code, e.Message, e.Table)
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HasCode returns true if err wraps a *ValidationError with the given code.
func HasCode(err error, code ValidationErrorCode) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

func newValidationError(code ValidationErrorCode, table, column, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Table:   table,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}
