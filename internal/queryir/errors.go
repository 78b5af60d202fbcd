package queryir

import (
	"errors"
	"fmt"
)

// ScopeErrorCode categorizes query construction errors.
type ScopeErrorCode string

const (
	// ErrCodeUnknownColumn indicates a name lookup with no matching output.
	ErrCodeUnknownColumn ScopeErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeAmbiguousColumn indicates a name lookup with several matching outputs.
	ErrCodeAmbiguousColumn ScopeErrorCode = "AMBIGUOUS_COLUMN"

	// ErrCodeOutOfScope indicates an expression that does not resolve in the level it is used in.
	ErrCodeOutOfScope ScopeErrorCode = "OUT_OF_SCOPE"

	// ErrCodeReusedSource indicates the same source appearing twice in one scope.
	ErrCodeReusedSource ScopeErrorCode = "REUSED_SOURCE"

	// ErrCodeTypeMismatch indicates operands of incompatible types.
	ErrCodeTypeMismatch ScopeErrorCode = "TYPE_MISMATCH"

	// ErrCodeMisplacedAggregate indicates an aggregate outside Aggregate,
	// or a bare column inside an aggregate projection.
	ErrCodeMisplacedAggregate ScopeErrorCode = "MISPLACED_AGGREGATE"

	// ErrCodeBadValues indicates a literal row that does not match its columns.
	ErrCodeBadValues ScopeErrorCode = "BAD_VALUES"

	// ErrCodeBadName indicates an empty or NUL-containing output name.
	ErrCodeBadName ScopeErrorCode = "BAD_NAME"

	// ErrCodeEmptyProjection indicates a projection with no columns.
	ErrCodeEmptyProjection ScopeErrorCode = "EMPTY_PROJECTION"
)

// ScopeError reports a query that was malformed when it was built.
type ScopeError struct {
	// Code identifies the error category.
	Code ScopeErrorCode

	// Op is the builder that detected the problem (e.g. "Where").
	Op string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ScopeError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsScopeError returns true if err is or wraps a *ScopeError.
func IsScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se)
}

// HasCode returns true if err wraps a *ScopeError with the given code.
func HasCode(err error, code ScopeErrorCode) bool {
	var se *ScopeError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func scopeErr(code ScopeErrorCode, op, format string, args ...any) *ScopeError {
	return &ScopeError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}
