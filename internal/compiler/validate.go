package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"golang.org/x/text/cases"

	"github.com/jchia/selda/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrNoTables = "E100" // spec declares no tables

	// Table errors (E101-E109)
	ErrTableNoColumns    = "E101" // columns missing or empty
	ErrDuplicateTable    = "E102" // two tables fold to the same name
	ErrInvalidColumn     = "E103" // malformed column spec (type, role, attribute, default)
	ErrSchemaRule        = "E104" // table rejected by schema rules
	ErrMalformedSpecTree = "E105" // CUE value could not be walked
)

// ValidationError represents a spec validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks every table under "table" and returns all errors found
// (it does not fail fast). Tables that pass are compiled exactly as
// CompileTables would compile them.
func Validate(v cue.Value) []ValidationError {
	if err := v.Err(); err != nil {
		return []ValidationError{fromError("cue", ErrMalformedSpecTree, formatCUEError(err))}
	}
	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return []ValidationError{{Field: "table", Message: "no tables declared", Code: ErrNoTables}}
	}
	iter, err := tablesVal.Fields()
	if err != nil {
		return []ValidationError{fromError("table", ErrMalformedSpecTree, formatCUEError(err))}
	}

	var errs []ValidationError
	fold := cases.Fold()
	seen := make(map[string]string)
	count := 0
	for iter.Next() {
		count++
		tv := iter.Value()
		name := tableName(tv)
		field := "table." + name

		key := fold.String(name)
		if prev, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("table name duplicates %q", prev),
				Code:    ErrDuplicateTable,
				Line:    tv.Pos().Line(),
			})
		}
		seen[key] = name

		errs = append(errs, validateTable(tv, name, field)...)
	}
	if count == 0 {
		errs = append(errs, ValidationError{Field: "table", Message: "no tables declared", Code: ErrNoTables})
	}
	return errs
}

// validateTable reports every malformed column, and the schema rule
// violation when all columns parse.
func validateTable(v cue.Value, name, field string) []ValidationError {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return []ValidationError{{Field: field + ".columns", Message: "columns are required", Code: ErrTableNoColumns, Line: v.Pos().Line()}}
	}
	iter, err := colsVal.List()
	if err != nil {
		return []ValidationError{fromError(field+".columns", ErrMalformedSpecTree, formatCUEError(err))}
	}

	var errs []ValidationError
	var cols []schema.Column
	for i := 0; iter.Next(); i++ {
		col, err := parseColumn(iter.Value(), fmt.Sprintf("%s.columns[%d]", name, i))
		if err != nil {
			errs = append(errs, fromError(fmt.Sprintf("%s.columns[%d]", field, i), ErrInvalidColumn, err))
			continue
		}
		cols = append(cols, col)
	}
	if len(errs) > 0 {
		return errs
	}
	if len(cols) == 0 {
		return []ValidationError{{Field: field + ".columns", Message: "at least one column is required", Code: ErrTableNoColumns, Line: v.Pos().Line()}}
	}

	if _, err := schema.Define(name, cols...); err != nil {
		ve := fromError(field, ErrSchemaRule, err)
		ve.Line = v.Pos().Line()
		var se *schema.ValidationError
		if errors.As(err, &se) && se.Column != "" {
			ve.Field = field + "." + se.Column
		}
		return []ValidationError{ve}
	}
	return nil
}

// fromError converts a compile or schema error, keeping its position.
func fromError(field, code string, err error) ValidationError {
	ve := ValidationError{Field: field, Message: err.Error(), Code: code}
	var ce *CompileError
	if errors.As(err, &ce) {
		ve.Message = ce.Message
		if ce.Pos.IsValid() {
			ve.Line = ce.Pos.Line()
		}
	}
	return ve
}
