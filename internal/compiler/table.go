// Package compiler turns CUE table specs into schema tables.
//
// A spec file declares tables under the top-level "table" field. Column
// order is the list order:
//
//	table: items: columns: [
//		{name: "id", type: "int", role: "auto"},
//		{name: "name", type: "text", unique: true},
//		{name: "qty", type: "int", default: 1},
//		{name: "note", type: "text", role: "optional"},
//	]
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/schema"
)

// Column roles accepted in specs.
const (
	RoleRequired = "required"
	RoleOptional = "optional"
	RolePrimary  = "primary"
	RoleAuto     = "auto"
)

var columnFields = map[string]bool{
	"name": true, "type": true, "role": true, "unique": true, "default": true,
}

// CompileTables compiles every table under the top-level "table" field,
// in declaration order. It stops at the first failure.
func CompileTables(v cue.Value) ([]*schema.Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, nil
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var tables []*schema.Table
	for iter.Next() {
		t, err := CompileTable(iter.Value())
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// CompileTable compiles one table struct. The table is named after the
// last path selector, e.g. the value at "table.people" defines "people".
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`table: people: columns: [{name: "name", type: "text"}]`)
//	t, err := CompileTable(v.LookupPath(cue.ParsePath("table.people")))
func CompileTable(v cue.Value) (*schema.Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	name := tableName(v)

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil, &CompileError{
			Field:   name + ".columns",
			Message: "columns are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := colsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cols []schema.Column
	for i := 0; iter.Next(); i++ {
		col, err := parseColumn(iter.Value(), fmt.Sprintf("%s.columns[%d]", name, i))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	t, err := schema.Define(name, cols...)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	return t, nil
}

// tableName returns the last path selector, unquoted.
func tableName(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	label := sels[len(sels)-1].String()
	if strings.HasPrefix(label, `"`) {
		if s, err := strconv.Unquote(label); err == nil {
			return s
		}
	}
	return label
}

// parseColumn reads {name, type, role?, unique?, default?}.
func parseColumn(v cue.Value, field string) (schema.Column, error) {
	fields, err := v.Fields()
	if err != nil {
		return schema.Column{}, formatCUEError(err)
	}
	for fields.Next() {
		if !columnFields[fields.Label()] {
			return schema.Column{}, &CompileError{
				Field:   field + "." + fields.Label(),
				Message: "unknown column attribute",
				Pos:     fields.Value().Pos(),
			}
		}
	}

	name, err := requiredString(v, "name", field)
	if err != nil {
		return schema.Column{}, err
	}
	typeName, err := requiredString(v, "type", field)
	if err != nil {
		return schema.Column{}, err
	}
	typ, err := ir.ParseType(typeName)
	if err != nil {
		return schema.Column{}, &CompileError{Field: field + ".type", Message: err.Error(), Pos: v.Pos()}
	}

	role := RoleRequired
	if rv := v.LookupPath(cue.ParsePath("role")); rv.Exists() {
		if role, err = rv.String(); err != nil {
			return schema.Column{}, formatCUEError(err)
		}
	}

	var col schema.Column
	switch role {
	case RoleRequired:
		col = schema.Required(name, typ)
	case RoleOptional:
		col = schema.Optional(name, typ)
	case RolePrimary:
		col = schema.Primary(name, typ)
	case RoleAuto:
		if typ != ir.TInt {
			return schema.Column{}, &CompileError{
				Field:   field + ".type",
				Message: fmt.Sprintf("auto-increment column must be int, got %s", typ),
				Pos:     v.Pos(),
			}
		}
		col = schema.AutoPrimary(name)
	default:
		return schema.Column{}, &CompileError{
			Field:   field + ".role",
			Message: fmt.Sprintf("unknown role %q, must be one of required, optional, primary, auto", role),
			Pos:     v.Pos(),
		}
	}

	if uv := v.LookupPath(cue.ParsePath("unique")); uv.Exists() {
		unique, err := uv.Bool()
		if err != nil {
			return schema.Column{}, formatCUEError(err)
		}
		if unique {
			col = col.WithUnique()
		}
	}

	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		if role == RoleAuto {
			return schema.Column{}, &CompileError{
				Field:   field + ".default",
				Message: "auto-increment column cannot declare a default",
				Pos:     dv.Pos(),
			}
		}
		def, err := parseDefault(dv, typ)
		if err != nil {
			return schema.Column{}, &CompileError{Field: field + ".default", Message: err.Error(), Pos: dv.Pos()}
		}
		col = col.WithDefault(def)
	}
	return col, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// parseDefault converts a concrete CUE value to a column default.
// null selects the type's zero value, or NULL for optional columns.
func parseDefault(v cue.Value, t ir.Type) (ir.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch t {
	case ir.TInt:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return ir.Int(n), nil
	case ir.TFloat:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return ir.Float(f), nil
	case ir.TBool:
		b, err := v.Bool()
		if err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	case ir.TBlob:
		b, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		return ir.Bytes(b), nil
	default:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return ir.Coerce(ir.Text(s), t)
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
