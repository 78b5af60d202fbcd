package schema

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/jchia/selda/internal/ir"
)

// Role marks the key or default behaviour of a column.
type Role int

const (
	// RoleNone is an ordinary column.
	RoleNone Role = iota
	// RolePrimary is a caller-assigned primary key.
	RolePrimary
	// RoleAutoPrimary is a backend-assigned auto-increment integer key.
	RoleAutoPrimary
	// RoleDefault is a column that accepts the ir.Default insert marker.
	RoleDefault
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleAutoPrimary:
		return "auto_primary"
	case RoleDefault:
		return "default"
	default:
		return "none"
	}
}

// IsPrimary reports whether the role designates the primary key.
func (r Role) IsPrimary() bool {
	return r == RolePrimary || r == RoleAutoPrimary
}

// Column describes one column. Build it with Required, Optional, Primary
// or AutoPrimary and refine it with the With* modifiers.
type Column struct {
	Name     string
	Type     ir.Type
	Nullable bool
	Role     Role
	Unique   bool

	// Default is the declared default for RoleDefault columns.
	// nil means the zero value of Type, or NULL when Nullable.
	Default ir.Value
}

// Required declares a NOT NULL column.
func Required(name string, t ir.Type) Column {
	return Column{Name: name, Type: t}
}

// Optional declares a nullable column.
func Optional(name string, t ir.Type) Column {
	return Column{Name: name, Type: t, Nullable: true}
}

// Primary declares a caller-assigned primary key.
func Primary(name string, t ir.Type) Column {
	return Column{Name: name, Type: t, Role: RolePrimary}
}

// AutoPrimary declares an auto-increment integer primary key.
func AutoPrimary(name string) Column {
	return Column{Name: name, Type: ir.TInt, Role: RoleAutoPrimary}
}

// WithDefault gives the column a declared default and lets inserts pass
// ir.Default{} for it. A nil value selects the type's zero (or NULL).
func (c Column) WithDefault(v ir.Value) Column {
	if c.Role == RoleNone {
		c.Role = RoleDefault
	}
	c.Default = v
	return c
}

// WithUnique adds a UNIQUE constraint.
func (c Column) WithUnique() Column {
	c.Unique = true
	return c
}

// DefaultValue returns the value substituted for an ir.Default marker.
func (c Column) DefaultValue() ir.Value {
	if c.Default != nil {
		return c.Default
	}
	if c.Nullable {
		return ir.Null{}
	}
	return ir.Zero(c.Type)
}

// AcceptsDefault reports whether inserts may pass ir.Default{} for c.
func (c Column) AcceptsDefault() bool {
	return c.Role == RoleDefault || c.Role == RoleAutoPrimary || c.Default != nil
}

// Table is an immutable, validated table definition.
type Table struct {
	name    string
	columns []Column
	index   map[string]int
	primary int
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns a copy of the ordered column list.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// Len returns the number of columns.
func (t *Table) Len() int { return len(t.columns) }

// ColumnAt returns the column at position i.
func (t *Table) ColumnAt(i int) Column { return t.columns[i] }

// Index returns the position of the named column, or -1.
// Lookup is exact; Define already guarantees folded names are distinct.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	i := t.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return t.columns[i], true
}

// PrimaryKey returns the position of the primary key column, or -1.
func (t *Table) PrimaryKey() int { return t.primary }

// AutoKey returns the position of the auto-increment key, or -1.
func (t *Table) AutoKey() int {
	if t.primary >= 0 && t.columns[t.primary].Role == RoleAutoPrimary {
		return t.primary
	}
	return -1
}

// Selector is a positional handle on a table column, returned by
// DefineWithSelectors for use with queryir's At.
type Selector struct {
	table string
	index int
	name  string
	typ   ir.Type
}

// Table returns the name of the table the selector belongs to.
func (s Selector) Table() string { return s.table }

// Index returns the column position.
func (s Selector) Index() int { return s.index }

// Name returns the column name.
func (s Selector) Name() string { return s.name }

// Type returns the column type.
func (s Selector) Type() ir.Type { return s.typ }

// Define validates and builds a table. All checks run here, before any
// backend interaction; the first violation is returned as *ValidationError.
func Define(name string, cols ...Column) (*Table, error) {
	if err := checkName(name, name, ""); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, newValidationError(ErrCodeNoColumns, name, "", "table has no columns")
	}

	fold := cases.Fold()
	tableKey := fold.String(name)
	seen := make(map[string]string, len(cols))
	t := &Table{
		name:    name,
		columns: make([]Column, len(cols)),
		index:   make(map[string]int, len(cols)),
		primary: -1,
	}

	for i, c := range cols {
		if err := checkName(name, c.Name, c.Name); err != nil {
			return nil, err
		}
		key := fold.String(c.Name)
		if prev, dup := seen[key]; dup {
			return nil, newValidationError(ErrCodeDuplicateColumn, name, c.Name,
				"column name duplicates %q", prev)
		}
		seen[key] = c.Name
		if key == tableKey {
			return nil, newValidationError(ErrCodeNameCollision, name, c.Name,
				"column name collides with table name")
		}

		if c.Role.IsPrimary() {
			if t.primary >= 0 {
				return nil, newValidationError(ErrCodeMultiplePrimary, name, c.Name,
					"table already has primary key %q", cols[t.primary].Name)
			}
			if c.Nullable {
				return nil, newValidationError(ErrCodeBadType, name, c.Name,
					"primary key cannot be nullable")
			}
			t.primary = i
		}
		if c.Role == RoleAutoPrimary && c.Type != ir.TInt {
			return nil, newValidationError(ErrCodeBadType, name, c.Name,
				"auto-increment primary key must be int, got %s", c.Type)
		}
		if c.Default != nil {
			if err := checkDefault(name, c); err != nil {
				return nil, err
			}
		}

		t.columns[i] = c
		t.index[c.Name] = i
	}
	return t, nil
}

// DefineWithSelectors is Define plus one Selector per column, in order.
func DefineWithSelectors(name string, cols ...Column) (*Table, []Selector, error) {
	t, err := Define(name, cols...)
	if err != nil {
		return nil, nil, err
	}
	sels := make([]Selector, len(t.columns))
	for i, c := range t.columns {
		sels[i] = Selector{table: t.name, index: i, name: c.Name, typ: c.Type}
	}
	return t, sels, nil
}

// MustDefine is like Define but panics on error.
// Use only in tests or for package-level table declarations.
func MustDefine(name string, cols ...Column) *Table {
	t, err := Define(name, cols...)
	if err != nil {
		panic(err)
	}
	return t
}

func checkName(table, name, column string) error {
	if name == "" {
		return newValidationError(ErrCodeEmptyName, table, column, "name is empty")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return newValidationError(ErrCodeNulInName, table, column, "name contains NUL byte")
	}
	return nil
}

func checkDefault(table string, c Column) error {
	switch {
	case ir.IsDefault(c.Default):
		return newValidationError(ErrCodeBadDefault, table, c.Name,
			"default marker cannot be a declared default")
	case ir.IsNull(c.Default) && !c.Nullable:
		return newValidationError(ErrCodeBadDefault, table, c.Name,
			"NULL default on NOT NULL column")
	case !ir.Fits(c.Default, c.Type):
		return newValidationError(ErrCodeBadDefault, table, c.Name,
			"default %s does not fit type %s", ir.Format(c.Default), c.Type)
	}
	return nil
}
