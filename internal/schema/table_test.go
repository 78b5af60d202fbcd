package schema

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/ir"
)

func TestDefineValid(t *testing.T) {
	tbl, err := Define("people",
		AutoPrimary("id"),
		Required("name", ir.TText).WithUnique(),
		Optional("pet", ir.TText),
		Required("cash", ir.TFloat).WithDefault(ir.Float(10)),
	)
	require.NoError(t, err)

	assert.Equal(t, "people", tbl.Name())
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, 0, tbl.PrimaryKey())
	assert.Equal(t, 0, tbl.AutoKey())
	assert.Equal(t, 2, tbl.Index("pet"))
	assert.Equal(t, -1, tbl.Index("missing"))

	cash, ok := tbl.Column("cash")
	require.True(t, ok)
	assert.Equal(t, RoleDefault, cash.Role)
	assert.Equal(t, ir.Float(10), cash.DefaultValue())
}

func TestDefineRejects(t *testing.T) {
	tests := []struct {
		name  string
		table string
		cols  []Column
		code  ValidationErrorCode
	}{
		{"empty table name", "", []Column{Required("a", ir.TInt)}, ErrCodeEmptyName},
		{"nul in table name", "a\x00b", []Column{Required("a", ir.TInt)}, ErrCodeNulInName},
		{"empty column name", "t", []Column{Required("", ir.TInt)}, ErrCodeEmptyName},
		{"no columns", "t", nil, ErrCodeNoColumns},
		{"nul in column name", "t", []Column{Required("x\x00", ir.TInt)}, ErrCodeNulInName},
		{"duplicate column", "t", []Column{Required("a", ir.TInt), Optional("a", ir.TText)}, ErrCodeDuplicateColumn},
		{"duplicate after case folding", "t", []Column{Required("Name", ir.TText), Required("NAME", ir.TText)}, ErrCodeDuplicateColumn},
		{"column named like table", "t", []Column{Required("T", ir.TInt)}, ErrCodeNameCollision},
		{"two primaries", "t", []Column{Primary("a", ir.TInt), Primary("b", ir.TInt)}, ErrCodeMultiplePrimary},
		{"primary and auto primary", "t", []Column{Primary("a", ir.TText), AutoPrimary("b")}, ErrCodeMultiplePrimary},
		{"two auto primaries", "t", []Column{AutoPrimary("a"), AutoPrimary("b")}, ErrCodeMultiplePrimary},
		{"auto primary not int", "t", []Column{{Name: "a", Type: ir.TText, Role: RoleAutoPrimary}}, ErrCodeBadType},
		{"nullable primary", "t", []Column{{Name: "a", Type: ir.TInt, Role: RolePrimary, Nullable: true}}, ErrCodeBadType},
		{"default wrong type", "t", []Column{Required("a", ir.TInt).WithDefault(ir.Text("x"))}, ErrCodeBadDefault},
		{"null default not null", "t", []Column{Required("a", ir.TInt).WithDefault(ir.Null{})}, ErrCodeBadDefault},
		{"marker as default", "t", []Column{Required("a", ir.TInt).WithDefault(ir.Default{})}, ErrCodeBadDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Define(tt.table, tt.cols...)
			require.Error(t, err)
			assert.Nil(t, tbl)
			assert.True(t, IsValidationError(err))
			assert.True(t, HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestValidationErrorWrapped(t *testing.T) {
	_, err := Define("", Required("a", ir.TInt))
	wrapped := fmt.Errorf("create table: %w", err)

	assert.True(t, IsValidationError(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeEmptyName))
	assert.False(t, IsValidationError(fmt.Errorf("other")))
}

func TestDefaultValue(t *testing.T) {
	assert.Equal(t, ir.Int(0), Required("n", ir.TInt).WithDefault(nil).DefaultValue())
	assert.Equal(t, ir.Text(""), Required("s", ir.TText).WithDefault(nil).DefaultValue())
	assert.Equal(t, ir.Null{}, Optional("o", ir.TText).WithDefault(nil).DefaultValue())
	assert.True(t, Required("n", ir.TInt).WithDefault(nil).AcceptsDefault())
	assert.False(t, Required("n", ir.TInt).AcceptsDefault())
	assert.True(t, AutoPrimary("id").AcceptsDefault())
}

func TestDefineWithSelectors(t *testing.T) {
	tbl, sels, err := DefineWithSelectors("addresses",
		Required("name", ir.TText),
		Required("city", ir.TText),
	)
	require.NoError(t, err)
	require.Len(t, sels, 2)

	assert.Equal(t, "addresses", sels[1].Table())
	assert.Equal(t, 1, sels[1].Index())
	assert.Equal(t, "city", sels[1].Name())
	assert.Equal(t, ir.TText, sels[1].Type())
	assert.Equal(t, -1, tbl.PrimaryKey())
}

func TestTableColumnsIsCopy(t *testing.T) {
	tbl := MustDefine("t", Required("a", ir.TInt))
	cols := tbl.Columns()
	cols[0].Name = "changed"
	assert.Equal(t, "a", tbl.ColumnAt(0).Name)
}

func TestCheckRow(t *testing.T) {
	tbl := MustDefine("items",
		AutoPrimary("id"),
		Required("name", ir.TText),
		Optional("price", ir.TFloat),
		Required("qty", ir.TInt).WithDefault(ir.Int(1)),
	)

	got, err := tbl.CheckRow(ir.Row{ir.Default{}, ir.Text("a"), ir.Int(3), ir.Default{}})
	require.NoError(t, err)
	assert.Equal(t, ir.Row{ir.Default{}, ir.Text("a"), ir.Float(3), ir.Default{}}, got, "int widens to float")

	tests := []struct {
		name string
		row  ir.Row
	}{
		{"short", ir.Row{ir.Default{}, ir.Text("a")}},
		{"null in required", ir.Row{ir.Default{}, ir.Null{}, ir.Null{}, ir.Int(1)}},
		{"default without default", ir.Row{ir.Default{}, ir.Default{}, ir.Null{}, ir.Int(1)}},
		{"wrong type", ir.Row{ir.Int(1), ir.Bool(true), ir.Null{}, ir.Int(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tbl.CheckRow(tt.row)
			assert.True(t, HasCode(err, ErrCodeBadRow), "got %v", err)
		})
	}

	_, err = tbl.CheckRows([]ir.Row{
		{ir.Int(1), ir.Text("a"), ir.Null{}, ir.Int(1)},
		{ir.Int(2)},
	})
	assert.True(t, HasCode(err, ErrCodeBadRow))
}

func TestRowFromMap(t *testing.T) {
	tbl := MustDefine("items",
		AutoPrimary("id"),
		Required("label", ir.TText),
		Required("qty", ir.TInt).WithDefault(ir.Int(1)),
		Optional("note", ir.TText),
	)

	row, err := tbl.RowFromMap(map[string]ir.Value{"label": ir.Text("apple")})
	require.NoError(t, err)
	assert.Equal(t, ir.Row{ir.Default{}, ir.Text("apple"), ir.Default{}, ir.Null{}}, row)

	// a missing required column only fails the row check
	row, err = tbl.RowFromMap(map[string]ir.Value{"qty": ir.Int(3)})
	require.NoError(t, err)
	_, err = tbl.CheckRow(row)
	assert.True(t, HasCode(err, ErrCodeBadRow))

	_, err = tbl.RowFromMap(map[string]ir.Value{"colour": ir.Text("red")})
	assert.True(t, HasCode(err, ErrCodeBadRow))
}
