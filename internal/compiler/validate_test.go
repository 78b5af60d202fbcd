package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValid(t *testing.T) {
	v := compileString(t, `
		table: people: columns: [
			{name: "name", type: "text", role: "primary"},
			{name: "age", type: "int"},
			{name: "pet", type: "text", role: "optional"},
		]
		table: addresses: columns: [
			{name: "name", type: "text"},
			{name: "city", type: "text"},
		]
	`)
	assert.Empty(t, Validate(v))
}

func TestValidateNoTables(t *testing.T) {
	errs := Validate(compileString(t, `other: true`))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrNoTables, errs[0].Code)

	errs = Validate(compileString(t, `table: {}`))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrNoTables, errs[0].Code)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	v := compileString(t, `
		table: a: columns: [
			{name: "x", type: "uuid"},
			{name: "y", type: "int", role: "boss"},
			{name: "z", type: "int"},
		]
		table: b: {}
		table: c: columns: [
			{name: "p", type: "int", role: "primary"},
			{name: "q", type: "int", role: "primary"},
		]
	`)

	errs := Validate(v)
	require.Len(t, errs, 4)

	assert.Equal(t, ErrInvalidColumn, errs[0].Code)
	assert.Equal(t, "table.a.columns[0]", errs[0].Field)
	assert.Contains(t, errs[0].Message, "uuid")

	assert.Equal(t, ErrInvalidColumn, errs[1].Code)
	assert.Equal(t, "table.a.columns[1]", errs[1].Field)

	assert.Equal(t, ErrTableNoColumns, errs[2].Code)
	assert.Equal(t, "table.b.columns", errs[2].Field)

	assert.Equal(t, ErrSchemaRule, errs[3].Code)
	assert.Equal(t, "table.c.q", errs[3].Field)
	assert.Contains(t, errs[3].Message, "MULTIPLE_PRIMARY")
}

func TestValidateDuplicateTableNames(t *testing.T) {
	v := compileString(t, `
		table: Items: columns: [{name: "a", type: "int"}]
		table: items: columns: [{name: "a", type: "int"}]
	`)
	errs := Validate(v)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateTable, errs[0].Code)
	assert.Equal(t, "table.items", errs[0].Field)
}

func TestValidateReportsLines(t *testing.T) {
	src := "table: t: columns: [\n\t{name: \"a\", type: \"int\"},\n\t{name: \"b\", type: \"nope\"},\n]\n"
	v := cuecontext.New().CompileString(src, cue.Filename("t.cue"))
	require.NoError(t, v.Err())

	errs := Validate(v)
	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].Line)
	assert.Contains(t, errs[0].Error(), "line 3")
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "table.t", Message: "bad", Code: ErrSchemaRule}
	assert.Equal(t, "[E104] table.t: bad", e.Error())
}
