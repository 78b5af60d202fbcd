package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
	"github.com/jchia/selda/internal/store"
	"github.com/jchia/selda/internal/testutil"
)

func itemsTable() *schema.Table {
	return schema.MustDefine("items",
		schema.AutoPrimary("id"),
		schema.Required("name", ir.TText).WithUnique(),
		schema.Required("qty", ir.TInt).WithDefault(ir.Int(1)),
		schema.Optional("note", ir.TText).WithDefault(nil),
	)
}

func tableExists(t *testing.T, e *engine.Engine, name string) bool {
	t.Helper()
	rows, err := e.Store().Query(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		[]ir.Type{ir.TInt}, name)
	require.NoError(t, err)
	return rows[0][0] == ir.Int(1)
}

func TestCreateAndDropTable(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	items := itemsTable()

	require.NoError(t, e.CreateTable(ctx, items))
	assert.True(t, tableExists(t, e, "items"))
	assert.Error(t, e.CreateTable(ctx, items), "table already exists")
	assert.NoError(t, e.TryCreateTable(ctx, items))

	require.NoError(t, e.DropTable(ctx, items))
	assert.False(t, tableExists(t, e, "items"))
	assert.Error(t, e.DropTable(ctx, items), "table does not exist")
	assert.NoError(t, e.TryDropTable(ctx, items))
}

func TestDefineRejectsBeforeAnyBackendCall(t *testing.T) {
	e := testutil.NewEngine(t)

	tests := []struct {
		name  string
		table string
		cols  []schema.Column
		code  schema.ValidationErrorCode
	}{
		{"empty table name", "", []schema.Column{schema.Required("a", ir.TInt)}, schema.ErrCodeEmptyName},
		{"empty column name", "bad", []schema.Column{schema.Required("", ir.TInt)}, schema.ErrCodeEmptyName},
		{"NUL in table name", "b\x00ad", []schema.Column{schema.Required("a", ir.TInt)}, schema.ErrCodeNulInName},
		{"NUL in column name", "bad", []schema.Column{schema.Required("a\x00", ir.TInt)}, schema.ErrCodeNulInName},
		{"two primary keys", "bad", []schema.Column{
			schema.Primary("a", ir.TInt), schema.Primary("b", ir.TInt),
		}, schema.ErrCodeMultiplePrimary},
		{"duplicate column", "bad", []schema.Column{
			schema.Required("a", ir.TInt), schema.Optional("a", ir.TText),
		}, schema.ErrCodeDuplicateColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := schema.Define(tt.table, tt.cols...)
			require.Error(t, err)
			assert.Nil(t, tbl)
			assert.True(t, schema.HasCode(err, tt.code), "got %v", err)
			assert.False(t, store.IsConstraintError(err))
			assert.False(t, tableExists(t, e, tt.table))
		})
	}
}

func TestInsert_DefaultsAndCount(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	items := itemsTable()
	require.NoError(t, e.CreateTable(ctx, items))

	n, err := e.Insert(ctx, items,
		ir.Row{ir.Default{}, ir.Text("bolt"), ir.Default{}, ir.Default{}},
		ir.Row{ir.Default{}, ir.Text("nut"), ir.Int(40), ir.Text("m6")},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	i := queryir.From(items)
	res, err := e.Query(ctx, i.OrderBy(i.Col("id"), queryir.Asc))
	require.NoError(t, err)
	assert.Equal(t, []ir.Row{
		{ir.Int(1), ir.Text("bolt"), ir.Int(1), ir.Null{}},
		{ir.Int(2), ir.Text("nut"), ir.Int(40), ir.Text("m6")},
	}, res.Rows)
}

func TestInsert_RejectsBadRowsBeforeBackend(t *testing.T) {
	e := testutil.NewEngine(t)
	people, _ := testutil.Seed(t, e)
	ctx := context.Background()

	tests := []struct {
		name string
		row  ir.Row
	}{
		{"arity", ir.Row{ir.Text("Zelda")}},
		{"null in required column", ir.Row{ir.Text("Zelda"), ir.Null{}, ir.Null{}}},
		{"wrong type", ir.Row{ir.Text("Zelda"), ir.Text("old"), ir.Null{}}},
		{"default without declared default", ir.Row{ir.Text("Zelda"), ir.Default{}, ir.Null{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Insert(ctx, people, ir.Row{ir.Text("Ganon"), ir.Int(1), ir.Null{}}, tt.row)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeBadRow), "got %v", err)
		})
	}
	assert.Equal(t, int64(4), countRows(t, e, people), "a rejected batch inserts nothing")
}

func TestInsert_ChunksLargeBatches(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	wide := schema.MustDefine("wide",
		schema.Required("a", ir.TInt),
		schema.Required("b", ir.TInt),
		schema.Required("c", ir.TInt),
	)
	require.NoError(t, e.CreateTable(ctx, wide))

	rows := make([]ir.Row, 1000)
	for i := range rows {
		rows[i] = ir.Row{ir.Int(int64(i)), ir.Int(int64(i * 2)), ir.Int(int64(i * 3))}
	}
	n, err := e.Insert(ctx, wide, rows...)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
	assert.Equal(t, int64(1000), countRows(t, e, wide))
}

func TestInsertReturningKey_Increases(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	items := itemsTable()
	require.NoError(t, e.CreateTable(ctx, items))

	row := func(name string) ir.Row {
		return ir.Row{ir.Default{}, ir.Text(name), ir.Default{}, ir.Default{}}
	}

	var last int64
	for _, name := range []string{"a", "b", "c"} {
		key, err := e.InsertReturningKey(ctx, items, row(name))
		require.NoError(t, err)
		assert.Greater(t, key, last)
		last = key
	}

	explicit, err := e.InsertReturningKey(ctx, items,
		ir.Row{ir.Int(100), ir.Text("explicit"), ir.Default{}, ir.Default{}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), explicit)

	next, err := e.InsertReturningKey(ctx, items, row("after"))
	require.NoError(t, err)
	assert.Greater(t, next, int64(100))

	_, err = e.Insert(ctx, items, ir.Row{ir.Int(500), ir.Text("bulk"), ir.Default{}, ir.Default{}})
	require.NoError(t, err)
	next, err = e.InsertReturningKey(ctx, items, row("after bulk"))
	require.NoError(t, err)
	assert.Greater(t, next, int64(500))
}

func TestInsertReturningKey_NoAutoKey(t *testing.T) {
	e := testutil.NewEngine(t)
	people, _ := testutil.Seed(t, e)

	_, err := e.InsertReturningKey(context.Background(), people,
		ir.Row{ir.Text("Zelda"), ir.Int(17), ir.Null{}})
	assert.ErrorIs(t, err, engine.ErrNoAutoKey)
	assert.Equal(t, int64(4), countRows(t, e, people))
}

func TestInsert_DuplicateKeyIsConstraintError(t *testing.T) {
	e := testutil.NewEngine(t)
	people, _ := testutil.Seed(t, e)
	ctx := context.Background()

	_, err := e.Insert(ctx, people, ir.Row{ir.Text("Link"), ir.Int(1), ir.Null{}})
	require.Error(t, err)
	assert.True(t, store.IsConstraintError(err))
	assert.True(t, store.HasKind(err, store.ConstraintPrimaryKey), "got %v", err)
	assert.False(t, schema.IsValidationError(err))

	p := queryir.From(people)
	res, err := e.Query(ctx, p.Where(queryir.Eq(p.Col("name"), queryir.Text("Link"))))
	require.NoError(t, err)
	assert.Equal(t, []ir.Row{{ir.Text("Link"), ir.Int(125), ir.Text("horse")}}, res.Rows)
}

func TestUpdate(t *testing.T) {
	e := testutil.NewEngine(t)
	people, _ := testutil.Seed(t, e)
	ctx := context.Background()

	n, err := e.Update(ctx, people,
		func(r *queryir.Target) queryir.Expr { return queryir.IsNull(r.Col("pet")) },
		func(r *queryir.Target) []queryir.Assignment {
			return []queryir.Assignment{
				queryir.Set("pet", queryir.Text("cat")),
				queryir.Set("age", queryir.Add(r.Col("age"), queryir.Int(1))),
			}
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	records, err := engine.QueryRecords[testutil.Person](ctx, e, func() *queryir.Query {
		p := queryir.From(people)
		return p.Where(queryir.Eq(p.Col("pet"), queryir.Text("cat"))).OrderBy(p.Col("name"), queryir.Asc)
	}())
	require.NoError(t, err)
	assert.Equal(t, []testutil.Person{
		{Name: "Miyu", Age: 11, Pet: testutil.Ptr("cat")},
		{Name: "Velvet", Age: 20, Pet: testutil.Ptr("cat")},
	}, records)

	n, err = e.Update(ctx, people,
		func(r *queryir.Target) queryir.Expr { return queryir.Eq(r.Col("name"), queryir.Text("nobody")) },
		func(r *queryir.Target) []queryir.Assignment {
			return []queryir.Assignment{queryir.Set("age", queryir.Int(0))}
		})
	require.NoError(t, err, "updating zero rows is not an error")
	assert.Zero(t, n)
}

func TestUpdate_UniqueViolation(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	items := itemsTable()
	require.NoError(t, e.CreateTable(ctx, items))
	_, err := e.Insert(ctx, items,
		ir.Row{ir.Default{}, ir.Text("a"), ir.Default{}, ir.Default{}},
		ir.Row{ir.Default{}, ir.Text("b"), ir.Default{}, ir.Default{}},
	)
	require.NoError(t, err)

	_, err = e.Update(ctx, items,
		func(r *queryir.Target) queryir.Expr { return queryir.Eq(r.Col("name"), queryir.Text("b")) },
		func(r *queryir.Target) []queryir.Assignment {
			return []queryir.Assignment{queryir.Set("name", queryir.Text("a"))}
		})
	require.Error(t, err)
	assert.True(t, store.HasKind(err, store.ConstraintUnique), "got %v", err)
	assert.False(t, schema.IsValidationError(err))

	i := queryir.From(items)
	res, err := e.Query(ctx, i.OrderBy(i.Col("id"), queryir.Asc).Select(queryir.As("name", i.Col("name"))))
	require.NoError(t, err)
	assert.Equal(t, []ir.Row{{ir.Text("a")}, {ir.Text("b")}}, res.Rows)
}

func TestDelete(t *testing.T) {
	e := testutil.NewEngine(t)
	people, _ := testutil.Seed(t, e)
	ctx := context.Background()

	n, err := e.Delete(ctx, people, func(r *queryir.Target) queryir.Expr {
		return queryir.Lt(r.Col("age"), queryir.Int(20))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), countRows(t, e, people))

	n, err = e.Delete(ctx, people, func(*queryir.Target) queryir.Expr { return queryir.Bool(true) })
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, countRows(t, e, people))
}

func TestMutations_RejectForeignPredicates(t *testing.T) {
	e := testutil.NewEngine(t)
	people, addresses := testutil.Seed(t, e)
	other := queryir.From(addresses)

	_, err := e.Delete(context.Background(), people, func(*queryir.Target) queryir.Expr {
		return queryir.Eq(other.Col("city"), queryir.Text("Tokyo"))
	})
	require.Error(t, err)
	assert.Equal(t, int64(4), countRows(t, e, people))
}

func TestMutations_QuoteAwkwardIdentifiers(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	const name, label = "sel\"ect\n", "a\"b\tc"
	odd := schema.MustDefine(name,
		schema.AutoPrimary("order"),
		schema.Required(label, ir.TText),
		schema.Optional("group", ir.TInt),
	)

	require.NoError(t, e.CreateTable(ctx, odd))
	assert.True(t, tableExists(t, e, name))

	k1, err := e.InsertReturningKey(ctx, odd, ir.Row{ir.Default{}, ir.Text("x"), ir.Int(1)})
	require.NoError(t, err)
	k2, err := e.InsertReturningKey(ctx, odd, ir.Row{ir.Default{}, ir.Text("y"), ir.Null{}})
	require.NoError(t, err)
	assert.Greater(t, k2, k1)

	q := queryir.From(odd)
	res, err := e.Query(ctx, q.Where(queryir.IsNotNull(q.Col("group"))).OrderBy(q.Col("order"), queryir.Asc))
	require.NoError(t, err)
	assert.Equal(t, []string{"order", label, "group"}, columnNames(res))
	assert.Equal(t, []ir.Row{{ir.Int(k1), ir.Text("x"), ir.Int(1)}}, res.Rows)

	n, err := e.Update(ctx, odd,
		func(r *queryir.Target) queryir.Expr { return queryir.Eq(r.Col(label), queryir.Text("y")) },
		func(r *queryir.Target) []queryir.Assignment {
			return []queryir.Assignment{queryir.Set("group", queryir.Int(2))}
		})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.Delete(ctx, odd, func(r *queryir.Target) queryir.Expr {
		return queryir.Eq(r.Col("group"), queryir.Int(1))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err = e.Query(ctx, queryir.From(odd))
	require.NoError(t, err)
	assert.Equal(t, []ir.Row{{ir.Int(k2), ir.Text("y"), ir.Int(2)}}, res.Rows)

	require.NoError(t, e.DropTable(ctx, odd))
	assert.False(t, tableExists(t, e, name))
}
