package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/schema"
)

func peopleTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.Define("people",
		schema.Required("name", ir.TText),
		schema.Required("age", ir.TInt),
		schema.Optional("pet", ir.TText),
	)
	require.NoError(t, err)
	return tbl
}

func addressesTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.Define("addresses",
		schema.Required("name", ir.TText),
		schema.Required("city", ir.TText),
	)
	require.NoError(t, err)
	return tbl
}

func TestFromOutputsEveryColumn(t *testing.T) {
	q := From(peopleTable(t))
	require.NoError(t, q.Err())

	cols := q.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, OutputColumn{Name: "name", Type: ir.TText}, cols[0])
	assert.Equal(t, OutputColumn{Name: "pet", Type: ir.TText, Nullable: true}, cols[2])
	assert.Equal(t, []string{"people"}, q.Tables())
}

func TestBuildersDoNotModifyReceiver(t *testing.T) {
	q := From(peopleTable(t))
	filtered := q.Where(Gt(q.Col("age"), Int(18)))
	limited := filtered.Limit(0, 1)
	projected := filtered.Select(As("n", q.Col("name")))

	require.NoError(t, limited.Err())
	require.NoError(t, projected.Err())
	assert.Empty(t, q.Filters())
	assert.Len(t, filtered.Filters(), 1)
	_, hasLimit := filtered.LimitClause()
	assert.False(t, hasLimit)
	assert.Len(t, filtered.Outputs(), 3)
}

func TestWhereOutOfScopeIsConstructionError(t *testing.T) {
	people := From(peopleTable(t))
	addresses := From(addressesTable(t))

	q := people.Where(Eq(addresses.Col("city"), Text("Tokyo")))
	require.Error(t, q.Err())
	assert.True(t, HasCode(q.Err(), ErrCodeOutOfScope))

	// sticky: later builders keep the first error
	later := q.Select(As("x", people.Col("name"))).Limit(0, 5)
	assert.Equal(t, q.Err(), later.Err())
}

func TestColUnknownAndAmbiguous(t *testing.T) {
	people := From(peopleTable(t))
	addresses := From(addressesTable(t))

	bad := people.Where(Eq(people.Col("nope"), Text("x")))
	assert.True(t, HasCode(bad.Err(), ErrCodeUnknownColumn))

	both := Product(people, addresses)
	require.NoError(t, both.Err())
	_, err := both.Lookup("name")
	assert.True(t, HasCode(err, ErrCodeAmbiguousColumn))

	city, err := both.Lookup("city")
	require.NoError(t, err)
	assert.Same(t, addresses.Col("city"), city)
}

func TestAtDisambiguatesBySelector(t *testing.T) {
	tbl, sels, err := schema.DefineWithSelectors("addresses",
		schema.Required("name", ir.TText),
		schema.Required("city", ir.TText),
	)
	require.NoError(t, err)

	q := Product(From(peopleTable(t)), From(tbl))
	e := q.At(sels[0])
	_, isBad := e.(*Invalid)
	assert.False(t, isBad)
	assert.Equal(t, "name", e.(*ColumnRef).Name)
	assert.Equal(t, "addresses", e.(*ColumnRef).Source.Table.Name())

	// a self product makes the selector ambiguous
	self := Product(From(tbl), From(tbl))
	_, isBad = self.At(sels[1]).(*Invalid)
	assert.True(t, isBad)
}

func TestProductRejectsReusedSource(t *testing.T) {
	people := From(peopleTable(t))
	q := Product(people, people.Where(IsNull(people.Col("pet"))))
	assert.True(t, HasCode(q.Err(), ErrCodeReusedSource))

	l := people.LeftJoin(people, Bool(true))
	assert.True(t, HasCode(l.Err(), ErrCodeReusedSource))
}

func TestInnerJoinAddsFilter(t *testing.T) {
	people := From(peopleTable(t))
	addresses := From(addressesTable(t))

	q := InnerJoin(people, addresses, Eq(people.Col("name"), addresses.Col("name")))
	require.NoError(t, q.Err())
	assert.Len(t, q.Sources(), 2)
	assert.Len(t, q.Filters(), 1)
	assert.Len(t, q.Outputs(), 5)
	assert.Equal(t, []string{"addresses", "people"}, q.Tables())
}

func TestLeftJoinMakesInnerOutputsNullable(t *testing.T) {
	people := From(peopleTable(t))
	addresses := From(addressesTable(t))

	q := people.LeftJoin(addresses, Eq(people.Col("name"), addresses.Col("name")))
	require.NoError(t, q.Err())

	cols := q.Columns()
	require.Len(t, cols, 5)
	assert.False(t, cols[0].Nullable, "outer columns keep their nullability")
	assert.True(t, cols[3].Nullable)
	assert.True(t, cols[4].Nullable)

	// nullability follows the expression through later projections
	sel := q.Select(As("city", addresses.Col("city")), As("known", IsNotNull(addresses.Col("city"))))
	require.NoError(t, sel.Err())
	assert.True(t, sel.Columns()[0].Nullable)
	assert.False(t, sel.Columns()[1].Nullable)
}

func TestLeftJoinOnMayOnlyUseInnerOutputs(t *testing.T) {
	people := From(peopleTable(t))
	addresses := From(addressesTable(t))
	cities := addresses.Select(As("city", addresses.Col("city")))

	q := people.LeftJoin(cities, Eq(people.Col("name"), addresses.Col("name")))
	assert.True(t, HasCode(q.Err(), ErrCodeOutOfScope))
}

func TestAggregateClosesLevel(t *testing.T) {
	people := From(peopleTable(t))
	g := people.Aggregate(
		[]Named{As("pet", people.Col("pet"))},
		As("n", Count(people.Col("name"))),
	)
	require.NoError(t, g.Err())
	assert.True(t, g.Grouped())
	assert.Equal(t, 1, g.GroupKeys())

	// a filter on the aggregate nests it
	f := g.Where(Gt(g.Col("n"), Int(1)))
	require.NoError(t, f.Err())
	assert.False(t, f.Grouped())
	require.Len(t, f.Sources(), 1)
	assert.Equal(t, SourceQuery, f.Sources()[0].Kind)
	assert.Same(t, g, f.Sources()[0].Query)

	cols := f.Columns()
	assert.Equal(t, OutputColumn{Name: "n", Type: ir.TInt}, cols[1])
}

func TestAggregateRejectsBareColumn(t *testing.T) {
	people := From(peopleTable(t))
	q := people.Aggregate(nil, As("name", people.Col("name")))
	assert.True(t, HasCode(q.Err(), ErrCodeMisplacedAggregate))

	// a group key may appear outside the aggregate
	ok := people.Aggregate(
		[]Named{As("age", people.Col("age"))},
		As("age_plus", Add(people.Col("age"), Count(people.Col("pet")))),
	)
	assert.NoError(t, ok.Err())
}

func TestAggregateOutsideAggregateRejected(t *testing.T) {
	people := From(peopleTable(t))
	q := people.Where(Gt(Count(people.Col("name")), Int(0)))
	assert.True(t, HasCode(q.Err(), ErrCodeMisplacedAggregate))

	nested := Sum(Count(people.Col("age")))
	assert.True(t, HasCode(nested.(*Invalid).Err, ErrCodeMisplacedAggregate))
}

func TestEmptyGuardPolicy(t *testing.T) {
	cols := []schema.Column{schema.Required("x", ir.TInt)}
	empty := Values(cols, nil)
	require.NoError(t, empty.Err())

	noRows := empty.Aggregate(nil, As("n", CountRows()))
	assert.True(t, noRows.EmptyGuard())

	oneRow := empty.AggregateWith(EmptyAlwaysOneRow, nil, As("n", CountRows()))
	assert.False(t, oneRow.EmptyGuard())

	keyed := empty.Aggregate([]Named{As("x", empty.Col("x"))}, As("n", CountRows()))
	assert.False(t, keyed.EmptyGuard(), "grouped by keys already yields no rows")

	nonEmpty := Values(cols, []ir.Row{{ir.Int(1)}})
	assert.False(t, nonEmpty.Aggregate(nil, As("n", CountRows())).EmptyGuard())

	table := From(peopleTable(t))
	assert.False(t, table.Aggregate(nil, As("n", CountRows())).EmptyGuard())
}

func TestValuesValidation(t *testing.T) {
	cols := []schema.Column{schema.Required("a", ir.TInt), schema.Optional("b", ir.TText)}

	tests := []struct {
		name string
		rows []ir.Row
		code ScopeErrorCode
	}{
		{"short row", []ir.Row{{ir.Int(1)}}, ErrCodeBadValues},
		{"null in required", []ir.Row{{ir.Null{}, ir.Text("x")}}, ErrCodeBadValues},
		{"wrong type", []ir.Row{{ir.Bool(true), ir.Text("x")}}, ErrCodeBadValues},
		{"default marker", []ir.Row{{ir.Default{}, ir.Null{}}}, ErrCodeBadValues},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Values(cols, tt.rows)
			assert.True(t, HasCode(q.Err(), tt.code), "got %v", q.Err())
		})
	}

	ok := Values(cols, []ir.Row{{ir.Int(1), ir.Null{}}})
	require.NoError(t, ok.Err())
	assert.Empty(t, ok.Tables())
}

func TestLimitAndDistinctNesting(t *testing.T) {
	people := From(peopleTable(t))

	ordered := people.OrderBy(people.Col("age"), Desc).Limit(1, 2)
	require.NoError(t, ordered.Err())
	assert.Len(t, ordered.Orders(), 1, "order and limit share a level")
	lim, ok := ordered.LimitClause()
	require.True(t, ok)
	assert.Equal(t, LimitClause{Offset: 1, Count: 2}, lim)

	twice := ordered.Limit(0, 1)
	assert.Equal(t, SourceQuery, twice.Sources()[0].Kind)

	d := people.Select(As("pet", people.Col("pet"))).Distinct()
	assert.True(t, d.IsDistinct())
	assert.Same(t, d, d.Distinct())

	neg := people.Limit(-1, 1)
	assert.True(t, HasCode(neg.Err(), ErrCodeBadValues))
}

func TestOrderByLaterTakesPrecedence(t *testing.T) {
	people := From(peopleTable(t))
	q := people.OrderBy(people.Col("name"), Asc).OrderBy(people.Col("age"), Desc)
	orders := q.Orders()
	require.Len(t, orders, 2)
	assert.Same(t, people.Col("age"), orders[0].Expr)
	assert.Equal(t, Desc, orders[0].Dir)
}

func TestSelectRejectsBadNames(t *testing.T) {
	people := From(peopleTable(t))
	assert.True(t, HasCode(people.Select(As("", people.Col("name"))).Err(), ErrCodeBadName))
	assert.True(t, HasCode(people.Select(As("a\x00", people.Col("name"))).Err(), ErrCodeBadName))
	assert.True(t, HasCode(people.Select().Err(), ErrCodeEmptyProjection))
}

func TestTargetCheck(t *testing.T) {
	tbl := peopleTable(t)
	target := NewTarget(tbl)
	assert.Equal(t, "people", target.Table().Name())

	require.NoError(t, target.Check("Update", Eq(target.Col("name"), Text("Link"))))

	other := From(tbl)
	err := target.Check("Update", Eq(other.Col("name"), Text("Link")))
	assert.True(t, HasCode(err, ErrCodeOutOfScope))
}
