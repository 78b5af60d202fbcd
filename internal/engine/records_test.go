package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/testutil"
)

func TestRecordTupleRoundTrip(t *testing.T) {
	for _, p := range testutil.People() {
		t.Run(p.Name, func(t *testing.T) {
			got, err := engine.Decode[testutil.Person](p.ToTuple())
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	_, err := engine.Decode[testutil.Person](ir.Row{ir.Text("Link")})
	assert.Error(t, err)
	_, err = engine.Decode[testutil.Person](ir.Row{ir.Int(1), ir.Int(2), ir.Null{}})
	assert.Error(t, err)
}

func TestInsertAndQueryRecords(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	people := testutil.PeopleTable()
	require.NoError(t, e.CreateTable(ctx, people))

	n, err := engine.InsertRecords(ctx, e, people, testutil.People()...)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	got, err := engine.QueryRecords[testutil.Person](ctx, e, queryir.From(people))
	require.NoError(t, err)
	assert.ElementsMatch(t, testutil.People(), got)
}

func TestQueryRecords_InsideTransaction(t *testing.T) {
	e := testutil.NewEngine(t)
	people, _ := testutil.Seed(t, e)
	ctx := context.Background()
	zelda := testutil.Person{Name: "Zelda", Age: 17, Pet: testutil.Ptr("loftwing")}

	err := e.Transaction(ctx, func(tx *engine.Tx) error {
		if _, err := engine.InsertRecords(ctx, tx, people, zelda); err != nil {
			return err
		}
		p := queryir.From(people)
		got, err := engine.QueryRecords[testutil.Person](ctx, tx,
			p.Where(queryir.Eq(p.Col("name"), queryir.Text("Zelda"))))
		if err != nil {
			return err
		}
		assert.Equal(t, []testutil.Person{zelda}, got)
		return nil
	})
	require.NoError(t, err)
}
