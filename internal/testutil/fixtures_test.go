package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/ir"
)

func TestPersonTuple(t *testing.T) {
	for _, p := range People() {
		var got Person
		require.NoError(t, got.FromTuple(p.ToTuple()))
		assert.Equal(t, p, got)
	}

	var p Person
	assert.Error(t, p.FromTuple(ir.Row{ir.Text("x"), ir.Int(1), ir.Int(2)}))
}

func TestFixturesAreValid(t *testing.T) {
	people := PeopleTable()
	for _, p := range People() {
		_, err := people.CheckRow(p.ToTuple())
		assert.NoError(t, err)
	}
	addresses := AddressesTable()
	_, err := addresses.CheckRows(Addresses())
	assert.NoError(t, err)
}
