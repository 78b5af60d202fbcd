// Package testutil holds fixtures shared by package tests: the people
// and addresses tables, a record type with a tuple codec, engines over
// throwaway SQLite databases and a log recorder.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/schema"
	"github.com/jchia/selda/internal/store"
)

// PeopleTable is people(name text primary key, age int, pet text null).
func PeopleTable() *schema.Table {
	return schema.MustDefine("people",
		schema.Primary("name", ir.TText),
		schema.Required("age", ir.TInt),
		schema.Optional("pet", ir.TText),
	)
}

// AddressesTable is addresses(name text, city text).
func AddressesTable() *schema.Table {
	return schema.MustDefine("addresses",
		schema.Required("name", ir.TText),
		schema.Required("city", ir.TText),
	)
}

// Person is a people row.
type Person struct {
	Name string
	Age  int64
	Pet  *string
}

// ToTuple implements engine.Tuple.
func (p Person) ToTuple() ir.Row {
	pet := ir.Value(ir.Null{})
	if p.Pet != nil {
		pet = ir.Text(*p.Pet)
	}
	return ir.Row{ir.Text(p.Name), ir.Int(p.Age), pet}
}

// FromTuple implements the decoding half of the record codec.
func (p *Person) FromTuple(row ir.Row) error {
	if len(row) != 3 {
		return fmt.Errorf("person: %d values, want 3", len(row))
	}
	name, ok := row[0].(ir.Text)
	if !ok {
		return fmt.Errorf("person: name is %s", ir.Format(row[0]))
	}
	age, ok := row[1].(ir.Int)
	if !ok {
		return fmt.Errorf("person: age is %s", ir.Format(row[1]))
	}
	p.Name, p.Age, p.Pet = string(name), int64(age), nil
	switch v := row[2].(type) {
	case ir.Null:
	case ir.Text:
		s := string(v)
		p.Pet = &s
	default:
		return fmt.Errorf("person: pet is %s", ir.Format(row[2]))
	}
	return nil
}

// Ptr returns a pointer to s.
func Ptr(s string) *string { return &s }

// People is the canonical people fixture: two owners and two without a pet.
func People() []Person {
	return []Person{
		{Name: "Link", Age: 125, Pet: Ptr("horse")},
		{Name: "Velvet", Age: 19},
		{Name: "Kobayashi", Age: 23, Pet: Ptr("dragon")},
		{Name: "Miyu", Age: 10},
	}
}

// Addresses is the canonical addresses fixture.
func Addresses() []ir.Row {
	return []ir.Row{
		{ir.Text("Link"), ir.Text("Kakariko")},
		{ir.Text("Kobayashi"), ir.Text("Tokyo")},
		{ir.Text("Miyu"), ir.Text("Fuyukishi")},
	}
}

// NewEngine opens an engine over a fresh SQLite file in t.TempDir().
// A file database lets concurrent readers run beside an open write
// transaction. The engine is closed on test cleanup.
func NewEngine(t *testing.T, opts ...engine.EngineOption) *engine.Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "selda.db"), store.Options{})
	require.NoError(t, err)
	opts = append([]engine.EngineOption{
		engine.WithTokenGenerator(engine.NewSequenceGenerator("tx")),
		engine.WithLogger(DiscardLogger()),
	}, opts...)
	e, err := engine.New(s, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// Seed creates people and addresses and fills them with the fixtures.
func Seed(t *testing.T, e *engine.Engine) (people, addresses *schema.Table) {
	t.Helper()
	ctx := context.Background()
	people, addresses = PeopleTable(), AddressesTable()
	require.NoError(t, e.CreateTable(ctx, people))
	require.NoError(t, e.CreateTable(ctx, addresses))
	_, err := engine.InsertRecords(ctx, e, people, People()...)
	require.NoError(t, err)
	_, err = e.Insert(ctx, addresses, Addresses()...)
	require.NoError(t, err)
	return people, addresses
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// LogBuffer collects text log output for assertions.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewTestLogger returns a debug-level text logger writing to a LogBuffer.
func NewTestLogger() (*slog.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
