package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jchia/selda/internal/ir"
)

// Dialect captures the SQL differences between supported backends.
type Dialect struct {
	// Name identifies the dialect in configuration ("sqlite", "postgres").
	Name string

	// MaxParams is the backend's bound-parameter limit per statement.
	MaxParams int

	// AutoKeyDefault is the VALUES entry that asks the backend for the
	// next auto-increment key.
	AutoKeyDefault string

	// NeedsResync reports whether explicit keys leave the key generator
	// behind and require ResyncSequence.
	NeedsResync bool

	numbered  bool
	types     map[ir.Type]string
	casts     map[ir.Type]string
	autoTypes string
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
var SQLite = &Dialect{
	Name:           "sqlite",
	MaxParams:      999,
	AutoKeyDefault: "NULL",
	types: map[ir.Type]string{
		ir.TInt:      "INTEGER",
		ir.TText:     "TEXT",
		ir.TFloat:    "REAL",
		ir.TBool:     "BOOLEAN",
		ir.TDateTime: "DATETIME",
		ir.TDate:     "DATE",
		ir.TTime:     "TIME",
		ir.TBlob:     "BLOB",
	},
	// Temporal values travel as text; a NUMERIC cast would mangle them.
	casts: map[ir.Type]string{
		ir.TInt:      "INTEGER",
		ir.TText:     "TEXT",
		ir.TFloat:    "REAL",
		ir.TBool:     "INTEGER",
		ir.TDateTime: "TEXT",
		ir.TDate:     "TEXT",
		ir.TTime:     "TEXT",
		ir.TBlob:     "BLOB",
	},
	autoTypes: "INTEGER PRIMARY KEY AUTOINCREMENT",
}

// Postgres is the dialect for github.com/lib/pq.
var Postgres = &Dialect{
	Name:           "postgres",
	MaxParams:      65535,
	AutoKeyDefault: "DEFAULT",
	NeedsResync:    true,
	numbered:       true,
	types: map[ir.Type]string{
		ir.TInt:      "BIGINT",
		ir.TText:     "TEXT",
		ir.TFloat:    "DOUBLE PRECISION",
		ir.TBool:     "BOOLEAN",
		ir.TDateTime: "TIMESTAMP",
		ir.TDate:     "DATE",
		ir.TTime:     "TIME",
		ir.TBlob:     "BYTEA",
	},
	autoTypes: "BIGSERIAL PRIMARY KEY",
}

func init() {
	Postgres.casts = Postgres.types
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// Placeholder returns the marker for the n-th (1-based) parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// TypeName returns the column type used in CREATE TABLE.
func (d *Dialect) TypeName(t ir.Type) string { return d.types[t] }

// CastName returns the type used to cast literal row values.
func (d *Dialect) CastName(t ir.Type) string { return d.casts[t] }

// QuoteIdent double-quotes an identifier, doubling embedded quotes.
// Names never contain NUL: schema and queryir reject them earlier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
