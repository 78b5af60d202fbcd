package querysql

import (
	"fmt"
	"strings"

	"github.com/jchia/selda/internal/schema"
)

// Statement is a compiled DDL or DML statement.
type Statement struct {
	SQL  string
	Args []any

	// Tables lists the tables the statement writes.
	Tables []string
}

// CreateTable returns the CREATE TABLE statement for t.
// Declared defaults are not part of the DDL: the engine substitutes them
// before a row reaches the backend, so the table stays portable.
func (c *SQLCompiler) CreateTable(t *schema.Table, ifNotExists bool) (Statement, error) {
	if t == nil {
		return Statement{}, fmt.Errorf("cannot create nil table")
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(QuoteIdent(t.Name()))
	sb.WriteString(" (")
	for i, col := range t.Columns() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(col.Name))
		sb.WriteByte(' ')
		if col.Role == schema.RoleAutoPrimary {
			sb.WriteString(c.dialect.autoTypes)
			continue
		}
		typ := c.dialect.TypeName(col.Type)
		if typ == "" {
			return Statement{}, fmt.Errorf("column %q: type %s has no %s mapping", col.Name, col.Type, c.dialect.Name)
		}
		sb.WriteString(typ)
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if col.Role == schema.RolePrimary {
			sb.WriteString(" PRIMARY KEY")
		}
		if col.Unique {
			sb.WriteString(" UNIQUE")
		}
	}
	sb.WriteByte(')')

	return Statement{SQL: sb.String(), Tables: []string{t.Name()}}, nil
}

// DropTable returns the DROP TABLE statement for t.
func (c *SQLCompiler) DropTable(t *schema.Table, ifExists bool) (Statement, error) {
	if t == nil {
		return Statement{}, fmt.Errorf("cannot drop nil table")
	}
	sql := "DROP TABLE "
	if ifExists {
		sql += "IF EXISTS "
	}
	return Statement{SQL: sql + QuoteIdent(t.Name()), Tables: []string{t.Name()}}, nil
}
