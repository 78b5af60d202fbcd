package schema

import "github.com/jchia/selda/internal/ir"

// CheckRow validates row against t and returns a copy with every value
// coerced to its column type. ir.Default{} is kept for columns that
// accept it; the compiler substitutes it later.
func (t *Table) CheckRow(row ir.Row) (ir.Row, error) {
	if len(row) != len(t.columns) {
		return nil, newValidationError(ErrCodeBadRow, t.name, "",
			"row has %d values, table has %d columns", len(row), len(t.columns))
	}

	out := make(ir.Row, len(row))
	for i, v := range row {
		c := t.columns[i]
		switch {
		case ir.IsDefault(v):
			if !c.AcceptsDefault() {
				return nil, newValidationError(ErrCodeBadRow, t.name, c.Name,
					"column has no default")
			}
			out[i] = ir.Default{}
			continue
		case ir.IsNull(v) && !c.Nullable:
			return nil, newValidationError(ErrCodeBadRow, t.name, c.Name,
				"NULL in NOT NULL column")
		}
		cv, err := ir.Coerce(v, c.Type)
		if err != nil {
			return nil, newValidationError(ErrCodeBadRow, t.name, c.Name, "%v", err)
		}
		out[i] = cv
	}
	return out, nil
}

// CheckRows is CheckRow over every row. The first failure is returned.
func (t *Table) CheckRows(rows []ir.Row) ([]ir.Row, error) {
	out := make([]ir.Row, len(rows))
	for i, row := range rows {
		checked, err := t.CheckRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = checked
	}
	return out, nil
}

// RowFromMap lays out values by column name in column order. A column
// left out becomes ir.Default{} when it accepts one and NULL when it is
// nullable; otherwise it is ir.Default{} and CheckRow rejects it.
func (t *Table) RowFromMap(values map[string]ir.Value) (ir.Row, error) {
	row := make(ir.Row, len(t.columns))
	for name, v := range values {
		i := t.Index(name)
		if i < 0 {
			return nil, newValidationError(ErrCodeBadRow, t.name, name, "no such column")
		}
		row[i] = v
	}
	for i, c := range t.columns {
		if row[i] != nil {
			continue
		}
		if c.Nullable && !c.AcceptsDefault() {
			row[i] = ir.Null{}
		} else {
			row[i] = ir.Default{}
		}
	}
	return row, nil
}
