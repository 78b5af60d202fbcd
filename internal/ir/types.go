package ir

import (
	"fmt"
	"strings"
)

// Type is the semantic type of a column or expression.
type Type int

const (
	TInt Type = iota
	TText
	TFloat
	TBool
	TDateTime
	TDate
	TTime
	TBlob
)

var typeNames = [...]string{
	TInt:      "int",
	TText:     "text",
	TFloat:    "float",
	TBool:     "bool",
	TDateTime: "datetime",
	TDate:     "date",
	TTime:     "time",
	TBlob:     "blob",
}

// String returns the lower-case type name used in specs and CLI output.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// IsTemporal reports whether values of this type are carried as Time.
func (t Type) IsTemporal() bool {
	return t == TDateTime || t == TDate || t == TTime
}

// IsNumeric reports whether arithmetic and SUM/AVG apply.
func (t Type) IsNumeric() bool {
	return t == TInt || t == TFloat
}

// ParseType maps a type name (case-insensitive) to a Type.
// Accepts a few common aliases so CUE specs and CLI flags read naturally.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int", "integer", "int64":
		return TInt, nil
	case "text", "string":
		return TText, nil
	case "float", "double", "real", "float64":
		return TFloat, nil
	case "bool", "boolean":
		return TBool, nil
	case "datetime", "timestamp":
		return TDateTime, nil
	case "date":
		return TDate, nil
	case "time":
		return TTime, nil
	case "blob", "bytes":
		return TBlob, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", name)
	}
}

// Row is one result tuple. Positions match the producing query's output columns.
type Row []Value

// Clone returns a copy of the row that shares no backing array with r.
// Bytes values are copied too so callers cannot alias cached results.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for i, v := range r {
		if b, ok := v.(Bytes); ok {
			v = append(Bytes(nil), b...)
		}
		out[i] = v
	}
	return out
}

// CloneRows clones every row in rows.
func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
