package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a sealed interface representing SQL literal values.
// Only the types in this file implement it.
type Value interface {
	sqlValue() // Sealed - only these types implement it
}

// Null represents SQL NULL.
// Using an explicit type ensures every Value satisfies the sealed interface.
type Null struct{}

func (Null) sqlValue() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) sqlValue() {}

// Text is a string value.
type Text string

func (Text) sqlValue() {}

// Float is a double precision value.
type Float float64

func (Float) sqlValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) sqlValue() {}

// Time carries datetime, date and time-of-day values.
type Time time.Time

func (Time) sqlValue() {}

// Bytes is a blob value.
type Bytes []byte

func (Bytes) sqlValue() {}

// Default marks an insert position that takes the column's default.
// On an auto-increment primary key the backend assigns the next key;
// elsewhere the column's declared default is substituted.
// Default is never valid inside a query.
type Default struct{}

func (Default) sqlValue() {}

// NewTime wraps a time.Time, normalized to UTC.
func NewTime(t time.Time) Time {
	return Time(t.UTC())
}

// IsNull reports whether v is Null (or a nil interface).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsDefault reports whether v is the Default marker.
func IsDefault(v Value) bool {
	_, ok := v.(Default)
	return ok
}

// TypeOf returns the natural type of a non-null value.
// Returns false for Null and Default.
func TypeOf(v Value) (Type, bool) {
	switch v.(type) {
	case Int:
		return TInt, true
	case Text:
		return TText, true
	case Float:
		return TFloat, true
	case Bool:
		return TBool, true
	case Time:
		return TDateTime, true
	case Bytes:
		return TBlob, true
	default:
		return 0, false
	}
}

// Fits reports whether v may be stored in a column of type t.
// Null fits every type (nullability is checked by the schema layer);
// Int fits Float columns; Time fits every temporal type.
func Fits(v Value, t Type) bool {
	if IsNull(v) {
		return true
	}
	switch v.(type) {
	case Int:
		return t == TInt || t == TFloat
	case Float:
		return t == TFloat
	case Text:
		return t == TText
	case Bool:
		return t == TBool
	case Time:
		return t.IsTemporal()
	case Bytes:
		return t == TBlob
	default:
		return false
	}
}

// Zero returns the zero value of t: 0, empty text, false, the zero time
// or an empty blob.
func Zero(t Type) Value {
	switch t {
	case TInt:
		return Int(0)
	case TText:
		return Text("")
	case TFloat:
		return Float(0)
	case TBool:
		return Bool(false)
	case TDateTime, TDate, TTime:
		return Time(time.Time{})
	case TBlob:
		return Bytes{}
	default:
		return Null{}
	}
}

// ToDriver converts a Value to the native Go type handed to database/sql.
// Default has no driver representation and returns an error.
func ToDriver(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case Int:
		return int64(val), nil
	case Text:
		return string(val), nil
	case Float:
		return float64(val), nil
	case Bool:
		return bool(val), nil
	case Time:
		// Bound in UTC so equal instants bind equal text.
		return time.Time(val).UTC(), nil
	case Bytes:
		return []byte(val), nil
	case Default:
		return nil, fmt.Errorf("default marker cannot be used as SQL parameter")
	default:
		return nil, fmt.Errorf("unsupported Value type for SQL parameter: %T", v)
	}
}

// FromGo converts a native Go value to a Value.
// Used by decoders of untyped input (YAML fixtures, CLI literals).
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(int64(val)), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(val), nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case time.Time:
		return NewTime(val), nil
	case []byte:
		return Bytes(append([]byte(nil), val...)), nil
	default:
		return nil, fmt.Errorf("unsupported Go type: %T", v)
	}
}

// Coerce converts v into the representation expected by a column of type t.
// Int widens to Float; Text is parsed for temporal, numeric and bool types.
// Null passes through.
func Coerce(v Value, t Type) (Value, error) {
	if IsNull(v) {
		return Null{}, nil
	}
	if Fits(v, t) {
		switch val := v.(type) {
		case Int:
			if t == TFloat {
				return Float(float64(val)), nil
			}
		case Time:
			return NewTime(time.Time(val)), nil
		}
		return v, nil
	}
	if s, ok := v.(Text); ok {
		return FromDriver(string(s), t)
	}
	return nil, fmt.Errorf("value %s does not fit column type %s", Format(v), t)
}

// timeLayouts are the text layouts SQLite drivers produce for temporal columns.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"15:04:05.999999999",
	"15:04:05",
	time.RFC3339Nano,
}

// FromDriver converts a value scanned from database/sql into a Value of type t.
// SQLite returns loosely typed values (booleans as integers, aggregates
// without declared types, timestamps as text), so conversion is lenient
// within the target type.
func FromDriver(src any, t Type) (Value, error) {
	if src == nil {
		return Null{}, nil
	}
	switch t {
	case TInt:
		switch v := src.(type) {
		case int64:
			return Int(v), nil
		case float64:
			return Int(int64(v)), nil
		case bool:
			if v {
				return Int(1), nil
			}
			return Int(0), nil
		case []byte:
			return parseInt(string(v))
		case string:
			return parseInt(v)
		}
	case TFloat:
		switch v := src.(type) {
		case float64:
			return Float(v), nil
		case int64:
			return Float(float64(v)), nil
		case []byte:
			return parseFloat(string(v))
		case string:
			return parseFloat(v)
		}
	case TText:
		switch v := src.(type) {
		case string:
			return Text(v), nil
		case []byte:
			return Text(string(v)), nil
		case int64:
			return Text(strconv.FormatInt(v, 10)), nil
		case float64:
			return Text(strconv.FormatFloat(v, 'g', -1, 64)), nil
		case bool:
			return Text(strconv.FormatBool(v)), nil
		case time.Time:
			return Text(v.Format(time.RFC3339Nano)), nil
		}
	case TBool:
		switch v := src.(type) {
		case bool:
			return Bool(v), nil
		case int64:
			return Bool(v != 0), nil
		case float64:
			return Bool(v != 0), nil
		case []byte:
			return parseBool(string(v))
		case string:
			return parseBool(v)
		}
	case TDateTime, TDate, TTime:
		switch v := src.(type) {
		case time.Time:
			return NewTime(v), nil
		case int64:
			return Time(time.Unix(v, 0).UTC()), nil
		case []byte:
			return parseTime(string(v))
		case string:
			return parseTime(v)
		}
	case TBlob:
		switch v := src.(type) {
		case []byte:
			return Bytes(append([]byte(nil), v...)), nil
		case string:
			return Bytes([]byte(v)), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", src, t)
}

func parseInt(s string) (Value, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse int %q: %w", s, err)
	}
	return Int(n), nil
}

func parseFloat(s string) (Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", s, err)
	}
	return Float(f), nil
}

func parseBool(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true":
		return Bool(true), nil
	case "0", "f", "false":
		return Bool(false), nil
	}
	return nil, fmt.Errorf("parse bool %q", s)
}

func parseTime(s string) (Value, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return NewTime(t), nil
		}
	}
	return nil, fmt.Errorf("parse time %q: no matching layout", s)
}

// Format renders v for human-readable output (CLI tables, error messages).
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Text:
		return string(val)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Time:
		return time.Time(val).Format(time.RFC3339Nano)
	case Bytes:
		return fmt.Sprintf("x'%x'", []byte(val))
	case Default:
		return "DEFAULT"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToGo converts a Value to a plain Go value for JSON/YAML output.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Int:
		return int64(val)
	case Text:
		return string(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Time:
		return time.Time(val)
	case Bytes:
		return []byte(val)
	default:
		return Format(v)
	}
}
