package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nanValue() float64 { return math.NaN() }

// TestValueSealed verifies every Value type satisfies the sealed interface.
func TestValueSealed(t *testing.T) {
	values := []Value{Null{}, Int(1), Text("a"), Float(1.5), Bool(true), Time(time.Time{}), Bytes{1}, Default{}}
	assert.Len(t, values, 8)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"int", TInt},
		{"INTEGER", TInt},
		{"string", TText},
		{"double", TFloat},
		{"Boolean", TBool},
		{"timestamp", TDateTime},
		{"date", TDate},
		{"time", TTime},
		{"bytes", TBlob},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseType("decimal")
	assert.Error(t, err)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "datetime", TDateTime.String())
	assert.Equal(t, "type(99)", Type(99).String())
}

func TestFits(t *testing.T) {
	assert.True(t, Fits(Null{}, TInt))
	assert.True(t, Fits(Int(1), TFloat))
	assert.False(t, Fits(Float(1), TInt))
	assert.True(t, Fits(Time(time.Now()), TDate))
	assert.False(t, Fits(Text("1"), TInt))
	assert.False(t, Fits(Default{}, TInt))
}

func TestToDriver(t *testing.T) {
	v, err := ToDriver(Int(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = ToDriver(Null{})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = ToDriver(Default{})
	assert.Error(t, err)
}

func TestFromDriver(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		src  any
		typ  Type
		want Value
	}{
		{"nil is null", nil, TText, Null{}},
		{"int64", int64(3), TInt, Int(3)},
		{"bool from sqlite int", int64(1), TBool, Bool(true)},
		{"bool false", int64(0), TBool, Bool(false)},
		{"float from int", int64(2), TFloat, Float(2)},
		{"text from bytes", []byte("hi"), TText, Text("hi")},
		{"time passthrough", ts, TDateTime, Time(ts)},
		{"time from text", "2024-01-02 03:04:05", TDateTime, Time(ts)},
		{"time from iso text", "2024-01-02T03:04:05Z", TDateTime, Time(ts)},
		{"blob", []byte{1, 2}, TBlob, Bytes{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromDriver(tt.src, tt.typ)
			require.NoError(t, err)
			if want, ok := tt.want.(Time); ok {
				assert.True(t, time.Time(want).Equal(time.Time(got.(Time))))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromDriver("abc", TInt)
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(Int(2), TFloat)
	require.NoError(t, err)
	assert.Equal(t, Float(2), v)

	v, err = Coerce(Text("12"), TInt)
	require.NoError(t, err)
	assert.Equal(t, Int(12), v)

	_, err = Coerce(Bool(true), TInt)
	assert.Error(t, err)
}

func TestZero(t *testing.T) {
	assert.Equal(t, Int(0), Zero(TInt))
	assert.Equal(t, Text(""), Zero(TText))
	assert.Equal(t, Bool(false), Zero(TBool))
}

func TestRowCloneDoesNotAlias(t *testing.T) {
	orig := Row{Int(1), Bytes{1, 2, 3}}
	cp := orig.Clone()
	cp[0] = Int(9)
	cp[1].(Bytes)[0] = 9

	assert.Equal(t, Int(1), orig[0])
	assert.Equal(t, byte(1), orig[1].(Bytes)[0])
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "NULL", Format(Null{}))
	assert.Equal(t, "1.5", Format(Float(1.5)))
	assert.Equal(t, "x'0102'", Format(Bytes{1, 2}))
}

func TestTimeNormalizedToUTC(t *testing.T) {
	east := time.Date(2024, 3, 1, 13, 0, 0, 0, time.FixedZone("east", 3600))
	want := Time(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, want, NewTime(east))

	v, err := FromGo(east)
	require.NoError(t, err)
	assert.Equal(t, want, v)

	v, err = Coerce(Time(east), TDateTime)
	require.NoError(t, err)
	assert.Equal(t, want, v)

	v, err = FromDriver("2024-03-01 13:00:00+01:00", TDateTime)
	require.NoError(t, err)
	assert.Equal(t, want, v)

	bound, err := ToDriver(Time(east))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, bound.(time.Time).Location())
}
