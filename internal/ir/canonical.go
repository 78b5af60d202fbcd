package ir

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// MarshalCanonical produces the byte-stable encoding of a compiled query
// used for fingerprinting. The layout is JSON-shaped with a fixed key order:
//
//	{"sql":"...","params":[["int","1"],["text","a"]],"tables":["a","b"]}
//
// Rules:
//  1. Every parameter is tagged with its kind, so Int(1), Float(1) and
//     Text("1") never collide
//  2. Tables are sorted and de-duplicated
//  3. Strings are Go-quoted, which keeps every byte: invalid UTF-8 is
//     escaped as \xNN rather than replaced, and strings are NOT normalized
//     because the backend compares bytes
//  4. Floats use the shortest round-trip form; NaN is rejected
//  5. Times use RFC 3339 with nanoseconds in UTC, matching the UTC text
//     ToDriver binds; bytes use base64
func MarshalCanonical(sql string, params []Value, tables []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"sql":`)
	writeCanonicalString(&buf, sql)

	buf.WriteString(`,"params":[`)
	for i, p := range params {
		if i > 0 {
			buf.WriteByte(',')
		}
		tag, text, err := canonicalParam(p)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		buf.WriteByte('[')
		writeCanonicalString(&buf, tag)
		if tag != "null" {
			buf.WriteByte(',')
			writeCanonicalString(&buf, text)
		}
		buf.WriteByte(']')
	}

	buf.WriteString(`],"tables":[`)
	for i, name := range SortedTables(tables) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(&buf, name)
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

// SortedTables returns a sorted copy of tables without duplicates.
func SortedTables(tables []string) []string {
	out := make([]string, 0, len(tables))
	seen := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func canonicalParam(v Value) (tag, text string, err error) {
	switch val := v.(type) {
	case nil, Null:
		return "null", "", nil
	case Int:
		return "int", strconv.FormatInt(int64(val), 10), nil
	case Text:
		return "text", string(val), nil
	case Float:
		f := float64(val)
		if math.IsNaN(f) {
			return "", "", fmt.Errorf("NaN has no canonical form")
		}
		return "float", strconv.FormatFloat(f, 'g', -1, 64), nil
	case Bool:
		return "bool", strconv.FormatBool(bool(val)), nil
	case Time:
		return "time", time.Time(val).UTC().Format(time.RFC3339Nano), nil
	case Bytes:
		return "bytes", base64.StdEncoding.EncodeToString(val), nil
	case Default:
		return "", "", fmt.Errorf("default marker is not a query parameter")
	default:
		return "", "", fmt.Errorf("unsupported value type: %T", v)
	}
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteString(strconv.Quote(s))
}
