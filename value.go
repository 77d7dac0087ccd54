package sqlitekit

import (
	"time"
)

// TimestampFormat is the wire format for timestamp values: RFC 3339 at
// second precision, always rendered in UTC. Values written with
// Timestamp() and read back with Rows.Timestamp round-trip exactly at
// this precision, independent of host locale and timezone.
const TimestampFormat = "2006-01-02T15:04:05Z07:00"

// valueKind tags the active variant of a Value.
type valueKind uint8

const (
	kindNull valueKind = iota
	kindInt
	kindInt64
	kindFloat
	kindBool
	kindText
	kindTimestamp
)

// Value is a closed tagged variant over the data kinds SQLite can hold
// through this package: NULL, 32-bit and 64-bit signed integers,
// double-precision floats, booleans (stored as integer 0/1), text, and
// timestamps (stored as UTC RFC 3339 text). The constructors below are
// the only way to build one, so there is no best-effort coercion path
// for unsupported host types: a type the variant set does not cover is
// a compile error at the call site, never silently stringified data.
type Value struct {
	kind valueKind
	i    int64
	f    float64
	s    string
	t    time.Time
}

// Null returns the SQL NULL value.
func Null() Value {
	return Value{kind: kindNull}
}

// Int returns a 32-bit integer value.
func Int(v int32) Value {
	return Value{kind: kindInt, i: int64(v)}
}

// Int64 returns a 64-bit integer value.
func Int64(v int64) Value {
	return Value{kind: kindInt64, i: v}
}

// Float returns a double-precision floating point value.
func Float(v float64) Value {
	return Value{kind: kindFloat, f: v}
}

// Bool returns a boolean value, stored as integer 0 or 1.
func Bool(v bool) Value {
	b := int64(0)
	if v {
		b = 1
	}
	return Value{kind: kindBool, i: b}
}

// Text returns a text value. The engine copies the bytes at bind time.
func Text(v string) Value {
	return Value{kind: kindText, s: v}
}

// Timestamp returns a timestamp value. It is truncated to second
// precision and normalised to UTC before storage.
func Timestamp(v time.Time) Value {
	return Value{kind: kindTimestamp, t: v.UTC().Truncate(time.Second)}
}

// IsNull reports whether the NULL variant is active.
func (v Value) IsNull() bool {
	return v.kind == kindNull
}

// driverValue maps the active variant to what the SQLite driver binds:
// nil for NULL, int64 for integers and booleans, float64, or string for
// text and formatted timestamps. Exhausting the variant set here and in
// the Rows decoders is the full wiring cost of a new kind.
func (v Value) driverValue() any {
	switch v.kind {
	case kindNull:
		return nil
	case kindInt, kindInt64, kindBool:
		return v.i
	case kindFloat:
		return v.f
	case kindText:
		return v.s
	case kindTimestamp:
		return v.t.Format(TimestampFormat)
	}
	// Unreachable: the zero Value is kindNull.
	return nil
}
