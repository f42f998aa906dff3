// Package types provides core data types for the Mosaico platform.
package types

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies the runtime type of a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInteger
	KindFloat
	KindText
	KindBoolean
	KindBytes
)

// String returns the kind name used in error messages.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged union holding one cell of a record.
// The zero Value is null.
type Value struct {
	kind  ValueKind
	i     int64
	f     float64
	s     string
	b     bool
	bytes []byte
}

// Null returns the null value.
func Null() Value { return Value{} }

// Integer returns an integer value.
func Integer(v int64) Value { return Value{kind: KindInteger, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a text value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Boolean returns a boolean value.
func Boolean(v bool) Value { return Value{kind: KindBoolean, b: v} }

// Bytes returns a binary value. The slice is not copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, bytes: v} }

// Kind returns the value's runtime type.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload. Valid only for KindInteger.
func (v Value) Int() int64 { return v.i }

// Float64 returns the float payload. Valid only for KindFloat.
func (v Value) Float64() float64 { return v.f }

// Str returns the text payload. Valid only for KindText.
func (v Value) Str() string { return v.s }

// Bool returns the boolean payload. Valid only for KindBoolean.
func (v Value) Bool() bool { return v.b }

// Blob returns the bytes payload. Valid only for KindBytes.
func (v Value) Blob() []byte { return v.bytes }

// AsFloat widens an integer or float value to float64 for statistics and
// range comparison. The second return is false for non-numeric values.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// IsNaN reports whether the value is a float NaN.
func (v Value) IsNaN() bool {
	return v.kind == KindFloat && math.IsNaN(v.f)
}

// Canonical returns the canonical string representation used for
// lexicographic statistics over text values. Non-text values render via
// strconv to keep the representation stable across versions.
func (v Value) Canonical() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}
