package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned by Take when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Kind is the type of a configuration value
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindDatetime
	KindArray
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDatetime:
		return "datetime"
	case KindArray:
		return "array"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single typed configuration value.
// The zero Value is an empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	arr  []Value
	tab  *Table
}

// String returns a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Integer returns an integer value
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a float value
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Boolean returns a boolean value
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Datetime returns a datetime value
func Datetime(t time.Time) Value { return Value{kind: KindDatetime, t: t} }

// Array returns an array value
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// TableValue wraps a table so it can be nested in another table
func TableValue(t *Table) Value { return Value{kind: KindTable, tab: t} }

// Kind returns the type of the value
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string held by v, if v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInteger returns the integer held by v, if v is an integer.
func (v Value) AsInteger() (int64, bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the float held by v. Integers are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsBoolean returns the boolean held by v, if v is a boolean.
func (v Value) AsBoolean() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsDatetime returns the time held by v, if v is a datetime.
func (v Value) AsDatetime() (time.Time, bool) { return v.t, v.kind == KindDatetime }

// AsArray returns the items held by v, if v is an array.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsTable returns the table held by v, if v is a table.
func (v Value) AsTable() (*Table, bool) { return v.tab, v.kind == KindTable }

// Table is an ordered key-value table. Keys keep their insertion order.
type Table struct {
	keys   []string
	values map[string]Value
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{values: make(map[string]Value)}
}

// Len returns the number of keys in the table
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the keys in insertion order
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.keys...)
}

// Get returns the value stored under key
func (t *Table) Get(key string) (Value, bool) {
	if t == nil {
		return Value{}, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Set stores value under key. Replacing a key keeps its original position.
func (t *Table) Set(key string, value Value) {
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Take removes key from the table and returns its value.
// The entry is moved out, not copied: a second Take of the same key fails with ErrKeyNotFound.
func (t *Table) Take(key string) (Value, error) {
	if t == nil {
		return Value{}, ErrKeyNotFound
	}
	v, ok := t.values[key]
	if !ok {
		return Value{}, ErrKeyNotFound
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return v, nil
}

// String returns the string stored under key
func (t *Table) String(key string) (string, bool) {
	v, ok := t.Get(key)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Integer returns the integer stored under key
func (t *Table) Integer(key string) (int64, bool) {
	v, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInteger()
}

// Float returns the number stored under key
func (t *Table) Float(key string) (float64, bool) {
	v, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

// Boolean returns the boolean stored under key
func (t *Table) Boolean(key string) (bool, bool) {
	v, ok := t.Get(key)
	if !ok {
		return false, false
	}
	return v.AsBoolean()
}

// Duration returns the integer stored under key, interpreted in unit.
// For instance Duration("interval_ms", time.Millisecond).
func (t *Table) Duration(key string, unit time.Duration) (time.Duration, bool) {
	n, ok := t.Integer(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// Subtable returns the nested table stored under key
func (t *Table) Subtable(key string) (*Table, bool) {
	v, ok := t.Get(key)
	if !ok {
		return nil, false
	}
	return v.AsTable()
}
