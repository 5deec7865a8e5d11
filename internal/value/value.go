// Package value models the values exchanged with the scripting host:
// nil, booleans, integers, floats, strings, symbols, lists and maps.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind int

const (
	NilKind Kind = iota
	BoolKind
	IntKind
	FloatKind
	StringKind
	SymbolKind
	ListKind
	MapKind
	// AnyKind is only used in builtin signatures.
	AnyKind
)

var kindNames = map[Kind]string{
	NilKind:    "nil",
	BoolKind:   "boolean",
	IntKind:    "integer",
	FloatKind:  "float",
	StringKind: "string",
	SymbolKind: "symbol",
	ListKind:   "list",
	MapKind:    "map",
	AnyKind:    "any",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Value is an immutable scripting value. The zero Value is nil.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    map[string]Value
}

func Nil() Value            { return Value{} }
func Bool(b bool) Value     { return Value{kind: BoolKind, b: b} }
func Int(i int64) Value     { return Value{kind: IntKind, i: i} }
func Float(f float64) Value { return Value{kind: FloatKind, f: f} }
func String(s string) Value { return Value{kind: StringKind, s: s} }
func Symbol(s string) Value { return Value{kind: SymbolKind, s: s} }
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: ListKind, l: items}
}

func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: MapKind, m: m}
}

// Strings converts a string slice into a list of string values.
func Strings(items []string) Value {
	l := make([]Value, 0, len(items))
	for _, s := range items {
		l = append(l, String(s))
	}
	return List(l...)
}

// Ints converts an int64 slice into a list of integer values.
func Ints(items []int64) Value {
	l := make([]Value, 0, len(items))
	for _, i := range items {
		l = append(l, Int(i))
	}
	return List(l...)
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNil() bool { return v.kind == NilKind }

func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == BoolKind }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == IntKind }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == FloatKind }
func (v Value) AsString() (string, bool) { return v.s, v.kind == StringKind }
func (v Value) AsSymbol() (string, bool) { return v.s, v.kind == SymbolKind }
func (v Value) AsList() ([]Value, bool)  { return v.l, v.kind == ListKind }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == MapKind }

// Lookup returns the map entry for key, or nil when v is not a map or the
// key is missing.
func (v Value) Lookup(key string) Value {
	if v.kind != MapKind {
		return Nil()
	}
	return v.m[key]
}

// Len returns the number of list items or map entries.
func (v Value) Len() int {
	switch v.kind {
	case ListKind:
		return len(v.l)
	case MapKind:
		return len(v.m)
	}
	return 0
}

// Keys returns the sorted keys of a map value.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether a and b hold the same value.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case NilKind:
		return true
	case BoolKind:
		return a.b == b.b
	case IntKind:
		return a.i == b.i
	case FloatKind:
		return a.f == b.f
	case StringKind, SymbolKind:
		return a.s == b.s
	case ListKind:
		if len(a.l) != len(b.l) {
			return false
		}
		for i := range a.l {
			if !Equal(a.l[i], b.l[i]) {
				return false
			}
		}
		return true
	case MapKind:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value the way the scripting host prints it.
func (v Value) String() string {
	switch v.kind {
	case NilKind:
		return "nil"
	case BoolKind:
		return strconv.FormatBool(v.b)
	case IntKind:
		return strconv.FormatInt(v.i, 10)
	case FloatKind:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case StringKind:
		return strconv.Quote(v.s)
	case SymbolKind:
		return "`" + v.s
	case ListKind:
		parts := make([]string, 0, len(v.l))
		for _, item := range v.l {
			parts = append(parts, item.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case MapKind:
		parts := make([]string, 0, len(v.m))
		for _, k := range v.Keys() {
			parts = append(parts, fmt.Sprintf("%q:%s", k, v.m[k].String()))
		}
		return "$[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}
