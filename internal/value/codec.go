package value

import (
	"strconv"
	"strings"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/pkg/errors"
)

// symbolPrefix marks symbols in the JSON encoding. A string that itself
// starts with the prefix is escaped by doubling it.
const symbolPrefix = "`"

var (
	_ easyjson.Marshaler   = Value{}
	_ easyjson.Unmarshaler = (*Value)(nil)
)

func (v Value) MarshalEasyJSON(w *jwriter.Writer) {
	switch v.kind {
	case NilKind:
		w.RawString("null")
	case BoolKind:
		w.Bool(v.b)
	case IntKind:
		w.Int64(v.i)
	case FloatKind:
		w.Float64(v.f)
	case StringKind:
		if strings.HasPrefix(v.s, symbolPrefix) {
			w.String(symbolPrefix + v.s)
			return
		}
		w.String(v.s)
	case SymbolKind:
		w.String(symbolPrefix + v.s)
	case ListKind:
		w.RawByte('[')
		for i, item := range v.l {
			if i > 0 {
				w.RawByte(',')
			}
			item.MarshalEasyJSON(w)
		}
		w.RawByte(']')
	case MapKind:
		w.RawByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				w.RawByte(',')
			}
			w.String(k)
			w.RawByte(':')
			v.m[k].MarshalEasyJSON(w)
		}
		w.RawByte('}')
	}
}

func (v *Value) UnmarshalEasyJSON(l *jlexer.Lexer) {
	*v = decode(l)
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (v *Value) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	v.UnmarshalEasyJSON(&r)
	return r.Error()
}

// ErrNumberRange is reported for integral JSON numbers outside int64.
var ErrNumberRange = errors.New("integer out of range")

// decode reads one JSON value. Numbers written with a fraction or an
// exponent become floats, all others integers.
func decode(l *jlexer.Lexer) Value {
	switch l.CurrentToken() {
	case jlexer.TokenNull:
		l.Null()
		return Nil()
	case jlexer.TokenBool:
		return Bool(l.Bool())
	case jlexer.TokenNumber:
		return decodeNumber(l)
	case jlexer.TokenString:
		return decodeString(l.String())
	case jlexer.TokenDelim:
	default:
		return Nil()
	}

	if l.IsDelim('{') {
		l.Delim('{')
		m := make(map[string]Value)
		for !l.IsDelim('}') {
			key := l.String()
			l.WantColon()
			m[key] = decode(l)
			l.WantComma()
		}
		l.Delim('}')
		return Map(m)
	}
	l.Delim('[')
	items := []Value{}
	for !l.IsDelim(']') {
		items = append(items, decode(l))
		l.WantComma()
	}
	l.Delim(']')
	return List(items...)
}

func decodeNumber(l *jlexer.Lexer) Value {
	n := string(l.JsonNumber())
	if strings.ContainsAny(n, ".eE") {
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			l.AddError(errors.Wrapf(err, "invalid number %s", n))
			return Nil()
		}
		return Float(f)
	}
	i, err := strconv.ParseInt(n, 10, 64)
	if err != nil {
		l.AddError(errors.Wrap(ErrNumberRange, n))
		return Nil()
	}
	return Int(i)
}

func decodeString(s string) Value {
	switch {
	case strings.HasPrefix(s, symbolPrefix+symbolPrefix):
		return String(s[len(symbolPrefix):])
	case strings.HasPrefix(s, symbolPrefix):
		return Symbol(s[len(symbolPrefix):])
	}
	return String(s)
}

// ParseList decodes a JSON array into a list of values.
func ParseList(data []byte) ([]Value, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	if l, ok := v.AsList(); ok {
		return l, nil
	}
	return []Value{v}, nil
}
