package docfill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull   Kind = iota // JSON null or absent
	KindString             // string scalar
	KindNumber             // numeric scalar
	KindBool               // boolean scalar
	KindList               // ordered sequence of records
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a field value: a scalar (string, number, bool), null, or a list of
// records. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []*Record
}

// String returns a string scalar.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric scalar.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean scalar.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Null returns the null value.
func Null() Value { return Value{} }

// List returns a list value holding the given records in order.
func List(records ...*Record) Value { return Value{kind: KindList, list: records} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsList reports whether v holds records.
func (v Value) IsList() bool { return v.kind == KindList }

// IsScalar reports whether v is a string, number or bool.
func (v Value) IsScalar() bool {
	return v.kind == KindString || v.kind == KindNumber || v.kind == KindBool
}

// Records returns the records of a list value, or nil.
func (v Value) Records() []*Record {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Float returns the numeric payload and whether v is a number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Truthy reports whether v counts as set: non-null, non-empty string,
// non-zero number, true, or a list.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindNumber:
		return v.num != 0
	case KindBool:
		return v.b
	case KindList:
		return true
	default:
		return false
	}
}

// String renders the value without locale formatting. Numbers use the
// shortest form that round-trips, switching to exponent notation below 1e-6
// and from 1e21 ("100", "12.5", "1e-7", "1e+21").
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return fmt.Sprintf("[%d records]", len(v.list))
	default:
		return ""
	}
}

// MarshalJSON encodes the value back to its JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if len(v.list) == 0 {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// orderedValues is an insertion-ordered string-keyed map.
type orderedValues struct {
	keys []string
	vals map[string]Value
}

func (o *orderedValues) get(name string) (Value, bool) {
	v, ok := o.vals[name]
	return v, ok
}

func (o *orderedValues) set(name string, v Value) {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.vals[name] = v
}

func (o *orderedValues) all() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, k := range o.keys {
			if !yield(k, o.vals[k]) {
				return
			}
		}
	}
}

func (o *orderedValues) marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := o.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Record is one element of a list field: an ordered mapping from sub-field
// name to scalar value.
type Record struct {
	orderedValues
}

// NewRecord builds a record from alternating name/value pairs.
func NewRecord(pairs ...any) *Record {
	r := &Record{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		r.Set(name, scalarOf(pairs[i+1]))
	}
	return r
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (Value, bool) { return r.get(name) }

// Set stores v under name. Existing keys keep their position.
func (r *Record) Set(name string, v Value) { r.set(name, v) }

// Keys returns the sub-field names in insertion order.
func (r *Record) Keys() []string { return append([]string(nil), r.keys...) }

// Len returns the number of sub-fields.
func (r *Record) Len() int { return len(r.keys) }

// All iterates sub-fields in insertion order.
func (r *Record) All() iter.Seq2[string, Value] { return r.all() }

// Values returns the values in insertion order.
func (r *Record) Values() []Value {
	out := make([]Value, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.vals[k])
	}
	return out
}

// MarshalJSON encodes the record preserving key order.
func (r *Record) MarshalJSON() ([]byte, error) { return r.marshal() }

// FieldMap is the runtime payload of a fill request: an ordered mapping from
// field name to Value. Key order follows the JSON document it was decoded from.
type FieldMap struct {
	orderedValues
}

// NewFieldMap builds a field map from alternating name/value pairs. Values may
// be Value, *Record slices, or Go scalars.
func NewFieldMap(pairs ...any) FieldMap {
	var m FieldMap
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case []*Record:
			m.Set(name, List(v...))
		default:
			m.Set(name, scalarOf(v))
		}
	}
	return m
}

// Get returns the value stored under name.
func (m *FieldMap) Get(name string) (Value, bool) { return m.get(name) }

// Set stores v under name. Existing keys keep their position.
func (m *FieldMap) Set(name string, v Value) { m.set(name, v) }

// Keys returns the field names in insertion order.
func (m *FieldMap) Keys() []string { return append([]string(nil), m.keys...) }

// Len returns the number of fields.
func (m *FieldMap) Len() int { return len(m.keys) }

// All iterates fields in insertion order.
func (m *FieldMap) All() iter.Seq2[string, Value] { return m.all() }

// Clone returns a copy whose top-level entries and records can be modified
// without affecting m.
func (m *FieldMap) Clone() FieldMap {
	var c FieldMap
	for k, v := range m.All() {
		if v.IsList() {
			recs := make([]*Record, len(v.list))
			for i, r := range v.list {
				cp := &Record{}
				for rk, rv := range r.All() {
					cp.Set(rk, rv)
				}
				recs[i] = cp
			}
			v = List(recs...)
		}
		c.Set(k, v)
	}
	return c
}

// MarshalJSON encodes the field map preserving key order.
func (m FieldMap) MarshalJSON() ([]byte, error) { return m.marshal() }

// UnmarshalJSON decodes a JSON object into m, preserving key order. Top-level
// values must be scalars, null, or arrays of flat objects; anything else is a
// validation error.
func (m *FieldMap) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	*m = FieldMap{}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return err
		}
		v, err := readFieldValue(dec, name)
		if err != nil {
			return err
		}
		m.Set(name, v)
	}
	return expectDelim(dec, '}')
}

func formatNumber(f float64) string {
	if abs := math.Abs(f); abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok || len(exp) < 2 {
		return s
	}
	// Exponents print without zero padding: 1e-07 becomes 1e-7.
	return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}

func readFieldValue(dec *json.Decoder, name string) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, Validationf("field %q: %v", name, err)
	}
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '[':
			var recs []*Record
			for dec.More() {
				rec, err := readRecord(dec, name, len(recs))
				if err != nil {
					return Value{}, err
				}
				recs = append(recs, rec)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return Value{}, err
			}
			return List(recs...), nil
		default:
			return Value{}, Validationf("field %q: objects are only allowed inside lists", name)
		}
	}
	return scalarToken(tok, name)
}

func readRecord(dec *json.Decoder, field string, index int) (*Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, Validationf("field %q[%d]: %v", field, index, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, Validationf("field %q[%d]: list items must be objects", field, index)
	}
	rec := &Record{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, Validationf("field %q[%d].%s: %v", field, index, key, err)
		}
		if _, ok := tok.(json.Delim); ok {
			return nil, Validationf("field %q[%d].%s: nested values are not supported", field, index, key)
		}
		v, err := scalarToken(tok, field+"."+key)
		if err != nil {
			return nil, err
		}
		rec.Set(key, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return rec, nil
}

func scalarToken(tok json.Token, name string) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, Validationf("field %q: %v", name, err)
		}
		return Number(f), nil
	default:
		return Value{}, Validationf("field %q: unexpected token %v", name, tok)
	}
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", Validationf("reading key: %v", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", Validationf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return Validationf("expected %q: %v", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return Validationf("expected %q, got %v", want, tok)
	}
	return nil
}

func scalarOf(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	default:
		return String(fmt.Sprint(t))
	}
}
