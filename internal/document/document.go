// Package document builds the ordered JSON trees that the bridge
// publishes. A tree is made of [Object] nodes (named children in
// insertion order), [List] nodes (unnamed children in iteration order)
// and scalar leaves. Order is part of the wire format, so the package
// never goes through a Go map.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is an ordered set of named children. The zero value is an empty
// object ready for use.
type Object struct {
	keys   []string
	values []any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{}
}

// Put sets name to v. An existing key keeps its position and only its
// value is replaced; a new key is appended. Put returns o so calls can be
// chained.
func (o *Object) Put(name string, v any) *Object {
	for i, k := range o.keys {
		if k == name {
			o.values[i] = v
			return o
		}
	}
	o.keys = append(o.keys, name)
	o.values = append(o.values, v)
	return o
}

// AddChild appends name even when it already exists, so the encoded
// object may repeat a key. Put is the right call for everything the
// builders emit.
func (o *Object) AddChild(name string, v any) *Object {
	o.keys = append(o.keys, name)
	o.values = append(o.values, v)
	return o
}

// Get returns the first value stored under name.
func (o *Object) Get(name string) (any, bool) {
	for i, k := range o.keys {
		if k == name {
			return o.values[i], true
		}
	}
	return nil, false
}

// Keys returns the child names in wire order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len reports the number of children.
func (o *Object) Len() int {
	return len(o.keys)
}

// MarshalJSON writes the children in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// List is an ordered sequence of unnamed children. A nil List encodes as
// an empty array, never as null.
type List []any

// MarshalJSON writes the list, encoding a nil list as [].
func (l List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]any(l))
}

// Floats converts a frequency list into a List, keeping order.
func Floats(values []float64) List {
	out := make(List, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
