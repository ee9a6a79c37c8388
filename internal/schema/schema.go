// Package schema declares the expected shape of a configuration.
//
// A Node maps field names to entries.  An entry is either a nested Node (an
// implicit object) or an Option.  Options form a closed set of three
// variants: *Primitive (string, number, boolean), *Array, and *Object.  Type
// switches over Entry are exhaustive against these four types.
//
// Schemas are immutable once built and may be shared by any number of
// concurrent loads.
package schema

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/yanizio/confres/internal/diag"
)

// ErrUnsupportedKind is returned when a constructor receives a kind string
// it does not know.
var ErrUnsupportedKind = errors.New("schema: unsupported kind")

// Kind is the declared type of an option.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Valid reports whether k is one of the five declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindArray, KindObject:
		return true
	}
	return false
}

// Primitive reports whether k is string, number, or boolean.
func (k Kind) Primitive() bool {
	return k == KindString || k == KindNumber || k == KindBoolean
}

// Entry is either a Node or an Option.
type Entry interface{ entry() }

// Node is a mapping from field name to Entry.
type Node map[string]Entry

func (Node) entry() {}

// Option is a typed schema descriptor.
type Option interface {
	Entry
	Kind() Kind
	Base() *Common
}

// Common holds the settings every option carries.
type Common struct {
	// Required makes a missing value an error.
	Required bool
	// Env names the environment variable to read.
	Env string
	// CLI registers a flag named after the dotted path.
	CLI bool
	// Default is a literal or a zero-argument function producing the value.
	Default any
	// OneOf restricts the coerced value to a finite set.
	OneOf []any
	// Sensitive masks the value in diffs and printed output.
	Sensitive bool
	// Validate runs after coercion and the OneOf check.
	Validate Validator
	// Help is the flag usage text.
	Help string
}

// Base returns c.  It lets *Primitive, *Array, and *Object satisfy Option
// through embedding.
func (c *Common) Base() *Common { return c }

// DefaultValue returns the option's default, invoking it when it is a
// zero-argument function.  The boolean is false when no default exists.
func (c *Common) DefaultValue() (any, bool) {
	if c.Default == nil {
		return nil, false
	}
	switch fn := c.Default.(type) {
	case func() any:
		v := fn()
		return v, v != nil
	}
	rv := reflect.ValueOf(c.Default)
	if rv.Kind() == reflect.Func && rv.Type().NumIn() == 0 && rv.Type().NumOut() == 1 {
		v := rv.Call(nil)[0].Interface()
		return v, v != nil
	}
	return c.Default, true
}

/*──────────────────────────── variants ────────────────────────────────────*/

// Primitive is a string, number, or boolean leaf.
type Primitive struct {
	Common
	kind Kind
}

func (*Primitive) entry() {}

// Kind returns the declared kind.
func (p *Primitive) Kind() Kind { return p.kind }

// Array is a sequence whose elements are described by Item.
type Array struct {
	Common
	item Entry
}

func (*Array) entry() {}

// Kind returns KindArray.
func (*Array) Kind() Kind { return KindArray }

// Item returns the element descriptor.
func (a *Array) Item() Entry { return a.item }

// Object is an explicit nested object.  Only its leaves resolve values.
type Object struct {
	Common
	item Node
}

func (*Object) entry() {}

// Kind returns KindObject.
func (*Object) Kind() Kind { return KindObject }

// Item returns the nested schema.
func (o *Object) Item() Node { return o.item }

/*──────────────────────────── constructors ────────────────────────────────*/

// NewPrimitive builds a string, number, or boolean option.  An unknown kind
// yields ErrUnsupportedKind; array or object kinds and a OneOf list that
// does not match kind yield an invalid_state diag.Entry.
func NewPrimitive(kind Kind, c Common) (*Primitive, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedKind, kind)
	}
	if !kind.Primitive() {
		return nil, invalidState("kind %q needs an item descriptor; use NewArray or NewObject", kind)
	}
	oneOf, err := normalizeOneOf(kind, c.OneOf)
	if err != nil {
		return nil, err
	}
	c.OneOf = oneOf
	return &Primitive{Common: c, kind: kind}, nil
}

// NewArray builds an array option.  A nil or empty item is an invalid_state
// construction error.
func NewArray(item Entry, c Common) (*Array, error) {
	if isEmptyEntry(item) {
		return nil, invalidState("array item descriptor is empty")
	}
	return &Array{Common: c, item: item}, nil
}

// NewObject builds an explicit object option.  A nil or empty item is an
// invalid_state construction error.
func NewObject(item Node, c Common) (*Object, error) {
	if len(item) == 0 {
		return nil, invalidState("object item descriptor is empty")
	}
	return &Object{Common: c, item: item}, nil
}

// String, Number, Boolean, ArrayOf, and ObjectOf are the panicking forms of
// the constructors, meant for schemas declared as package-level literals.

func String(c Common) *Primitive  { return must(NewPrimitive(KindString, c)) }
func Number(c Common) *Primitive  { return must(NewPrimitive(KindNumber, c)) }
func Boolean(c Common) *Primitive { return must(NewPrimitive(KindBoolean, c)) }

func ArrayOf(item Entry, c Common) *Array {
	a, err := NewArray(item, c)
	if err != nil {
		panic(err)
	}
	return a
}

func ObjectOf(item Node, c Common) *Object {
	o, err := NewObject(item, c)
	if err != nil {
		panic(err)
	}
	return o
}

func must(p *Primitive, err error) *Primitive {
	if err != nil {
		panic(err)
	}
	return p
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func invalidState(format string, args ...any) error {
	return diag.Entry{Kind: diag.InvalidState, Message: fmt.Sprintf(format, args...)}
}

func isEmptyEntry(e Entry) bool {
	switch v := e.(type) {
	case nil:
		return true
	case Node:
		return len(v) == 0
	case *Primitive:
		return v == nil
	case *Array:
		return v == nil
	case *Object:
		return v == nil
	}
	return false
}

// normalizeOneOf checks that every member matches kind and converts numeric
// members to float64 so later comparisons see one representation.
func normalizeOneOf(kind Kind, members []any) ([]any, error) {
	if len(members) == 0 {
		return nil, nil
	}
	out := make([]any, len(members))
	for i, m := range members {
		switch kind {
		case KindString:
			s, ok := m.(string)
			if !ok {
				return nil, invalidState("oneOf member %v is not a string", m)
			}
			out[i] = s
		case KindBoolean:
			b, ok := m.(bool)
			if !ok {
				return nil, invalidState("oneOf member %v is not a boolean", m)
			}
			out[i] = b
		case KindNumber:
			f, ok := ToFloat(m)
			if !ok {
				return nil, invalidState("oneOf member %v is not a number", m)
			}
			out[i] = f
		}
	}
	return out, nil
}

// ToFloat converts any Go numeric value to float64.  Booleans and strings
// are not numbers.
func ToFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
