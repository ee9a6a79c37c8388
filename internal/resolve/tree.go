// Package resolve walks a schema against prepared sources and produces a
// result tree carrying per-leaf provenance.
//
// Three shapes are kept distinct: schema.Node describes what is expected,
// Tree records what was resolved and where it came from, and the plain
// map[string]any returned by ToPlain holds values only.
package resolve

import (
	"fmt"
	"sort"
)

// SourceType names where a value came from.
type SourceType string

const (
	SourceFile    SourceType = "file"
	SourceEnv     SourceType = "env"
	SourceEnvFile SourceType = "envFile"
	SourceArgs    SourceType = "args"
	SourceDefault SourceType = "default"
)

// Value is a *Node or a nested Tree.
type Value interface{ value() }

// Tree mirrors the schema shape.  Unresolved optional leaves are absent.
type Tree map[string]Value

func (Tree) value() {}

// Node is one resolved leaf.  Value holds a coerced primitive, or []*Node
// for arrays.  Elements of an array of objects carry a Tree.
type Node struct {
	Value        any
	Path         string
	SourceType   SourceType
	File         string
	VariableName string
	ArgName      string
	Line         int
	Column       int
	Sensitive    bool
}

func (*Node) value() {}

// Elements returns the element nodes when n is an array.
func (n *Node) Elements() ([]*Node, bool) {
	els, ok := n.Value.([]*Node)
	return els, ok
}

// Location renders "file:line:col" when known.
func (n *Node) Location() string {
	switch {
	case n.File == "":
		return ""
	case n.Line > 0 && n.Column > 0:
		return fmt.Sprintf("%s:%d:%d", n.File, n.Line, n.Column)
	case n.Line > 0:
		return fmt.Sprintf("%s:%d", n.File, n.Line)
	}
	return n.File
}

/*──────────────────────────── projections ─────────────────────────────────*/

// ToPlain strips provenance and returns values only.
func ToPlain(t Tree) map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case Tree:
		return ToPlain(t)
	case *Node:
		return plain(t.Value)
	case []*Node:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = plain(el)
		}
		return out
	}
	return v
}

// Mask returns a deep copy of t with the value of every sensitive node
// replaced by token.  t is not modified.
func Mask(t Tree, token string) Tree {
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = maskValue(v, token)
	}
	return out
}

func maskValue(v Value, token string) Value {
	switch t := v.(type) {
	case Tree:
		return Mask(t, token)
	case *Node:
		return maskNode(t, token)
	}
	return v
}

func maskNode(n *Node, token string) *Node {
	cp := *n
	if n.Sensitive {
		cp.Value = token
		return &cp
	}
	switch v := n.Value.(type) {
	case []*Node:
		els := make([]*Node, len(v))
		for i, el := range v {
			els[i] = maskNode(el, token)
		}
		cp.Value = els
	case Tree:
		cp.Value = Mask(v, token)
	}
	return &cp
}

// Flatten lists every scalar node in t, descending into arrays and nested
// trees, ordered by path.
func Flatten(t Tree) []*Node {
	var out []*Node
	flattenTree(t, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flattenTree(t Tree, out *[]*Node) {
	for _, v := range t {
		switch n := v.(type) {
		case Tree:
			flattenTree(n, out)
		case *Node:
			flattenNode(n, out)
		}
	}
}

func flattenNode(n *Node, out *[]*Node) {
	switch v := n.Value.(type) {
	case []*Node:
		if len(v) == 0 {
			*out = append(*out, n)
		}
		for _, el := range v {
			flattenNode(el, out)
		}
	case Tree:
		flattenTree(v, out)
	default:
		*out = append(*out, n)
	}
}
