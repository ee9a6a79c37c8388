package schema

import (
	"sort"
	"strings"
)

// Leaf pairs an Option with its dotted path.
type Leaf struct {
	Path   string
	Option Option
}

// Leaves lists every Primitive and Array option reachable through nested
// nodes and objects, sorted by path.  Array items are not descended into.
func Leaves(n Node) []Leaf {
	var out []Leaf
	collectLeaves(n, "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func collectLeaves(n Node, prefix string, out *[]Leaf) {
	for key, e := range n {
		path := Join(prefix, key)
		switch v := e.(type) {
		case Node:
			collectLeaves(v, path, out)
		case *Object:
			if v != nil {
				collectLeaves(v.item, path, out)
			}
		case *Primitive:
			if v != nil {
				*out = append(*out, Leaf{Path: path, Option: v})
			}
		case *Array:
			if v != nil {
				*out = append(*out, Leaf{Path: path, Option: v})
			}
		}
	}
}

// EnvPaths returns the sorted paths of leaves that declare an environment
// variable.
func EnvPaths(n Node) []string {
	var out []string
	for _, l := range Leaves(n) {
		if l.Option.Base().Env != "" {
			out = append(out, l.Path)
		}
	}
	return out
}

// Keys returns the field names of n in lexical order.
func Keys(n Node) []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Join appends key to a dotted prefix.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

/*──────────────────────────── sensitive paths ─────────────────────────────*/

// SensitiveSet holds paths marked sensitive.  Array elements are addressed
// with a "[]" suffix on the array path, e.g. "servers[].password".
type SensitiveSet map[string]bool

// SensitivePaths collects every sensitive option in n, including options
// nested in array items.  A nil schema yields an empty set.
func SensitivePaths(n Node) SensitiveSet {
	set := make(SensitiveSet)
	collectSensitive(n, "", set)
	return set
}

func collectSensitive(e Entry, path string, set SensitiveSet) {
	switch v := e.(type) {
	case Node:
		for key, child := range v {
			collectSensitive(child, Join(path, key), set)
		}
	case *Object:
		if v == nil {
			return
		}
		if v.Sensitive {
			set[path] = true
		}
		collectSensitive(v.item, path, set)
	case *Array:
		if v == nil {
			return
		}
		if v.Sensitive {
			set[path] = true
		}
		collectSensitive(v.item, path+"[]", set)
	case *Primitive:
		if v != nil && v.Sensitive {
			set[path] = true
		}
	}
}

// Covers reports whether path or one of its ancestors is sensitive.
func (s SensitiveSet) Covers(path string) bool {
	if len(s) == 0 {
		return false
	}
	for {
		if s[path] {
			return true
		}
		i := strings.LastIndexAny(path, ".[")
		if i < 0 {
			return false
		}
		path = path[:i]
	}
}

// Mask returns a copy of v, located at path, with every sensitive value
// replaced by token.  Maps and slices are copied only when needed.
func (s SensitiveSet) Mask(path string, v any, token string) any {
	if len(s) == 0 || v == nil {
		return v
	}
	if s.Covers(path) {
		return token
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = s.Mask(Join(path, k), child, token)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = s.Mask(path+"[]", child, token)
		}
		return out
	}
	return v
}
