// internal/resolve/walk.go
//
// Schema-driven tree walker.
//
// Context
// -------
// For every leaf at dotted path p the walker takes the first source that
// has a value, in this fixed order:
//
//  1. CLI flag --p (leaf declares CLI and flags are enabled).
//  2. Environment variable named by the leaf, when present and non-empty.
//     Live values have already replaced `.env` values in Sources.Env.
//  3. Each file, left to right.
//  4. The ambient element when resolving inside an array of objects.
//  5. The caller's defaults tree.
//  6. The leaf's own default.
//  7. A required error, or nothing.
//
// The first match wins even when it fails coercion; the failure is recorded
// and lower sources are not consulted.  Inside an array element only steps
// 4, 6, and 7 apply, so every field of an element is read from that element.
//
// Notes
// -----
//   - Field problems go to the Collector.  Walk returns an error only for
//     programmer mistakes (unsupported kind, deferred validator result) or
//     a cancelled context.
//   - Keys are visited in lexical order so diagnostics are deterministic.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/yanizio/confres/internal/coerce"
	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/loader"
	"github.com/yanizio/confres/internal/schema"
)

// Walk resolves every leaf of s against src, recording field problems in c.
// The returned tree holds whatever resolved, even when err is non-nil.
func Walk(ctx context.Context, s schema.Node, src Sources, c *diag.Collector) (Tree, error) {
	w := &walker{ctx: ctx, src: &src, c: c}
	return w.node(s, "", nil, false)
}

type walker struct {
	ctx context.Context
	src *Sources
	c   *diag.Collector
}

// ambient is the raw element an array-of-objects context resolves against.
type ambient struct {
	data map[string]any
	base string
	from origin
}

/*──────────────────────────── provenance ──────────────────────────────────*/

// origin describes the source a raw value was read from.  locPath is the
// value's path inside a file and feeds locate.
type origin struct {
	sourceType   SourceType
	label        string
	file         string
	variableName string
	argName      string
	line, column int
	locate       loader.LocateFunc
	locPath      string
}

func (o origin) at(locPath string) origin {
	o.locPath = locPath
	return o
}

func (o origin) position() (int, int) {
	if o.locate != nil {
		if loc, ok := o.locate(o.locPath); ok {
			return loc.Line, loc.Column
		}
	}
	return o.line, o.column
}

func (o origin) node(path string, v any, sensitive bool) *Node {
	line, col := o.position()
	return &Node{
		Value:        v,
		Path:         path,
		SourceType:   o.sourceType,
		File:         o.file,
		VariableName: o.variableName,
		ArgName:      o.argName,
		Line:         line,
		Column:       col,
		Sensitive:    sensitive,
	}
}

// source renders the label used in diagnostics.
func (o origin) source() string {
	line, col := o.position()
	switch o.sourceType {
	case SourceFile:
		if line > 0 {
			return fmt.Sprintf("file %s:%d:%d", o.file, line, col)
		}
		return "file " + o.file
	case SourceEnv:
		return "env " + o.variableName
	case SourceEnvFile:
		return fmt.Sprintf("envFile %s:%d (%s)", o.file, line, o.variableName)
	case SourceArgs:
		return "args " + o.argName
	}
	return o.label
}

/*──────────────────────────── tree ────────────────────────────────────────*/

func (w *walker) node(n schema.Node, prefix string, amb *ambient, sensitive bool) (Tree, error) {
	t := make(Tree)
	for _, key := range schema.Keys(n) {
		path := schema.Join(prefix, key)
		switch e := n[key].(type) {
		case schema.Node:
			sub, err := w.node(e, path, amb, sensitive)
			if len(sub) > 0 {
				t[key] = sub
			}
			if err != nil {
				return t, err
			}
		case *schema.Object:
			if e == nil {
				w.missingDescriptor(path)
				continue
			}
			sub, err := w.node(e.Item(), path, amb, sensitive || e.Sensitive)
			if len(sub) > 0 {
				t[key] = sub
			}
			if err != nil {
				return t, err
			}
			if len(sub) == 0 && e.Required && !w.c.HasErrorUnder(diag.Required, path) {
				w.c.Errorf(diag.Required, path, "", "%s is required but nothing beneath it resolved", path)
			}
		case *schema.Primitive:
			if e == nil {
				w.missingDescriptor(path)
				continue
			}
			leaf, err := w.leaf(e, path, amb, sensitive)
			if leaf != nil {
				t[key] = leaf
			}
			if err != nil {
				return t, err
			}
		case *schema.Array:
			if e == nil {
				w.missingDescriptor(path)
				continue
			}
			leaf, err := w.leaf(e, path, amb, sensitive)
			if leaf != nil {
				t[key] = leaf
			}
			if err != nil {
				return t, err
			}
		default:
			w.missingDescriptor(path)
		}
	}
	return t, nil
}

func (w *walker) missingDescriptor(path string) {
	w.c.Errorf(diag.InvalidState, path, "", "%s: schema entry has no descriptor", path)
}

/*──────────────────────────── leaves ──────────────────────────────────────*/

func (w *walker) leaf(opt schema.Option, path string, amb *ambient, sensitive bool) (*Node, error) {
	if err := w.ctx.Err(); err != nil {
		return nil, err
	}
	sensitive = sensitive || opt.Base().Sensitive

	raw, from, ok := w.pick(opt, path, amb)
	if !ok {
		w.required(opt, path, amb)
		return nil, nil
	}
	if coerce.IsInvalid(raw) {
		return nil, nil
	}
	raw, ok, err := w.deref(raw, path, from)
	if err != nil || !ok {
		return nil, err
	}

	switch o := opt.(type) {
	case *schema.Array:
		return w.array(o, raw, path, from, sensitive)
	case *schema.Primitive:
		v, ok, err := w.scalar(o, raw, path, from)
		if err != nil || !ok {
			return nil, err
		}
		return from.node(path, v, sensitive), nil
	}
	return nil, nil
}

// pick returns the raw value of the highest-precedence source that has one.
// A blocked path yields coerce.Invalid and wins the slot.
func (w *walker) pick(opt schema.Option, path string, amb *ambient) (any, origin, bool) {
	base := opt.Base()

	if amb != nil {
		rel := strings.TrimPrefix(path, amb.base+".")
		from := amb.from.at(amb.from.locPath + "." + rel)
		switch v, state := lookup(amb.data, rel); state {
		case found:
			return v, from, true
		case blocked:
			return w.blocked(path, from), from, true
		}
	} else {
		if base.CLI && w.src.Args != nil {
			if v, ok := w.src.Args[path]; ok {
				return v, origin{sourceType: SourceArgs, argName: "--" + path}, true
			}
		}
		if base.Env != "" && w.src.Env != nil {
			if ev, ok := w.src.Env[base.Env]; ok && ev.Value != "" {
				from := origin{sourceType: SourceEnv, variableName: base.Env}
				if ev.File != "" {
					from.sourceType = SourceEnvFile
					from.file, from.line, from.column = ev.File, ev.Line, ev.Column
				}
				return ev.Value, from, true
			}
		}
		for _, f := range w.src.Files {
			from := origin{sourceType: SourceFile, file: f.Path, locate: f.Locate, locPath: path}
			switch v, state := lookup(f.Data, path); state {
			case found:
				return v, from, true
			case blocked:
				return w.blocked(path, from), from, true
			}
		}
		from := origin{sourceType: SourceDefault, label: "defaults"}
		switch v, state := lookup(w.src.Defaults, path); state {
		case found:
			return v, from, true
		case blocked:
			return w.blocked(path, from), from, true
		}
	}

	if v, ok := base.DefaultValue(); ok {
		return v, origin{sourceType: SourceDefault, label: "default"}, true
	}
	return nil, origin{}, false
}

func (w *walker) blocked(path string, from origin) any {
	w.c.Errorf(diag.InvalidPath, path, from.source(), "%s: cannot descend into a non-object value", path)
	return coerce.Invalid
}

func (w *walker) required(opt schema.Option, path string, amb *ambient) {
	base := opt.Base()
	if !base.Required {
		return
	}
	if amb != nil {
		w.c.Errorf(diag.Required, path, "", "%s is required in every element", path)
		return
	}
	var where []string
	if base.CLI && w.src.Args != nil {
		where = append(where, "flag --"+path)
	}
	if base.Env != "" {
		where = append(where, "env "+base.Env)
	}
	if len(w.src.Files) > 0 {
		where = append(where, "key "+path+" in a config file")
	}
	if len(where) == 0 {
		w.c.Errorf(diag.Required, path, "", "%s is required", path)
		return
	}
	w.c.Errorf(diag.Required, path, "", "%s is required; set it with %s", path, strings.Join(where, " or "))
}

func (w *walker) scalar(p *schema.Primitive, raw any, path string, from origin) (any, bool, error) {
	src := from.source()
	v, err := coerce.Value(raw, p.Kind(), path, src, w.c)
	if err != nil {
		return nil, false, err
	}
	if coerce.IsInvalid(v) {
		return nil, false, nil
	}
	return coerce.Check(p, v, path, src, w.c)
}

// deref replaces a secret reference with its value.  A failed lookup is an
// invalid_state error for the field; a cancelled context aborts the walk.
func (w *walker) deref(raw any, path string, from origin) (any, bool, error) {
	s, ok := raw.(string)
	if !ok || w.src.Secrets == nil {
		return raw, true, nil
	}
	v, handled, err := w.src.Secrets.Resolve(w.ctx, s)
	if !handled {
		return raw, true, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		w.c.Errorf(diag.InvalidState, path, from.source(), "%s: secret reference could not be resolved: %v", path, err)
		return nil, false, nil
	}
	return v, true, nil
}

/*──────────────────────────── arrays ──────────────────────────────────────*/

// array materialises a sequence.  Elements that fail are dropped on their
// own; the array survives with the rest.
func (w *walker) array(a *schema.Array, raw any, path string, from origin, sensitive bool) (*Node, error) {
	src := from.source()
	items, ok := sequence(raw, from.sourceType)
	if !ok {
		w.c.Errorf(diag.TypeConversion, path, src, "%s: stated as array but provided as %s (%v)", path, coerce.TypeName(raw), raw)
		return nil, nil
	}

	els := make([]*Node, 0, len(items))
	for i, item := range items {
		elPath := fmt.Sprintf("%s[%d]", path, i)
		elFrom := from.at(fmt.Sprintf("%s[%d]", from.locPath, i))
		el, err := w.element(a.Item(), item, elPath, elFrom, sensitive)
		if err != nil {
			return nil, err
		}
		if el != nil {
			els = append(els, el)
		}
	}

	raw = plain(els)
	v, ok, err := coerce.Check(a, raw, path, src, w.c)
	if err != nil || !ok {
		return nil, err
	}
	if coerce.Equal(v, raw) {
		return from.node(path, els, sensitive), nil
	}
	return from.node(path, rebuild(v, path, from, sensitive), sensitive), nil
}

// rebuild wraps a validator's re-shaped value in nodes carrying the
// array's origin.
func rebuild(v any, path string, from origin, sensitive bool) any {
	switch t := v.(type) {
	case []any:
		els := make([]*Node, len(t))
		for i, el := range t {
			elPath := fmt.Sprintf("%s[%d]", path, i)
			els[i] = from.node(elPath, rebuild(el, elPath, from, sensitive), sensitive)
		}
		return els
	case map[string]any:
		tree := make(Tree, len(t))
		for k, el := range t {
			p := schema.Join(path, k)
			tree[k] = from.node(p, rebuild(el, p, from, sensitive), sensitive)
		}
		return tree
	}
	return v
}

func (w *walker) element(item schema.Entry, raw any, path string, from origin, sensitive bool) (*Node, error) {
	switch it := item.(type) {
	case *schema.Primitive:
		raw, ok, err := w.deref(raw, path, from)
		if err != nil || !ok {
			return nil, err
		}
		v, ok, err := w.scalar(it, raw, path, from)
		if err != nil || !ok {
			return nil, err
		}
		return from.node(path, v, sensitive || it.Sensitive), nil
	case *schema.Array:
		return w.array(it, raw, path, from, sensitive || it.Sensitive)
	case *schema.Object:
		return w.record(it.Item(), raw, path, from, sensitive || it.Sensitive)
	case schema.Node:
		return w.record(it, raw, path, from, sensitive)
	}
	return nil, nil
}

// record re-runs the walker against one element of an array of objects.
func (w *walker) record(n schema.Node, raw any, path string, from origin, sensitive bool) (*Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		w.c.Errorf(diag.TypeConversion, path, from.source(), "%s: stated as object but provided as %s", path, coerce.TypeName(raw))
		return nil, nil
	}
	sub, err := w.node(n, path, &ambient{data: m, base: path, from: from}, sensitive)
	if err != nil {
		return nil, err
	}
	return from.node(path, sub, sensitive), nil
}

// sequence turns raw into a list of elements.  Environment values are
// comma-separated; other sources must already hold a slice.
func sequence(raw any, st SourceType) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case string:
		if st != SourceEnv && st != SourceEnvFile {
			return nil, false
		}
		parts := strings.Split(v, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
