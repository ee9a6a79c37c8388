// internal/printer/printer.go
//
// Renders resolved configuration for humans and for other tools.
//
// Context
// -------
// Four renderings share one rule: sensitive values are replaced with the
// mask token before anything is written, unless Reveal is set.
//
//   - JSON        document assembled key by key with sjson, then indented
//     (and optionally colourised) with tidwall/pretty.
//   - YAML        yaml.v3 with two-space indentation.
//   - Dotenv      one KEY=value line per env-mapped leaf, via godotenv.
//   - Provenance  tab-aligned table of every resolved leaf and its source.
//
// Query runs a gjson path against a rendered JSON document.
package printer

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/resolve"
	"github.com/yanizio/confres/internal/schema"
)

// Options tune every renderer.
type Options struct {
	Reveal bool   // print sensitive values as-is
	Color  bool   // ANSI colours (JSON only)
	Indent string // JSON indent; two spaces when empty
}

func (o Options) mask(plain map[string]any, s schema.Node) map[string]any {
	if o.Reveal {
		return plain
	}
	set := schema.SensitivePaths(s)
	if len(set) == 0 {
		return plain
	}
	out := make(map[string]any, len(plain))
	for k, v := range plain {
		out[k] = set.Mask(k, v, diff.MaskToken)
	}
	return out
}

/*──────────────────────────── JSON ────────────────────────────────────────*/

// JSON renders plain as an indented document with keys in lexical order.
func JSON(plain map[string]any, s schema.Node, opts Options) ([]byte, error) {
	masked := opts.mask(plain, s)
	keys := make([]string, 0, len(masked))
	for k := range masked {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := []byte("{}")
	for _, k := range keys {
		var err error
		doc, err = sjson.SetBytes(doc, escapeKey(k), masked[k])
		if err != nil {
			return nil, fmt.Errorf("printer: json %q: %w", k, err)
		}
	}

	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}
	doc = pretty.PrettyOptions(doc, &pretty.Options{Width: 80, Indent: indent, SortKeys: true})
	if opts.Color {
		doc = pretty.Color(doc, pretty.TerminalStyle)
	}
	return doc, nil
}

// escapeKey protects sjson path syntax inside a single key.
func escapeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Query extracts a gjson path from a rendered JSON document.  The result
// is the raw JSON of the match; ok is false when nothing matched.
func Query(doc []byte, path string) (raw string, ok bool) {
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return "", false
	}
	return res.Raw, true
}

/*──────────────────────────── YAML ────────────────────────────────────────*/

// YAML renders plain as a YAML document.
func YAML(plain map[string]any, s schema.Node, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(opts.mask(plain, s)); err != nil {
		return nil, fmt.Errorf("printer: yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("printer: yaml: %w", err)
	}
	return buf.Bytes(), nil
}

/*──────────────────────────── dotenv ──────────────────────────────────────*/

// Dotenv renders the env-mapped leaves of s that have a value in plain.
// Arrays are joined with commas, the same form the env source accepts.
func Dotenv(plain map[string]any, s schema.Node, opts Options) ([]byte, error) {
	set := schema.SensitivePaths(s)
	env := make(map[string]string)
	for _, l := range schema.Leaves(s) {
		name := l.Option.Base().Env
		if name == "" {
			continue
		}
		v, ok := lookup(plain, l.Path)
		if !ok {
			continue
		}
		if !opts.Reveal && set.Covers(l.Path) {
			env[name] = diff.MaskToken
			continue
		}
		str, err := envString(v)
		if err != nil {
			return nil, fmt.Errorf("printer: dotenv %s: %w", l.Path, err)
		}
		env[name] = str
	}
	if len(env) == 0 {
		return nil, nil
	}
	out, err := godotenv.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("printer: dotenv: %w", err)
	}
	return []byte(out + "\n"), nil
}

func envString(v any) (string, error) {
	if list, ok := v.([]any); ok {
		parts := make([]string, len(list))
		for i, el := range list {
			s, err := cast.ToStringE(el)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	}
	return cast.ToStringE(v)
}

func lookup(plain map[string]any, path string) (any, bool) {
	var cur any = plain
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

/*──────────────────────────── provenance ──────────────────────────────────*/

// Provenance writes one row per resolved scalar in t: path, value, source
// and location.
func Provenance(w io.Writer, t resolve.Tree, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tVALUE\tSOURCE\tLOCATION")
	for _, n := range resolve.Flatten(t) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Path, cell(n, opts), origin(n), n.Location())
	}
	return tw.Flush()
}

func cell(n *resolve.Node, opts Options) string {
	if n.Sensitive && !opts.Reveal {
		return diff.MaskToken
	}
	if _, ok := n.Elements(); ok {
		return "[]"
	}
	if s, ok := n.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return cast.ToString(n.Value)
}

func origin(n *resolve.Node) string {
	switch n.SourceType {
	case resolve.SourceEnv, resolve.SourceEnvFile:
		return fmt.Sprintf("%s %s", n.SourceType, n.VariableName)
	case resolve.SourceArgs:
		return fmt.Sprintf("%s %s", n.SourceType, n.ArgName)
	}
	return string(n.SourceType)
}
