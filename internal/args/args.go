// internal/args/args.go
//
// Command-line flag registrar backed by spf13/pflag.
//
// Context
// -------
// The orchestrator registers one flag per `cli: true` leaf, named after its
// dotted path, then parses the live argument vector.  Only flags the user
// actually set are returned, so an unset flag never shadows a lower source.
//
//   - string and number leaves are string flags; coercion happens later.
//   - boolean leaves are bool flags (`--debug` or `--debug=false`).
//   - array leaves are repeatable string flags (`--tag a --tag b`).
//
// Unknown flags are a fatal usage error unless AllowUnknown is set.
package args

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// ErrUnknownFlag wraps pflag's unknown-flag failure.
var ErrUnknownFlag = errors.New("args: unknown flag")

// Kind selects the flag type.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindList
)

// Registrar collects flag definitions before one Parse call.
type Registrar struct {
	fs    *pflag.FlagSet
	names []string
}

// Option tunes a Registrar.
type Option func(*Registrar)

// AllowUnknown makes Parse skip flags it does not know.
func AllowUnknown() Option {
	return func(r *Registrar) { r.fs.ParseErrorsWhitelist.UnknownFlags = true }
}

// New returns an empty Registrar.  name appears in usage output.
func New(name string, opts ...Option) *Registrar {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = true
	r := &Registrar{fs: fs}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register defines one flag.  Registering the same name twice is ignored.
func (r *Registrar) Register(name, help string, kind Kind) {
	if r.fs.Lookup(name) != nil {
		return
	}
	switch kind {
	case KindBool:
		r.fs.Bool(name, false, help)
	case KindList:
		r.fs.StringArray(name, nil, help)
	default:
		r.fs.String(name, "", help)
	}
	r.names = append(r.names, name)
}

// Parse reads argv (without the program name) and returns the value of
// every flag that was set.  Values are string, bool, or []any of strings.
func (r *Registrar) Parse(argv []string) (map[string]any, error) {
	if err := r.fs.Parse(argv); err != nil {
		if strings.Contains(err.Error(), "unknown flag") || strings.Contains(err.Error(), "unknown shorthand flag") {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, strings.TrimPrefix(err.Error(), "unknown flag: "))
		}
		return nil, fmt.Errorf("args: %w", err)
	}

	out := make(map[string]any)
	r.fs.Visit(func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "bool":
			v, _ := r.fs.GetBool(f.Name)
			out[f.Name] = v
		case "stringArray":
			vs, _ := r.fs.GetStringArray(f.Name)
			list := make([]any, len(vs))
			for i, s := range vs {
				list[i] = s
			}
			out[f.Name] = list
		default:
			out[f.Name] = f.Value.String()
		}
	})
	return out, nil
}

// Args returns the positional arguments left after Parse.
func (r *Registrar) Args() []string { return r.fs.Args() }

// Names lists registered flags in registration order.
func (r *Registrar) Names() []string { return append([]string(nil), r.names...) }

// Usage renders the flag help block.
func (r *Registrar) Usage() string { return r.fs.FlagUsages() }
