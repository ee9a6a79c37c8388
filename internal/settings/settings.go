// internal/settings/settings.go
//
// Settings orchestrator: one resolution pass from raw options to a result
// tree.
//
/*
Context
--------
A Settings value is built for exactly one Load.  Load moves it through

	Constructed → Preparing → Resolving → Resolved | Errored

and never back.  The watcher builds a fresh instance for every reload.

Preparation runs these steps in order:

  1. Reject Files together with Dir; list Dir lexicographically.
  2. Warn once when leaves map env vars but Env is off.
  3. Snapshot the process environment.
  4. Merge `.env` files (later files override earlier), then let every live
     variable override them.
  5. Register one flag per CLI leaf and parse the argument vector.
  6. Keep the caller's defaults tree.
  7. Read every config file through the loader.

Then the schema is walked, warnings are promoted when Strict is set, and
any accumulated error fails the pass with one *diag.AggregateError.

Instrumentation
---------------
  • DEBUG: source preparation (file list, env snapshot size, flag count).
  • WARN : each residual warning after a successful, non-strict pass.
  • INFO : "configuration resolved" with leaf and warning counts.
  • ERROR: failed passes with the error count and the fatal cause.
  • Metrics: pass outcome and duration, field errors by kind.

Notes
-----
  • Every Settings owns its Collector; concurrent loads never share one.
  • Fatal problems (file/dir conflict, missing file, malformed file,
    unknown flag, deferred validator result) abort the pass immediately
    and become the aggregate's Cause.
*/
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/confres/internal/args"
	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/envfile"
	"github.com/yanizio/confres/internal/loader"
	"github.com/yanizio/confres/internal/metrics"
	"github.com/yanizio/confres/internal/resolve"
	"github.com/yanizio/confres/internal/schema"
)

var (
	// ErrConflictingSources is returned when both Files and Dir are set.
	ErrConflictingSources = errors.New("settings: files and dir are mutually exclusive")

	// ErrFileNotFound is returned when a declared file or directory is missing.
	ErrFileNotFound = errors.New("settings: declared source not found")

	// ErrAlreadyLoaded is returned by a second Load on the same instance.
	ErrAlreadyLoaded = errors.New("settings: instance already loaded")

	// ErrUnknownFlag is returned when the argument vector names a flag no
	// leaf declares.
	ErrUnknownFlag = args.ErrUnknownFlag
)

// State is the lifecycle position of a Settings value.
type State int

const (
	Constructed State = iota
	Preparing
	Resolving
	Errored
	Resolved
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Preparing:
		return "preparing-sources"
	case Resolving:
		return "resolving"
	case Errored:
		return "errored"
	case Resolved:
		return "resolved"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FileLoader reads parsed config files.  *loader.Loader satisfies it.
type FileLoader interface {
	Load(path string) (*loader.File, error)
}

// Options configures one pass.
type Options struct {
	// Files are read left to right; the first one defining a path wins.
	Files []string
	// Dir supplies Files from a directory.  Mutually exclusive with Files.
	Dir string

	// Env enables environment variables and EnvFiles.
	Env bool
	// EnvFiles are `.env` files merged in order; live variables win.
	EnvFiles []string

	// CLI enables flags for leaves that declare them.
	CLI bool
	// Args is the argument vector without the program name.  Nil means
	// os.Args[1:].
	Args []string
	// AllowUnknownFlags skips undeclared flags instead of failing.
	AllowUnknownFlags bool

	// Defaults is a tree consulted after files and before option defaults.
	Defaults map[string]any
	// Strict promotes every warning to an error.
	Strict bool
	// Secrets dereferences secret references in raw string values.
	Secrets resolve.SecretResolver

	// Loader overrides loader.Default.
	Loader FileLoader
	// EnvFileLoader overrides envfile.Load.
	EnvFileLoader func(path string) (*envfile.File, error)
	// Environ overrides os.Environ.
	Environ func() []string
	// Logger overrides zap.S().
	Logger *zap.SugaredLogger
}

// Extended is the full provenance view of a resolved pass.
type Extended struct {
	Data     resolve.Tree
	Warnings []string
}

// Settings runs one resolution pass.
type Settings struct {
	schema schema.Node
	opts   Options
	log    *zap.SugaredLogger

	state State
	c     *diag.Collector
	files []string
	tree  resolve.Tree
}

// New returns a Settings in the Constructed state.
func New(s schema.Node, opts Options) *Settings {
	log := opts.Logger
	if log == nil {
		log = zap.S()
	}
	return &Settings{schema: s, opts: opts, log: log, c: diag.NewCollector()}
}

// State reports the lifecycle position.
func (s *Settings) State() State { return s.state }

// Files lists the config files this pass read, in precedence order.
func (s *Settings) Files() []string { return append([]string(nil), s.files...) }

// Plain returns the resolved values.  It is nil unless the pass resolved.
func (s *Settings) Plain() map[string]any {
	if s.state != Resolved {
		return nil
	}
	return resolve.ToPlain(s.tree)
}

// Extended returns the provenance tree and residual warnings.
func (s *Settings) Extended() Extended {
	if s.state != Resolved {
		return Extended{}
	}
	return Extended{Data: s.tree, Warnings: s.c.Warnings()}
}

// Load runs the pass.  It may be called once.
func (s *Settings) Load(ctx context.Context) (err error) {
	if s.state != Constructed {
		return ErrAlreadyLoaded
	}
	start := time.Now()
	defer func() {
		metrics.ObserveResolution(time.Since(start), err == nil)
		for _, e := range s.c.Errors() {
			metrics.FieldErrorsTotal.WithLabelValues(string(e.Kind)).Inc()
		}
	}()

	s.c.Reset()
	s.state = Preparing
	src, err := s.prepare()
	if err != nil {
		return s.fail(err)
	}

	s.state = Resolving
	tree, err := resolve.Walk(ctx, s.schema, src, s.c)
	if err != nil {
		return s.fail(err)
	}
	if s.opts.Strict {
		s.c.Promote()
	}
	if s.c.HasErrors() {
		return s.fail(nil)
	}

	s.tree = tree
	s.state = Resolved
	warnings := s.c.Warnings()
	for _, w := range warnings {
		s.log.Warnw("configuration warning", "warning", w)
	}
	s.log.Infow("configuration resolved",
		"files", len(s.files),
		"leaves", len(resolve.Flatten(tree)),
		"warnings", len(warnings),
		"elapsed", time.Since(start),
	)
	return nil
}

func (s *Settings) fail(cause error) error {
	s.state = Errored
	err := s.c.Err(cause, !s.opts.Strict)
	s.log.Errorw("configuration failed",
		"errors", len(s.c.Errors()),
		"cause", cause,
	)
	return err
}

/*──────────────────────────── preparation ─────────────────────────────────*/

func (s *Settings) prepare() (resolve.Sources, error) {
	var src resolve.Sources

	files, err := s.fileList()
	if err != nil {
		return src, err
	}
	s.files = files

	if !s.opts.Env {
		if paths := schema.EnvPaths(s.schema); len(paths) > 0 {
			s.c.Warnf("environment variables are mapped for %s but environment loading is disabled", strings.Join(paths, ", "))
		}
		if len(s.opts.EnvFiles) > 0 {
			s.c.Warnf("env files %s ignored because environment loading is disabled", strings.Join(s.opts.EnvFiles, ", "))
		}
	} else {
		env, err := s.environment()
		if err != nil {
			return src, err
		}
		src.Env = env
	}

	if s.opts.CLI {
		parsed, err := s.flags()
		if err != nil {
			return src, err
		}
		src.Args = parsed
	}

	src.Defaults = s.opts.Defaults
	src.Secrets = s.opts.Secrets

	fl := s.opts.Loader
	if fl == nil {
		fl = loader.Default
	}
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return src, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return src, fmt.Errorf("settings: %w", err)
		}
		f, err := fl.Load(path)
		if err != nil {
			return src, err
		}
		src.Files = append(src.Files, f)
	}

	s.log.Debugw("sources prepared",
		"files", files,
		"env", len(src.Env),
		"args", len(src.Args),
		"defaults", src.Defaults != nil,
	)
	return src, nil
}

// fileList validates Files against Dir and expands Dir.
func (s *Settings) fileList() ([]string, error) {
	if s.opts.Dir == "" {
		return append([]string(nil), s.opts.Files...), nil
	}
	if len(s.opts.Files) > 0 {
		return nil, ErrConflictingSources
	}
	return ListDir(s.opts.Dir)
}

// ListDir returns the supported config files in dir, sorted by name.
// Dotfiles and subdirectories are skipped.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dir)
		}
		return nil, fmt.Errorf("settings: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !loader.Supported(name) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// environment merges `.env` files and the live environment.
func (s *Settings) environment() (map[string]resolve.EnvVar, error) {
	load := s.opts.EnvFileLoader
	if load == nil {
		load = envfile.Load
	}
	env := make(map[string]resolve.EnvVar)
	for _, path := range s.opts.EnvFiles {
		f, err := load(path)
		if err != nil {
			if envfile.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, err
		}
		for key, e := range f.Entries {
			env[key] = resolve.EnvVar{Value: e.Value, File: path, Line: e.Line, Column: e.Column}
		}
	}

	environ := s.opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	for _, kv := range environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = resolve.EnvVar{Value: value}
	}
	return env, nil
}

// flags registers one flag per CLI leaf and parses the argument vector.
func (s *Settings) flags() (map[string]any, error) {
	var opts []args.Option
	if s.opts.AllowUnknownFlags {
		opts = append(opts, args.AllowUnknown())
	}
	r := args.New("config", opts...)
	for _, leaf := range schema.Leaves(s.schema) {
		base := leaf.Option.Base()
		if !base.CLI {
			continue
		}
		kind := args.KindString
		switch leaf.Option.Kind() {
		case schema.KindBoolean:
			kind = args.KindBool
		case schema.KindArray:
			kind = args.KindList
		}
		r.Register(leaf.Path, base.Help, kind)
	}

	argv := s.opts.Args
	if argv == nil && len(os.Args) > 1 {
		argv = os.Args[1:]
	}
	return r.Parse(argv)
}

/*──────────────────────────── one-shot helpers ────────────────────────────*/

// Load resolves s once and returns the plain values.
func Load(ctx context.Context, s schema.Node, opts Options) (map[string]any, error) {
	st := New(s, opts)
	if err := st.Load(ctx); err != nil {
		return nil, err
	}
	return st.Plain(), nil
}

// LoadExtended resolves s once and returns the provenance view.
func LoadExtended(ctx context.Context, s schema.Node, opts Options) (Extended, error) {
	st := New(s, opts)
	if err := st.Load(ctx); err != nil {
		return Extended{}, err
	}
	return st.Extended(), nil
}
