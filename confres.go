// Package confres resolves typed configuration from files, `.env` files,
// environment variables, command-line flags, and defaults.
//
// A schema declares every option once.  Load walks it with a fixed
// precedence (flags, then environment, then files in order, then the
// caller's defaults tree, then the option's own default), coerces each raw
// value to its declared kind, and either returns a plain tree or fails
// with a single *AggregateError listing every problem at once.
//
//	s := confres.Schema{
//		"port": confres.Number(confres.Common{Required: true, Env: "PORT", CLI: true}),
//		"db": confres.Schema{
//			"password": confres.String(confres.Common{Env: "DB_PASSWORD", Sensitive: true}),
//		},
//	}
//	cfg, err := confres.Load(ctx, s, confres.Options{Files: []string{"app.yaml"}, Env: true, CLI: true})
//
// Watch keeps a snapshot current as source files change and reports the
// differences, with sensitive values masked.
package confres

import (
	"context"

	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/resolve"
	"github.com/yanizio/confres/internal/schema"
	"github.com/yanizio/confres/internal/settings"
	"github.com/yanizio/confres/internal/watch"
)

type (
	Schema    = schema.Node
	Entry     = schema.Entry
	Common    = schema.Common
	Validator = schema.Validator
	Result    = schema.Result
	Issue     = schema.Issue

	Options  = settings.Options
	Extended = settings.Extended
	Tree     = resolve.Tree
	Node     = resolve.Node

	AggregateError = diag.AggregateError
	FieldError     = diag.Entry
	Kind           = diag.Kind

	Change        = diff.Change
	ChangeType    = diff.ChangeType
	Watcher       = watch.Watcher
	WatchConfig   = watch.Config
	SecretSource  = resolve.SecretResolver
	ValidatorFunc = schema.ValidatorFunc
)

// MaskToken replaces sensitive values in diffs and printed output.
const MaskToken = diff.MaskToken

// Option constructors.  The panicking forms suit package-level schema
// literals; the New forms return construction errors.
var (
	String  = schema.String
	Number  = schema.Number
	Boolean = schema.Boolean
	ArrayOf = schema.ArrayOf
	Object  = schema.ObjectOf

	NewPrimitive = schema.NewPrimitive
	NewArray     = schema.NewArray
	NewObject    = schema.NewObject

	Tag   = schema.Tag
	Check = schema.Check
)

// Sentinel errors callers may test with errors.Is.
var (
	ErrConflictingSources = settings.ErrConflictingSources
	ErrFileNotFound       = settings.ErrFileNotFound
	ErrUnknownFlag        = settings.ErrUnknownFlag
	ErrWatcherClosed      = watch.ErrClosed
)

// Load resolves s and returns the plain configuration tree.
func Load(ctx context.Context, s Schema, opts Options) (map[string]any, error) {
	return settings.Load(ctx, s, opts)
}

// LoadExtended resolves s and returns every leaf with its provenance.
func LoadExtended(ctx context.Context, s Schema, opts Options) (Extended, error) {
	return settings.LoadExtended(ctx, s, opts)
}

// Plain strips provenance from an extended tree.
func Plain(t Tree) map[string]any { return resolve.ToPlain(t) }

// Diff lists the changes from prev to next, masking sensitive paths of s.
func Diff(prev, next map[string]any, s Schema) []Change {
	return diff.Diff(prev, next, s)
}

// Watch resolves once and then reloads whenever a source file changes.
// The returned Watcher must be closed.
func Watch(ctx context.Context, cfg WatchConfig) (*Watcher, error) {
	return watch.New(ctx, cfg)
}
