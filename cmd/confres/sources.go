// cmd/confres/sources.go
//
// Flags shared by every command that resolves a schema.

package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/yanizio/confres/internal/database"
	"github.com/yanizio/confres/internal/schema"
	"github.com/yanizio/confres/internal/schemafile"
	"github.com/yanizio/confres/internal/settings"
	"github.com/yanizio/confres/internal/vault"
)

type sourceFlags struct {
	schema   string
	files    []string
	dir      string
	env      bool
	envFiles []string
	strict   bool
	unknown  bool

	defaultsDSN   string
	defaultsTable string
	defaultsScope string

	vault    bool
	vaultTTL time.Duration
}

func (f *sourceFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.schema, "schema", "s", "", "schema document (YAML)")
	fs.StringArrayVarP(&f.files, "file", "f", nil, "config file; repeat for more, first wins")
	fs.StringVar(&f.dir, "dir", "", "read every config file in this directory")
	fs.BoolVar(&f.env, "env", false, "read environment variables")
	fs.StringArrayVar(&f.envFiles, "env-file", nil, ".env file; repeat for more, later wins (needs --env)")
	fs.BoolVar(&f.strict, "strict", false, "treat warnings as errors")
	fs.BoolVar(&f.unknown, "allow-unknown-flags", false, "ignore application flags the schema does not declare")
	fs.StringVar(&f.defaultsDSN, "defaults-dsn", "", "MySQL DSN holding a defaults table")
	fs.StringVar(&f.defaultsTable, "defaults-table", "app_defaults", "defaults table name")
	fs.StringVar(&f.defaultsScope, "defaults-scope", "", "defaults scope (all rows when empty)")
	fs.BoolVar(&f.vault, "vault", false, "dereference vault:<mount>/<path>#<key> values (VAULT_ADDR, VAULT_TOKEN)")
	fs.DurationVar(&f.vaultTTL, "vault-ttl", time.Minute, "cache lifetime for vault secrets")
}

// prepare loads the schema and builds settings options.  The returned
// cleanup releases the defaults database, if one was opened.
func (f *sourceFlags) prepare(ctx context.Context, a *app, appArgs []string, renew bool) (schema.Node, settings.Options, func(), error) {
	cleanup := func() {}
	if f.schema == "" {
		return nil, settings.Options{}, cleanup, errors.New("--schema is required")
	}
	s, err := schemafile.Load(f.schema)
	if err != nil {
		return nil, settings.Options{}, cleanup, err
	}

	if appArgs == nil {
		appArgs = []string{}
	}
	opts := settings.Options{
		Files:             f.files,
		Dir:               f.dir,
		Env:               f.env,
		EnvFiles:          f.envFiles,
		CLI:               true,
		Args:              appArgs,
		AllowUnknownFlags: f.unknown,
		Strict:            f.strict,
		Logger:            a.log,
	}

	if f.defaultsDSN != "" {
		db, err := database.Open(f.defaultsDSN)
		if err != nil {
			return nil, settings.Options{}, cleanup, err
		}
		cleanup = func() { _ = db.Close() }
		if opts.Defaults, err = database.DefaultsTree(ctx, db, f.defaultsTable, f.defaultsScope); err != nil {
			cleanup()
			return nil, settings.Options{}, func() {}, err
		}
	}

	if f.vault {
		cli, err := vault.New(ctx, vault.Options{TTL: f.vaultTTL, Renew: renew, Logger: a.log})
		if err != nil {
			cleanup()
			return nil, settings.Options{}, func() {}, err
		}
		opts.Secrets = cli
	}
	return s, opts, cleanup, nil
}
