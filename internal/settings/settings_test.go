package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/yanizio/confres/internal/coerce"
	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/loader"
	"github.com/yanizio/confres/internal/resolve"
	"github.com/yanizio/confres/internal/schema"
)

func quiet(o Options) Options {
	o.Logger = zap.NewNop().Sugar()
	if o.Environ == nil {
		o.Environ = func() []string { return nil }
	}
	if o.Args == nil {
		o.Args = []string{}
	}
	o.Loader = loader.New(16)
	return o
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func aggregate(t *testing.T, err error) *diag.AggregateError {
	t.Helper()
	var agg *diag.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("err = %v (%T), want *diag.AggregateError", err, err)
	}
	return agg
}

func TestLoad_OneOfDefault(t *testing.T) {
	mk := func(def any) schema.Node {
		return schema.Node{"port": schema.Number(schema.Common{
			Required: true,
			OneOf:    []any{80, 443, 8080},
			Default:  def,
		})}
	}

	got, err := Load(context.Background(), mk(8080), quiet(Options{}))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, map[string]any{"port": 8080.0}) {
		t.Fatalf("got %v", got)
	}

	_, err = Load(context.Background(), mk(9999), quiet(Options{}))
	agg := aggregate(t, err)
	if len(agg.Errors) != 1 || agg.Errors[0].Kind != diag.Validation {
		t.Fatalf("errors = %v", agg.Errors)
	}
	for _, s := range []string{"9999", "80", "443", "8080"} {
		if !strings.Contains(agg.Errors[0].Message, s) {
			t.Errorf("message %q does not mention %s", agg.Errors[0].Message, s)
		}
	}
}

func TestLoad_LiveEnvBeatsEnvFile(t *testing.T) {
	dir := t.TempDir()
	dotenv := write(t, dir, ".env", "DB_HOST=localhost\nDB_USER=app\n")
	later := write(t, dir, ".env.local", "DB_USER=local\n")
	s := schema.Node{"db": schema.Node{
		"host": schema.String(schema.Common{Env: "DB_HOST"}),
		"user": schema.String(schema.Common{Env: "DB_USER"}),
	}}

	ext, err := LoadExtended(context.Background(), s, quiet(Options{
		Env:      true,
		EnvFiles: []string{dotenv, later},
		Environ:  func() []string { return []string{"DB_HOST=remote", "PATH=/bin"} },
	}))
	if err != nil {
		t.Fatal(err)
	}
	db := ext.Data["db"].(resolve.Tree)
	host := db["host"].(*resolve.Node)
	if host.Value != "remote" || host.SourceType != resolve.SourceEnv {
		t.Fatalf("host = %+v", host)
	}
	user := db["user"].(*resolve.Node)
	if user.Value != "local" || user.SourceType != resolve.SourceEnvFile || user.File != later || user.Line != 1 {
		t.Fatalf("user = %+v", user)
	}
}

func TestLoad_EnvMappingWarningAndStrict(t *testing.T) {
	s := schema.Node{"host": schema.String(schema.Common{Env: "HOST", Default: "h"})}

	ext, err := LoadExtended(context.Background(), s, quiet(Options{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Warnings) != 1 || !strings.Contains(ext.Warnings[0], "host") {
		t.Fatalf("warnings = %v", ext.Warnings)
	}

	_, err = Load(context.Background(), s, quiet(Options{Strict: true}))
	agg := aggregate(t, err)
	if k := agg.Kinds(); !reflect.DeepEqual(k, []diag.Kind{diag.Strict}) || agg.Warnings != nil {
		t.Fatalf("kinds = %v warnings = %v", k, agg.Warnings)
	}
}

func TestLoad_FatalErrors(t *testing.T) {
	dir := t.TempDir()
	good := write(t, dir, "a.yaml", "a: 1\n")
	bad := write(t, dir, "b.json", "{nope")
	s := schema.Node{"a": schema.Number(schema.Common{CLI: true})}

	cases := []struct {
		name string
		opts Options
		want error
	}{
		{"conflict", Options{Files: []string{good}, Dir: dir}, ErrConflictingSources},
		{"missing file", Options{Files: []string{filepath.Join(dir, "none.yaml")}}, ErrFileNotFound},
		{"missing dir", Options{Dir: filepath.Join(dir, "nodir")}, ErrFileNotFound},
		{"missing env file", Options{Env: true, EnvFiles: []string{filepath.Join(dir, ".nope")}}, ErrFileNotFound},
		{"unknown flag", Options{CLI: true, Args: []string{"--b=1"}}, ErrUnknownFlag},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := New(s, quiet(tc.opts))
			err := st.Load(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if st.State() != Errored {
				t.Fatalf("state = %s", st.State())
			}
		})
	}

	_, err := Load(context.Background(), s, quiet(Options{Files: []string{bad}}))
	var pe *loader.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *loader.ParseError", err)
	}
}

func TestLoad_AsyncValidatorAborts(t *testing.T) {
	s := schema.Node{
		"a": schema.String(schema.Common{Default: "x", Validate: schema.ValidatorFunc(func(any) any {
			return make(chan struct{})
		})}),
	}
	_, err := Load(context.Background(), s, quiet(Options{}))
	if !errors.Is(err, coerce.ErrAsyncValidator) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_CLIFlags(t *testing.T) {
	s := schema.Node{
		"server": schema.Node{
			"port":  schema.Number(schema.Common{CLI: true, Help: "listen port"}),
			"debug": schema.Boolean(schema.Common{CLI: true}),
			"tags":  schema.ArrayOf(schema.String(schema.Common{}), schema.Common{CLI: true}),
		},
	}
	got, err := Load(context.Background(), s, quiet(Options{
		CLI:  true,
		Args: []string{"--server.port=9090", "--server.debug", "--server.tags", "a", "--server.tags", "b"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"server": map[string]any{
		"port":  9090.0,
		"debug": true,
		"tags":  []any{"a", "b"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestLoad_DirectoryOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "20-override.yaml", "name: second\nport: 2\n")
	write(t, dir, "10-base.json", `{"name": "first"}`)
	write(t, dir, ".hidden.yaml", "name: hidden\n")
	write(t, dir, "notes.txt", "ignored")

	s := schema.Node{
		"name": schema.String(schema.Common{}),
		"port": schema.Number(schema.Common{}),
	}
	st := New(s, quiet(Options{Dir: dir}))
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	files := st.Files()
	if len(files) != 2 || filepath.Base(files[0]) != "10-base.json" {
		t.Fatalf("files = %v", files)
	}
	if got := st.Plain(); got["name"] != "first" || got["port"] != 2.0 {
		t.Fatalf("plain = %v", got)
	}
}

func TestLoad_DefaultsRoundTrip(t *testing.T) {
	s := schema.Node{
		"name":  schema.String(schema.Common{Default: "svc"}),
		"debug": schema.Boolean(schema.Common{Default: func() any { return true }}),
		"db": schema.Node{
			"pool": schema.Number(schema.Common{Default: 10.0}),
		},
		"zones": schema.ArrayOf(schema.String(schema.Common{}), schema.Common{Default: []any{"a", "b"}}),
	}
	got, err := Load(context.Background(), s, quiet(Options{}))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"name":  "svc",
		"debug": true,
		"db":    map[string]any{"pool": 10.0},
		"zones": []any{"a", "b"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestLoad_Idempotent(t *testing.T) {
	dir := t.TempDir()
	f := write(t, dir, "c.yaml", "port: \"80\"\nname: 3\n")
	s := schema.Node{
		"port": schema.Number(schema.Common{}),
		"name": schema.String(schema.Common{}),
		"need": schema.String(schema.Common{Required: true}),
	}
	run := func() *diag.AggregateError {
		_, err := Load(context.Background(), s, quiet(Options{Files: []string{f}}))
		return aggregate(t, err)
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a.Errors, b.Errors) || !reflect.DeepEqual(a.Warnings, b.Warnings) {
		t.Fatalf("runs differ:\n%v\n%v", a, b)
	}
	if len(a.Warnings) != 2 {
		t.Fatalf("warnings = %v", a.Warnings)
	}
}

func TestLoad_ConcurrentPassesDoNotShareDiagnostics(t *testing.T) {
	bad := schema.Node{"x": schema.String(schema.Common{Required: true})}
	good := schema.Node{"y": schema.String(schema.Common{Default: "ok"})}

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := good
			if i%2 == 0 {
				s = bad
			}
			_, errs[i] = Load(context.Background(), s, quiet(Options{}))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if i%2 == 1 && err != nil {
			t.Fatalf("good pass %d failed: %v", i, err)
		}
		if i%2 == 0 && len(aggregate(t, err).Errors) != 1 {
			t.Fatalf("bad pass %d errors: %v", i, err)
		}
	}
}

func TestSettings_SingleUse(t *testing.T) {
	st := New(schema.Node{"a": schema.String(schema.Common{Default: "x"})}, quiet(Options{}))
	if st.State() != Constructed {
		t.Fatalf("state = %s", st.State())
	}
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.State() != Resolved {
		t.Fatalf("state = %s", st.State())
	}
	if err := st.Load(context.Background()); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second Load err = %v", err)
	}
}

func TestLoad_TagRuleOnNumberIsValidationError(t *testing.T) {
	s := schema.Node{"port": schema.Number(schema.Common{
		Default:  8080,
		Validate: schema.Tag("oneof=80 443"),
	})}
	_, err := Load(context.Background(), s, quiet(Options{}))
	agg := aggregate(t, err)
	if len(agg.Errors) != 1 || agg.Errors[0].Kind != diag.Validation || agg.Errors[0].Path != "port" {
		t.Fatalf("errors = %v", agg.Errors)
	}
}
