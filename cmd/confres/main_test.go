package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

const testSchema = `
fields:
  port:
    kind: number
    required: true
    env: APP_PORT
    cli: true
  name:
    kind: string
    default: svc
    help: service name
  db:
    fields:
      password: {kind: string, env: APP_DB_PASSWORD, sensitive: true}
  tags:
    kind: array
    item: {kind: string}
`

func fixture(t *testing.T) (dir, schemaPath, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	schemaPath = filepath.Join(dir, "schema.yaml")
	cfgPath = filepath.Join(dir, "app.yaml")
	writeFile(t, schemaPath, testSchema)
	writeFile(t, cfgPath, "port: 80\ndb:\n  password: hunter2\ntags: [a, b]\n")
	return
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestResolve_JSON(t *testing.T) {
	_, schemaPath, cfgPath := fixture(t)
	out, _, err := run(t, "resolve", "-s", schemaPath, "-f", cfgPath, "--", "--port=8080")
	if err != nil {
		t.Fatal(err)
	}
	if gjson.Get(out, "port").Int() != 8080 || gjson.Get(out, "name").String() != "svc" {
		t.Fatalf("out = %s", out)
	}
	if gjson.Get(out, "db.password").String() == "hunter2" {
		t.Fatal("sensitive value printed")
	}
	if gjson.Get(out, "tags.#").Int() != 2 {
		t.Fatalf("tags = %s", gjson.Get(out, "tags").Raw)
	}
}

func TestResolve_QueryAndReveal(t *testing.T) {
	_, schemaPath, cfgPath := fixture(t)
	out, _, err := run(t, "resolve", "-s", schemaPath, "-f", cfgPath, "--reveal", "-q", "db.password")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != `"hunter2"` {
		t.Fatalf("out = %q", out)
	}
}

func TestResolve_Formats(t *testing.T) {
	_, schemaPath, cfgPath := fixture(t)
	t.Setenv("APP_PORT", "443")

	out, _, err := run(t, "resolve", "-s", schemaPath, "-f", cfgPath, "--env", "-o", "env")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "APP_PORT=443") || strings.Contains(out, "hunter2") {
		t.Fatalf("env = %q", out)
	}

	out, _, err = run(t, "resolve", "-s", schemaPath, "-f", cfgPath, "--env", "-o", "provenance")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "env APP_PORT") || !strings.Contains(out, cfgPath+":3") {
		t.Fatalf("provenance = %q", out)
	}

	out, _, err = run(t, "resolve", "-s", schemaPath, "-f", cfgPath, "-o", "yaml")
	if err != nil || !strings.Contains(out, "port: 80") {
		t.Fatalf("yaml = %q, %v", out, err)
	}

	if _, _, err := run(t, "resolve", "-s", schemaPath, "-f", cfgPath, "-o", "xml"); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestResolve_Errors(t *testing.T) {
	dir, schemaPath, _ := fixture(t)
	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "{}\n")

	if _, _, err := run(t, "resolve", "-s", schemaPath, "-f", empty); err == nil || !strings.Contains(err.Error(), "port") {
		t.Fatalf("err = %v, want required port", err)
	}
	if _, _, err := run(t, "resolve", "-s", schemaPath, "stray"); err == nil {
		t.Fatal("stray argument accepted")
	}
	if _, _, err := run(t, "resolve", "-f", empty); err == nil {
		t.Fatal("missing --schema accepted")
	}
}

func TestDiff(t *testing.T) {
	dir, schemaPath, cfgPath := fixture(t)
	next := filepath.Join(dir, "next.yaml")
	writeFile(t, next, "port: 81\ndb:\n  password: rotated\ntags: [a, b]\nextra: 1\n")

	out, _, err := run(t, "diff", cfgPath, next)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`~ db.password: "hunter2" -> "rotated"`, "~ port: 80 -> 81", "+ extra: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff missing %q:\n%s", want, out)
		}
	}

	out, _, err = run(t, "diff", "-s", schemaPath, "--exit-code", cfgPath, next)
	if !errors.Is(err, errChanged) {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(out, "hunter2") || strings.Contains(out, "extra") {
		t.Fatalf("schema diff = %s", out)
	}
}

func TestSchema(t *testing.T) {
	_, schemaPath, _ := fixture(t)
	out, _, err := run(t, "schema", schemaPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %q", lines)
	}
	if f := strings.Fields(lines[3]); f[0] != "port" || f[3] != "APP_PORT" || f[4] != "--port" {
		t.Fatalf("port row = %q", lines[3])
	}
	if f := strings.Fields(lines[4]); f[0] != "tags" || f[1] != "array<string>" {
		t.Fatalf("tags row = %q", lines[4])
	}
}
