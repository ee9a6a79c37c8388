package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/yanizio/confres/internal/diag"
)

func TestNewPrimitive_UnsupportedKind(t *testing.T) {
	_, err := NewPrimitive(Kind("date"), Common{})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestNewPrimitive_ContainerKindIsInvalidState(t *testing.T) {
	_, err := NewPrimitive(KindArray, Common{})
	var entry diag.Entry
	if !errors.As(err, &entry) || entry.Kind != diag.InvalidState {
		t.Fatalf("err = %v, want invalid_state entry", err)
	}
}

func TestNewPrimitive_OneOfMustMatchKind(t *testing.T) {
	_, err := NewPrimitive(KindNumber, Common{OneOf: []any{80, "443"}})
	var entry diag.Entry
	if !errors.As(err, &entry) || entry.Kind != diag.InvalidState {
		t.Fatalf("err = %v, want invalid_state entry", err)
	}

	p, err := NewPrimitive(KindNumber, Common{OneOf: []any{80, int64(443), 8080.0}})
	if err != nil {
		t.Fatalf("NewPrimitive: %v", err)
	}
	want := []any{80.0, 443.0, 8080.0}
	if !reflect.DeepEqual(p.OneOf, want) {
		t.Fatalf("OneOf = %#v, want %#v", p.OneOf, want)
	}
}

func TestNewArray_EmptyItem(t *testing.T) {
	for name, item := range map[string]Entry{
		"nil":        nil,
		"empty node": Node{},
		"nil prim":   (*Primitive)(nil),
	} {
		if _, err := NewArray(item, Common{}); err == nil {
			t.Errorf("%s: NewArray succeeded, want invalid_state", name)
		}
	}
}

func TestNewObject_EmptyItem(t *testing.T) {
	if _, err := NewObject(nil, Common{}); err == nil {
		t.Fatal("NewObject(nil) succeeded")
	}
}

func TestDefaultValue(t *testing.T) {
	calls := 0
	c := Common{Default: func() any { calls++; return "x" }}
	if v, ok := c.DefaultValue(); !ok || v != "x" {
		t.Fatalf("DefaultValue() = %v, %v", v, ok)
	}
	typed := Common{Default: func() int { return 7 }}
	if v, ok := typed.DefaultValue(); !ok || v != 7 {
		t.Fatalf("typed DefaultValue() = %v, %v", v, ok)
	}
	if _, ok := (&Common{}).DefaultValue(); ok {
		t.Fatal("empty Common reported a default")
	}
	if calls != 1 {
		t.Fatalf("producer called %d times, want 1", calls)
	}
}

func TestLeavesAndEnvPaths(t *testing.T) {
	s := Node{
		"port": Number(Common{Env: "PORT"}),
		"db": Node{
			"host": String(Common{Env: "DB_HOST"}),
			"pool": ObjectOf(Node{"size": Number(Common{})}, Common{}),
		},
		"tags": ArrayOf(String(Common{}), Common{}),
	}
	var paths []string
	for _, l := range Leaves(s) {
		paths = append(paths, l.Path)
	}
	want := []string{"db.host", "db.pool.size", "port", "tags"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("Leaves = %v, want %v", paths, want)
	}
	if got := EnvPaths(s); !reflect.DeepEqual(got, []string{"db.host", "port"}) {
		t.Fatalf("EnvPaths = %v", got)
	}
}

func TestSensitiveSet_Mask(t *testing.T) {
	s := Node{
		"db": Node{
			"password": String(Common{Sensitive: true}),
			"host":     String(Common{}),
		},
		"servers": ArrayOf(Node{
			"token": String(Common{Sensitive: true}),
			"name":  String(Common{}),
		}, Common{}),
	}
	set := SensitivePaths(s)
	plain := map[string]any{
		"db": map[string]any{"password": "hunter2", "host": "localhost"},
		"servers": []any{
			map[string]any{"token": "abc", "name": "a"},
		},
	}
	got := set.Mask("", plain, "***").(map[string]any)

	db := got["db"].(map[string]any)
	if db["password"] != "***" || db["host"] != "localhost" {
		t.Fatalf("db masked wrong: %v", db)
	}
	srv := got["servers"].([]any)[0].(map[string]any)
	if srv["token"] != "***" || srv["name"] != "a" {
		t.Fatalf("server masked wrong: %v", srv)
	}
	if plain["db"].(map[string]any)["password"] != "hunter2" {
		t.Fatal("Mask mutated its input")
	}
}

func TestTag(t *testing.T) {
	v := Tag("min=1,max=65535")
	if r := v.Validate(8080.0).(Result); len(r.Issues) != 0 {
		t.Fatalf("8080 rejected: %v", r.Issues)
	}
	r := v.Validate(70000.0).(Result)
	if len(r.Issues) != 1 {
		t.Fatalf("70000 issues = %v, want one", r.Issues)
	}
}

func TestTag_UnknownRulePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Tag with unknown rule did not panic")
		}
	}()
	Tag("definitely_not_a_rule")
}

func TestTag_RuleNotApplicableToTypeIsAnIssue(t *testing.T) {
	v := Tag("oneof=80 443")
	r, ok := v.Validate(8080.0).(Result)
	if !ok || len(r.Issues) != 1 {
		t.Fatalf("Validate(8080.0) = %#v, want one issue", r)
	}
	if want := `rule "oneof=80 443" does not apply to float64`; r.Issues[0].Message != want {
		t.Fatalf("message = %q, want %q", r.Issues[0].Message, want)
	}
}
