package diff

import (
	"math"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/yanizio/confres/internal/schema"
)

func TestDiff_Types(t *testing.T) {
	prev := map[string]any{
		"port":  8080.0,
		"name":  "a",
		"gone":  true,
		"db":    map[string]any{"host": "x", "pool": 5.0},
		"zones": []any{"a", "b"},
	}
	next := map[string]any{
		"port":  8080.0,
		"name":  "b",
		"fresh": "new",
		"db":    map[string]any{"host": "x", "pool": 6.0},
		"zones": []any{"b", "a"},
	}
	got := Diff(prev, next, nil)
	want := []Change{
		{Path: "db.pool", OldValue: 5.0, NewValue: 6.0, Type: Changed},
		{Path: "fresh", NewValue: "new", Type: Added},
		{Path: "gone", OldValue: true, Type: Removed},
		{Path: "name", OldValue: "a", NewValue: "b", Type: Changed},
		{Path: "zones", OldValue: []any{"a", "b"}, NewValue: []any{"b", "a"}, Type: Changed},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff =\n%#v\nwant\n%#v", got, want)
	}
}

func TestDiff_ObjectReplacedByScalar(t *testing.T) {
	got := Diff(map[string]any{"db": map[string]any{"host": "x"}}, map[string]any{"db": "x"}, nil)
	if len(got) != 1 || got[0].Path != "db" || got[0].Type != Changed {
		t.Fatalf("Diff = %#v", got)
	}
}

func TestDiff_NaN(t *testing.T) {
	a := map[string]any{"ratio": math.NaN()}
	if got := Diff(a, map[string]any{"ratio": math.NaN()}, nil); len(got) != 0 {
		t.Fatalf("NaN reported as change: %v", got)
	}
}

func TestDiff_MasksSensitive(t *testing.T) {
	s := schema.Node{
		"db": schema.Node{
			"password": schema.String(schema.Common{Sensitive: true}),
			"host":     schema.String(schema.Common{}),
		},
		"token": schema.String(schema.Common{Sensitive: true}),
		"key":   schema.String(schema.Common{Sensitive: true}),
		"servers": schema.ArrayOf(schema.Node{
			"secret": schema.String(schema.Common{Sensitive: true}),
		}, schema.Common{}),
	}
	prev := map[string]any{
		"db":      map[string]any{"password": "old", "host": "h1"},
		"token":   "t",
		"servers": []any{map[string]any{"secret": "s1"}},
	}
	next := map[string]any{
		"db":      map[string]any{"password": "new", "host": "h2"},
		"key":     "k",
		"servers": []any{map[string]any{"secret": "s2"}},
	}
	got := Diff(prev, next, s)
	want := []Change{
		{Path: "db.host", OldValue: "h1", NewValue: "h2", Type: Changed},
		{Path: "db.password", OldValue: MaskToken, NewValue: MaskToken, Type: Changed},
		{Path: "key", NewValue: MaskToken, Type: Added},
		{Path: "servers",
			OldValue: []any{map[string]any{"secret": MaskToken}},
			NewValue: []any{map[string]any{"secret": MaskToken}},
			Type:     Changed},
		{Path: "token", OldValue: MaskToken, Type: Removed},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff =\n%#v\nwant\n%#v", got, want)
	}
}

// build turns generated primitives into a nested snapshot.
func build(keys []string, nums []float64, flag bool) map[string]any {
	root := map[string]any{"flag": flag}
	nested := map[string]any{}
	for i, k := range keys {
		if i < len(nums) {
			nested[k] = nums[i]
		} else {
			nested[k] = k
		}
	}
	root["nested"] = nested
	list := make([]any, len(nums))
	for i, n := range nums {
		list[i] = n
	}
	root["list"] = list
	return root
}

func TestDiff_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("diff(x, x) is empty", prop.ForAll(
		func(keys []string, nums []float64, flag bool) bool {
			x := build(keys, nums, flag)
			return len(Diff(x, x, nil)) == 0
		},
		gen.SliceOf(gen.AlphaString()), gen.SliceOf(gen.Float64()), gen.Bool(),
	))

	properties.Property("sensitive values never leak", prop.ForAll(
		func(a, b string) bool {
			s := schema.Node{"secret": schema.String(schema.Common{Sensitive: true})}
			for _, c := range Diff(map[string]any{"secret": a}, map[string]any{"secret": b}, s) {
				if c.OldValue != MaskToken || c.NewValue != MaskToken {
					return false
				}
			}
			for _, c := range Diff(map[string]any{}, map[string]any{"secret": b}, s) {
				if c.Type != Added || c.NewValue != MaskToken {
					return false
				}
			}
			return true
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.Property("masking never hides a change", prop.ForAll(
		func(a, b string) bool {
			s := schema.Node{"secret": schema.String(schema.Common{Sensitive: true})}
			masked := Diff(map[string]any{"secret": a}, map[string]any{"secret": b}, s)
			plain := Diff(map[string]any{"secret": a}, map[string]any{"secret": b}, nil)
			return len(masked) == len(plain)
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
