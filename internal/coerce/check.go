package coerce

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/schema"
)

// Check applies the OneOf list and then the validator of opt to an already
// coerced value.  It returns the possibly re-shaped value and whether it
// was accepted.  A OneOf failure skips the validator.  The error is non-nil
// only when the validator broke its synchronous contract.
func Check(opt schema.Option, value any, path, source string, c *diag.Collector) (any, bool, error) {
	base := opt.Base()

	if len(base.OneOf) > 0 && !contains(base.OneOf, value) {
		c.Errorf(diag.Validation, path, source, "%s: value %s is not one of %s", path, format(value), formatList(base.OneOf))
		return Invalid, false, nil
	}

	if base.Validate == nil {
		return value, true, nil
	}

	res, err := result(base.Validate.Validate(value), path)
	if err != nil {
		return nil, false, err
	}
	if len(res.Issues) > 0 {
		for _, issue := range res.Issues {
			c.Errorf(diag.Validation, path, source, "%s: %s", path, issue.Message)
		}
		return Invalid, false, nil
	}
	if res.Value == nil {
		return value, true, nil
	}
	return res.Value, true, nil
}

// result unpacks what a validator returned.
func result(out any, path string) (schema.Result, error) {
	switch r := out.(type) {
	case schema.Result:
		return r, nil
	case *schema.Result:
		if r != nil {
			return *r, nil
		}
	case schema.Pending:
		return schema.Result{}, fmt.Errorf("%w at %s: got %T", ErrAsyncValidator, path, out)
	case interface{ Done() <-chan struct{} }:
		return schema.Result{}, fmt.Errorf("%w at %s: got %T", ErrAsyncValidator, path, out)
	}
	if out != nil && reflect.TypeOf(out).Kind() == reflect.Chan {
		return schema.Result{}, fmt.Errorf("%w at %s: got %T", ErrAsyncValidator, path, out)
	}
	return schema.Result{}, fmt.Errorf("%w at %s: got %T", ErrValidatorResult, path, out)
}

func contains(list []any, v any) bool {
	for _, m := range list {
		if Equal(m, v) {
			return true
		}
	}
	return false
}

// Equal compares two plain values.  NaN equals NaN; maps and slices compare
// structurally.
func Equal(a, b any) bool {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
		}
		return false
	}
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func format(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

func formatList(list []any) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = format(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
