// internal/coerce/coerce.go
//
// Conversion of raw source values to declared kinds.
//
// Context
// -------
// Raw values arrive as whatever the source produced: strings from the
// environment and flags, float64 from JSON, int from YAML, int64 from TOML.
// Value turns them into the declared kind and records every mismatch in the
// pass's Collector instead of failing.  Numbers always come out as float64.
//
//   - string target   number or boolean → stringified, plus a warning.
//   - boolean target  1, "1", "true" → true; 0, "0", "false" → false.
//   - number target   string → leading base-10 integer, plus a warning.
//
// Anything else is a type_conversion error and yields Invalid.  Only an
// unknown kind string is fatal.

package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/schema"
)

var (
	// ErrUnsupportedKind is returned for a kind outside the declared set.
	ErrUnsupportedKind = errors.New("coerce: unsupported kind")

	// ErrAsyncValidator is returned when a validator hands back a deferred
	// outcome.
	ErrAsyncValidator = errors.New("coerce: validator returned a deferred result")

	// ErrValidatorResult is returned when a validator returns something
	// other than a schema.Result.
	ErrValidatorResult = errors.New("coerce: validator returned an unsupported result")
)

type invalid struct{}

// Invalid marks a value that failed upstream.  Errors for it have already
// been recorded.
var Invalid any = invalid{}

// IsInvalid reports whether v is the Invalid marker.
func IsInvalid(v any) bool {
	_, ok := v.(invalid)
	return ok
}

// Value coerces raw to kind.  Data problems go to c and produce Invalid;
// the returned error is non-nil only for an unsupported kind.  An Invalid
// input records one invalid_state entry with a fixed message.  The walker
// never passes Invalid in, so a field is not reported twice.
func Value(raw any, kind schema.Kind, path, source string, c *diag.Collector) (any, error) {
	if IsInvalid(raw) {
		c.Errorf(diag.InvalidState, path, source, "%s: value already failed upstream", path)
		return Invalid, nil
	}
	switch kind {
	case schema.KindString:
		return toString(raw, path, source, c), nil
	case schema.KindBoolean:
		return toBoolean(raw, path, source, c), nil
	case schema.KindNumber:
		return toNumber(raw, path, source, c), nil
	case schema.KindArray, schema.KindObject:
		c.Errorf(diag.InvalidState, path, source, "%s: %s values are resolved through their items, not coerced", path, kind)
		return Invalid, nil
	}
	return nil, fmt.Errorf("%w %q at %s", ErrUnsupportedKind, kind, path)
}

func toString(raw any, path, source string, c *diag.Collector) any {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		warnMismatch(c, path, source, schema.KindString, raw)
		return cast.ToString(v)
	}
	if f, ok := number(raw); ok {
		warnMismatch(c, path, source, schema.KindString, raw)
		return cast.ToString(f)
	}
	mismatch(c, path, source, schema.KindString, raw)
	return Invalid
}

func toBoolean(raw any, path, source string, c *diag.Collector) any {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch v {
		case "1", "true":
			return true
		case "0", "false":
			return false
		}
	default:
		if f, ok := number(raw); ok {
			switch f {
			case 1:
				return true
			case 0:
				return false
			}
		}
	}
	mismatch(c, path, source, schema.KindBoolean, raw)
	return Invalid
}

func toNumber(raw any, path, source string, c *diag.Collector) any {
	if f, ok := number(raw); ok {
		return f
	}
	s, ok := raw.(string)
	if !ok {
		mismatch(c, path, source, schema.KindNumber, raw)
		return Invalid
	}
	n, ok := ParseInt(s)
	if !ok {
		c.Errorf(diag.TypeConversion, path, source, "%s: cannot parse %q as a number", path, s)
		return Invalid
	}
	warnMismatch(c, path, source, schema.KindNumber, raw)
	return n
}

// ParseInt reads a leading base-10 integer the way lenient parsers do:
// surrounding whitespace and an optional sign are accepted, and parsing
// stops at the first non-digit.  "42px" is 42; "px" fails.
func ParseInt(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n float64
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		n = n*10 + float64(s[digits]-'0')
		digits++
	}
	if digits == 0 {
		return math.NaN(), false
	}
	if neg {
		n = -n
	}
	return n, true
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// number reports whether raw is a Go numeric value and returns it as
// float64.
func number(raw any) (float64, bool) {
	if n, ok := raw.(json.Number); ok {
		f, err := cast.ToFloat64E(n)
		return f, err == nil
	}
	return schema.ToFloat(raw)
}

// TypeName names raw in the vocabulary of declared kinds.
func TypeName(raw any) string {
	if raw == nil {
		return "null"
	}
	switch raw.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	}
	if _, ok := number(raw); ok {
		return "number"
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return fmt.Sprintf("%T", raw)
}

func warnMismatch(c *diag.Collector, path, source string, kind schema.Kind, raw any) {
	c.Warnf("%s: stated as %s but provided as %s%s", path, kind, TypeName(raw), suffix(source))
}

func mismatch(c *diag.Collector, path, source string, kind schema.Kind, raw any) {
	c.Errorf(diag.TypeConversion, path, source, "%s: stated as %s but provided as %s (%v)", path, kind, TypeName(raw), raw)
}

func suffix(source string) string {
	if source == "" {
		return ""
	}
	return " (" + source + ")"
}
