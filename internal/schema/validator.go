// internal/schema/validator.go
//
// Pluggable field validators.
//
// Context
// -------
// A validator receives the coerced value and returns a Result.  A Result
// with Issues rejects the value; otherwise Value replaces it, which lets a
// validator normalise what it accepts.  Resolution is synchronous, so a
// validator that hands back a deferred outcome (a Pending, a channel, or
// anything exposing Done) is a programmer error and aborts the load.
//
// Tag adapts go-playground/validator so the same rule strings used on
// struct tags elsewhere can guard individual fields.

package schema

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Issue is one reason a value was rejected.
type Issue struct {
	Message string
}

// Result is the synchronous outcome of a Validator.
type Result struct {
	Value  any
	Issues []Issue
}

// Pending is implemented by deferred validation outcomes.
type Pending interface {
	Await() Result
}

// Validator checks a coerced value.  Implementations must return a Result
// or *Result.
type Validator interface {
	Validate(value any) any
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(value any) any

// Validate calls f.
func (f ValidatorFunc) Validate(value any) any { return f(value) }

// Check adapts an error-returning predicate.  A non-nil error becomes one
// Issue carrying its message.
func Check(fn func(value any) error) Validator {
	return ValidatorFunc(func(value any) any {
		if err := fn(value); err != nil {
			return Result{Issues: []Issue{{Message: err.Error()}}}
		}
		return Result{Value: value}
	})
}

//
// go-playground/validator adapter
//

var tagValidator = validator.New()

// Tag validates values against a go-playground/validator rule string such
// as "min=1,max=65535" or "hostname_port".  An unknown rule panics here,
// when the schema is declared, instead of during a load.
func Tag(rules string) Validator {
	probe(rules)
	return ValidatorFunc(func(value any) (out any) {
		// validator panics on some rule/type pairs, e.g. oneof on a float64.
		defer func() {
			if r := recover(); r != nil {
				out = Result{Issues: []Issue{{Message: fmt.Sprintf("rule %q does not apply to %T", rules, value)}}}
			}
		}()
		err := tagValidator.Var(value, rules)
		if err == nil {
			return Result{Value: value}
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Result{Issues: []Issue{{Message: err.Error()}}}
		}
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			issues = append(issues, Issue{Message: fmt.Sprintf("value %v fails rule %q", value, rule)})
		}
		return Result{Issues: issues}
	})
}

// probe runs rules once against an empty string so undefined rule names
// surface immediately.
func probe(rules string) {
	defer func() {
		if r := recover(); r != nil {
			panic(fmt.Sprintf("schema: invalid validator rules %q: %v", rules, r))
		}
	}()
	_ = tagValidator.Var("", rules)
}
