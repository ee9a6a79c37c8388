// internal/diag/diag.go
//
// Error and warning accumulation for one resolution pass.
//
// Context
// -------
// Field-level problems never abort a pass.  They are recorded in a Collector
// owned by exactly one settings instance and surfaced together at the end as
// one AggregateError, so a caller sees every violated field in a single load.
// A Collector is never shared between passes, which keeps two concurrent
// loads from mixing their diagnostics.
//
// Notes
// -----
//   - Entry implements error so callers can use errors.As on the aggregate.
//   - A Collector is not safe for concurrent use; a pass is single-goroutine.
package diag

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies an accumulated error.
type Kind string

const (
	Required       Kind = "required"
	TypeConversion Kind = "type_conversion"
	InvalidPath    Kind = "invalid_path"
	InvalidState   Kind = "invalid_state"
	FileValidation Kind = "file_validation"
	Validation     Kind = "validation"
	Strict         Kind = "strict"
)

// Entry is one accumulated error.  Path and Source are empty when the
// problem is not tied to a field or a source.
type Entry struct {
	Kind    Kind
	Path    string
	Source  string
	Message string
}

// Error implements the error interface.
func (e Entry) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Source != "" {
		b.WriteString(" (")
		b.WriteString(e.Source)
		b.WriteString(")")
	}
	return b.String()
}

/*──────────────────────────── collector ───────────────────────────────────*/

// Collector accumulates errors and warnings for one pass.
type Collector struct {
	errors   []Entry
	warnings []string
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector { return &Collector{} }

// Add records e.
func (c *Collector) Add(e Entry) { c.errors = append(c.errors, e) }

// Errorf records a formatted error of the given kind.
func (c *Collector) Errorf(kind Kind, path, source, format string, args ...any) {
	c.Add(Entry{Kind: kind, Path: path, Source: source, Message: fmt.Sprintf(format, args...)})
}

// Warn records a warning.
func (c *Collector) Warn(msg string) { c.warnings = append(c.warnings, msg) }

// Warnf records a formatted warning.
func (c *Collector) Warnf(format string, args ...any) { c.Warn(fmt.Sprintf(format, args...)) }

// Errors returns a copy of the accumulated errors.
func (c *Collector) Errors() []Entry {
	out := make([]Entry, len(c.errors))
	copy(out, c.errors)
	return out
}

// Warnings returns a copy of the accumulated warnings.
func (c *Collector) Warnings() []string {
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// HasErrors reports whether any error was recorded.
func (c *Collector) HasErrors() bool { return len(c.errors) > 0 }

// HasErrorUnder reports whether an error of kind was recorded for path or
// any path nested below it.
func (c *Collector) HasErrorUnder(kind Kind, path string) bool {
	for _, e := range c.errors {
		if e.Kind != kind {
			continue
		}
		if e.Path == path || strings.HasPrefix(e.Path, path+".") || strings.HasPrefix(e.Path, path+"[") {
			return true
		}
	}
	return false
}

// Promote turns every warning into a Strict error and clears the warnings.
func (c *Collector) Promote() {
	for _, w := range c.warnings {
		c.Add(Entry{Kind: Strict, Message: w})
	}
	c.warnings = nil
}

// Reset discards everything recorded so far.
func (c *Collector) Reset() {
	c.errors = nil
	c.warnings = nil
}

// Err returns nil when nothing went wrong.  Otherwise it returns an
// *AggregateError carrying every error, the warnings when withWarnings is
// set, and cause (which may be nil).
func (c *Collector) Err(cause error, withWarnings bool) error {
	if cause == nil && len(c.errors) == 0 {
		return nil
	}
	agg := &AggregateError{Errors: c.Errors(), Cause: cause}
	if withWarnings {
		agg.Warnings = c.Warnings()
	}
	return agg
}

/*──────────────────────────── aggregate ───────────────────────────────────*/

// AggregateError is returned when a pass fails.  Cause is set when the pass
// aborted on a fatal problem; Errors holds whatever was accumulated up to
// that point.
type AggregateError struct {
	Errors   []Entry
	Warnings []string
	Cause    error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if e.Cause != nil && len(e.Errors) == 0 {
		return "configuration: " + e.Cause.Error()
	}
	merr := &multierror.Error{ErrorFormat: multierror.ListFormatFunc}
	if e.Cause != nil {
		merr = multierror.Append(merr, e.Cause)
	}
	for _, entry := range e.Errors {
		merr = multierror.Append(merr, entry)
	}
	return "configuration: " + strings.TrimSpace(merr.Error())
}

// Unwrap exposes the cause and every entry to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	for _, entry := range e.Errors {
		out = append(out, entry)
	}
	return out
}

// Kinds returns the kind of every entry, in order.
func (e *AggregateError) Kinds() []Kind {
	out := make([]Kind, len(e.Errors))
	for i, entry := range e.Errors {
		out[i] = entry.Kind
	}
	return out
}
